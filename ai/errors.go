package ai

import "errors"

// Remote-call failure classes. Callers pick a fallback path based on which
// class an error wraps; see the matcher for the degradation rules.
var (
	// ErrEmbeddingProvider marks a failed or timed-out embedding call.
	// Never masked with a zero vector: similarity math over a wrong vector
	// is worse than an explicit skip.
	ErrEmbeddingProvider = errors.New("embedding provider failure")

	// ErrVectorStore marks a vector search that failed for remote or
	// connectivity reasons, as opposed to a legitimate empty result.
	ErrVectorStore = errors.New("vector store failure")

	// ErrJudgmentProvider marks a failed judgment LLM call.
	ErrJudgmentProvider = errors.New("judgment provider failure")

	// ErrJudgmentParse marks a judgment response that arrived but did not
	// contain the expected JSON payload.
	ErrJudgmentParse = errors.New("judgment response parse failure")
)
