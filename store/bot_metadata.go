package store

// BotMetadata is the complete persona configuration stored in the database.
type BotMetadata struct {
	BotID          string
	Name           string
	DisplayName    string // what users see in conversations
	Description    string
	WelcomeMessage string

	// Personality configuration
	CoreTraits        []string
	ConversationStyle map[string]string // approach, tone, ...
	BackgroundContext string

	// Behavior settings
	StorySharingFrequency     string // low, moderate, high
	RelationshipBuildingSpeed string // slow, normal, fast
	ResponseLengthPreference  string // short, medium, long

	Version   string
	IsActive  bool
	CreatedTs int64
	UpdatedTs int64
}

// UpdateBotMetadata enumerates every updatable field of BotMetadata.
// A nil field is left untouched. Unknown fields cannot be expressed at all,
// which replaces the attribute-name-string updates the legacy tooling used.
type UpdateBotMetadata struct {
	BotID string

	Name                      *string
	DisplayName               *string
	Description               *string
	WelcomeMessage            *string
	CoreTraits                *[]string
	ConversationStyle         *map[string]string
	BackgroundContext         *string
	StorySharingFrequency     *string
	RelationshipBuildingSpeed *string
	ResponseLengthPreference  *string
	Version                   *string
	IsActive                  *bool
}
