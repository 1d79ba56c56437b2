package bot

import "sync"

// chatLocks serializes turn handling at chat-id granularity. Chat memory is
// read-modify-write with no optimistic concurrency control, so a second
// in-flight turn for the same chat would lose updates to the shared-story
// and theme sets. Locks are never released from the map; the set of active
// chats is small per process.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire blocks until the chat's lock is held and returns the unlock func.
func (c *chatLocks) acquire(chatID string) func() {
	c.mu.Lock()
	lock, ok := c.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[chatID] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
