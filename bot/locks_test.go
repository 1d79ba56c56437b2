package bot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatLocksSerializeSameChat(t *testing.T) {
	locks := newChatLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.acquire("chat1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, counter)
}

func TestChatLocksIndependentAcrossChats(t *testing.T) {
	locks := newChatLocks()

	unlock1 := locks.acquire("chat1")
	defer unlock1()

	// A different chat must not block behind chat1's in-flight turn.
	done := make(chan struct{})
	go func() {
		unlock2 := locks.acquire("chat2")
		unlock2()
		close(done)
	}()
	<-done
}
