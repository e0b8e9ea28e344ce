package store

import (
	"sync"

	"github.com/davisfield/switchboard/internal/models"
)

// InsertCallback receives a copy of each newly persisted message.
type InsertCallback func(models.Message)

// subscriptions tracks per-recipient insert callbacks. Push notification is
// an optimization layered over polling, not required for correctness, so
// dispatch is best-effort and asynchronous.
type subscriptions struct {
	mu        sync.RWMutex
	callbacks map[string][]InsertCallback
}

func newSubscriptions() *subscriptions {
	return &subscriptions{callbacks: make(map[string][]InsertCallback)}
}

// Subscribe registers cb to be invoked for each message inserted for
// recipient. Callbacks run on their own goroutine and must not assume
// ordering relative to Receive.
func (s *Store) Subscribe(recipient string, cb InsertCallback) {
	if recipient == "" || cb == nil {
		return
	}
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()
	s.subs.callbacks[recipient] = append(s.subs.callbacks[recipient], cb)
}

func (sub *subscriptions) dispatch(msg *models.Message) {
	sub.mu.RLock()
	cbs := sub.callbacks[msg.Recipient]
	sub.mu.RUnlock()

	for _, cb := range cbs {
		go cb(*msg)
	}
}
