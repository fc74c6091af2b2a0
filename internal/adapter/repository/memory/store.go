// Package memory is an in-process document store implementing the domain
// repositories. It backs local development (STORE_BACKEND=memory) and tests,
// including live listeners: every write wakes all watchers, which re-read
// their query and deliver only when the result changed.
package memory

import (
	"context"
	"reflect"
	"sync"

	"medchat/internal/domain/entity"
)

type Store struct {
	mu            sync.RWMutex
	signal        chan struct{}
	conversations map[string]*entity.Conversation
	messages      map[string]map[string]*entity.Message
	users         map[string]*entity.User
}

func NewStore() *Store {
	return &Store{
		signal:        make(chan struct{}),
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string]map[string]*entity.Message),
		users:         make(map[string]*entity.User),
	}
}

// changed must be called with mu held for writing.
func (s *Store) changed() {
	close(s.signal)
	s.signal = make(chan struct{})
}

// watch runs snapshot under the read lock after every change and calls
// deliver outside the lock whenever the result differs from the last one.
func watch[T any](ctx context.Context, s *Store, snapshot func() (T, bool), deliver func(T)) error {
	var last T
	delivered := false
	for {
		s.mu.RLock()
		signal := s.signal
		current, ok := snapshot()
		s.mu.RUnlock()

		if ok && (!delivered || !reflect.DeepEqual(current, last)) {
			deliver(current)
			last = current
			delivered = true
		}

		select {
		case <-ctx.Done():
			return nil
		case <-signal:
		}
	}
}
