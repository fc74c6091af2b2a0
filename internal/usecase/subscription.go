package usecase

import (
	"context"
	"time"
)

// Subscription is the handle of a live query. Cancelling it stops delivery;
// the delivery callback is never invoked after Wait returns.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startSubscription(parent context.Context, run func(ctx context.Context)) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		run(ctx)
	}()
	return s
}

// Unsubscribe stops the live query. Safe to call more than once and from
// inside the delivery callback.
func (s *Subscription) Unsubscribe() {
	s.cancel()
}

// Wait blocks until the subscription goroutine has exited.
func (s *Subscription) Wait() {
	<-s.done
}

// Done is closed once the subscription has stopped, either because it was
// cancelled or because its listener failed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Clock returns the current time. Tests substitute a controllable clock.
type Clock func() time.Time

// Options tunes limits and timing shared by the chat usecases.
type Options struct {
	Clock                 Clock
	RecentLimit           int
	OlderLimit            int
	TypingStaleAfter      time.Duration
	TypingRefreshInterval time.Duration
}

const (
	DefaultRecentLimit           = 30
	DefaultOlderLimit            = 20
	DefaultTypingStaleAfter      = 10 * time.Second
	DefaultTypingRefreshInterval = time.Second
)

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	if o.OlderLimit <= 0 {
		o.OlderLimit = DefaultOlderLimit
	}
	if o.TypingStaleAfter <= 0 {
		o.TypingStaleAfter = DefaultTypingStaleAfter
	}
	if o.TypingRefreshInterval <= 0 {
		o.TypingRefreshInterval = DefaultTypingRefreshInterval
	}
	return o
}
