package store

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Listener receives an entity published on an observer.
type Listener func(e *Entity)

// Observer is a synchronous notification channel. Listeners run in
// subscription order on the goroutine performing the mutation.
type Observer struct {
	mu   sync.Mutex
	subs []*Subscription
}

type Subscription struct {
	ID       string
	fn       Listener
	observer *Observer
}

func NewObserver() *Observer {
	return &Observer{}
}

// Subscribe registers fn and returns a handle to unsubscribe it.
func (o *Observer) Subscribe(fn Listener) *Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()

	sub := &Subscription{ID: uuid.NewString(), fn: fn, observer: o}
	o.subs = append(o.subs, sub)
	return sub
}

// Unsubscribe stops delivery to the subscription's listener. It is safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	o := s.observer
	o.mu.Lock()
	defer o.mu.Unlock()

	o.subs = slices.DeleteFunc(o.subs, func(sub *Subscription) bool {
		return sub == s
	})
}

// Len returns the number of active subscriptions.
func (o *Observer) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

func (o *Observer) publish(e *Entity) {
	o.mu.Lock()
	subs := slices.Clone(o.subs)
	o.mu.Unlock()

	for _, sub := range subs {
		sub.fn(e)
	}
}
