package crdt

import (
	"slices"
	"sync"
)

// Subscription is the handle returned by every observe/on registration.
// The callback stays registered until Unsubscribe is called.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe removes the callback. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type handler[F any] struct {
	fn      F
	removed bool
}

// handlers is an ordered callback list. Callbacks may subscribe or
// unsubscribe while the list is being notified; removals take effect
// immediately, additions on the next notification.
type handlers[F any] struct {
	list []*handler[F]
}

func (h *handlers[F]) add(fn F) *Subscription {
	e := &handler[F]{fn: fn}
	h.list = append(h.list, e)
	return newSubscription(func() {
		e.removed = true
		h.list = slices.DeleteFunc(slices.Clone(h.list), func(x *handler[F]) bool { return x == e })
	})
}

func (h *handlers[F]) each(call func(F)) {
	for _, e := range slices.Clone(h.list) {
		if !e.removed {
			call(e.fn)
		}
	}
}

func (h *handlers[F]) len() int {
	return len(h.list)
}

func (h *handlers[F]) clear() {
	for _, e := range h.list {
		e.removed = true
	}
	h.list = nil
}
