package link

import "slices"

// Callback is an ordered set of handlers for one notification.
//
// Handlers run in registration order. Adding or removing handlers while a
// notification is being delivered affects the next delivery only. Callback
// is not safe for concurrent use; register handlers before Run or from the
// loop goroutine.
type Callback[F any] struct {
	seq      uint64
	handlers []registered[F]
}

type registered[F any] struct {
	id uint64
	fn F
}

// Add registers fn and returns a function that removes it again.
func (c *Callback[F]) Add(fn F) (remove func()) {
	c.seq++
	id := c.seq
	c.handlers = append(slices.Clip(c.handlers), registered[F]{id: id, fn: fn})
	return func() {
		i := slices.IndexFunc(c.handlers, func(r registered[F]) bool { return r.id == id })
		if i < 0 {
			return
		}
		next := make([]registered[F], 0, len(c.handlers)-1)
		next = append(next, c.handlers[:i]...)
		c.handlers = append(next, c.handlers[i+1:]...)
	}
}

// Len returns the number of registered handlers.
func (c *Callback[F]) Len() int {
	return len(c.handlers)
}

// each calls visit for every handler registered when each was called.
// The handler slice is never mutated in place, so holding it is a snapshot.
func (c *Callback[F]) each(visit func(F)) {
	for _, r := range c.handlers {
		visit(r.fn)
	}
}
