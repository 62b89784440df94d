package reactive

import (
	"context"
	"sync"
)

// Pair is the value held by a Combined cell.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Combined joins two upstream cells into one cell holding a Pair.
//
// The pair is seeded from both upstreams at construction. While subscribed,
// each upstream updates only its own slot and the full pair is re-set, so
// the usual equality suppression applies to the pair as a whole.
type Combined[A, B any] struct {
	a    Cell[A]
	b    Cell[B]
	cell *Data[Pair[A, B]]

	mu     sync.Mutex
	unsubs []func()
}

// Combine creates a Combined cell over a and b.
func Combine[A, B any](a Cell[A], b Cell[B]) *Combined[A, B] {
	c := &Combined[A, B]{a: a, b: b}
	c.cell = New(Pair[A, B]{First: a.Current(), Second: b.Current()},
		WithLifecycle[Pair[A, B]](c.start, c.stop))
	return c
}

func (c *Combined[A, B]) start() {
	ua := c.a.Subscribe(func(v A, _ bool) {
		c.cell.Update(func(p Pair[A, B]) Pair[A, B] {
			p.First = v
			return p
		})
	})
	ub := c.b.Subscribe(func(v B, _ bool) {
		c.cell.Update(func(p Pair[A, B]) Pair[A, B] {
			p.Second = v
			return p
		})
	})

	c.mu.Lock()
	c.unsubs = []func(){ua, ub}
	c.mu.Unlock()
}

func (c *Combined[A, B]) stop() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// Current implements Cell.
func (c *Combined[A, B]) Current() Pair[A, B] {
	return c.cell.Current()
}

// Lookup implements Cell. The pair is always defined.
func (c *Combined[A, B]) Lookup() (Pair[A, B], bool) {
	return c.cell.Lookup()
}

// Subscribe implements Cell.
func (c *Combined[A, B]) Subscribe(fn func(value Pair[A, B], initial bool)) func() {
	return c.cell.Subscribe(fn)
}

// Get implements Cell. The pair is always defined, so this returns at once.
func (c *Combined[A, B]) Get(ctx context.Context) (Pair[A, B], error) {
	return c.cell.Get(ctx)
}
