package reactive

import (
	"context"
	"sync"
)

// Mapper derives an output value from an upstream value.
//
// prev is the mapped cell's previous output and hasPrev reports whether one
// exists. Previous output is only threaded through while the mapped cell is
// subscribed; unobserved reads always see hasPrev=false.
type Mapper[O, I any] func(in I, prev O, hasPrev bool) O

// Mapped is a cell derived from one upstream cell.
//
// While unobserved it holds no upstream subscription and recomputes on every
// Current call. Once subscribed it caches its value and updates only when the
// upstream emits.
type Mapped[O, I any] struct {
	up     Cell[I]
	mapper Mapper[O, I]
	cell   *Data[O]

	mu      sync.Mutex
	upUnsub func()
	// tracking is set while an upstream subscription is live.
	tracking bool
}

// Map creates a derived cell. With alwaysTrack the cell subscribes to its
// upstream immediately and keeps that subscription for its whole life, so
// mapper side effects keep running even with no downstream observers.
func Map[O, I any](up Cell[I], mapper Mapper[O, I], alwaysTrack bool) *Mapped[O, I] {
	m := &Mapped[O, I]{up: up, mapper: mapper}
	m.cell = NewUndefined(WithLifecycle[O](m.start, m.stop))
	if alwaysTrack {
		m.cell.Subscribe(func(O, bool) {})
	}
	return m
}

// MapSimple is Map for stateless mappers.
func MapSimple[O, I any](up Cell[I], fn func(I) O) *Mapped[O, I] {
	return Map(up, func(in I, _ O, _ bool) O { return fn(in) }, false)
}

func (m *Mapped[O, I]) start() {
	unsub := m.up.Subscribe(func(v I, _ bool) {
		prev, ok := m.cell.Lookup()
		m.cell.Set(m.mapper(v, prev, ok))
	})

	m.mu.Lock()
	m.upUnsub = unsub
	m.tracking = true
	m.mu.Unlock()
}

func (m *Mapped[O, I]) stop() {
	m.mu.Lock()
	unsub := m.upUnsub
	m.upUnsub = nil
	m.tracking = false
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Current returns the cached value while subscribed, otherwise a value
// freshly computed from the upstream's current value.
func (m *Mapped[O, I]) Current() O {
	m.mu.Lock()
	tracking := m.tracking
	m.mu.Unlock()

	if tracking {
		return m.cell.Current()
	}

	var zero O
	v := m.mapper(m.up.Current(), zero, false)
	m.cell.store(v)
	return v
}

// Lookup implements Cell. An unobserved mapped cell is defined whenever it
// can compute a value from its upstream.
func (m *Mapped[O, I]) Lookup() (O, bool) {
	m.mu.Lock()
	tracking := m.tracking
	m.mu.Unlock()

	if tracking {
		return m.cell.Lookup()
	}
	in, ok := m.up.Lookup()
	if !ok {
		var zero O
		return zero, false
	}
	var zero O
	v := m.mapper(in, zero, false)
	m.cell.store(v)
	return v, true
}

// Subscribe implements Cell.
func (m *Mapped[O, I]) Subscribe(fn func(value O, initial bool)) func() {
	return m.cell.Subscribe(fn)
}

// Get asks the upstream for its freshest value and maps it.
func (m *Mapped[O, I]) Get(ctx context.Context) (O, error) {
	v, err := m.up.Get(ctx)
	if err != nil {
		var zero O
		return zero, err
	}
	prev, ok := m.cell.Lookup()
	return m.mapper(v, prev, ok), nil
}

// SubscriberCount returns the number of downstream subscribers, including
// the internal one held by an always-tracking cell.
func (m *Mapped[O, I]) SubscriberCount() int {
	return m.cell.SubscriberCount()
}
