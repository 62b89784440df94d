package reactive

import (
	"context"
	"reflect"
	"sync"
)

// Cell is the read side of an observable value.
//
// Data, Mapped and Combined all implement it; consumers that only observe
// state (trackers, conditions, the API) should depend on Cell.
type Cell[T any] interface {
	// Current returns the stored value without side effects.
	Current() T

	// Lookup returns the stored value and whether it is defined.
	Lookup() (T, bool)

	// Subscribe registers fn and calls it immediately with the current value
	// and initial=true. The returned function removes the subscription.
	Subscribe(fn func(value T, initial bool)) (unsubscribe func())

	// Get returns the next defined value, blocking until one is available
	// or ctx is done.
	Get(ctx context.Context) (T, error)
}

// subscriber is one registered callback. active is guarded by the owning
// cell's mutex and flips to false on unsubscribe so an in-flight
// notification round can skip it.
type subscriber[T any] struct {
	fn     func(value T, defined, initial bool)
	active bool
}

// Option configures a Data cell at construction time.
type Option[T any] func(*Data[T])

// WithLifecycle sets hooks that run when the subscriber count goes from
// zero to one (create) and from one to zero (destroy).
func WithLifecycle[T any](create, destroy func()) Option[T] {
	return func(d *Data[T]) {
		d.create = create
		d.destroy = destroy
	}
}

// WithFetch overrides Get so it performs a live read instead of waiting for
// the next pushed value. The fetched value is stored with Set before it is
// returned.
func WithFetch[T any](fetch func(ctx context.Context) (T, error)) Option[T] {
	return func(d *Data[T]) {
		d.fetch = fetch
	}
}

// WithEqual replaces the structural equality check used to suppress
// no-op updates.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(d *Data[T]) {
		d.equal = equal
	}
}

// Data is a single observable value.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Subscriber callbacks run outside the internal lock, on the goroutine
//     that triggered the notification.
type Data[T any] struct {
	mu      sync.Mutex
	value   T
	defined bool
	subs    []*subscriber[T]
	gen     uint64 // bumped on every accepted Set; aborts stale notification rounds

	// lifeMu serialises subscriber-count transitions so create and destroy
	// never interleave.
	lifeMu sync.Mutex

	create  func()
	destroy func()
	fetch   func(ctx context.Context) (T, error)
	equal   func(a, b T) bool
}

// New creates a cell holding value.
func New[T any](value T, opts ...Option[T]) *Data[T] {
	d := &Data[T]{value: value, defined: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewUndefined creates a cell with no value yet.
func NewUndefined[T any](opts ...Option[T]) *Data[T] {
	d := &Data[T]{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Current returns the stored value, or the zero value of T when undefined.
func (d *Data[T]) Current() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Lookup returns the stored value and whether it is defined.
func (d *Data[T]) Lookup() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.defined
}

// SubscriberCount returns the number of active subscribers.
func (d *Data[T]) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Set stores value and notifies subscribers, unless value is structurally
// equal to the current value.
func (d *Data[T]) Set(value T) {
	d.commit(func(T, bool) (T, bool) { return value, true })
}

// Unset marks the cell undefined. Subscribers receive the zero value.
func (d *Data[T]) Unset() {
	d.commit(func(T, bool) (T, bool) {
		var zero T
		return zero, false
	})
}

// Update is sugar for Set(fn(Current())), computed atomically.
func (d *Data[T]) Update(fn func(old T) T) {
	d.commit(func(old T, _ bool) (T, bool) { return fn(old), true })
}

// commit applies change under the lock and, if the result differs, runs one
// notification round over a snapshot of the subscribers.
//
// A nested commit from inside a subscriber bumps gen, which makes the outer
// round stop before calling the remaining subscribers. Subscribers removed
// during the round are skipped if they have not been called yet.
func (d *Data[T]) commit(change func(old T, defined bool) (T, bool)) {
	d.mu.Lock()
	next, defined := change(d.value, d.defined)
	if defined == d.defined && d.isEqual(d.value, next) {
		d.mu.Unlock()
		return
	}
	d.value = next
	d.defined = defined
	d.gen++
	n := d.gen
	snapshot := make([]*subscriber[T], len(d.subs))
	copy(snapshot, d.subs)
	d.mu.Unlock()

	for _, s := range snapshot {
		d.mu.Lock()
		stale := d.gen != n
		active := s.active
		d.mu.Unlock()

		if stale {
			break
		}
		if !active {
			continue
		}
		s.fn(next, defined, false)
	}
}

func (d *Data[T]) isEqual(a, b T) bool {
	if d.equal != nil {
		return d.equal(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// store replaces the value without notifying anyone. Mapped uses it to
// cache a recomputed value while unobserved.
func (d *Data[T]) store(value T) {
	d.mu.Lock()
	d.value = value
	d.defined = true
	d.mu.Unlock()
}

// Subscribe registers fn and immediately calls it with the current value.
//
// The create hook runs before fn is registered when this is the first
// subscriber, so derived cells have fresh upstream state for the initial
// callback.
func (d *Data[T]) Subscribe(fn func(value T, initial bool)) func() {
	return d.subscribe(func(v T, _ bool, initial bool) { fn(v, initial) })
}

func (d *Data[T]) subscribe(fn func(value T, defined, initial bool)) func() {
	s := &subscriber[T]{fn: fn}

	d.lifeMu.Lock()
	d.mu.Lock()
	first := len(d.subs) == 0
	d.mu.Unlock()

	if first && d.create != nil {
		d.create()
	}

	d.mu.Lock()
	s.active = true
	d.subs = append(d.subs, s)
	value, defined := d.value, d.defined
	d.mu.Unlock()
	d.lifeMu.Unlock()

	fn(value, defined, true)

	var once sync.Once
	return func() {
		once.Do(func() { d.unsubscribe(s) })
	}
}

func (d *Data[T]) unsubscribe(s *subscriber[T]) {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	d.mu.Lock()
	removed := false
	for i, cur := range d.subs {
		if cur == s {
			d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
			removed = true
			break
		}
	}
	s.active = false
	last := removed && len(d.subs) == 0
	d.mu.Unlock()

	if last && d.destroy != nil {
		d.destroy()
	}
}

// Get returns the freshest available value.
//
// With WithFetch the cell performs a live read. Otherwise Get resolves with
// the first defined value observed through a one-shot subscription, which
// is immediate when the cell already holds a value.
func (d *Data[T]) Get(ctx context.Context) (T, error) {
	if d.fetch != nil {
		v, err := d.fetch(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		d.Set(v)
		return v, nil
	}
	return waitDefined(ctx, d.subscribe)
}

// waitDefined blocks until subscribe delivers a defined value.
func waitDefined[T any](ctx context.Context, subscribe func(func(T, bool, bool)) func()) (T, error) {
	ch := make(chan T, 1)
	unsubscribe := subscribe(func(v T, defined, _ bool) {
		if !defined {
			return
		}
		select {
		case ch <- v:
		default:
		}
	})
	defer unsubscribe()

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
