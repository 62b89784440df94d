package reactive

import "sync"

// Emitter fans out discrete occurrences (button presses, "something
// changed") to any number of listeners.
//
// The zero value is ready to use. Listeners run synchronously in
// registration order over a snapshot taken when Emit starts; a panicking
// listener is recovered and does not prevent the rest from running.
type Emitter[T any] struct {
	mu        sync.Mutex
	listeners []*listener[T]
	onPanic   func(recovered any)
}

type listener[T any] struct {
	fn func(T)
}

// OnPanic installs a handler that receives values recovered from panicking
// listeners. Without one, panics are silently swallowed.
func (e *Emitter[T]) OnPanic(fn func(recovered any)) {
	e.mu.Lock()
	e.onPanic = fn
	e.mu.Unlock()
}

// Listen registers fn. The returned function removes it; calling it more
// than once is harmless.
func (e *Emitter[T]) Listen(fn func(T)) (unlisten func()) {
	l := &listener[T]{fn: fn}

	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, cur := range e.listeners {
			if cur == l {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every registered listener with v.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	snapshot := make([]*listener[T], len(e.listeners))
	copy(snapshot, e.listeners)
	onPanic := e.onPanic
	e.mu.Unlock()

	for _, l := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil && onPanic != nil {
					onPanic(r)
				}
			}()
			l.fn(v)
		}()
	}
}

// ListenerCount returns the number of registered listeners.
func (e *Emitter[T]) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Forward re-emits every occurrence of src on dst until the returned
// function is called. Devices use it to aggregate cluster change events.
func Forward[T any](src, dst *Emitter[T]) (stop func()) {
	return src.Listen(dst.Emit)
}
