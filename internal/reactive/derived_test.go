package reactive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_RecomputesWithoutSubscribers(t *testing.T) {
	up := New(5)
	doubled := MapSimple(up, func(v int) int { return v * 2 })

	assert.Equal(t, 10, doubled.Current())
	up.Set(10)
	assert.Equal(t, 20, doubled.Current())
	assert.Equal(t, 0, up.SubscriberCount())
}

func TestMap_SubscribedTracksUpstream(t *testing.T) {
	up := New(1)
	doubled := MapSimple(up, func(v int) int { return v * 2 })

	var got []int
	unsub := doubled.Subscribe(func(v int, _ bool) { got = append(got, v) })
	assert.Equal(t, 1, up.SubscriberCount())

	up.Set(2)
	up.Set(3)
	assert.Equal(t, []int{2, 4, 6}, got)
	assert.Equal(t, 6, doubled.Current())

	unsub()
	assert.Equal(t, 0, up.SubscriberCount())
}

func TestMap_PreviousValueOnlyWhileSubscribed(t *testing.T) {
	up := New(1)
	total := Map(up, func(in int, prev int, hasPrev bool) int {
		if !hasPrev {
			return in
		}
		return prev + in
	}, false)

	// Unobserved reads never accumulate.
	assert.Equal(t, 1, total.Current())
	assert.Equal(t, 1, total.Current())

	unsub := total.Subscribe(func(int, bool) {})
	up.Set(2)
	up.Set(3)
	// The upstream's initial callback folds into the last unobserved value
	// (1+1), then 2+2, then 4+3.
	assert.Equal(t, 7, total.Current())
	unsub()

	up.Set(4)
	assert.Equal(t, 4, total.Current())
}

func TestMap_AlwaysTrack(t *testing.T) {
	up := New(1)
	seen := 0
	m := Map(up, func(in int, _ int, _ bool) int {
		seen++
		return in
	}, true)

	assert.Equal(t, 1, up.SubscriberCount())
	before := seen
	up.Set(2)
	assert.Equal(t, before+1, seen)
	assert.Equal(t, 2, m.Current())
}

func TestMap_GetDelegatesUpstream(t *testing.T) {
	fetched := 0
	up := New(1, WithFetch(func(context.Context) (int, error) {
		fetched++
		return 21, nil
	}))
	m := MapSimple(up, func(v int) int { return v * 2 })

	v, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, fetched)
}

func TestCombine_UpdatesOneSlot(t *testing.T) {
	a := New(1)
	b := New("x")
	c := Combine[int, string](a, b)

	assert.Equal(t, Pair[int, string]{1, "x"}, c.Current())

	var got []Pair[int, string]
	unsub := c.Subscribe(func(p Pair[int, string], _ bool) { got = append(got, p) })
	defer unsub()

	a.Set(2)
	b.Set("y")
	b.Set("y")

	assert.Equal(t, []Pair[int, string]{{1, "x"}, {2, "x"}, {2, "y"}}, got)
}

func TestCombine_ReleasesUpstreams(t *testing.T) {
	a := New(1)
	b := New(2)
	c := Combine[int, int](a, b)

	unsub := c.Subscribe(func(Pair[int, int], bool) {})
	assert.Equal(t, 1, a.SubscriberCount())
	assert.Equal(t, 1, b.SubscriberCount())
	unsub()
	assert.Equal(t, 0, a.SubscriberCount())
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestEmitter_ListenAndEmit(t *testing.T) {
	var e Emitter[int]
	var got []int

	u1 := e.Listen(func(v int) { got = append(got, v) })
	u2 := e.Listen(func(v int) { got = append(got, v*10) })
	assert.Equal(t, 2, e.ListenerCount())

	e.Emit(1)
	u1()
	e.Emit(2)
	u2()
	u2()
	e.Emit(3)

	assert.Equal(t, []int{1, 10, 20}, got)
	assert.Equal(t, 0, e.ListenerCount())
}

func TestEmitter_PanicDoesNotStopOthers(t *testing.T) {
	var e Emitter[string]
	var recovered any
	e.OnPanic(func(r any) { recovered = r })

	called := false
	e.Listen(func(string) { panic("boom") })
	e.Listen(func(string) { called = true })

	e.Emit("press")
	assert.True(t, called)
	assert.Equal(t, "boom", recovered)
}

func TestForward(t *testing.T) {
	var src, dst Emitter[struct{}]
	n := 0
	dst.Listen(func(struct{}) { n++ })

	stop := Forward(&src, &dst)
	src.Emit(struct{}{})
	stop()
	src.Emit(struct{}{})

	assert.Equal(t, 1, n)
}
