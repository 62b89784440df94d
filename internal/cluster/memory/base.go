// Package memory provides in-memory implementations of every cluster
// capability.
//
// State lives in reactive.Data cells that callers may set directly (to
// simulate or mirror a vendor report). Commands are recorded, passed to an
// optional Handler and, if the handler accepts them, applied optimistically
// to local state. The MQTT device bridge uses these types as its state
// holders with a handler that publishes the command; tests use them with
// no handler or a failing one.
package memory

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// Command is one command issued on a cluster.
type Command struct {
	Cluster cluster.Name   `json:"cluster"`
	Method  string         `json:"method"`
	Args    map[string]any `json:"args,omitempty"`
}

// Handler forwards a command to the vendor. A non-nil error aborts the
// command before any local state changes.
type Handler func(ctx context.Context, cmd Command) error

// FailWith returns a Handler that rejects every command with err.
func FailWith(err error) Handler {
	return func(context.Context, Command) error { return err }
}

// base carries the plumbing shared by all in-memory clusters.
type base struct {
	name     cluster.Name
	onChange reactive.Emitter[struct{}]

	mu       sync.Mutex
	handler  Handler
	commands []Command
	unsubs   []func()
}

// Name implements cluster.Cluster.
func (b *base) Name() cluster.Name { return b.name }

// OnChange implements cluster.Cluster.
func (b *base) OnChange() *reactive.Emitter[struct{}] { return &b.onChange }

// Close implements cluster.Cluster.
func (b *base) Close() error {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	return nil
}

// SetHandler installs the vendor command handler.
func (b *base) SetHandler(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// Commands returns a copy of every command issued so far.
func (b *base) Commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Command, len(b.commands))
	copy(out, b.commands)
	return out
}

func (b *base) dispatch(ctx context.Context, method string, args map[string]any) error {
	cmd := Command{Cluster: b.name, Method: method, Args: args}

	b.mu.Lock()
	b.commands = append(b.commands, cmd)
	h := b.handler
	b.mu.Unlock()

	if h == nil {
		return nil
	}
	return h(ctx, cmd)
}

// watch makes every non-initial change of c fire the cluster's OnChange.
func watch[T any](b *base, c *reactive.Data[T]) {
	unsub := c.Subscribe(func(_ T, initial bool) {
		if !initial {
			b.onChange.Emit(struct{}{})
		}
	})
	b.mu.Lock()
	b.unsubs = append(b.unsubs, unsub)
	b.mu.Unlock()
}
