package automation

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/store"
)

const bucketVariables = "variables"

// Variables is the persisted set of named booleans scenes read and write.
// Unset variables read as false.
type Variables struct {
	coll *store.Collection[bool]

	mu       sync.RWMutex
	onChange func(name string, value bool)
}

// NewVariables loads the variables collection from db.
func NewVariables(db *store.DB) (*Variables, error) {
	coll, err := store.NewCollection[bool](db, bucketVariables)
	if err != nil {
		return nil, fmt.Errorf("loading variables: %w", err)
	}
	return &Variables{coll: coll}, nil
}

// OnChange registers fn to run after a Set changes a value. A later call
// replaces the earlier callback; nil removes it.
func (v *Variables) OnChange(fn func(name string, value bool)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// Get returns the value of name, false if unset.
func (v *Variables) Get(name string) bool {
	val, _ := v.coll.Get(name)
	return val
}

// All returns a copy of every set variable.
func (v *Variables) All() map[string]bool {
	return v.coll.Current()
}

// Set assigns name. The change callback only runs when the stored value
// actually changes.
func (v *Variables) Set(name string, value bool) error {
	if err := ValidateVariableName(name); err != nil {
		return err
	}
	old, existed := v.coll.Get(name)
	if existed && old == value {
		return nil
	}
	if err := v.coll.Put(name, value); err != nil {
		return fmt.Errorf("setting variable %q: %w", name, err)
	}

	v.notify(name, value)
	return nil
}

// Delete removes name so it reads as false again. Deleting a true
// variable reports a change to false.
func (v *Variables) Delete(name string) error {
	old, ok := v.coll.Get(name)
	if !ok {
		return nil
	}
	if err := v.coll.Delete(name); err != nil {
		return fmt.Errorf("deleting variable %q: %w", name, err)
	}
	if old {
		v.notify(name, false)
	}
	return nil
}

func (v *Variables) notify(name string, value bool) {
	v.mu.RLock()
	fn := v.onChange
	v.mu.RUnlock()
	if fn != nil {
		fn(name, value)
	}
}
