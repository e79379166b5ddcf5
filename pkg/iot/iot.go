// Package iot defines the IoT method dispatcher contract the core consumes
// (§6's "IoT collaborator contract") and an in-memory Registry of built-in
// "things" for tests and the simulator, grounded on the teacher's
// chatgear.ServerPortTx device-command surface and the original firmware's
// Thing pattern (original_source/main/iot/things/alarm.cc).
package iot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Command is one IoT method invocation, parsed from a downlink "iot.commands"
// entry or built locally from a matched intent (C1).
type Command struct {
	Name       string         `json:"name"`
	Method     string         `json:"method"`
	Parameters map[string]any `json:"parameters,omitempty"`
	RequestID  any            `json:"request_id,omitempty"`
}

// Dispatcher is the IoT collaborator contract the core calls into: it must
// neither be introspected by the core nor assumed idempotent.
type Dispatcher interface {
	// InvokeSync executes cmd synchronously and returns any execution error.
	InvokeSync(ctx context.Context, cmd Command) error
	// StatesJSON returns the current state snapshot of every registered
	// thing as a JSON array, or "[]" when there are none.
	StatesJSON() string
}

// Thing is one device the registry can dispatch methods to.
type Thing interface {
	Name() string
	Invoke(ctx context.Context, method string, params map[string]any) error
	State() any
}

// Registry is an in-memory Dispatcher over a fixed set of named things.
type Registry struct {
	mu     sync.RWMutex
	things map[string]Thing
	order  []string
}

// NewRegistry builds a Registry with no things registered.
func NewRegistry() *Registry {
	return &Registry{things: make(map[string]Thing)}
}

// Register adds or replaces a thing by name.
func (r *Registry) Register(t Thing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.things[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.things[t.Name()] = t
}

// InvokeSync dispatches cmd to the named thing.
func (r *Registry) InvokeSync(ctx context.Context, cmd Command) error {
	r.mu.RLock()
	t, ok := r.things[cmd.Name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("iot: unknown thing %q", cmd.Name)
	}
	return t.Invoke(ctx, cmd.Method, cmd.Parameters)
}

// thingState names a state entry in the StatesJSON snapshot.
type thingState struct {
	Name  string `json:"name"`
	State any    `json:"state"`
}

// StatesJSON returns "[]" when the registry is empty, matching the
// firmware's GetStatesJson contract.
func (r *Registry) StatesJSON() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)

	snapshot := make([]thingState, 0, len(names))
	for _, name := range names {
		snapshot = append(snapshot, thingState{Name: name, State: r.things[name].State()})
	}
	b, err := json.Marshal(snapshot)
	if err != nil {
		return "[]"
	}
	return string(b)
}

var _ Dispatcher = (*Registry)(nil)
