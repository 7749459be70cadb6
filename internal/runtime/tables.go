package runtime

import (
	"sync"

	"github.com/reactormesh/devrt/internal/bytecode"
	"github.com/reactormesh/devrt/internal/value"
)

// PropTable is the process's local property store. Remote property
// access ("dev:name") never touches this table directly — it goes out
// over the wire (see internal/vm's PROP_GET/PROP_SET handling).
type PropTable struct {
	mu    sync.RWMutex
	props map[string]value.Value
}

// NewPropTable returns an empty PropTable.
func NewPropTable() *PropTable {
	return &PropTable{props: make(map[string]value.Value)}
}

// Add registers name with an initial value. Re-adding an existing name
// overwrites it, matching PROP_ADD's idempotent registration semantics.
func (t *PropTable) Add(name string, v value.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.props[name] = v
}

// Get returns name's current value, or ok=false if no such property.
func (t *PropTable) Get(name string) (value.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.props[name]
	return v, ok
}

// Set overwrites name's value. Returns false if name is not registered
// (PROP_SET on an unknown local property is a caller error, not a silent
// add).
func (t *PropTable) Set(name string, v value.Value) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.props[name]; !ok {
		return false
	}
	t.props[name] = v
	return true
}

// FuncKind discriminates a registered function's implementation.
type FuncKind int

const (
	FuncNative FuncKind = iota
	FuncBytecode
)

// Func is one entry in the function table: either a native function
// (resolved by symbol name at call time via a nativefn.Resolver) or a
// local bytecode function.
type Func struct {
	Name       string
	Kind       FuncKind
	NativeName string // set iff Kind == FuncNative
	Code       *bytecode.Code
}

// FuncTable is the process's local function registry.
type FuncTable struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewFuncTable returns an empty FuncTable.
func NewFuncTable() *FuncTable {
	return &FuncTable{funcs: make(map[string]Func)}
}

// Register adds or replaces a function entry.
func (t *FuncTable) Register(f Func) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.funcs[f.Name] = f
}

// Get returns the function registered under name.
func (t *FuncTable) Get(name string) (Func, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.funcs[name]
	return f, ok
}

// EventKey identifies an event by the device that raises it and its
// local name. A Null/empty Dev means "this device" for lookups that have
// already been resolved to local scope.
type EventKey struct {
	Dev  string
	Name string
}

// EventTable maps an (dev, name) event key to the set of reactor names
// subscribed to it. Subscription is process-local: a reactor always runs
// on the device that owns it, triggered by events (local or remote in
// origin) it has subscribed to.
type EventTable struct {
	mu       sync.RWMutex
	reactors map[EventKey][]string
}

// NewEventTable returns an empty EventTable.
func NewEventTable() *EventTable {
	return &EventTable{reactors: make(map[EventKey][]string)}
}

// Subscribe registers reactorName to run whenever key occurs.
func (t *EventTable) Subscribe(key EventKey, reactorName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.reactors[key] {
		if existing == reactorName {
			return
		}
	}
	t.reactors[key] = append(t.reactors[key], reactorName)
}

// ReactorsFor returns the reactor names subscribed to key, in
// subscription order. The returned slice is a copy; callers may keep it
// without holding the table's lock.
func (t *EventTable) ReactorsFor(key EventKey) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src := t.reactors[key]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Reactor is one registered reactor: a name and its bytecode body.
type Reactor struct {
	Name string
	Code *bytecode.Code
}

// ReactorTable is the process's local reactor registry.
type ReactorTable struct {
	mu       sync.RWMutex
	reactors map[string]Reactor
}

// NewReactorTable returns an empty ReactorTable.
func NewReactorTable() *ReactorTable {
	return &ReactorTable{reactors: make(map[string]Reactor)}
}

// Register adds or replaces a reactor.
func (t *ReactorTable) Register(r Reactor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reactors[r.Name] = r
}

// Get returns the reactor registered under name.
func (t *ReactorTable) Get(name string) (Reactor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.reactors[name]
	return r, ok
}
