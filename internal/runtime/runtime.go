// Package runtime holds the process-scoped tables (properties, functions,
// events, reactors) a device's dispatcher and VM consult on every
// invocation, plus the Runtime struct that threads them — and the
// process's single shared value Arena — through the rest of the system.
//
// Grounded on the teacher's "OS Analogy" Kernel composition
// (coreengine/kernel/kernel.go wires lifecycle/resources/interrupts/
// services behind one struct); here the composed subsystems are the
// four tables spec.md §3.3 names, plus the address book and native
// function resolver contracts a host must supply.
package runtime

import (
	"github.com/reactormesh/devrt/internal/continuation"
	"github.com/reactormesh/devrt/internal/nativefn"
	"github.com/reactormesh/devrt/internal/value"
)

// System event names, registered against this device's own name at
// startup. FUNC_CALL and FUNC_CALL_RET both decode to _E_func_call for
// wire dispatch (spec.md §4.C); _E_func_call_ret and _E_func_return are
// carried from the original runtime's sysinit.c for reactors that want
// to distinguish "a call completed" from "a call arrived" by name, even
// though nothing in the decode path currently raises them distinctly.
const (
	EventPropGet     = "_E_prop_get"
	EventPropSet     = "_E_prop_set"
	EventFuncCall    = "_E_func_call"
	EventFuncCallRet = "_E_func_call_ret"
	EventFuncReturn  = "_E_func_return"
	EventReply       = "_E_reply"
)

// SystemEvents is the exhaustive list spec.md §4.G requires every
// device to register, keyed by its own name, at startup.
var SystemEvents = []string{
	EventPropGet, EventPropSet, EventFuncCall, EventFuncCallRet, EventFuncReturn, EventReply,
}

// AddressBook resolves a device name to its dialable address
// ("tcp://host:port"). spec.md leaves the registry's implementation
// opaque; internal/addrbook provides the default YAML-backed
// implementation.
type AddressBook interface {
	Resolve(dev string) (addr string, ok bool)
}

// Runtime composes one device's process-scoped state: its tables, its
// own identity (name + dialable address), the shared value arena every
// Value in this process is allocated from, the continuation store
// suspended invocations register into, and the native function and
// address-book resolvers the host supplies.
type Runtime struct {
	SelfName string
	SelfAddr string

	Arena         *value.Arena
	Props         *PropTable
	Funcs         *FuncTable
	Events        *EventTable
	Reactors      *ReactorTable
	Continuations *continuation.Store
	Natives       nativefn.Resolver
	Addresses     AddressBook
}

// New constructs a Runtime for a device with the given name and
// dialable self-address.
func New(selfName, selfAddr string, natives nativefn.Resolver, addresses AddressBook) *Runtime {
	return &Runtime{
		SelfName:      selfName,
		SelfAddr:      selfAddr,
		Arena:         value.NewArena(),
		Props:         NewPropTable(),
		Funcs:         NewFuncTable(),
		Events:        NewEventTable(),
		Reactors:      NewReactorTable(),
		Continuations: continuation.NewStore(),
		Natives:       natives,
		Addresses:     addresses,
	}
}

// InitSystemEvents binds each system event to a like-named reactor, for
// any such reactor already registered in rt.Reactors (spec.md §4.G). A
// system event with no matching reactor has no binding: internal/dispatch
// falls back to its native handling of that message tag.
func (rt *Runtime) InitSystemEvents() {
	for _, name := range SystemEvents {
		if _, ok := rt.Reactors.Get(name); ok {
			rt.Events.Subscribe(EventKey{Dev: rt.SelfName, Name: name}, name)
		}
	}
}
