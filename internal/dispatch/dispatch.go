// Package dispatch matches decoded events to subscribed reactors and
// runs them, and natively handles the five system message kinds
// (PROP_GET/PROP_SET/FUNC_CALL/FUNC_CALL_RET/REPLY) that the original
// runtime served via injected system reactors
// (_examples/original_source/mvrt/sysinit.c installs _R_prop_get,
// _R_prop_set, _R_func_call, _R_reply as ordinary bytecode reactors
// bound to the matching _E_* event). Reimplementing those four as Go
// functions calling straight into internal/vm's CallLocal/Resume avoids
// hand-assembling bytecode for logic that has no business being
// anything other than a few table lookups and a reply send.
package dispatch

import (
	"context"
	"time"

	"github.com/reactormesh/devrt/internal/continuation"
	"github.com/reactormesh/devrt/internal/logging"
	"github.com/reactormesh/devrt/internal/observability"
	"github.com/reactormesh/devrt/internal/runtime"
	"github.com/reactormesh/devrt/internal/transport"
	"github.com/reactormesh/devrt/internal/value"
	"github.com/reactormesh/devrt/internal/vm"
	"github.com/reactormesh/devrt/internal/wire"
)

// noSuchProp is pushed in place of a property value on a local miss,
// matching PROP_GET's tolerant-miss convention inside the VM itself.
const noSuchProp = "E:NO_SUCH_PROP"

// Dispatcher drains decoded messages and routes them to reactor
// invocations or native system-event handling.
type Dispatcher struct {
	Input   *transport.Queue[wire.Message]
	Runtime *runtime.Runtime
	Sender  vm.Sender
	Logger  logging.Logger
}

// New returns a Dispatcher wired to rt, sending replies/remote calls
// through sender.
func New(input *transport.Queue[wire.Message], rt *runtime.Runtime, sender vm.Sender, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Dispatcher{Input: input, Runtime: rt, Sender: sender, Logger: logger}
}

// Run drains Input until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, err := d.Input.Pop(ctx)
		if err != nil {
			return err
		}
		d.dispatch(msg)
	}
}

func (d *Dispatcher) dispatch(msg wire.Message) {
	switch msg.Tag {
	case wire.TagEventOccur:
		d.dispatchEvent(msg)
		observability.RecordDispatch(string(msg.Tag), "handled")
	case wire.TagPropSet:
		if !d.runSystemOverride(msg) {
			d.handlePropSet(msg)
		}
		observability.RecordDispatch(string(msg.Tag), "handled")
	case wire.TagPropGet:
		if !d.runSystemOverride(msg) {
			d.handlePropGet(msg)
		}
		observability.RecordDispatch(string(msg.Tag), "handled")
	case wire.TagFuncCall:
		if !d.runSystemOverride(msg) {
			d.handleFuncCall(msg, false)
		}
		observability.RecordDispatch(string(msg.Tag), "handled")
	case wire.TagFuncCallRet:
		if !d.runSystemOverride(msg) {
			d.handleFuncCall(msg, true)
		}
		observability.RecordDispatch(string(msg.Tag), "handled")
	case wire.TagReply:
		if !d.runSystemOverride(msg) {
			d.handleReply(msg)
		}
		observability.RecordDispatch(string(msg.Tag), "handled")
	default:
		d.Logger.Warn("dispatch: unhandled tag", "tag", msg.Tag)
		observability.RecordDispatch(string(msg.Tag), "unhandled")
	}
	observability.SetContinuationsLive(d.Runtime.Continuations.Len())
}

// systemEventFor maps a system message tag to the system event spec.md
// §4.G binds a host-installed override reactor against. FUNC_CALL and
// FUNC_CALL_RET both map to _E_func_call.
func systemEventFor(tag wire.Tag) (string, bool) {
	switch tag {
	case wire.TagPropGet:
		return runtime.EventPropGet, true
	case wire.TagPropSet:
		return runtime.EventPropSet, true
	case wire.TagFuncCall, wire.TagFuncCallRet:
		return runtime.EventFuncCall, true
	case wire.TagReply:
		return runtime.EventReply, true
	default:
		return "", false
	}
}

// runSystemOverride runs the bytecode reactor(s) bound to msg's system
// event, if runtime.InitSystemEvents found one registered under that
// name at startup. It reports whether an override ran; when it
// reports false the caller falls back to dispatch's native handling of
// that tag, which is the default "system reactor" behavior for a
// device that never uploaded its own.
func (d *Dispatcher) runSystemOverride(msg wire.Message) bool {
	eventName, ok := systemEventFor(msg.Tag)
	if !ok {
		return false
	}
	key := runtime.EventKey{Dev: d.Runtime.SelfName, Name: eventName}
	names := d.Runtime.Events.ReactorsFor(key)
	if len(names) == 0 {
		return false
	}
	for _, rname := range names {
		reactor, ok := d.Runtime.Reactors.Get(rname)
		if !ok {
			continue
		}
		ctx := vm.NewContext(reactor.Code, msg.Arg)
		if _, err := vm.Eval(d.Runtime, d.Sender, ctx); err != nil {
			d.Logger.Error("dispatch: system event override faulted", "event", eventName, "reactor", rname, "err", err)
		}
	}
	return true
}

// dispatchEvent looks up which reactors subscribed to (src device,
// event name) and runs each in turn. A reactor that suspends has
// already parked its continuation inside evalPropGet/evalCallFuncRemote;
// there's nothing further for the dispatcher to do until its reply
// lands as a REPLY message.
func (d *Dispatcher) dispatchEvent(msg wire.Message) {
	dev, _ := mapString(d.Runtime.Arena, msg.Src, "dev")
	name, ok := mapString(d.Runtime.Arena, msg.Arg, "name")
	if !ok {
		d.Logger.Warn("dispatch: EVENT_OCCUR missing name field")
		return
	}
	key := runtime.EventKey{Dev: dev, Name: name}
	for _, rname := range d.Runtime.Events.ReactorsFor(key) {
		reactor, ok := d.Runtime.Reactors.Get(rname)
		if !ok {
			d.Logger.Warn("dispatch: subscribed reactor vanished", "reactor", rname)
			continue
		}
		ctx := vm.NewContext(reactor.Code, msg.Arg)
		_, ctx.Span = observability.StartSpan(context.Background(), "reactor.invoke:"+rname)
		started := time.Now()
		outcome, err := vm.Eval(d.Runtime, d.Sender, ctx)
		elapsed := time.Since(started).Seconds()
		if err != nil {
			d.Logger.Error("dispatch: reactor invocation faulted", "reactor", rname, "event", name, "err", err)
			d.Logger.Debug("dispatch: faulted reactor's argument", "arg", value.Dump(msg.Arg))
			observability.RecordReactorInvocation(rname, "fault", elapsed)
			continue
		}
		observability.RecordReactorInvocation(rname, outcomeLabel(outcome), elapsed)
	}
}

func outcomeLabel(o vm.Outcome) string {
	switch o {
	case vm.OutcomeSuspend:
		return "suspend"
	case vm.OutcomeReturn:
		return "return"
	default:
		return "halt"
	}
}

// handlePropSet upserts a locally-owned property on behalf of a remote
// peer's fire-and-forget PROP_SET. Unlike the VM's own PROP_SET opcode
// (which requires the property to pre-exist), an inbound remote set is
// allowed to create it — the sender already believes the property is
// theirs to set.
func (d *Dispatcher) handlePropSet(msg wire.Message) {
	name, ok := mapString(d.Runtime.Arena, msg.Arg, "name")
	if !ok {
		d.Logger.Warn("dispatch: PROP_SET missing name field")
		return
	}
	val := lookupField(d.Runtime.Arena, msg.Arg, "value")
	if !d.Runtime.Props.Set(name, val) {
		d.Runtime.Props.Add(name, val)
	}
}

// handlePropGet answers a remote peer's PROP_GET by replying with the
// property's current value, or the same "E:NO_SUCH_PROP" marker the VM
// uses locally.
func (d *Dispatcher) handlePropGet(msg wire.Message) {
	name, ok := mapString(d.Runtime.Arena, msg.Arg, "name")
	retid := lookupField(d.Runtime.Arena, msg.Arg, "retid")
	retaddr, okAddr := mapString(d.Runtime.Arena, msg.Arg, "retaddr")
	if !ok || !okAddr || value.Tag(retid) != value.KindInt {
		d.Logger.Warn("dispatch: PROP_GET missing name/retid/retaddr")
		return
	}
	v, found := d.Runtime.Props.Get(name)
	if !found {
		v = value.String(noSuchProp)
	}
	d.reply(retaddr, retid, v)
}

// handleFuncCall runs a locally-registered function on behalf of a
// remote caller. For FUNC_CALL (wantReply=false) the result is
// discarded, matching the original's fire-and-forget semantics; for
// FUNC_CALL_RET a REPLY carries the result (or an error marker) back.
func (d *Dispatcher) handleFuncCall(msg wire.Message, wantReply bool) {
	name, ok := mapString(d.Runtime.Arena, msg.Arg, "name")
	if !ok {
		d.Logger.Warn("dispatch: FUNC_CALL missing name field")
		return
	}
	funarg := lookupField(d.Runtime.Arena, msg.Arg, "funarg")

	ret, err := vm.CallLocal(d.Runtime, d.Sender, name, funarg)
	if err != nil {
		d.Logger.Error("dispatch: local function call failed", "name", name, "err", err)
		ret = value.String("E:CALL_FAILED")
	}
	if !wantReply {
		return
	}
	retid := lookupField(d.Runtime.Arena, msg.Arg, "retid")
	retaddr, okAddr := mapString(d.Runtime.Arena, msg.Arg, "retaddr")
	if value.Tag(retid) != value.KindInt || !okAddr {
		d.Logger.Warn("dispatch: FUNC_CALL_RET missing retid/retaddr")
		return
	}
	d.reply(retaddr, retid, ret)
}

// handleReply resumes the continuation parked under the REPLY's retid.
func (d *Dispatcher) handleReply(msg wire.Message) {
	retid := lookupField(d.Runtime.Arena, msg.Arg, "retid")
	if value.Tag(retid) != value.KindInt {
		d.Logger.Warn("dispatch: REPLY missing int retid field")
		return
	}
	retval := lookupField(d.Runtime.Arena, msg.Arg, "retval")
	id := continuation.ID(retid.IntValue())
	if _, err := vm.Resume(d.Runtime, d.Sender, id, retval); err != nil {
		d.Logger.Warn("dispatch: REPLY resume failed", "err", err)
	}
}

func (d *Dispatcher) reply(retaddr string, retid, retval value.Value) {
	arg := d.Runtime.Arena.NewMap()
	d.Runtime.Arena.MapAdd(arg, value.String("retid"), retid)
	d.Runtime.Arena.MapAdd(arg, value.String("retval"), retval)
	if err := d.Sender.Send(retaddr, wire.Message{Tag: wire.TagReply, Arg: arg}); err != nil {
		d.Logger.Error("dispatch: reply send failed", "dest", retaddr, "err", err)
	}
}

// lookupField is a boundary-safe MapLookup: wire input is untrusted, so
// an Arg/Src that isn't actually a Map (a malformed or absent field)
// yields Null instead of panicking.
func lookupField(arena *value.Arena, m value.Value, key string) value.Value {
	if value.Tag(m) != value.KindMap {
		return value.Null()
	}
	return arena.MapLookup(m, value.String(key))
}

func mapString(arena *value.Arena, m value.Value, key string) (string, bool) {
	v := lookupField(arena, m, key)
	if value.Tag(v) != value.KindString {
		return "", false
	}
	return v.StringValue(), true
}
