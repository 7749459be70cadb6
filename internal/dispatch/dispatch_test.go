package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/reactormesh/devrt/internal/bytecode"
	"github.com/reactormesh/devrt/internal/nativefn"
	"github.com/reactormesh/devrt/internal/runtime"
	"github.com/reactormesh/devrt/internal/transport"
	"github.com/reactormesh/devrt/internal/value"
	"github.com/reactormesh/devrt/internal/vm"
	"github.com/reactormesh/devrt/internal/wire"
)

type fakeAddrBook struct{ m map[string]string }

func (f fakeAddrBook) Resolve(dev string) (string, bool) { a, ok := f.m[dev]; return a, ok }

type recordingSender struct {
	sent []sentMsg
}

type sentMsg struct {
	dest string
	msg  wire.Message
}

func (s *recordingSender) Send(dest string, msg wire.Message) error {
	s.sent = append(s.sent, sentMsg{dest, msg})
	return nil
}

func newTestRuntime() *runtime.Runtime {
	return runtime.New("dev1", "tcp://127.0.0.1:1", nativefn.NewRegistry(), fakeAddrBook{m: map[string]string{}})
}

func TestHandlePropGetRepliesWithValueOrMiss(t *testing.T) {
	rt := newTestRuntime()
	rt.Props.Add("vol", value.Int(5))
	sender := &recordingSender{}
	d := New(nil, rt, sender, nil)

	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String("vol"))
	rt.Arena.MapAdd(arg, value.String("retid"), value.Int(42))
	rt.Arena.MapAdd(arg, value.String("retaddr"), value.String("tcp://peer:1"))
	d.handlePropGet(wire.Message{Tag: wire.TagPropGet, Arg: arg})

	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d messages", len(sender.sent))
	}
	got := sender.sent[0]
	if got.dest != "tcp://peer:1" || got.msg.Tag != wire.TagReply {
		t.Fatalf("reply = %+v", got)
	}
	retval := rt.Arena.MapLookup(got.msg.Arg, value.String("retval"))
	if value.Tag(retval) != value.KindInt || retval.IntValue() != 5 {
		t.Fatalf("retval = %v", retval)
	}
}

func TestHandlePropGetMissSendsMarker(t *testing.T) {
	rt := newTestRuntime()
	sender := &recordingSender{}
	d := New(nil, rt, sender, nil)

	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String("nope"))
	rt.Arena.MapAdd(arg, value.String("retid"), value.Int(1))
	rt.Arena.MapAdd(arg, value.String("retaddr"), value.String("tcp://peer:1"))
	d.handlePropGet(wire.Message{Tag: wire.TagPropGet, Arg: arg})

	retval := rt.Arena.MapLookup(sender.sent[0].msg.Arg, value.String("retval"))
	if value.Tag(retval) != value.KindString || retval.StringValue() != noSuchProp {
		t.Fatalf("retval = %v", retval)
	}
}

func TestHandlePropSetUpsertsUnknownProperty(t *testing.T) {
	rt := newTestRuntime()
	d := New(nil, rt, &recordingSender{}, nil)

	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String("brand-new"))
	rt.Arena.MapAdd(arg, value.String("value"), value.Int(99))
	d.handlePropSet(wire.Message{Tag: wire.TagPropSet, Arg: arg})

	v, ok := rt.Props.Get("brand-new")
	if !ok || value.Tag(v) != value.KindInt || v.IntValue() != 99 {
		t.Fatalf("brand-new = %v, ok=%v", v, ok)
	}
}

func TestHandleReplyResumesParkedContinuation(t *testing.T) {
	rt := newTestRuntime()
	sender := &recordingSender{}
	d := New(nil, rt, sender, nil)

	// A context parked mid-PROP_GET: retval is pushed onto its stack
	// and RET leaves it on top, so the stack top proves resumption
	// actually ran rather than merely being accepted.
	waiting := vm.NewContext(&bytecode.Code{Instrs: []bytecode.Instruction{
		{Op: bytecode.OpRet},
	}}, value.Null())
	id := rt.Continuations.New(waiting)

	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("retid"), value.Int(int32(id)))
	rt.Arena.MapAdd(arg, value.String("retval"), value.Int(7))
	d.handleReply(wire.Message{Tag: wire.TagReply, Arg: arg})

	if rt.Continuations.Len() != 0 {
		t.Fatalf("continuation not consumed, len = %d", rt.Continuations.Len())
	}
	if top := waiting.Stack[len(waiting.Stack)-1]; !value.Eq(top, value.Int(7)) {
		t.Fatalf("resumed stack top = %v, want Int(7)", top)
	}
}

func TestDispatchEventRunsEachSubscribedReactor(t *testing.T) {
	rt := newTestRuntime()
	code := &bytecode.Code{Instrs: []bytecode.Instruction{
		{Op: bytecode.OpPop},
		{Op: bytecode.OpRet},
	}}
	rt.Reactors.Register(runtime.Reactor{Name: "on-motion", Code: code})
	rt.Events.Subscribe(runtime.EventKey{Dev: "sensor1", Name: "motion"}, "on-motion")

	d := New(nil, rt, &recordingSender{}, nil)

	src := rt.Arena.NewMap()
	rt.Arena.MapAdd(src, value.String("dev"), value.String("sensor1"))
	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String("motion"))

	d.dispatchEvent(wire.Message{Tag: wire.TagEventOccur, Arg: arg, Src: src})
}

func TestRunDrainsInputQueue(t *testing.T) {
	rt := newTestRuntime()
	rt.Props.Add("vol", value.Int(1))
	in := transport.NewQueue[wire.Message](4)
	sender := &recordingSender{}
	d := New(in, rt, sender, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String("vol"))
	rt.Arena.MapAdd(arg, value.String("retid"), value.Int(1))
	rt.Arena.MapAdd(arg, value.String("retaddr"), value.String("tcp://peer:1"))
	if err := in.Push(ctx, wire.Message{Tag: wire.TagPropGet, Arg: arg}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(sender.sent) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("dispatcher never processed queued message")
}

// TestSystemEventOverrideReplacesNativeHandling proves a host-uploaded
// "_E_prop_get" reactor runs instead of dispatch's native PROP_GET
// handler once InitSystemEvents has bound it (spec.md §4.G). The
// override reactor here does nothing and sends no reply itself, so a
// reply on the wire would only mean the native handler ran anyway.
func TestSystemEventOverrideReplacesNativeHandling(t *testing.T) {
	rt := newTestRuntime()
	rt.Props.Add("vol", value.Int(5))
	rt.Reactors.Register(runtime.Reactor{
		Name: runtime.EventPropGet,
		Code: &bytecode.Code{Instrs: []bytecode.Instruction{{Op: bytecode.OpPop}, {Op: bytecode.OpRet}}},
	})
	rt.InitSystemEvents()

	sender := &recordingSender{}
	d := New(nil, rt, sender, nil)

	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String("vol"))
	rt.Arena.MapAdd(arg, value.String("retid"), value.Int(1))
	rt.Arena.MapAdd(arg, value.String("retaddr"), value.String("tcp://peer:1"))
	d.dispatch(wire.Message{Tag: wire.TagPropGet, Arg: arg})

	if len(sender.sent) != 0 {
		t.Fatalf("native PROP_GET handler ran despite a bound override reactor: sent = %+v", sender.sent)
	}
}

// TestSystemEventNoOverrideFallsBackToNative confirms that without a
// like-named reactor registered, dispatch still runs its native
// handling for the system tag — the common case, since no such reactor
// exists in this repo's default configuration.
func TestSystemEventNoOverrideFallsBackToNative(t *testing.T) {
	rt := newTestRuntime()
	rt.Props.Add("vol", value.Int(5))
	sender := &recordingSender{}
	d := New(nil, rt, sender, nil)

	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String("vol"))
	rt.Arena.MapAdd(arg, value.String("retid"), value.Int(1))
	rt.Arena.MapAdd(arg, value.String("retaddr"), value.String("tcp://peer:1"))
	d.dispatch(wire.Message{Tag: wire.TagPropGet, Arg: arg})

	if len(sender.sent) != 1 || sender.sent[0].msg.Tag != wire.TagReply {
		t.Fatalf("sent = %+v, want one REPLY from the native handler", sender.sent)
	}
}
