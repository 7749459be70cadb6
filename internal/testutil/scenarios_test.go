package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/reactormesh/devrt/internal/bytecode"
	"github.com/reactormesh/devrt/internal/runtime"
	"github.com/reactormesh/devrt/internal/value"
	"github.com/reactormesh/devrt/internal/vm"
)

func code(instrs ...bytecode.Instruction) *bytecode.Code {
	return &bytecode.Code{Instrs: instrs}
}

// S1: A reads B's "temp" property across the wire. The reactor suspends
// on PROP_GET, B answers, and the resumed half of A's invocation hands
// the value off to a test-only native so the test can observe it --
// Resume discards the resumed context's final stack itself, so the only
// way to see what came back is for the reactor's own next instruction to
// externalize it.
func TestScenarioRemotePropertyGet(t *testing.T) {
	a, b := NewPair(t)
	b.Runtime.Props.Add("temp", value.Int(72))

	captured := make(chan value.Value, 1)
	a.Natives.Register1("test_capture", func(arg value.Value) (value.Value, error) {
		captured <- arg
		return value.Null(), nil
	})
	a.Runtime.Funcs.Register(runtime.Func{Name: "test_capture", Kind: runtime.FuncNative, NativeName: "test_capture"})

	c := code(
		bytecode.Instruction{Op: bytecode.OpPushS, Str: "B:temp"},
		bytecode.Instruction{Op: bytecode.OpPropGet},
		bytecode.Instruction{Op: bytecode.OpPushS, Str: "test_capture"},
		bytecode.Instruction{Op: bytecode.OpCallFunc},
		bytecode.Instruction{Op: bytecode.OpRet},
	)
	outcome, err := a.RunReactor(c, value.Null())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != vm.OutcomeSuspend {
		t.Fatalf("outcome = %v, want OutcomeSuspend", outcome)
	}

	select {
	case got := <-captured:
		if !value.Eq(got, value.Int(72)) {
			t.Fatalf("captured = %v, want Int(72)", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PROP_GET reply never resumed the reactor")
	}
}

// S3: A fires a remote function call at B without waiting for a reply.
// B's function runs, but A's invocation has already moved on by the
// time it does -- there is nothing for A to observe except that B ran
// it. The push order here is PUSHN then PUSHS "B:beep": CALL_FUNC pops
// fname from the top, so fname must be pushed last.
func TestScenarioRemoteFireAndForgetCall(t *testing.T) {
	a, b := NewPair(t)

	called := make(chan value.Value, 1)
	b.Natives.Register1("beep", func(arg value.Value) (value.Value, error) {
		called <- arg
		return value.Null(), nil
	})
	b.Runtime.Funcs.Register(runtime.Func{Name: "beep", Kind: runtime.FuncNative, NativeName: "beep"})

	c := code(
		bytecode.Instruction{Op: bytecode.OpPushN},
		bytecode.Instruction{Op: bytecode.OpPushS, Str: "B:beep"},
		bytecode.Instruction{Op: bytecode.OpCallFunc},
		bytecode.Instruction{Op: bytecode.OpRet},
	)
	outcome, err := a.RunReactor(c, value.Null())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != vm.OutcomeReturn {
		t.Fatalf("outcome = %v, want OutcomeReturn (fire-and-forget never suspends)", outcome)
	}

	select {
	case arg := <-called:
		if !arg.IsNull() {
			t.Fatalf("beep arg = %v, want Null", arg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("B never received the fire-and-forget call")
	}
	if a.Runtime.Continuations.Len() != 0 {
		t.Fatalf("Continuations.Len() = %d, want 0 (fire-and-forget never parks one)", a.Runtime.Continuations.Len())
	}
}

// S4: a reactor that divides by a literal zero faults immediately and
// locally -- no continuation is ever allocated and no message ever
// reaches the network, since evalArithmetic rejects the operation before
// any send opcode runs.
func TestScenarioDivideByZeroFaultsWithoutSideEffects(t *testing.T) {
	a, _ := NewPair(t)

	c := code(
		bytecode.Instruction{Op: bytecode.OpPushI, Int: 0},
		bytecode.Instruction{Op: bytecode.OpPushI, Int: 10},
		bytecode.Instruction{Op: bytecode.OpDiv},
		bytecode.Instruction{Op: bytecode.OpRet},
	)
	_, err := a.RunReactor(c, value.Null())
	if err == nil {
		t.Fatal("expected a fault, got nil error")
	}
	if !strings.Contains(err.Error(), "division by zero") {
		t.Fatalf("err = %v, want a division-by-zero fault", err)
	}
	if a.Runtime.Continuations.Len() != 0 {
		t.Fatalf("Continuations.Len() = %d, want 0", a.Runtime.Continuations.Len())
	}
}

// S5: local map mutation and lookup in one invocation. SETF pops key,
// then value, then map (key was pushed last, on top); GETF pops key
// then map.
func TestScenarioMapSetThenGet(t *testing.T) {
	a, _ := NewPair(t)

	arg := a.Runtime.Arena.NewMap()
	c := code(
		bytecode.Instruction{Op: bytecode.OpGetArg},
		bytecode.Instruction{Op: bytecode.OpPushI, Int: 9},
		bytecode.Instruction{Op: bytecode.OpPushS, Str: "k"},
		bytecode.Instruction{Op: bytecode.OpSetF},
		bytecode.Instruction{Op: bytecode.OpPushS, Str: "k"},
		bytecode.Instruction{Op: bytecode.OpGetF},
		bytecode.Instruction{Op: bytecode.OpRet},
	)
	ctx := vm.NewContext(c, arg)
	outcome, err := vm.Eval(a.Runtime, a.Sender, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != vm.OutcomeReturn {
		t.Fatalf("outcome = %v, want OutcomeReturn", outcome)
	}
	top := ctx.Stack[len(ctx.Stack)-1]
	if !value.Eq(top, value.Int(9)) {
		t.Fatalf("top = %v, want Int(9)", top)
	}
}

// S6: a REPLY whose retid names no live continuation is a mis-route --
// the dispatcher logs it and drops it. The rest of the device keeps
// running: a legitimate PROP_GET issued right after still suspends,
// gets answered, and resumes normally.
func TestScenarioReplyMisrouteIsDroppedNotFatal(t *testing.T) {
	a, b := NewPair(t)
	b.Runtime.Props.Add("vol", value.Int(3))

	host := strings.TrimPrefix(a.Runtime.SelfAddr, "tcp://")
	conn, err := net.Dial("tcp", host)
	if err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf(`%s {"tag":"REPLY","arg":{"retid":999,"retval":null}}`, a.Runtime.SelfAddr)
	if _, err := conn.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && a.Runtime.Continuations.Len() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if a.Runtime.Continuations.Len() != 0 {
		t.Fatalf("stray REPLY should not have changed continuation state, Len() = %d", a.Runtime.Continuations.Len())
	}

	captured := make(chan value.Value, 1)
	a.Natives.Register1("test_capture", func(arg value.Value) (value.Value, error) {
		captured <- arg
		return value.Null(), nil
	})
	a.Runtime.Funcs.Register(runtime.Func{Name: "test_capture", Kind: runtime.FuncNative, NativeName: "test_capture"})

	c := code(
		bytecode.Instruction{Op: bytecode.OpPushS, Str: "B:vol"},
		bytecode.Instruction{Op: bytecode.OpPropGet},
		bytecode.Instruction{Op: bytecode.OpPushS, Str: "test_capture"},
		bytecode.Instruction{Op: bytecode.OpCallFunc},
		bytecode.Instruction{Op: bytecode.OpRet},
	)
	outcome, err := a.RunReactor(c, value.Null())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != vm.OutcomeSuspend {
		t.Fatalf("outcome = %v, want OutcomeSuspend", outcome)
	}

	select {
	case got := <-captured:
		if !value.Eq(got, value.Int(3)) {
			t.Fatalf("captured = %v, want Int(3)", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("legitimate PROP_GET never resumed after the earlier mis-routed REPLY")
	}
}
