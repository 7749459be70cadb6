package vm

import (
	"strings"

	"github.com/reactormesh/devrt/internal/bytecode"
	"github.com/reactormesh/devrt/internal/observability"
	"github.com/reactormesh/devrt/internal/runtime"
	"github.com/reactormesh/devrt/internal/wire"
	otelcodes "go.opentelemetry.io/otel/codes"
)

// Outcome is Eval's terminal result for an invocation.
type Outcome int

const (
	// OutcomeHalt means the instruction stream ran out (ip reached the
	// end of Code) without an explicit RET — a normal, if unusual, way
	// for a reactor body to finish.
	OutcomeHalt Outcome = iota
	// OutcomeReturn means a RET instruction was reached.
	OutcomeReturn
	// OutcomeSuspend means the invocation is parked awaiting a REPLY;
	// its Context has been saved in the Runtime's continuation store.
	OutcomeSuspend
)

// stepOutcome is evalInstr's internal continue/suspend/return signal,
// distinct from Outcome only in that "continue" isn't a terminal state
// the caller of Eval ever sees.
type stepOutcome int

const (
	stepContinue stepOutcome = iota
	stepSuspend
	stepReturn
)

// Sender delivers a wire message to a resolved destination address. The
// transport package's sender queue implements this; vm never imports
// transport directly, only this narrow interface, to keep the dependency
// graph acyclic and the VM testable without a real socket.
type Sender interface {
	Send(destAddr string, msg wire.Message) error
}

// Eval runs ctx to completion: normal termination (OutcomeHalt /
// OutcomeReturn), suspension pending a remote reply (OutcomeSuspend), or
// a Fault that aborts this invocation.
func Eval(rt *runtime.Runtime, sender Sender, ctx *Context) (Outcome, error) {
	for ctx.IP < ctx.Code.Len() {
		instr, ok := ctx.Code.At(ctx.IP)
		if !ok {
			break
		}
		next, step, err := evalInstr(rt, sender, ctx, instr)
		observability.RecordOpcode(instr.Op.String())
		if err != nil {
			endSpan(ctx, err)
			return OutcomeHalt, err
		}
		switch step {
		case stepSuspend:
			// The invocation's span, if any, stays open: it moves with
			// ctx.clone() into the parked continuation and is only
			// ended once a resume reaches a terminal outcome.
			return OutcomeSuspend, nil
		case stepReturn:
			endSpan(ctx, nil)
			return OutcomeReturn, nil
		default:
			ctx.IP = next
		}
	}
	endSpan(ctx, nil)
	return OutcomeHalt, nil
}

// endSpan closes ctx's invocation span, if one was started, recording
// err on it first when the invocation ended in a fault.
func endSpan(ctx *Context, err error) {
	if ctx.Span == nil {
		return
	}
	if err != nil {
		ctx.Span.RecordError(err)
		ctx.Span.SetStatus(otelcodes.Error, err.Error())
	}
	ctx.Span.End()
	ctx.Span = nil
}

func evalInstr(rt *runtime.Runtime, sender Sender, ctx *Context, instr bytecode.Instruction) (int, stepOutcome, error) {
	switch {
	case isArithmetic(instr.Op):
		return evalArithmetic(ctx, instr)
	case isBranch(instr.Op):
		return evalBranch(ctx, instr)
	case isPush(instr.Op):
		return evalPush(ctx, instr)
	case isCons(instr.Op):
		return evalCons(rt, ctx, instr)
	case isStackOp(instr.Op):
		return evalStackOp(rt, ctx, instr)
	case isPropOp(instr.Op):
		return evalProp(rt, sender, ctx, instr)
	case isCallOp(instr.Op):
		return evalCall(rt, sender, ctx, instr)
	default:
		return 0, stepContinue, &Fault{Op: "dispatch", Reason: "unknown opcode"}
	}
}

// splitDevName splits a "dev:name" property/function reference. A
// missing colon, or a colon as the very first character, means "no
// device" (local scope) — matching _eval_getdev's treatment of a
// leading colon as "no device" even though _eval_getname still strips
// it from the returned name.
func splitDevName(s string) (dev, name string) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return "", s
	}
	if i == 0 {
		return "", s[1:]
	}
	return s[:i], s[i+1:]
}
