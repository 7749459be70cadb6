package vm

import (
	"github.com/reactormesh/devrt/internal/bytecode"
	"github.com/reactormesh/devrt/internal/continuation"
	"github.com/reactormesh/devrt/internal/runtime"
	"github.com/reactormesh/devrt/internal/value"
	"github.com/reactormesh/devrt/internal/wire"
)

func selfSrc(rt *runtime.Runtime) value.Value {
	src := rt.Arena.NewMap()
	rt.Arena.MapAdd(src, value.String("dev"), value.String(rt.SelfName))
	rt.Arena.MapAdd(src, value.String("addr"), value.String(rt.SelfAddr))
	return src
}

// evalProp handles PROP_GET and PROP_SET.
func evalProp(rt *runtime.Runtime, sender Sender, ctx *Context, instr bytecode.Instruction) (int, stepOutcome, error) {
	switch instr.Op {
	case bytecode.OpPropGet:
		return evalPropGet(rt, sender, ctx)
	case bytecode.OpPropSet:
		return evalPropSet(rt, sender, ctx)
	}
	return 0, stepContinue, &Fault{Op: "prop", Reason: "unreachable"}
}

// evalPropGet pops the property reference string. A local reference
// (no "dev:" prefix) resolves immediately against the property table,
// pushing "E:NO_SUCH_PROP" on a miss rather than faulting, matching the
// original's tolerant local-miss behavior. A remote reference installs
// a continuation and suspends pending the owning device's REPLY.
func evalPropGet(rt *runtime.Runtime, sender Sender, ctx *Context) (int, stepOutcome, error) {
	propV, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	if value.Tag(propV) != value.KindString {
		return 0, stepContinue, &Fault{Op: "PROP_GET", Reason: "property reference must be a string"}
	}
	dev, name := splitDevName(propV.StringValue())

	if dev == "" {
		v, ok := rt.Props.Get(name)
		if !ok {
			ctx.Push(value.String("E:NO_SUCH_PROP"))
		} else {
			ctx.Push(v)
		}
		return ctx.IP + 1, stepContinue, nil
	}

	addr, ok := rt.Addresses.Resolve(dev)
	if !ok {
		return 0, stepContinue, &Fault{Op: "PROP_GET", Reason: "unresolved device", Cause: &runtime.NoSuchDeviceError{Dev: dev}}
	}

	retid := rt.Continuations.New(ctx.clone(ctx.IP + 1))

	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String(name))
	rt.Arena.MapAdd(arg, value.String("retid"), value.Int(int32(retid)))
	rt.Arena.MapAdd(arg, value.String("retaddr"), value.String(rt.SelfAddr))

	msg := wire.Message{Tag: wire.TagPropGet, Arg: arg, Src: selfSrc(rt)}
	if err := sender.Send(addr, msg); err != nil {
		rt.Continuations.Take(retid)
		return 0, stepContinue, &Fault{Op: "PROP_GET", Reason: "send failed", Cause: err}
	}
	return 0, stepSuspend, nil
}

// evalPropSet pops prop_v (the property reference, popped first/from
// the top) then value_v (popped second). A local reference requires an
// already-registered property (PROP_SET can't implicitly create one); a
// remote reference is fire-and-forget, matching CALL_FUNC's remote
// behavior — no suspend, no reply expected.
func evalPropSet(rt *runtime.Runtime, sender Sender, ctx *Context) (int, stepOutcome, error) {
	propV, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	val, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	if value.Tag(propV) != value.KindString {
		return 0, stepContinue, &Fault{Op: "PROP_SET", Reason: "property reference must be a string"}
	}
	dev, name := splitDevName(propV.StringValue())

	if dev == "" {
		if !rt.Props.Set(name, val) {
			return 0, stepContinue, &Fault{Op: "PROP_SET", Reason: "no such property", Cause: &runtime.NoSuchPropertyError{Name: name}}
		}
		return ctx.IP + 1, stepContinue, nil
	}

	addr, ok := rt.Addresses.Resolve(dev)
	if !ok {
		return 0, stepContinue, &Fault{Op: "PROP_SET", Reason: "unresolved device", Cause: &runtime.NoSuchDeviceError{Dev: dev}}
	}
	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String(name))
	rt.Arena.MapAdd(arg, value.String("value"), val)
	msg := wire.Message{Tag: wire.TagPropSet, Arg: arg, Src: selfSrc(rt)}
	if err := sender.Send(addr, msg); err != nil {
		return 0, stepContinue, &Fault{Op: "PROP_SET", Reason: "send failed", Cause: err}
	}
	return ctx.IP + 1, stepContinue, nil
}

// evalCall handles CALL_FUNC, CALL_FUNC_RET, CALL_RETURN, and
// CALL_CONTINUE.
func evalCall(rt *runtime.Runtime, sender Sender, ctx *Context, instr bytecode.Instruction) (int, stepOutcome, error) {
	switch instr.Op {
	case bytecode.OpCallFunc, bytecode.OpCallFuncRet:
		return evalCallFunc(rt, sender, ctx, instr.Op == bytecode.OpCallFuncRet)
	case bytecode.OpCallReturn:
		return evalCallReturn(rt, sender, ctx)
	case bytecode.OpCallContinue:
		return evalCallContinue(rt, sender, ctx)
	}
	return 0, stepContinue, &Fault{Op: "call", Reason: "unreachable"}
}

// evalCallFunc pops fnam_v (the function reference, from the top) then
// farg_v (the call argument), matching _eval_call_func's "funarg fname"
// stack layout (fname on top). A local call always runs synchronously
// and pushes its result, whether or not wantReply is set — the
// CALL_FUNC/CALL_FUNC_RET distinction only changes behavior for a
// remote call.
func evalCallFunc(rt *runtime.Runtime, sender Sender, ctx *Context, wantReply bool) (int, stepOutcome, error) {
	fnamV, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	fargV, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	if value.Tag(fnamV) != value.KindString {
		return 0, stepContinue, &Fault{Op: "CALL_FUNC", Reason: "function reference must be a string"}
	}
	dev, name := splitDevName(fnamV.StringValue())

	if dev == "" {
		return evalCallFuncLocal(rt, sender, ctx, name, fargV)
	}
	return evalCallFuncRemote(rt, sender, ctx, dev, name, fargV, wantReply)
}

func evalCallFuncLocal(rt *runtime.Runtime, sender Sender, ctx *Context, name string, farg value.Value) (int, stepOutcome, error) {
	ret, err := CallLocal(rt, sender, name, farg)
	if err != nil {
		return 0, stepContinue, err
	}
	ctx.Push(ret)
	return ctx.IP + 1, stepContinue, nil
}

// CallLocal runs a locally-registered function (native or bytecode) by
// name with the given call argument and returns its result. It is the
// same dispatch evalCallFuncLocal performs from inside a running VM
// context, exposed so a dispatcher-level FUNC_CALL/FUNC_CALL_RET handler
// can invoke a local function without fabricating a bytecode program.
func CallLocal(rt *runtime.Runtime, sender Sender, name string, farg value.Value) (value.Value, error) {
	f, ok := rt.Funcs.Get(name)
	if !ok {
		return value.Null(), &Fault{Op: "CALL_FUNC", Reason: "no such function", Cause: &runtime.NoSuchFunctionError{Name: name}}
	}

	switch f.Kind {
	case runtime.FuncNative:
		entry, ok := rt.Natives.Resolve(f.NativeName)
		if !ok {
			return value.Null(), &Fault{Op: "CALL_FUNC", Reason: "native symbol not resolvable: " + f.NativeName}
		}
		var ret value.Value
		var callErr error
		switch entry.Arity {
		case 1:
			ret, callErr = entry.Fn1(farg)
		case 2:
			if value.Tag(farg) != value.KindCons {
				return value.Null(), &Fault{Op: "CALL_FUNC", Reason: "arity-2 native requires a cons funarg"}
			}
			// Unpacking order matches _eval_call_native: arg2=car(farg), arg1=cadr(farg).
			arg2 := rt.Arena.ConsCar(farg)
			arg1 := rt.Arena.ConsCar(rt.Arena.ConsCdr(farg))
			ret, callErr = entry.Fn2(arg1, arg2)
		}
		if callErr != nil {
			return value.Null(), &Fault{Op: "CALL_FUNC", Reason: "native call failed", Cause: callErr}
		}
		return ret, nil

	case runtime.FuncBytecode:
		sub := NewContext(f.Code, farg)
		outcome, err := Eval(rt, sender, sub)
		if err != nil {
			return value.Null(), &Fault{Op: "CALL_FUNC", Reason: "local bytecode call failed", Cause: err}
		}
		if outcome == OutcomeSuspend {
			return value.Null(), &Fault{Op: "CALL_FUNC", Reason: "nested suspension in a local bytecode call is not supported"}
		}
		ret, err := sub.Pop()
		if err != nil {
			ret = value.Null()
		}
		return ret, nil
	}
	return value.Null(), &Fault{Op: "CALL_FUNC", Reason: "unreachable"}
}

func evalCallFuncRemote(rt *runtime.Runtime, sender Sender, ctx *Context, dev, name string, farg value.Value, wantReply bool) (int, stepOutcome, error) {
	addr, ok := rt.Addresses.Resolve(dev)
	if !ok {
		return 0, stepContinue, &Fault{Op: "CALL_FUNC", Reason: "unresolved device", Cause: &runtime.NoSuchDeviceError{Dev: dev}}
	}

	if !wantReply {
		arg := rt.Arena.NewMap()
		rt.Arena.MapAdd(arg, value.String("name"), value.String(name))
		rt.Arena.MapAdd(arg, value.String("funarg"), farg)
		msg := wire.Message{Tag: wire.TagFuncCall, Arg: arg, Src: selfSrc(rt)}
		if err := sender.Send(addr, msg); err != nil {
			return 0, stepContinue, &Fault{Op: "CALL_FUNC", Reason: "send failed", Cause: err}
		}
		return ctx.IP + 1, stepContinue, nil
	}

	retid := rt.Continuations.New(ctx.clone(ctx.IP + 1))
	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("name"), value.String(name))
	rt.Arena.MapAdd(arg, value.String("funarg"), farg)
	rt.Arena.MapAdd(arg, value.String("retid"), value.Int(int32(retid)))
	rt.Arena.MapAdd(arg, value.String("retaddr"), value.String(rt.SelfAddr))
	msg := wire.Message{Tag: wire.TagFuncCallRet, Arg: arg, Src: selfSrc(rt)}
	if err := sender.Send(addr, msg); err != nil {
		rt.Continuations.Take(retid)
		return 0, stepContinue, &Fault{Op: "CALL_FUNC_RET", Reason: "send failed", Cause: err}
	}
	return 0, stepSuspend, nil
}

// evalCallReturn pops retid_v, then retaddr_v, then retval_v (in that
// literal order — retid was on top) and sends a REPLY carrying retval
// to retaddr, matching _eval_call_return.
func evalCallReturn(rt *runtime.Runtime, sender Sender, ctx *Context) (int, stepOutcome, error) {
	retidV, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	retaddrV, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	retval, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	if value.Tag(retidV) != value.KindInt || value.Tag(retaddrV) != value.KindString {
		return 0, stepContinue, &Fault{Op: "CALL_RETURN", Reason: "retid must be Int and retaddr must be String"}
	}
	arg := rt.Arena.NewMap()
	rt.Arena.MapAdd(arg, value.String("retid"), retidV)
	rt.Arena.MapAdd(arg, value.String("retval"), retval)
	msg := wire.Message{Tag: wire.TagReply, Arg: arg}
	if err := sender.Send(retaddrV.StringValue(), msg); err != nil {
		return 0, stepContinue, &Fault{Op: "CALL_RETURN", Reason: "send failed", Cause: err}
	}
	return ctx.IP + 1, stepContinue, nil
}

// evalCallContinue pops retid_v then retval_v (retid was on top),
// resumes the parked continuation by pushing retval onto its saved
// stack and re-entering Eval on it, and always steps ip+1 for the
// CALLING (reply-handling) context regardless of how the resumed
// invocation turns out — matching _eval_call_continue exactly.
func evalCallContinue(rt *runtime.Runtime, sender Sender, ctx *Context) (int, stepOutcome, error) {
	retidV, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	retval, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	if value.Tag(retidV) != value.KindInt {
		return 0, stepContinue, &Fault{Op: "CALL_CONTINUE", Reason: "retid must be Int"}
	}
	id := continuation.ID(retidV.IntValue())
	if _, err := Resume(rt, sender, id, retval); err != nil {
		return 0, stepContinue, err
	}
	return ctx.IP + 1, stepContinue, nil
}

// Resume looks up and resumes (single-shot) the continuation parked
// under id, pushing retval onto its saved stack and re-entering Eval.
// It reports whether a continuation was found; a missing continuation
// is a Fault, not a silent no-op, since a REPLY with no matching
// waiter means a bug somewhere — a duplicate delivery or a stale
// retid. Parked continuations never expire on their own.
//
// This is shared by the CALL_CONTINUE opcode and by a dispatcher-level
// REPLY handler, which resumes a waiting reactor the same way without
// needing a synthetic bytecode program to drive it.
func Resume(rt *runtime.Runtime, sender Sender, id continuation.ID, retval value.Value) (bool, error) {
	state, ok := rt.Continuations.Take(id)
	if !ok {
		return false, &Fault{Op: "CALL_CONTINUE", Reason: "no live continuation", Cause: &continuation.NotFoundError{ID: id}}
	}
	saved := state.(*Context)
	saved.Push(retval)
	// The resumed invocation's outcome belongs to it, not to the
	// caller of Resume: a failure or a further suspension downstream
	// never changes what Resume itself reports.
	_, _ = Eval(rt, sender, saved)
	return true, nil
}
