package vm

import (
	"github.com/reactormesh/devrt/internal/bytecode"
	"github.com/reactormesh/devrt/internal/runtime"
	"github.com/reactormesh/devrt/internal/value"
)

func isArithmetic(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv:
		return true
	}
	return false
}

func isBranch(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpJmp, bytecode.OpBeq, bytecode.OpRet:
		return true
	}
	return false
}

func isPush(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpPushN, bytecode.OpPush0, bytecode.OpPush1, bytecode.OpPushI, bytecode.OpPushS, bytecode.OpPop:
		return true
	}
	return false
}

func isCons(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpConsNew, bytecode.OpConsCar, bytecode.OpConsCdr, bytecode.OpConsSetCar, bytecode.OpConsSetCdr:
		return true
	}
	return false
}

func isStackOp(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpGetArg, bytecode.OpGetF, bytecode.OpSetF:
		return true
	}
	return false
}

func isPropOp(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpPropGet, bytecode.OpPropSet:
		return true
	}
	return false
}

func isCallOp(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpCallFunc, bytecode.OpCallFuncRet, bytecode.OpCallReturn, bytecode.OpCallContinue:
		return true
	}
	return false
}

// evalArithmetic pops val0 then val1 and computes val0 OP val1: the
// first-popped operand (the former stack top) is the left/numerator
// side, matching _eval_arithmetic's DIV case (val0 / val1).
func evalArithmetic(ctx *Context, instr bytecode.Instruction) (int, stepOutcome, error) {
	val0, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	val1, err := ctx.Pop()
	if err != nil {
		return 0, stepContinue, err
	}
	if value.Tag(val0) != value.KindInt || value.Tag(val1) != value.KindInt {
		return 0, stepContinue, &Fault{Op: "arithmetic", Reason: "operands must be Int"}
	}
	a, b := val0.IntValue(), val1.IntValue()
	var result int32
	switch instr.Op {
	case bytecode.OpAdd:
		result = a + b
	case bytecode.OpSub:
		result = a - b
	case bytecode.OpMul:
		result = a * b
	case bytecode.OpDiv:
		if b == 0 {
			return 0, stepContinue, &Fault{Op: "DIV", Reason: "division by zero"}
		}
		result = a / b
	}
	ctx.Push(value.Int(result))
	return ctx.IP + 1, stepContinue, nil
}

// evalBranch handles JMP, BEQ, and RET. BEQ pops val0 then val1 and
// jumps only if they're Eq; otherwise it falls through, exactly like
// the original's switch-default "return ip+1" when the comparison
// fails.
func evalBranch(ctx *Context, instr bytecode.Instruction) (int, stepOutcome, error) {
	switch instr.Op {
	case bytecode.OpJmp:
		return instr.Jmp, stepContinue, nil
	case bytecode.OpBeq:
		val0, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		val1, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		if value.Eq(val0, val1) {
			return instr.Jmp, stepContinue, nil
		}
		return ctx.IP + 1, stepContinue, nil
	case bytecode.OpRet:
		return 0, stepReturn, nil
	}
	return 0, stepContinue, &Fault{Op: "branch", Reason: "unreachable"}
}

// evalPush handles the push/pop family.
func evalPush(ctx *Context, instr bytecode.Instruction) (int, stepOutcome, error) {
	switch instr.Op {
	case bytecode.OpPushN:
		ctx.Push(value.Null())
	case bytecode.OpPush0:
		ctx.Push(value.Int(0))
	case bytecode.OpPush1:
		ctx.Push(value.Int(1))
	case bytecode.OpPushI:
		ctx.Push(value.Int(instr.Int))
	case bytecode.OpPushS:
		ctx.Push(value.String(instr.Str))
	case bytecode.OpPop:
		if _, err := ctx.Pop(); err != nil {
			return 0, stepContinue, err
		}
	}
	return ctx.IP + 1, stepContinue, nil
}

// evalCons handles CONS_NEW/CONS_CAR/CONS_CDR/CONS_SETCAR/CONS_SETCDR.
// CONS_NEW pops val0 then val1 and sets car=val0, cdr=val1 — the
// stack's former top becomes car, matching _eval_cons exactly.
func evalCons(rt *runtime.Runtime, ctx *Context, instr bytecode.Instruction) (int, stepOutcome, error) {
	switch instr.Op {
	case bytecode.OpConsNew:
		val0, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		val1, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		cons := rt.Arena.NewCons()
		rt.Arena.ConsSetCar(cons, val0)
		rt.Arena.ConsSetCdr(cons, val1)
		ctx.Push(cons)
	case bytecode.OpConsCar:
		cons, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		if value.Tag(cons) != value.KindCons {
			return 0, stepContinue, &Fault{Op: "CONS_CAR", Reason: "operand is not a cons"}
		}
		ctx.Push(rt.Arena.ConsCar(cons))
	case bytecode.OpConsCdr:
		cons, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		if value.Tag(cons) != value.KindCons {
			return 0, stepContinue, &Fault{Op: "CONS_CDR", Reason: "operand is not a cons"}
		}
		ctx.Push(rt.Arena.ConsCdr(cons))
	case bytecode.OpConsSetCar:
		cons, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		val, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		if value.Tag(cons) != value.KindCons {
			return 0, stepContinue, &Fault{Op: "CONS_SETCAR", Reason: "operand is not a cons"}
		}
		ctx.Push(rt.Arena.ConsSetCar(cons, val))
	case bytecode.OpConsSetCdr:
		cons, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		val, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		if value.Tag(cons) != value.KindCons {
			return 0, stepContinue, &Fault{Op: "CONS_SETCDR", Reason: "operand is not a cons"}
		}
		ctx.Push(rt.Arena.ConsSetCdr(cons, val))
	}
	return ctx.IP + 1, stepContinue, nil
}

// evalStackOp handles GETARG/GETF/SETF. SETF pops key, then value, then
// map, in that literal order, and pushes the (mutated) map back —
// matching _eval_stackop's pop sequence exactly.
func evalStackOp(rt *runtime.Runtime, ctx *Context, instr bytecode.Instruction) (int, stepOutcome, error) {
	switch instr.Op {
	case bytecode.OpGetArg:
		ctx.Push(ctx.Arg)
	case bytecode.OpGetF:
		key, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		m, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		if value.Tag(m) != value.KindMap {
			return 0, stepContinue, &Fault{Op: "GETF", Reason: "operand is not a map"}
		}
		ctx.Push(rt.Arena.MapLookup(m, key))
	case bytecode.OpSetF:
		key, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		val, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		m, err := ctx.Pop()
		if err != nil {
			return 0, stepContinue, err
		}
		if value.Tag(m) != value.KindMap {
			return 0, stepContinue, &Fault{Op: "SETF", Reason: "operand is not a map"}
		}
		ctx.Push(rt.Arena.MapAdd(m, key, val))
	}
	return ctx.IP + 1, stepContinue, nil
}
