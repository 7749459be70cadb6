// Package vm implements the stack-based bytecode interpreter reactors
// run on: arithmetic, branching, cons/map manipulation, and the
// property-get / function-call opcodes that can suspend an invocation
// pending a remote reply.
//
// Grounded on _examples/original_source/mvrt/rteval.c (_eval/_eval_instr
// and the per-family handlers) for every opcode's exact stack pop/push
// order, and on coreengine/kernel's subsystem-composition style for how
// the interpreter threads a Runtime and a Sender through evaluation
// without importing the transport package directly.
package vm

import (
	"github.com/reactormesh/devrt/internal/bytecode"
	"github.com/reactormesh/devrt/internal/value"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Context is one reactor (or function) invocation's execution state: its
// code, instruction pointer, operand stack, and the event/call argument
// it was invoked with. mvrt_eval_reactor pushes that argument as the
// stack's sole initial element, so Arg is also the initial stack bottom
// — NewContext reproduces that.
//
// Span, when set by the invoking dispatcher, covers this invocation from
// its first Eval through however many suspend/resume round trips it
// takes to reach a terminal outcome — clone carries it into the parked
// continuation so the same span stays open across the network gap.
type Context struct {
	Code  *bytecode.Code
	IP    int
	Stack []value.Value
	Arg   value.Value
	Span  oteltrace.Span
}

// NewContext starts a fresh invocation of code with evdata as both the
// argument and the initial stack bottom.
func NewContext(code *bytecode.Code, evdata value.Value) *Context {
	return &Context{Code: code, IP: 0, Stack: []value.Value{evdata}, Arg: evdata}
}

// clone returns a deep-enough copy of ctx suitable for parking in a
// continuation: the stack slice is copied so later pushes on the live
// context (should there be one) never alias the suspended copy.
func (c *Context) clone(ip int) *Context {
	stack := make([]value.Value, len(c.Stack))
	copy(stack, c.Stack)
	return &Context{Code: c.Code, IP: ip, Stack: stack, Arg: c.Arg, Span: c.Span}
}

// Push appends v to the top of the stack.
func (c *Context) Push(v value.Value) {
	c.Stack = append(c.Stack, v)
}

// Pop removes and returns the top of the stack, or a Fault if the stack
// is empty (a malformed or buggy reactor body).
func (c *Context) Pop() (value.Value, error) {
	if len(c.Stack) == 0 {
		return value.Value{}, &Fault{Op: "POP", Reason: "stack underflow"}
	}
	top := c.Stack[len(c.Stack)-1]
	c.Stack = c.Stack[:len(c.Stack)-1]
	return top, nil
}
