package vm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/kristofer/nutshell/pkg/value"
)

var (
	errStackUnderflow = errors.New("stack underflow")
	errNotAValueFrame = errors.New("expected a value on the stack")
	errNotCallable    = errors.New("value is not callable")
)

// StackFrame captures one call-activation frame for a host-facing
// diagnostic, independent of the live Frame it was taken from.
type StackFrame struct {
	Callee string
	IP     uint32
	Line   int
}

// RuntimeError is a host-side diagnostic wrapping an internal failure
// (stack underflow, invalid bytecode, a malformed call) with the
// call stack active at the point of failure. It is never what a
// scripted catch observes - script-visible failures are always thrown
// as plain Scripture values (§7).
type RuntimeError struct {
	Message string
	Trace   []StackFrame
	cause   error
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	for i := len(e.Trace) - 1; i >= 0; i-- {
		f := e.Trace[i]
		fmt.Fprintf(&b, "\n  at %s [ip %d", f.Callee, f.IP)
		if f.Line > 0 {
			fmt.Fprintf(&b, ", line %d", f.Line)
		}
		b.WriteString("]")
	}
	return b.String()
}

func (e *RuntimeError) Unwrap() error { return e.cause }

func (vm *VM) newRuntimeError(msg string, cause error) *RuntimeError {
	return &RuntimeError{Message: msg, cause: errors.WithStack(cause), Trace: vm.trace()}
}

func (vm *VM) trace() []StackFrame {
	var trace []StackFrame
	for i := range vm.stack {
		f := &vm.stack[i]
		if f.Kind != FrameFunction || f.IsHostEntry {
			continue
		}
		name := "<anonymous>"
		if _, cname := f.Callee.CFunc(); cname != "" {
			name = cname
		}
		trace = append(trace, StackFrame{Callee: name, IP: f.FuncEgress})
	}
	return trace
}

// ScriptError is the public error type returned by VM.Run/VM.Call when
// an uncaught script-level `throw` unwinds all the way to the host.
// Value holds the exact thrown payload; Text is its best-effort string
// rendering for logs and CLI output.
type ScriptError struct {
	Value value.Value
	Text  string
}

func (e *ScriptError) Error() string { return "uncaught exception: " + e.Text }
