// Package ffi is the host-facing half of the foreign-function
// interface: registering native callables into a VM's globals,
// coercing/validating the arguments they receive, and the reentrant
// call/variable primitives §6 promises to host code embedding the
// engine (as opposed to pkg/vm's script-facing opcode implementations).
package ffi

import (
	"github.com/pkg/errors"

	"github.com/kristofer/nutshell/pkg/value"
)

// Host is the surface ffi needs from a VM. pkg/vm.VM satisfies it
// directly.
type Host interface {
	value.Caller
	DeclareGlobal(name string, v value.Value)
	GetGlobal(name string) (value.Value, bool)
	PutGlobal(name string, v value.Value) bool
	DeleteGlobal(name string) bool
}

// Register installs fn as a native global callable under name. Hosts
// call this once per binding before running any script; scripts then
// see name as an ordinary function value.
func Register(h Host, name string, fn value.CFunc) {
	h.DeclareGlobal(name, value.NativeFunction(name, fn))
}

// Declare installs a plain (non-function) constant or object into the
// global scope, e.g. a version string or a native-built config object.
func Declare(h Host, name string, v value.Value) {
	h.DeclareGlobal(name, v)
}

// DeclareVariable is §6's declare_variable(vm, name, value) - errors if
// name is already bound, mirroring the opcode-level redeclaration rule
// of §4.5.
func DeclareVariable(h Host, name string, v value.Value) error {
	if _, exists := h.GetGlobal(name); exists {
		return errors.Errorf("variable %q already declared", name)
	}
	h.DeclareGlobal(name, v)
	return nil
}

// PutVariable is §6's put_variable - errors if name was never declared.
func PutVariable(h Host, name string, v value.Value) error {
	if !h.PutGlobal(name, v) {
		return errors.Errorf("variable %q not found", name)
	}
	return nil
}

// GetVariable is §6's get_variable - errors if name was never declared.
func GetVariable(h Host, name string) (value.Value, error) {
	v, ok := h.GetGlobal(name)
	if !ok {
		return value.Undefined, errors.Errorf("variable %q not found", name)
	}
	return v, nil
}

// DeleteVariable is §6's delete_variable - errors if name was never
// declared.
func DeleteVariable(h Host, name string) error {
	if !h.DeleteGlobal(name) {
		return errors.Errorf("variable %q not found", name)
	}
	return nil
}

// Call invokes fn with args from host code, reentering the VM exactly
// as a script-level call would - this is the "call(vm, fn, argc,
// argv)" primitive of §6, exposed for native functions that need to
// call back into script (e.g. Array.prototype-style forEach bindings).
func Call(h Host, fn value.Value, args []value.Value) (value.Value, error) {
	if fn.Kind() != value.KindFunction && fn.Kind() != value.KindCFunction {
		return value.Undefined, errors.Errorf("value of kind %s is not callable", fn.Kind())
	}
	return h.Call(fn, args)
}

// Arity returns an error unless args has exactly n elements, named
// after the native function it's guarding for diagnostics.
func Arity(name string, args []value.Value, n int) error {
	if len(args) != n {
		return errors.Errorf("%s: expected %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

// Number extracts args[i] as a float64, erroring with fn's name if the
// argument is missing or not a number.
func Number(fn string, args []value.Value, i int) (float64, error) {
	if i >= len(args) {
		return 0, errors.Errorf("%s: missing argument %d", fn, i)
	}
	if args[i].Kind() != value.KindNumber {
		return 0, errors.Errorf("%s: argument %d must be a number, got %s", fn, i, args[i].Kind())
	}
	return args[i].Number(), nil
}

// Text extracts args[i] as a Go string, erroring with fn's name if the
// argument is missing or not string-shaped.
func Text(fn string, args []value.Value, i int) (string, error) {
	if i >= len(args) {
		return "", errors.Errorf("%s: missing argument %d", fn, i)
	}
	if !args[i].IsString() {
		return "", errors.Errorf("%s: argument %d must be a string, got %s", fn, i, args[i].Kind())
	}
	return args[i].Text()
}

// Optional returns args[i], or fallback if args is shorter than i+1 -
// native functions use this for trailing optional parameters.
func Optional(args []value.Value, i int, fallback value.Value) value.Value {
	if i >= len(args) {
		return fallback
	}
	return args[i]
}
