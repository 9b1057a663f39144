// Package stdlib registers the minimal native bundle the reference CLI
// exposes to every script: a collector trigger, console output, and a
// handful of math functions. It deliberately stops there - a full
// filesystem/process/string-utility bundle is out of scope (§1's
// out-of-scope list); this bundle exists to exercise the FFI end to end, not
// to replace a general-purpose standard library.
package stdlib

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/kristofer/nutshell/pkg/ffi"
	"github.com/kristofer/nutshell/pkg/value"
)

// Host is what Install needs from the VM: the ffi registration surface
// plus the explicit collection trigger gc() wraps.
type Host interface {
	ffi.Host
	Collect() (retained, freed int)
}

// Install registers every stdlib binding as a global on h. Call once
// per VM before running scripts.
func Install(h Host) {
	ffi.Register(h, "gc", gc(h))
	ffi.Register(h, "print", print_)

	ffi.Register(h, "floor", mathUnary("floor", math.Floor))
	ffi.Register(h, "ceil", mathUnary("ceil", math.Ceil))
	ffi.Register(h, "round", mathUnary("round", math.Round))
	ffi.Register(h, "abs", mathUnary("abs", math.Abs))
	ffi.Register(h, "sqrt", mathUnary("sqrt", math.Sqrt))
	ffi.Register(h, "pow", mathBinary("pow", math.Pow))

	ffi.Declare(h, "PI", value.Number(math.Pi))
}

// gc closes over the host so the registered native can trigger a full
// mark-and-sweep sweep on demand (§4.8: collection only ever happens
// where the host, or here a script calling the host binding, asks).
func gc(h Host) value.CFunc {
	return func(_ value.Caller, args []value.Value) (value.Value, error) {
		if err := ffi.Arity("gc", args, 0); err != nil {
			return value.Undefined, err
		}
		retained, freed := h.Collect()
		log.Debug().Int("retained", retained).Int("freed", freed).Msg("stdlib.gc")
		return value.Number(float64(freed)), nil
	}
}

// print_ writes every argument's display form to stdout, space
// separated, followed by a newline - the only I/O primitive the core
// bundle exposes.
func print_(_ value.Caller, args []value.Value) (value.Value, error) {
	for i, a := range args {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(Display(a))
	}
	fmt.Println()
	return value.Undefined, nil
}

// Display renders v the way print() and the CLI/REPL do: the literal
// form for primitives, and a bracketed kind name for heap values that
// have no single-line text form.
func Display(v value.Value) string {
	switch v.Kind() {
	case value.KindUndefined:
		return "undefined"
	case value.KindNull:
		return "null"
	case value.KindBoolean:
		if v.Bool() {
			return "true"
		}
		return "false"
	case value.KindNumber:
		return fmt.Sprintf("%g", v.Number())
	default:
		if v.IsString() {
			if s, err := v.Text(); err == nil {
				return s
			}
		}
		return "[" + v.Kind().String() + "]"
	}
}

func mathUnary(name string, fn func(float64) float64) value.CFunc {
	return func(_ value.Caller, args []value.Value) (value.Value, error) {
		if err := ffi.Arity(name, args, 1); err != nil {
			return value.Undefined, err
		}
		n, err := ffi.Number(name, args, 0)
		if err != nil {
			return value.Undefined, err
		}
		return value.Number(fn(n)), nil
	}
}

func mathBinary(name string, fn func(float64, float64) float64) value.CFunc {
	return func(_ value.Caller, args []value.Value) (value.Value, error) {
		if err := ffi.Arity(name, args, 2); err != nil {
			return value.Undefined, err
		}
		a, err := ffi.Number(name, args, 0)
		if err != nil {
			return value.Undefined, err
		}
		b, err := ffi.Number(name, args, 1)
		if err != nil {
			return value.Undefined, err
		}
		return value.Number(fn(a, b)), nil
	}
}
