// Package vm implements the stack-based bytecode interpreter: a single
// stack that mixes value frames with block/loop/try/function control
// frames, closure capture at construction time, top-down variable
// resolution, structured exceptions, and a mark-and-sweep collector
// invoked only where the host asks for it (§4.3, §4.5, §4.7, §4.8).
package vm

import (
	"github.com/rs/zerolog/log"

	"github.com/kristofer/nutshell/pkg/bytecode"
	"github.com/kristofer/nutshell/pkg/hashmap"
	"github.com/kristofer/nutshell/pkg/heap"
	"github.com/kristofer/nutshell/pkg/value"
)

// VM is a reusable bytecode interpreter. Globals and the heap persist
// across Run calls; the value/control stack is local to each one,
// except for the implicit host-entry frame Run pushes for its
// duration.
type VM struct {
	stack   []Frame
	globals *hashmap.Map
	heap    *heap.Heap
	buf     *value.Buffer
	xref    []bytecode.XrefEntry

	// nativeCalls holds the argument slice of every in-flight native
	// call, so gc() triggered reentrantly from inside a native
	// function still treats those arguments as roots (§4.8).
	nativeCalls [][]value.Value

	// GCThreshold, when > 0, triggers an automatic Collect once at
	// least this many allocations have happened since the last one.
	// Zero (the default) means collection only ever happens when the
	// host calls Collect/gc() explicitly (§4.8 and its CLI expansion).
	GCThreshold   int
	allocsAtLastGC int

	// MaxStackFrames, when > 0, caps the unified value/control stack:
	// OpCall raises a catchable "stack overflow" error instead of
	// growing the stack past this many entries. Zero means unbounded.
	MaxStackFrames int
}

// New creates a VM with empty globals and a fresh heap.
func New() *VM {
	return &VM{
		globals: hashmap.New(),
		heap:    heap.New(),
	}
}

// Heap satisfies value.Caller.
func (vm *VM) Heap() value.Heap { return vm.heap }

// DeclareGlobal installs name into the global scope, overwriting any
// existing binding - used by the FFI layer to register native
// functions and constants before a script runs.
func (vm *VM) DeclareGlobal(name string, v value.Value) {
	vm.globals.Put(name, v)
}

// GetGlobal reads name out of the global scope, the host-facing
// counterpart of §6's get_variable - distinct from the variable_get
// opcode, which also searches locals/closures before falling back to
// globals.
func (vm *VM) GetGlobal(name string) (value.Value, bool) {
	return vm.globals.Get(name)
}

// PutGlobal overwrites an existing global binding, the host-facing
// counterpart of §6's put_variable. Reports false if name was never
// declared.
func (vm *VM) PutGlobal(name string, v value.Value) bool {
	if _, ok := vm.globals.Get(name); !ok {
		return false
	}
	vm.globals.Put(name, v)
	return true
}

// DeleteGlobal removes name from the global scope, the host-facing
// counterpart of §6's delete_variable. Reports whether it was present.
func (vm *VM) DeleteGlobal(name string) bool {
	return vm.globals.Delete(name)
}

// Collect runs an explicit mark-and-sweep pass rooted at everything
// currently reachable, logging the before/after heap size at debug
// level.
func (vm *VM) Collect() (retained, freed int) {
	retained, freed = vm.heap.Collect(vm.roots())
	vm.allocsAtLastGC = vm.heap.Allocs()
	log.Debug().Int("retained", retained).Int("freed", freed).Msg("heap.gc_sweep")
	return retained, freed
}

func (vm *VM) maybeAutoCollect() {
	if vm.GCThreshold <= 0 {
		return
	}
	if vm.heap.Allocs()-vm.allocsAtLastGC >= vm.GCThreshold {
		vm.Collect()
	}
}

// Run executes the bytecode in buf, with xref for diagnostics, starting
// at entry, and returns the value its top-level `return` (or implicit
// fallthrough) produces.
func (vm *VM) Run(buf *value.Buffer, xref []bytecode.XrefEntry, entry uint32) (value.Value, error) {
	vm.buf = buf
	vm.xref = xref
	return vm.enter(entry, nil)
}

// Call invokes fn (script function or native) with args and returns
// its result - the reentrant path native code uses to call back into
// script, and the path OpCall itself uses for script-to-script calls.
// It satisfies value.Caller.
func (vm *VM) Call(fn value.Value, args []value.Value) (value.Value, error) {
	switch fn.Kind() {
	case value.KindCFunction:
		cfn, _ := fn.CFunc()
		vm.nativeCalls = append(vm.nativeCalls, args)
		result, err := cfn(vm, args)
		vm.nativeCalls = vm.nativeCalls[:len(vm.nativeCalls)-1]
		return result, err
	case value.KindFunction:
		m := fn.Managed()
		return vm.enter(m.Entry, &Frame{
			Kind:    FrameFunction,
			Callee:  fn,
			Argv:    args,
			Locals:  hashmap.New(),
			Closure: m.Closure,
		})
	default:
		return value.Undefined, vm.newRuntimeError("value is not callable", errNotCallable)
	}
}

// enter pushes a host-entry function frame (activation, if supplied,
// otherwise a bare top-level one whose locals are the globals map, so
// top-level declarations are globals that function bodies can resolve)
// and runs until that exact frame is popped by OpReturn or an uncaught
// throw reaches it.
func (vm *VM) enter(entry uint32, activation *Frame) (value.Value, error) {
	f := Frame{Kind: FrameFunction, Locals: vm.globals, IsHostEntry: true}
	if activation != nil {
		f.Callee = activation.Callee
		f.Argv = activation.Argv
		f.Locals = activation.Locals
		f.Closure = activation.Closure
	}
	vm.push(f)
	result, thrown, err := vm.run(entry)
	if err != nil {
		return value.Undefined, err
	}
	if thrown != nil {
		text, terr := thrown.Text()
		if terr != nil {
			text = thrown.TypeOf()
		}
		return value.Undefined, &ScriptError{Value: *thrown, Text: text}
	}
	return result, nil
}
