package vm

import (
	"github.com/kristofer/nutshell/pkg/hashmap"
	"github.com/kristofer/nutshell/pkg/value"
)

// FrameKind tags what a stack entry represents.
type FrameKind uint8

const (
	// FrameValue holds exactly one Value - the ordinary case for
	// expression intermediates and arguments.
	FrameValue FrameKind = iota
	// FrameBlock is a bare lexical scope with no control-flow meaning
	// of its own (e.g. a catch clause's bound-name scope).
	FrameBlock
	// FrameLoop additionally carries ingress/egress targets for
	// break/continue.
	FrameLoop
	// FrameTry carries the egress of its catch header.
	FrameTry
	// FrameFunction is a call activation record, pushed by OpCall and
	// popped by OpReturn. IsHostEntry marks the activation VM.enter
	// installs for a top-level script or a native call back
	// into script code; OpReturn stops unwinding there instead of
	// jumping to an egress, matching a native-host entry frame whose
	// egress is conceptually zero.
	FrameFunction
)

// Frame is one entry of the unified value/control stack. Only the
// fields relevant to Kind are meaningful; see each FrameKind's comment.
type Frame struct {
	Kind FrameKind

	// FrameValue
	Value value.Value

	// FrameBlock, FrameLoop, FrameTry, FrameFunction: the frame's own
	// lexical bindings, searched during variable resolution before
	// falling through to an enclosing frame or globals.
	Locals *hashmap.Map

	// FrameLoop
	LoopIngress uint32
	LoopEgress  uint32
	// LoopContinueKeep is how many value frames immediately above this
	// one `continue` must preserve before jumping to LoopIngress - zero
	// for while/do-while/classic-for, where nothing needs to survive a
	// re-check of the condition; two for for-in/for-of, whose container
	// and cursor live just above the loop frame and must still be there
	// when the shared for_in_next/for_of_next instruction runs again.
	LoopContinueKeep int

	// FrameTry
	TryEgress uint32

	// FrameFunction
	FuncEgress  uint32
	Callee      value.Value
	Argv        []value.Value
	ArgvCursor  int
	Closure     *hashmap.Map
	IsHostEntry bool
}

func newScopeFrame(kind FrameKind) Frame {
	return Frame{Kind: kind, Locals: hashmap.New()}
}

// push appends a frame to the stack.
func (vm *VM) push(f Frame) { vm.stack = append(vm.stack, f) }

// pushValue pushes v as a value frame.
func (vm *VM) pushValue(v value.Value) { vm.push(Frame{Kind: FrameValue, Value: v}) }

// popValue pops the top frame, which must be a value frame.
func (vm *VM) popValue() (value.Value, error) {
	if len(vm.stack) == 0 {
		return value.Undefined, errStackUnderflow
	}
	top := vm.stack[len(vm.stack)-1]
	if top.Kind != FrameValue {
		return value.Undefined, errNotAValueFrame
	}
	vm.stack = vm.stack[:len(vm.stack)-1]
	return top.Value, nil
}

// peekValue returns the value frame at depth (0 = top) without
// removing it.
func (vm *VM) peekValue(depth int) (*Frame, error) {
	idx := len(vm.stack) - 1 - depth
	if idx < 0 || idx >= len(vm.stack) {
		return nil, errStackUnderflow
	}
	f := &vm.stack[idx]
	if f.Kind != FrameValue {
		return nil, errNotAValueFrame
	}
	return f, nil
}

// popFrames discards the top n frames of any kind.
func (vm *VM) popFrames(n int) error {
	if n > len(vm.stack) {
		return errStackUnderflow
	}
	vm.stack = vm.stack[:len(vm.stack)-n]
	return nil
}

func (vm *VM) dupe(depth int) error {
	f, err := vm.peekValue(depth)
	if err != nil {
		return err
	}
	vm.pushValue(f.Value)
	return nil
}

func (vm *VM) swap(a, b int) error {
	ia := len(vm.stack) - 1 - a
	ib := len(vm.stack) - 1 - b
	if ia < 0 || ia >= len(vm.stack) || ib < 0 || ib >= len(vm.stack) {
		return errStackUnderflow
	}
	vm.stack[ia], vm.stack[ib] = vm.stack[ib], vm.stack[ia]
	return nil
}

// currentScope returns the Locals map that variable_declare targets:
// the nearest non-value frame, or globals if the stack holds none.
func (vm *VM) currentScope() *hashmap.Map {
	for i := len(vm.stack) - 1; i >= 0; i-- {
		if vm.stack[i].Kind != FrameValue {
			return vm.stack[i].Locals
		}
	}
	return vm.globals
}

// resolveScope finds the map owning name: it scans locals of every
// crossed block/loop/try frame, then the locals and closure of the
// first function frame reached (in that order), and stops there -
// capture-by-value means nothing beyond that frame is ever visible
// directly. A miss falls back to globals by the caller.
func (vm *VM) resolveScope(name string) *hashmap.Map {
	for i := len(vm.stack) - 1; i >= 0; i-- {
		f := &vm.stack[i]
		switch f.Kind {
		case FrameValue:
			continue
		case FrameFunction:
			if f.Locals != nil {
				if _, ok := f.Locals.Get(name); ok {
					return f.Locals
				}
			}
			if f.Closure != nil {
				if _, ok := f.Closure.Get(name); ok {
					return f.Closure
				}
			}
			return nil
		default:
			if f.Locals != nil {
				if _, ok := f.Locals.Get(name); ok {
					return f.Locals
				}
			}
		}
	}
	return nil
}

// captureClosure builds the closure map a function literal captures at
// construction time: every binding visible from here down to (and
// including) the first function frame, innermost shadowing outermost.
// A name not yet declared when the literal executes is simply absent,
// which is how immediate self-reference is excluded (§4.4).
func (vm *VM) captureClosure() *hashmap.Map {
	captured := hashmap.New()
	merge := func(m *hashmap.Map) {
		if m == nil {
			return
		}
		m.Each(func(k string, v hashmap.Value) {
			if _, exists := captured.Get(k); !exists {
				captured.Put(k, v)
			}
		})
	}
	for i := len(vm.stack) - 1; i >= 0; i-- {
		f := &vm.stack[i]
		switch f.Kind {
		case FrameValue:
			continue
		case FrameFunction:
			merge(f.Locals)
			merge(f.Closure)
			return captured
		default:
			merge(f.Locals)
		}
	}
	return captured
}

// nearestLoop returns the index of the topmost FrameLoop, or -1.
func (vm *VM) nearestLoop() int {
	for i := len(vm.stack) - 1; i >= 0; i-- {
		if vm.stack[i].Kind == FrameLoop {
			return i
		}
	}
	return -1
}

// roots collects every Value the garbage collector must treat as live:
// globals, every frame's locals/closure, in-flight call arguments and
// callees, and resident value frames (§4.8).
func (vm *VM) roots() []value.Value {
	var rs []value.Value
	collectMap := func(m *hashmap.Map) {
		if m == nil {
			return
		}
		m.Each(func(_ string, v hashmap.Value) {
			if vv, ok := v.(value.Value); ok {
				rs = append(rs, vv)
			}
		})
	}
	collectMap(vm.globals)
	for i := range vm.stack {
		f := &vm.stack[i]
		switch f.Kind {
		case FrameValue:
			rs = append(rs, f.Value)
		case FrameFunction:
			collectMap(f.Locals)
			collectMap(f.Closure)
			rs = append(rs, f.Argv...)
			rs = append(rs, f.Callee)
		default:
			collectMap(f.Locals)
		}
	}
	for _, argv := range vm.nativeCalls {
		rs = append(rs, argv...)
	}
	return rs
}
