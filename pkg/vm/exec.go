package vm

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/kristofer/nutshell/pkg/bytecode"
	"github.com/kristofer/nutshell/pkg/hashmap"
	"github.com/kristofer/nutshell/pkg/value"
)

// unwind pops frames looking for the nearest try frame. If one is
// found, its egress becomes the resume point and thrown is pushed as
// the catch header's sentinel (handled=true). Otherwise it pops up to
// and including the first host-entry function frame and bubbles
// thrown back to the host (handled=false).
func (vm *VM) unwind(thrown value.Value) (handled bool, bubbled *value.Value, newIP uint32) {
	for len(vm.stack) > 0 {
		top := vm.stack[len(vm.stack)-1]
		vm.stack = vm.stack[:len(vm.stack)-1]
		switch top.Kind {
		case FrameTry:
			vm.pushValue(thrown)
			return true, nil, top.TryEgress
		case FrameFunction:
			if top.IsHostEntry {
				t := thrown
				return false, &t, 0
			}
		}
	}
	t := thrown
	return false, &t, 0
}

func (vm *VM) raise(msg string) (ip uint32, handled bool, bubbled *value.Value) {
	handled, bubbled, ip = vm.unwind(value.Scripture(msg))
	return ip, handled, bubbled
}

// run is the instruction dispatch loop. It executes starting at ip
// until either a host-entry function frame is popped by OpReturn
// (result returned normally) or an uncaught throw reaches one
// (bubbled returned instead), or a malformed instruction stream
// produces a genuine Go error.
func (vm *VM) run(ip uint32) (value.Value, *value.Value, error) {
	for {
		instr, derr := bytecode.Decode(vm.buf, ip)
		if derr != nil {
			return value.Undefined, nil, vm.newRuntimeError("bytecode decode failed", derr)
		}

		if e := log.Debug(); e.Enabled() {
			e.Uint32("ip", ip).Str("op", instr.Op.String()).
				Int("line", bytecode.LineForOffset(vm.xref, ip)).
				Msg("vm.opcode")
		}

		next := ip + instr.Len

		switch instr.Op {
		case bytecode.OpNop:

		case bytecode.OpStackPushValue:
			v, err := vm.valueFromOperand(instr.Operands[0])
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("bad push operand", err)
			}
			vm.pushValue(v)

		case bytecode.OpMakeClosure:
			closure := vm.captureClosure()
			m := vm.heap.NewFunction(instr.Operands[0].U32)
			m.Closure = closure
			vm.pushValue(value.Function(m))

		case bytecode.OpStackPushBlock:
			vm.push(newScopeFrame(FrameBlock))

		case bytecode.OpStackPushLoop:
			f := newScopeFrame(FrameLoop)
			f.LoopIngress = instr.Operands[0].U32
			f.LoopEgress = instr.Operands[1].U32
			f.LoopContinueKeep = int(instr.Operands[2].U32)
			vm.push(f)

		case bytecode.OpStackPushTry:
			f := newScopeFrame(FrameTry)
			f.TryEgress = instr.Operands[0].U32
			vm.push(f)

		case bytecode.OpStackPop:
			if err := vm.popFrames(int(instr.Operands[0].U32)); err != nil {
				return value.Undefined, nil, vm.newRuntimeError("stack_pop underflow", err)
			}

		case bytecode.OpStackDupe:
			if err := vm.dupe(int(instr.Operands[0].U32)); err != nil {
				return value.Undefined, nil, vm.newRuntimeError("stack_dupe underflow", err)
			}

		case bytecode.OpStackSwap:
			if err := vm.swap(int(instr.Operands[0].U32), int(instr.Operands[1].U32)); err != nil {
				return value.Undefined, nil, vm.newRuntimeError("stack_swap underflow", err)
			}

		case bytecode.OpVariableDeclare:
			v, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("variable_declare", err)
			}
			name, _ := instr.Operands[0].Text.Text()
			scope := vm.currentScope()
			if _, exists := scope.Get(name); exists {
				newIP, handled, bubbled := vm.raise("Variable \"" + name + "\" already declared")
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			scope.Put(name, v)

		case bytecode.OpVariableDelete:
			name, _ := instr.Operands[0].Text.Text()
			scope := vm.resolveScope(name)
			if scope == nil {
				if _, ok := vm.globals.Get(name); !ok {
					newIP, handled, bubbled := vm.raise("Variable \"" + name + "\" not found")
					if !handled {
						return value.Undefined, bubbled, nil
					}
					ip = newIP
					continue
				}
				scope = vm.globals
			}
			scope.Delete(name)

		case bytecode.OpVariablePut:
			v, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("variable_put", err)
			}
			name, _ := instr.Operands[0].Text.Text()
			scope := vm.resolveScope(name)
			if scope == nil {
				if _, ok := vm.globals.Get(name); !ok {
					newIP, handled, bubbled := vm.raise("Variable \"" + name + "\" not found")
					if !handled {
						return value.Undefined, bubbled, nil
					}
					ip = newIP
					continue
				}
				scope = vm.globals
			}
			scope.Put(name, v)

		case bytecode.OpVariableGet:
			name, _ := instr.Operands[0].Text.Text()
			scope := vm.resolveScope(name)
			if scope == nil {
				scope = vm.globals
			}
			v, ok := scope.Get(name)
			if !ok {
				newIP, handled, bubbled := vm.raise("Variable \"" + name + "\" not found")
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			vm.pushValue(v.(value.Value))

		case bytecode.OpMemberPut:
			v, err1 := vm.popValue()
			key, err2 := vm.popValue()
			container, err3 := vm.popValue()
			if err1 != nil || err2 != nil || err3 != nil {
				return value.Undefined, nil, vm.newRuntimeError("member_put", errStackUnderflow)
			}
			newIP, handled, bubbled, ok := vm.memberPut(container, key, v)
			if !ok {
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}

		case bytecode.OpMemberGet:
			key, err1 := vm.popValue()
			container, err2 := vm.popValue()
			if err1 != nil || err2 != nil {
				return value.Undefined, nil, vm.newRuntimeError("member_get", errStackUnderflow)
			}
			result, newIP, handled, bubbled, ok := vm.memberGet(container, key, false)
			if !ok {
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			vm.pushValue(result)

		case bytecode.OpObjectOptional:
			key, err1 := vm.popValue()
			container, err2 := vm.popValue()
			if err1 != nil || err2 != nil {
				return value.Undefined, nil, vm.newRuntimeError("object_optional", errStackUnderflow)
			}
			result, newIP, handled, bubbled, ok := vm.memberGet(container, key, true)
			if !ok {
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			vm.pushValue(result)

		case bytecode.OpArrayAppend:
			v, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("array_append", err)
			}
			arrFrame, err := vm.peekValue(0)
			if err != nil || arrFrame.Value.Kind() != value.KindArray {
				return value.Undefined, nil, vm.newRuntimeError("array_append: not an array", errNotAValueFrame)
			}
			m := arrFrame.Value.Managed()
			m.Elems = append(m.Elems, v)

		case bytecode.OpArraySpread:
			v, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("array_spread", err)
			}
			arrFrame, err := vm.peekValue(0)
			if err != nil || arrFrame.Value.Kind() != value.KindArray {
				return value.Undefined, nil, vm.newRuntimeError("array_spread: not an array", errNotAValueFrame)
			}
			if v.Kind() != value.KindArray {
				newIP, handled, bubbled := vm.raise("Must be array[number] or object[string]")
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			m := arrFrame.Value.Managed()
			m.Elems = append(m.Elems, v.Managed().Elems...)

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpPow,
			bytecode.OpDiv, bytecode.OpMod:
			b, err1 := vm.popValue()
			a, err2 := vm.popValue()
			if err1 != nil || err2 != nil {
				return value.Undefined, nil, vm.newRuntimeError("arithmetic", errStackUnderflow)
			}
			result, newIP, handled, bubbled, ok := vm.arithmetic(instr.Op, a, b)
			if !ok {
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			vm.pushValue(result)

		case bytecode.OpEq, bytecode.OpNe:
			b, err1 := vm.popValue()
			a, err2 := vm.popValue()
			if err1 != nil || err2 != nil {
				return value.Undefined, nil, vm.newRuntimeError("equality", errStackUnderflow)
			}
			eq, err := value.Equal(a, b)
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("equality", err)
			}
			if instr.Op == bytecode.OpNe {
				eq = !eq
			}
			vm.pushValue(value.Bool(eq))

		case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			b, err1 := vm.popValue()
			a, err2 := vm.popValue()
			if err1 != nil || err2 != nil {
				return value.Undefined, nil, vm.newRuntimeError("relational", errStackUnderflow)
			}
			result, newIP, handled, bubbled, ok := vm.relational(instr.Op, a, b)
			if !ok {
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			vm.pushValue(result)

		case bytecode.OpAnd, bytecode.OpOr:
			b, err1 := vm.popValue()
			a, err2 := vm.popValue()
			if err1 != nil || err2 != nil {
				return value.Undefined, nil, vm.newRuntimeError("logical", errStackUnderflow)
			}
			if a.Kind() != value.KindBoolean || b.Kind() != value.KindBoolean {
				newIP, handled, bubbled := vm.raise("Logical operand must be boolean")
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			if instr.Op == bytecode.OpAnd {
				vm.pushValue(value.Bool(a.Bool() && b.Bool()))
			} else {
				vm.pushValue(value.Bool(a.Bool() || b.Bool()))
			}

		case bytecode.OpNot:
			a, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("not", err)
			}
			if a.Kind() != value.KindBoolean {
				newIP, handled, bubbled := vm.raise("Logical operand must be boolean")
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			vm.pushValue(value.Bool(!a.Bool()))

		case bytecode.OpTypeof:
			a, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("typeof", err)
			}
			vm.pushValue(value.Scripture(a.TypeOf()))

		case bytecode.OpJump:
			ip = instr.Operands[0].U32
			continue

		case bytecode.OpJumpIfTrue, bytecode.OpJumpIfFalse:
			cond, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("jump_if", err)
			}
			if cond.Kind() != value.KindBoolean {
				newIP, handled, bubbled := vm.raise("Logical operand must be boolean")
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			want := instr.Op == bytecode.OpJumpIfTrue
			if cond.Bool() == want {
				ip = instr.Operands[0].U32
				continue
			}

		case bytecode.OpBreak, bytecode.OpContinue:
			idx := vm.nearestLoop()
			if idx < 0 {
				return value.Undefined, nil, vm.newRuntimeError("break/continue outside loop", errStackUnderflow)
			}
			loop := vm.stack[idx]
			if instr.Op == bytecode.OpBreak {
				vm.stack = vm.stack[:idx]
				ip = loop.LoopEgress
			} else {
				vm.stack = vm.stack[:idx+1+loop.LoopContinueKeep]
				ip = loop.LoopIngress
			}
			continue

		case bytecode.OpArgumentFirst:
			m := vm.heap.NewArray(nil)
			vm.pushValue(value.Array(m))

		case bytecode.OpArgumentAppend:
			v, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("argument_append", err)
			}
			argvFrame, err := vm.peekValue(0)
			if err != nil || argvFrame.Value.Kind() != value.KindArray {
				return value.Undefined, nil, vm.newRuntimeError("argument_append: no argv", errNotAValueFrame)
			}
			m := argvFrame.Value.Managed()
			m.Elems = append(m.Elems, v)

		case bytecode.OpArgumentSpread:
			v, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("argument_spread", err)
			}
			argvFrame, err := vm.peekValue(0)
			if err != nil || argvFrame.Value.Kind() != value.KindArray {
				return value.Undefined, nil, vm.newRuntimeError("argument_spread: no argv", errNotAValueFrame)
			}
			if v.Kind() != value.KindArray {
				newIP, handled, bubbled := vm.raise("Must be array[number] or object[string]")
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}
			m := argvFrame.Value.Managed()
			m.Elems = append(m.Elems, v.Managed().Elems...)

		case bytecode.OpArgumentGetNext:
			name, _ := instr.Operands[0].Text.Text()
			fn := vm.nearestFunctionFrame()
			var v value.Value = value.Undefined
			if fn != nil && fn.ArgvCursor < len(fn.Argv) {
				v = fn.Argv[fn.ArgvCursor]
				fn.ArgvCursor++
			}
			vm.currentScope().Put(name, v)

		case bytecode.OpArgumentGetRest:
			name, _ := instr.Operands[0].Text.Text()
			fn := vm.nearestFunctionFrame()
			var rest []value.Value
			if fn != nil && fn.ArgvCursor < len(fn.Argv) {
				rest = append(rest, fn.Argv[fn.ArgvCursor:]...)
				fn.ArgvCursor = len(fn.Argv)
			}
			m := vm.heap.NewArray(rest)
			vm.currentScope().Put(name, value.Array(m))

		case bytecode.OpCall:
			callee, err1 := vm.popValue()
			argv, err2 := vm.popValue()
			if err1 != nil || err2 != nil || argv.Kind() != value.KindArray {
				return value.Undefined, nil, vm.newRuntimeError("call", errStackUnderflow)
			}
			switch callee.Kind() {
			case value.KindCFunction:
				cfn, _ := callee.CFunc()
				args := argv.Managed().Elems
				vm.nativeCalls = append(vm.nativeCalls, args)
				result, cerr := cfn(vm, args)
				vm.nativeCalls = vm.nativeCalls[:len(vm.nativeCalls)-1]
				if cerr != nil {
					newIP, handled, bubbled := vm.raise(cerr.Error())
					if !handled {
						return value.Undefined, bubbled, nil
					}
					ip = newIP
					continue
				}
				vm.pushValue(result)
			case value.KindFunction:
				if vm.MaxStackFrames > 0 && len(vm.stack) >= vm.MaxStackFrames {
					newIP, handled, bubbled := vm.raise("stack overflow")
					if !handled {
						return value.Undefined, bubbled, nil
					}
					ip = newIP
					continue
				}
				m := callee.Managed()
				vm.push(Frame{
					Kind:       FrameFunction,
					FuncEgress: next,
					Callee:     callee,
					Argv:       argv.Managed().Elems,
					Locals:     hashmap.New(),
					Closure:    m.Closure,
				})
				ip = m.Entry
				continue
			default:
				newIP, handled, bubbled := vm.raise("value is not callable")
				if !handled {
					return value.Undefined, bubbled, nil
				}
				ip = newIP
				continue
			}

		case bytecode.OpReturn:
			retVal, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("return", err)
			}
			idx := -1
			for i := len(vm.stack) - 1; i >= 0; i-- {
				if vm.stack[i].Kind == FrameFunction {
					idx = i
					break
				}
			}
			if idx < 0 {
				return value.Undefined, nil, vm.newRuntimeError("return outside function", errStackUnderflow)
			}
			f := vm.stack[idx]
			vm.stack = vm.stack[:idx]
			if f.IsHostEntry {
				return retVal, nil, nil
			}
			vm.pushValue(retVal)
			ip = f.FuncEgress
			continue

		case bytecode.OpForInNext, bytecode.OpForOfNext:
			cursor, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("iteration", err)
			}
			containerFrame, err := vm.peekValue(0)
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("iteration: no container", err)
			}
			yieldKey := instr.Op == bytecode.OpForInNext
			ok, nextCursor, yielded := vm.iterateNext(containerFrame.Value, int(cursor.Number()), yieldKey)
			if !ok {
				ip = instr.Operands[0].U32
				continue
			}
			vm.pushValue(value.Number(float64(nextCursor)))
			vm.pushValue(yielded)

		case bytecode.OpCatch:
			sentinel, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("catch", err)
			}
			if sentinel.Kind() == value.KindUndefined {
				ip = instr.Operands[1].U32
				continue
			}
			vm.push(newScopeFrame(FrameBlock))
			name, _ := instr.Operands[0].Text.Text()
			vm.currentScope().Put(name, sentinel)

		case bytecode.OpThrow:
			v, err := vm.popValue()
			if err != nil {
				return value.Undefined, nil, vm.newRuntimeError("throw", err)
			}
			handled, bubbled, newIP := vm.unwind(v)
			if !handled {
				return value.Undefined, bubbled, nil
			}
			ip = newIP
			continue

		default:
			return value.Undefined, nil, vm.newRuntimeError("unimplemented opcode", errNotAValueFrame)
		}

		vm.maybeAutoCollect()
		ip = next
	}
}

func (vm *VM) nearestFunctionFrame() *Frame {
	for i := len(vm.stack) - 1; i >= 0; i-- {
		if vm.stack[i].Kind == FrameFunction {
			return &vm.stack[i]
		}
	}
	return nil
}

func (vm *VM) valueFromOperand(o bytecode.Operand) (value.Value, error) {
	switch o.Tag {
	case bytecode.TagUndefined:
		return value.Undefined, nil
	case bytecode.TagNull:
		return value.Null, nil
	case bytecode.TagEmptyArray:
		return value.Array(vm.heap.NewArray(nil)), nil
	case bytecode.TagEmptyObject:
		return value.Object(vm.heap.NewObject()), nil
	case bytecode.TagBoolean:
		return value.Bool(o.Bool), nil
	case bytecode.TagUint8, bytecode.TagUint16, bytecode.TagUint32:
		return value.Number(float64(o.U32)), nil
	case bytecode.TagDouble:
		return value.Number(o.F64), nil
	case bytecode.TagInscription:
		return o.Text, nil
	default:
		return value.Undefined, errNotAValueFrame
	}
}

// memberGet returns (value, newIP, handled, bubbled, ok). ok is false
// whenever execution must resume elsewhere (either a raised exception
// was handled, in which case newIP is where to resume, or it bubbled
// to the host).
func (vm *VM) memberGet(container, key value.Value, optional bool) (value.Value, uint32, bool, *value.Value, bool) {
	if container.Kind() == value.KindNull || container.Kind() == value.KindUndefined {
		if optional {
			return value.Null, 0, false, nil, true
		}
		newIP, handled, bubbled := vm.raise("cannot read member of null or undefined")
		return value.Undefined, newIP, handled, bubbled, false
	}
	switch container.Kind() {
	case value.KindObject:
		k, err := key.Text()
		if err != nil {
			newIP, handled, bubbled := vm.raise("Must be array[number] or object[string]")
			return value.Undefined, newIP, handled, bubbled, false
		}
		v, ok := container.Managed().Members.Get(k)
		if !ok {
			return value.Null, 0, false, nil, true
		}
		if got := v.(value.Value); got.Kind() != value.KindUndefined {
			return got, 0, false, nil, true
		}
		return value.Null, 0, false, nil, true
	case value.KindArray:
		if key.Kind() != value.KindNumber || !value.NumberIsIntegral(key.Number()) || key.Number() < 0 {
			newIP, handled, bubbled := vm.raise("Invalid array index, must be positive integer")
			return value.Undefined, newIP, handled, bubbled, false
		}
		idx := int(key.Number())
		elems := container.Managed().Elems
		if idx >= len(elems) || elems[idx].Kind() == value.KindUndefined {
			return value.Null, 0, false, nil, true
		}
		return elems[idx], 0, false, nil, true
	default:
		newIP, handled, bubbled := vm.raise("Must be array[number] or object[string]")
		return value.Undefined, newIP, handled, bubbled, false
	}
}

func (vm *VM) memberPut(container, key, v value.Value) (uint32, bool, *value.Value, bool) {
	switch container.Kind() {
	case value.KindObject:
		k, err := key.Text()
		if err != nil {
			newIP, handled, bubbled := vm.raise("Must be array[number] or object[string]")
			return newIP, handled, bubbled, false
		}
		container.Managed().Members.Put(k, v)
		return 0, false, nil, true
	case value.KindArray:
		if key.Kind() != value.KindNumber || !value.NumberIsIntegral(key.Number()) || key.Number() < 0 {
			newIP, handled, bubbled := vm.raise("Invalid array index, must be positive integer")
			return newIP, handled, bubbled, false
		}
		idx := int(key.Number())
		m := container.Managed()
		for len(m.Elems) <= idx {
			m.Elems = append(m.Elems, value.Undefined)
		}
		m.Elems[idx] = v
		return 0, false, nil, true
	default:
		newIP, handled, bubbled := vm.raise("Must be array[number] or object[string]")
		return newIP, handled, bubbled, false
	}
}

func (vm *VM) arithmetic(op bytecode.Opcode, a, b value.Value) (value.Value, uint32, bool, *value.Value, bool) {
	if op == bytecode.OpAdd && a.IsString() && b.IsString() {
		as, _ := a.Text()
		bs, _ := b.Text()
		m := vm.heap.NewString(as + bs)
		return value.String(m), 0, false, nil, true
	}
	if a.Kind() != value.KindNumber || b.Kind() != value.KindNumber {
		newIP, handled, bubbled := vm.raise("Arithmatic operand must be number")
		return value.Undefined, newIP, handled, bubbled, false
	}
	x, y := a.Number(), b.Number()
	var r float64
	switch op {
	case bytecode.OpAdd:
		r = x + y
	case bytecode.OpSub:
		r = x - y
	case bytecode.OpMul:
		r = x * y
	case bytecode.OpPow:
		r = math.Pow(x, y)
	case bytecode.OpDiv:
		r = x / y
	case bytecode.OpMod:
		r = math.Mod(x, y)
	}
	return value.Number(r), 0, false, nil, true
}

func (vm *VM) relational(op bytecode.Opcode, a, b value.Value) (value.Value, uint32, bool, *value.Value, bool) {
	var less, equal bool
	switch {
	case a.Kind() == value.KindNumber && b.Kind() == value.KindNumber:
		less = a.Number() < b.Number()
		equal = a.Number() == b.Number()
	case a.IsString() && b.IsString():
		as, _ := a.Text()
		bs, _ := b.Text()
		less = as < bs
		equal = as == bs
	default:
		newIP, handled, bubbled := vm.raise("Relational operand must be number or string")
		return value.Undefined, newIP, handled, bubbled, false
	}
	var r bool
	switch op {
	case bytecode.OpLt:
		r = less
	case bytecode.OpLe:
		r = less || equal
	case bytecode.OpGt:
		r = !less && !equal
	case bytecode.OpGe:
		r = !less || equal
	}
	return value.Bool(r), 0, false, nil, true
}

// iterateNext advances the shared for-in/for-of cursor protocol (§4.6):
// returns (found, nextCursor, yielded).
func (vm *VM) iterateNext(container value.Value, cursor int, yieldKey bool) (bool, int, value.Value) {
	switch container.Kind() {
	case value.KindArray:
		elems := container.Managed().Elems
		for i := cursor; i < len(elems); i++ {
			if elems[i].Kind() == value.KindUndefined || elems[i].Kind() == value.KindNull {
				continue
			}
			if yieldKey {
				return true, i + 1, value.Number(float64(i))
			}
			return true, i + 1, elems[i]
		}
		return false, cursor, value.Undefined
	case value.KindObject:
		m := container.Managed().Members
		for i := cursor; i < m.Capacity(); i++ {
			k, v, ok := m.At(i)
			if !ok {
				continue
			}
			if yieldKey {
				return true, i + 1, value.Scripture(k)
			}
			return true, i + 1, v.(value.Value)
		}
		return false, cursor, value.Undefined
	default:
		return false, cursor, value.Undefined
	}
}
