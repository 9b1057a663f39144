package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/nutshell/pkg/bytecode"
	"github.com/kristofer/nutshell/pkg/value"
	"github.com/kristofer/nutshell/pkg/vm"
)

func TestArithmeticAndReturn(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushNumber(3)
	a.EmitPushNumber(4)
	a.EmitAdd()
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, value.KindNumber, result.Kind())
	require.Equal(t, 7.0, result.Number())
}

func TestStringConcatenationAllocatesManagedString(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushString("foo")
	a.EmitPushString("bar")
	a.EmitAdd()
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, value.KindString, result.Kind())
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "foobar", text)
}

func TestVariableDeclareGetPut(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushNumber(10)
	a.EmitVariableDeclare("x")
	a.EmitVariableGet("x")
	a.EmitPushNumber(5)
	a.EmitAdd()
	a.EmitVariablePut("x")
	a.EmitVariableGet("x")
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, 15.0, result.Number())
}

func TestUndeclaredVariableThrowsScriptError(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitVariableGet("missing")
	a.EmitReturn()

	m := vm.New()
	_, err := m.Run(a.Buffer(), a.Xref, 0)
	require.Error(t, err)
	var scriptErr *vm.ScriptError
	require.ErrorAs(t, err, &scriptErr)
}

// TestTryCatchBindsThrownValue mirrors scenario 3 from the end-to-end
// property set: try { throw "oops" } catch(e) { return e }.
func TestTryCatchBindsThrownValue(t *testing.T) {
	a := bytecode.NewAssembler()
	tryEgressPos := a.EmitPushTry()
	a.EmitPushString("oops")
	a.EmitThrow()
	// Unreached on the throwing path; present only for the symmetric
	// non-throwing path a real compiler would also emit here.
	a.EmitPop(1)
	a.EmitPushUndefined()
	tryEgress := a.Offset()
	a.PatchUint32(tryEgressPos, tryEgress)

	postCatchPos := a.EmitCatch("e")
	a.EmitVariableGet("e")
	a.EmitReturn()
	postCatch := a.Offset()
	a.PatchUint32(postCatchPos, postCatch)

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "oops", text)
}

// TestClosureCaptureByValue mirrors scenario 2: a counter closure built
// at top level over a captured i, called three times, observing 1, 2, 3.
func TestClosureCaptureByValue(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushNumber(0)
	a.EmitVariableDeclare("i")
	closurePatch := a.EmitMakeClosure()
	a.EmitReturn()

	innerStart := a.Offset()
	a.EmitVariableGet("i")
	a.EmitPushNumber(1)
	a.EmitAdd()
	a.EmitVariablePut("i")
	a.EmitVariableGet("i")
	a.EmitReturn()
	a.PatchUint32(closurePatch, innerStart)

	m := vm.New()
	closureVal, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, value.KindFunction, closureVal.Kind())

	r1, err := m.Call(closureVal, nil)
	require.NoError(t, err)
	require.Equal(t, 1.0, r1.Number())

	r2, err := m.Call(closureVal, nil)
	require.NoError(t, err)
	require.Equal(t, 2.0, r2.Number())

	r3, err := m.Call(closureVal, nil)
	require.NoError(t, err)
	require.Equal(t, 3.0, r3.Number())
}

// TestObjectIterationForOf mirrors scenario 4: summing an object's
// values with for..of.
func TestObjectIterationForOf(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushNumber(0)
	a.EmitVariableDeclare("s")

	a.EmitPushEmptyObject()
	a.EmitDupe(0)
	a.EmitPushString("a")
	a.EmitPushNumber(1)
	a.EmitMemberPut()
	a.EmitDupe(0)
	a.EmitPushString("b")
	a.EmitPushNumber(2)
	a.EmitMemberPut()
	a.EmitDupe(0)
	a.EmitPushString("c")
	a.EmitPushNumber(3)
	a.EmitMemberPut()

	a.EmitPushNumber(0) // cursor
	loopStart := a.Offset()
	egressPos := a.EmitForOfNext()
	a.EmitVariableGet("s")
	a.EmitAdd()
	a.EmitVariablePut("s")
	a.EmitJumpTo(loopStart)
	egress := a.Offset()
	a.PatchUint32(egressPos, egress)

	a.EmitPop(1) // drop the exhausted container
	a.EmitVariableGet("s")
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, 6.0, result.Number())
}

func TestCollectFreesUnreachableString(t *testing.T) {
	a := bytecode.NewAssembler()
	// Literals are untraced inscriptions; concatenation is what
	// allocates a managed string on the heap.
	a.EmitPushString("trans")
	a.EmitPushString("ient")
	a.EmitAdd()
	a.EmitPop(1)
	a.EmitPushUndefined()
	a.EmitReturn()

	m := vm.New()
	_, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	retained, freed := m.Collect()
	require.Equal(t, 0, retained)
	require.Equal(t, 1, freed)
}

func TestArrayIndexAssignmentExtendsArray(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushEmptyArray()
	a.EmitDupe(0)
	a.EmitPushNumber(2)
	a.EmitPushNumber(42)
	a.EmitMemberPut()
	a.EmitDupe(0)
	a.EmitPushNumber(2)
	a.EmitMemberGet()
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, 42.0, result.Number())
}

func TestArrayOutOfBoundsReadYieldsNull(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushEmptyArray()
	a.EmitPushNumber(5)
	a.EmitMemberGet()
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, value.KindNull, result.Kind())
}

func TestArrayHoleReadYieldsNull(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushEmptyArray()
	a.EmitDupe(0)
	a.EmitPushNumber(3)
	a.EmitPushNumber(1)
	a.EmitMemberPut() // extends to length 4, leaving indices 0-2 as holes
	a.EmitDupe(0)
	a.EmitPushNumber(0)
	a.EmitMemberGet()
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, value.KindNull, result.Kind())
}

func TestObjectMissingKeyReadYieldsNull(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushEmptyObject()
	a.EmitPushString("missing")
	a.EmitMemberGet()
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, value.KindNull, result.Kind())
}

func TestOptionalChainOnNullContainerYieldsNull(t *testing.T) {
	a := bytecode.NewAssembler()
	a.EmitPushNull()
	a.EmitPushString("x")
	a.EmitObjectOptional()
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.Equal(t, value.KindNull, result.Kind())
}

// TestStackOverflowRaisesCatchableError exercises MaxStackFrames: a cap
// of 1 means the host-entry frame alone already meets the limit, so
// even a single script-function call must raise instead of pushing a
// new activation.
func TestStackOverflowRaisesCatchableError(t *testing.T) {
	a := bytecode.NewAssembler()
	closurePatch := a.EmitMakeClosure()
	skipBody := a.EmitJump()
	bodyEntry := a.Offset()
	a.PatchUint32(closurePatch, bodyEntry)
	a.EmitPushNumber(1)
	a.EmitReturn()
	afterBody := a.Offset()
	a.PatchUint32(skipBody, afterBody)

	a.EmitVariableDeclare("f")
	a.EmitVariableGet("f")
	a.EmitArgumentFirst()
	a.EmitSwap(0, 1)
	a.EmitCall()
	a.EmitReturn()

	m := vm.New()
	m.MaxStackFrames = 1
	_, err := m.Run(a.Buffer(), a.Xref, 0)
	require.Error(t, err)
	var scriptErr *vm.ScriptError
	require.ErrorAs(t, err, &scriptErr)
	require.Contains(t, scriptErr.Text, "stack overflow")
}

func TestShortCircuitOrSkipsRHS(t *testing.T) {
	// true || rhs, in the compiler's dupe / jump_if_true / pop shape: the
	// jump skips the rhs, whose non-boolean value would otherwise be the
	// result.
	a := bytecode.NewAssembler()
	a.EmitPushBoolean(true)
	a.EmitDupe(0)
	skip := a.EmitJumpIfTrue()
	a.EmitPop(1)
	a.EmitPushNumber(1)
	a.PatchUint32(skip, a.Offset())
	a.EmitReturn()

	m := vm.New()
	result, err := m.Run(a.Buffer(), a.Xref, 0)
	require.NoError(t, err)
	require.True(t, result.Bool())
}
