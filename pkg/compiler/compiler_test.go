package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/nutshell/pkg/compiler"
	"github.com/kristofer/nutshell/pkg/value"
	"github.com/kristofer/nutshell/pkg/vm"
)

// run compiles src and executes it against a fresh VM, failing the test
// on either a compile error or an uncaught runtime error.
func run(t *testing.T, src string) value.Value {
	t.Helper()
	asm, err := compiler.Compile(src)
	require.NoError(t, err)
	m := vm.New()
	result, err := m.Run(asm.Buffer(), asm.Xref, 0)
	require.NoError(t, err)
	return result
}

func TestArithmeticPrecedence(t *testing.T) {
	result := run(t, "return 2 + 3 * 4 - 1;")
	require.Equal(t, 13.0, result.Number())
}

func TestExponentIsRightAssociative(t *testing.T) {
	result := run(t, "return 2 ** 3 ** 2;") // 2 ** (3 ** 2) = 2 ** 9
	require.Equal(t, 512.0, result.Number())
}

func TestUnaryMinusAndPlus(t *testing.T) {
	result := run(t, "let x = 5; return -x + +3;")
	require.Equal(t, -2.0, result.Number())
}

func TestStringConcatenation(t *testing.T) {
	result := run(t, `return "foo" + "bar";`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "foobar", text)
}

func TestLetAndCompoundAssignment(t *testing.T) {
	result := run(t, "let x = 10; x += 5; x *= 2; return x;")
	require.Equal(t, 30.0, result.Number())
}

func TestAssignmentExpressionYieldsStoredValue(t *testing.T) {
	result := run(t, "let x = 0; let y = x = 7; return y;")
	require.Equal(t, 7.0, result.Number())
}

func TestIfElse(t *testing.T) {
	result := run(t, `
		let x = 3;
		if (x > 5) {
			return "big";
		} else {
			return "small";
		}
	`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "small", text)
}

func TestTernary(t *testing.T) {
	result := run(t, `return 1 < 2 ? "yes" : "no";`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "yes", text)
}

// Closures capture by value at construction time, so a side effect
// inside the rhs can't be observed by mutating an outer variable -
// instead these tests make the rhs throw, which unwinds visibly
// unless short-circuiting genuinely skips evaluating it.
func TestLogicalOrShortCircuits(t *testing.T) {
	result := run(t, `
		let trapped = "not called";
		function trap() {
			throw "called";
		}
		try {
			let x = true || trap();
		} catch (e) {
			trapped = "called";
		}
		return trapped;
	`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "not called", text)
}

func TestLogicalAndShortCircuits(t *testing.T) {
	result := run(t, `
		let trapped = "not called";
		function trap() {
			throw "called";
		}
		try {
			let x = false && trap();
		} catch (e) {
			trapped = "called";
		}
		return trapped;
	`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "not called", text)
}

func TestWhileLoopWithBreakAndContinue(t *testing.T) {
	result := run(t, `
		let i = 0;
		let sum = 0;
		while (i < 10) {
			i = i + 1;
			if (i == 5) {
				continue;
			}
			if (i > 8) {
				break;
			}
			sum = sum + i;
		}
		return sum;
	`)
	// 1+2+3+4 + 6+7+8 = 31
	require.Equal(t, 31.0, result.Number())
}

func TestDoWhileRunsBodyAtLeastOnce(t *testing.T) {
	result := run(t, `
		let i = 0;
		let count = 0;
		do {
			count = count + 1;
			i = i + 1;
		} while (i < 0);
		return count;
	`)
	require.Equal(t, 1.0, result.Number())
}

func TestClassicForLoop(t *testing.T) {
	result := run(t, `
		let sum = 0;
		for (let i = 0; i < 5; i = i + 1) {
			sum = sum + i;
		}
		return sum;
	`)
	require.Equal(t, 10.0, result.Number())
}

func TestClassicForLoopWithBreak(t *testing.T) {
	result := run(t, `
		let sum = 0;
		for (let i = 0; i < 100; i = i + 1) {
			if (i == 4) {
				break;
			}
			sum = sum + i;
		}
		return sum;
	`)
	require.Equal(t, 6.0, result.Number()) // 0+1+2+3
}

func TestForOfArray(t *testing.T) {
	result := run(t, `
		let sum = 0;
		for (let v of [1, 2, 3, 4]) {
			sum = sum + v;
		}
		return sum;
	`)
	require.Equal(t, 10.0, result.Number())
}

func TestForOfWithContinueAndBreak(t *testing.T) {
	result := run(t, `
		let sum = 0;
		for (let v of [1, 2, 3, 4, 5, 6]) {
			if (v == 2) {
				continue;
			}
			if (v == 5) {
				break;
			}
			sum = sum + v;
		}
		return sum;
	`)
	// skips 2, stops before 5: 1+3+4 = 8
	require.Equal(t, 8.0, result.Number())
}

func TestForInObjectYieldsKeys(t *testing.T) {
	result := run(t, `
		let obj = { a: 1, b: 2 };
		let found = "";
		for (let k in obj) {
			found = found + k;
		}
		return found;
	`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Len(t, text, 2)
}

func TestFunctionDeclarationAndCall(t *testing.T) {
	result := run(t, `
		function add(a, b) {
			return a + b;
		}
		return add(3, 4);
	`)
	require.Equal(t, 7.0, result.Number())
}

func TestFunctionLiteralAsExpression(t *testing.T) {
	result := run(t, `
		let square = function(n) { return n * n; };
		return square(6);
	`)
	require.Equal(t, 36.0, result.Number())
}

func TestClosureCapturesOuterVariableAtConstruction(t *testing.T) {
	result := run(t, `
		let base = 100;
		function addBase(n) {
			return n + base;
		}
		base = 999;
		return addBase(5);
	`)
	// capture-by-value at construction time: later mutation of base
	// is not observed.
	require.Equal(t, 105.0, result.Number())
}

func TestRestParameterCollectsTrailingArgs(t *testing.T) {
	result := run(t, `
		function total(first, ...rest) {
			let sum = first;
			for (let v of rest) {
				sum = sum + v;
			}
			return sum;
		}
		return total(1, 2, 3, 4);
	`)
	require.Equal(t, 10.0, result.Number())
}

func TestSpreadCallArgument(t *testing.T) {
	result := run(t, `
		function add3(a, b, c) {
			return a + b + c;
		}
		let args = [1, 2, 3];
		return add3(...args);
	`)
	require.Equal(t, 6.0, result.Number())
}

func TestArrayLiteralAndIndexing(t *testing.T) {
	result := run(t, `
		let arr = [10, 20, 30];
		arr[1] = 99;
		return arr[1];
	`)
	require.Equal(t, 99.0, result.Number())
}

func TestObjectLiteralMemberAccessAndAssignment(t *testing.T) {
	result := run(t, `
		let obj = { x: 1, y: 2 };
		obj.x += 10;
		return obj.x;
	`)
	require.Equal(t, 11.0, result.Number())
}

func TestTryCatchRecoversThrownValue(t *testing.T) {
	result := run(t, `
		let caught = "";
		try {
			throw "boom";
		} catch (e) {
			caught = e;
		}
		return caught;
	`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "boom", text)
}

func TestTryFinallyRunsOnNormalCompletion(t *testing.T) {
	result := run(t, `
		let log = "";
		try {
			log = log + "try";
		} catch (e) {
			log = log + "catch";
		} finally {
			log = log + "finally";
		}
		return log;
	`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "tryfinally", text)
}

func TestTryFinallyRunsAfterCatch(t *testing.T) {
	result := run(t, `
		let log = "";
		try {
			throw "x";
		} catch (e) {
			log = log + "catch";
		} finally {
			log = log + "finally";
		}
		return log;
	`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "catchfinally", text)
}

func TestTypeofReturnsKindName(t *testing.T) {
	result := run(t, `return typeof 5;`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "number", text)
}

func TestDeleteRemovesVariable(t *testing.T) {
	result := run(t, `
		let x = 1;
		delete x;
		let caught = "no";
		try {
			x;
		} catch (e) {
			caught = "yes";
		}
		return caught;
	`)
	text, err := result.Text()
	require.NoError(t, err)
	require.Equal(t, "yes", text)
}

func TestNestedBlockScopingDoesNotLeak(t *testing.T) {
	result := run(t, `
		let x = 1;
		{
			let x = 2;
		}
		return x;
	`)
	require.Equal(t, 1.0, result.Number())
}
