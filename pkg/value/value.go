// Package value defines the tagged Value union that flows through the
// compiler and VM, and the Managed heap-body shapes it can reference.
//
// Kind distinguishes value flavors that are otherwise easy to conflate
// in a dynamically typed engine: Scripture and Inscription both carry a
// Go string but neither is traced by the collector, while String wraps
// a *Managed that is. Keeping the three separate lets host-supplied and
// bytecode-borrowed text avoid a heap allocation and a GC trace entirely.
package value

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/kristofer/nutshell/pkg/hashmap"
)

// Kind tags the variant a Value currently holds.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindScripture
	KindInscription
	KindString
	KindArray
	KindObject
	KindFunction
	KindCFunction
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindScripture, KindInscription, KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindFunction, KindCFunction:
		return "function"
	default:
		return "?unknown?"
	}
}

// Buffer is the bytecode byte buffer an Inscription borrows from.
// Inscriptions hold a *Buffer (not a []byte slice header) so that
// Buffer.Code may be reallocated by append during compilation without
// invalidating already-emitted Inscription values: every read goes
// through the pointer to the current slice, never a cached address.
type Buffer struct {
	Code []byte
}

// CFunc is the signature every native (host) callable must implement.
// The error return is thrown into the script exactly as a scripted
// throw would be; it is not a Go-level panic.
type CFunc func(vm Caller, args []Value) (Value, error)

// Caller is the minimal surface pkg/vm.VM exposes back to native
// functions so that pkg/value does not need to import pkg/vm (which
// itself imports pkg/value). Native functions that need to call back
// into script code use Caller.Call.
type Caller interface {
	Call(fn Value, args []Value) (Value, error)
	Heap() Heap
}

// Heap is the minimal allocator surface pkg/value needs from pkg/heap,
// again to avoid an import cycle (pkg/heap constructs Values that
// reference Managed bodies it owns).
type Heap interface {
	NewString(s string) *Managed
	NewArray(elems []Value) *Managed
	NewObject() *Managed
	NewFunction(entry uint32) *Managed
}

// ManagedKind tags the body shape of a heap-allocated value.
type ManagedKind uint8

const (
	ManagedString ManagedKind = iota
	ManagedArray
	ManagedObject
	ManagedFunction
)

// Managed is a heap-allocated, mutable, collector-traced value body.
// Exactly one of the body fields is meaningful, selected by Kind.
type Managed struct {
	Kind  ManagedKind
	InUse bool // GC mark bit

	Str string // ManagedString

	Elems []Value // ManagedArray; holes are KindUndefined

	Members *hashmap.Map // ManagedObject

	Entry   uint32       // ManagedFunction: bytecode ingress offset
	Closure *hashmap.Map // ManagedFunction: captured bindings
}

// Value is the tagged union every expression evaluates to.
type Value struct {
	kind Kind

	b bool
	n float64

	// Scripture: s is the host-lifetime string itself.
	// Inscription: s is unused; buf/off/len locate the text instead.
	s string

	buf *Buffer
	off uint32
	len uint32

	managed *Managed
	cfn     CFunc
	cfnName string
}

// Undefined is the sentinel for an empty slot. Scripts never observe it
// directly; reads of an undefined array slot yield Null (see Array).
var Undefined = Value{kind: KindUndefined}

// Null is the scripted null value.
var Null = Value{kind: KindNull}

// True and False are the two boolean values.
var True = Value{kind: KindBoolean, b: true}
var False = Value{kind: KindBoolean, b: false}

// Bool returns True or False for b.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number wraps an IEEE-754 double.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Scripture wraps a host-lifetime borrowed string, e.g. an engine
// diagnostic message or a literal baked in by the host.
func Scripture(s string) Value { return Value{kind: KindScripture, s: s} }

// Inscription wraps a borrowed slice of a bytecode Buffer. offset/len
// index into buf.Code at read time, never a cached byte address, so
// that Buffer growth during compilation cannot dangle the reference.
func Inscription(buf *Buffer, offset, length uint32) Value {
	return Value{kind: KindInscription, buf: buf, off: offset, len: length}
}

// String wraps a heap-allocated, mutable managed string body.
func String(m *Managed) Value { return Value{kind: KindString, managed: m} }

// Array wraps a heap-allocated managed array body.
func Array(m *Managed) Value { return Value{kind: KindArray, managed: m} }

// Object wraps a heap-allocated managed object body.
func Object(m *Managed) Value { return Value{kind: KindObject, managed: m} }

// Function wraps a heap-allocated managed script-function body.
func Function(m *Managed) Value { return Value{kind: KindFunction, managed: m} }

// NativeFunction wraps a host callable. name is used only for
// diagnostics (typeof/stack traces), never for dispatch.
func NativeFunction(name string, fn CFunc) Value {
	return Value{kind: KindCFunction, cfn: fn, cfnName: name}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean payload; meaningful only when Kind ==
// KindBoolean.
func (v Value) Bool() bool { return v.b }

// Number returns the float64 payload; meaningful only when Kind ==
// KindNumber.
func (v Value) Number() float64 { return v.n }

// Managed returns the heap body pointer for String/Array/Object/
// Function values, or nil otherwise.
func (v Value) Managed() *Managed { return v.managed }

// CFunc returns the native function payload and its diagnostic name.
func (v Value) CFunc() (CFunc, string) { return v.cfn, v.cfnName }

// Text materializes the Go string a Scripture, Inscription, or String
// value denotes. Re-reads the bytecode buffer on every call for
// Inscriptions so a buffer reallocation between calls is never
// observed as corruption.
func (v Value) Text() (string, error) {
	switch v.kind {
	case KindScripture:
		return v.s, nil
	case KindInscription:
		if v.buf == nil || v.off+v.len > uint32(len(v.buf.Code)) {
			return "", errors.New("inscription out of bounds")
		}
		return string(v.buf.Code[v.off : v.off+v.len]), nil
	case KindString:
		return v.managed.Str, nil
	default:
		return "", errors.Errorf("value of kind %s is not a string", v.kind)
	}
}

// IsString reports whether Kind is one of the three string-shaped
// kinds (Scripture, Inscription, String).
func (v Value) IsString() bool {
	return v.kind == KindScripture || v.kind == KindInscription || v.kind == KindString
}

// TypeOf implements the `typeof` operator's fixed result table (§4.7).
func (v Value) TypeOf() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindScripture, KindInscription, KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindFunction, KindCFunction:
		return "function"
	default:
		return "undefined"
	}
}

// Equal implements the §4.7 equality tie-breaks: numeric comparison by
// IEEE rules (so NaN != NaN, +0 == -0), byte-identical string
// comparison across Scripture/Inscription/String without regard to
// which of the three each side is, and strict identity for everything
// else (same managed pointer, same boolean, or both Null/Undefined).
func Equal(a, b Value) (bool, error) {
	if a.kind == KindNumber && b.kind == KindNumber {
		return a.n == b.n, nil
	}
	if a.IsString() && b.IsString() {
		as, err := a.Text()
		if err != nil {
			return false, err
		}
		bs, err := b.Text()
		if err != nil {
			return false, err
		}
		return as == bs, nil
	}
	if a.kind != b.kind {
		return false, nil
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true, nil
	case KindBoolean:
		return a.b == b.b, nil
	case KindArray, KindObject, KindFunction, KindString:
		return a.managed == b.managed, nil
	case KindCFunction:
		return fmt.Sprintf("%p", a.cfn) == fmt.Sprintf("%p", b.cfn), nil
	default:
		return false, nil
	}
}

// NumberIsIntegral reports whether n is finite and has no fractional
// part, used by array-index coercion. It does not check any range.
func NumberIsIntegral(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0) && math.Trunc(n) == n
}
