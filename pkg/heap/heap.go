// Package heap owns every Managed value and implements the VM's
// mark-and-sweep collector (§4.8). Exactly one Heap backs a VM; nothing
// outside this package is allowed to construct a *value.Managed.
package heap

import (
	"github.com/kristofer/nutshell/pkg/hashmap"
	"github.com/kristofer/nutshell/pkg/value"
)

// Heap is a flat list of every live-or-not-yet-swept Managed body.
type Heap struct {
	objects []*value.Managed

	// Stats, surfaced to logging/CLI diagnostics only.
	allocCount int
	sweepCount int
}

// New returns an empty heap.
func New() *Heap {
	return &Heap{}
}

// Len reports how many Managed bodies the heap currently holds
// (including ones that would be dropped by the next Sweep).
func (h *Heap) Len() int { return len(h.objects) }

// Allocs returns the lifetime allocation count, for diagnostics.
func (h *Heap) Allocs() int { return h.allocCount }

// Sweeps returns how many collections have run, for diagnostics.
func (h *Heap) Sweeps() int { return h.sweepCount }

func (h *Heap) track(m *value.Managed) *value.Managed {
	h.objects = append(h.objects, m)
	h.allocCount++
	return m
}

// NewString allocates a managed, mutable string body.
func (h *Heap) NewString(s string) *value.Managed {
	return h.track(&value.Managed{Kind: value.ManagedString, Str: s})
}

// NewArray allocates a managed array body. elems is taken by reference,
// not copied; the spec treats KindUndefined elements as holes.
func (h *Heap) NewArray(elems []value.Value) *value.Managed {
	if elems == nil {
		elems = []value.Value{}
	}
	return h.track(&value.Managed{Kind: value.ManagedArray, Elems: elems})
}

// NewObject allocates a managed, empty string-keyed object body.
func (h *Heap) NewObject() *value.Managed {
	return h.track(&value.Managed{Kind: value.ManagedObject, Members: hashmap.New()})
}

// NewFunction allocates a managed script-function body with a fresh,
// empty closure map. entry is the bytecode ingress offset.
func (h *Heap) NewFunction(entry uint32) *value.Managed {
	return h.track(&value.Managed{
		Kind:    value.ManagedFunction,
		Entry:   entry,
		Closure: hashmap.New(),
	})
}

// Mark walks every root value, recursing through containers and
// closures, setting InUse on every Managed body it reaches. Primitive,
// Scripture, Inscription, and CFunction values are not traced - they
// carry no Managed pointer to follow.
func Mark(roots []value.Value) {
	visited := make(map[*value.Managed]bool)
	for _, r := range roots {
		markValue(r, visited)
	}
}

func markValue(v value.Value, visited map[*value.Managed]bool) {
	m := v.Managed()
	if m == nil {
		return
	}
	markManaged(m, visited)
}

func markManaged(m *value.Managed, visited map[*value.Managed]bool) {
	if m == nil || visited[m] {
		return
	}
	visited[m] = true
	m.InUse = true
	switch m.Kind {
	case value.ManagedArray:
		for _, e := range m.Elems {
			markValue(e, visited)
		}
	case value.ManagedObject:
		if m.Members != nil {
			m.Members.Each(func(_ string, v hashmap.Value) {
				if mv, ok := v.(value.Value); ok {
					markValue(mv, visited)
				}
			})
		}
	case value.ManagedFunction:
		if m.Closure != nil {
			m.Closure.Each(func(_ string, v hashmap.Value) {
				if mv, ok := v.(value.Value); ok {
					markValue(mv, visited)
				}
			})
		}
	}
}

// Sweep frees every Managed body not marked InUse and clears the mark
// bit on survivors, rebuilding the heap's object list in place. It
// returns (retained, freed) counts for diagnostics.
func (h *Heap) Sweep() (retained, freed int) {
	survivors := h.objects[:0]
	for _, m := range h.objects {
		if m.InUse {
			m.InUse = false
			survivors = append(survivors, m)
		} else {
			freed++
		}
	}
	h.objects = survivors
	h.sweepCount++
	return len(h.objects), freed
}

// Collect runs Mark then Sweep against roots in one call - the
// synchronous full collection the host-callable gc(vm) binding drives.
func (h *Heap) Collect(roots []value.Value) (retained, freed int) {
	Mark(roots)
	return h.Sweep()
}
