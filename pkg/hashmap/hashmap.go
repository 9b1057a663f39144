// Package hashmap implements the open-addressed string-keyed map that
// backs object members, function closures, scope-frame locals and the
// globals table.
//
// Capacity is always a power of two. Collisions are resolved by linear
// probing with the secondary step h <- (h + 16h + 1) mod cap, i.e.
// h*17+1 mod cap. A slot whose key is set but whose value carries the
// reserved tombstone marker is a deleted entry kept alive only to
// preserve the probe chain; Put and Get both skip over tombstones
// transparently, and a rehash compacts them away.
package hashmap

const (
	initialCapacity = 8
	maxLoadFactor   = 0.5
)

// Value is the payload type stored in a Map. It is pkg/value.Value in
// practice; kept as an empty interface here so hashmap has no import
// dependency on pkg/value (avoids an import cycle, since pkg/value's
// Managed bodies embed *Map for objects/closures).
//
// The spec describes tombstones as "empty-value-but-nonempty-key"; this
// implementation instead tags each slot with an explicit state enum
// (empty/occupied/tombstone) rather than overloading the value field,
// which sidesteps having to designate a reserved sentinel Value here.
// The externally observable behavior - deleted keys vanish, probe
// chains stay intact, rehash compacts tombstones - is identical.
type Value interface{}

type slotState byte

const (
	slotEmpty slotState = iota
	slotOccupied
	slotTombstone
)

type slot struct {
	state slotState
	key   string
	value Value
}

// Map is an open-addressed hash table keyed by string.
type Map struct {
	slots     []slot
	length    int // live (non-tombstone) entries
	tombCount int
}

// New creates an empty map with the default starting capacity.
func New() *Map {
	return &Map{slots: make([]slot, initialCapacity)}
}

// Len returns the number of live entries.
func (m *Map) Len() int { return m.length }

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

func step(h, cap uint32) uint32 {
	return (h + 16*h + 1) % cap
}

// findSlot returns the index of the slot holding key, or (index of the
// first available empty-or-tombstone slot on the probe chain, false) if
// key is absent.
func (m *Map) findSlot(key string) (int, bool) {
	cap32 := uint32(len(m.slots))
	h := fnv32(key) % cap32
	firstFree := -1
	for i := uint32(0); i < cap32; i++ {
		s := &m.slots[h]
		switch s.state {
		case slotEmpty:
			if firstFree == -1 {
				firstFree = int(h)
			}
			return firstFree, false
		case slotTombstone:
			if firstFree == -1 {
				firstFree = int(h)
			}
		case slotOccupied:
			if s.key == key {
				return int(h), true
			}
		}
		h = step(h, cap32)
	}
	if firstFree == -1 {
		firstFree = 0
	}
	return firstFree, false
}

// Get looks up key, returning (value, true) if present.
func (m *Map) Get(key string) (Value, bool) {
	idx, found := m.findSlot(key)
	if !found {
		var zero Value
		return zero, false
	}
	return m.slots[idx].value, true
}

// Put inserts or overwrites key with value.
func (m *Map) Put(key string, value Value) {
	idx, found := m.findSlot(key)
	if found {
		m.slots[idx].value = value
		return
	}
	if (m.length+1)*2 > len(m.slots) {
		m.rehash(len(m.slots) * 2)
		idx, _ = m.findSlot(key)
	}
	if m.slots[idx].state == slotTombstone {
		m.tombCount--
	}
	m.slots[idx] = slot{state: slotOccupied, key: key, value: value}
	m.length++
}

// Delete removes key if present, returning true if it was.
func (m *Map) Delete(key string) bool {
	idx, found := m.findSlot(key)
	if !found {
		return false
	}
	m.slots[idx].state = slotTombstone
	m.slots[idx].value = nil
	m.length--
	m.tombCount++
	return true
}

// rehash grows (or compacts) the table to newCap, re-inserting every
// live entry and dropping tombstones.
func (m *Map) rehash(newCap int) {
	if newCap < initialCapacity {
		newCap = initialCapacity
	}
	old := m.slots
	m.slots = make([]slot, newCap)
	m.length = 0
	m.tombCount = 0
	for _, s := range old {
		if s.state == slotOccupied {
			m.Put(s.key, s.value)
		}
	}
}

// Keys returns live keys in slot order (the order the spec relies on for
// for..in/for..of scans). Not sorted; reflects probe-table layout.
func (m *Map) Keys() []string {
	keys := make([]string, 0, m.length)
	for _, s := range m.slots {
		if s.state == slotOccupied {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// Capacity returns the current slot count, used by the iteration
// protocol to scan "capacity forward" for occupied slots.
func (m *Map) Capacity() int { return len(m.slots) }

// At returns the slot at position i (for ordinal iteration), reporting
// whether it is occupied.
func (m *Map) At(i int) (key string, value Value, ok bool) {
	s := m.slots[i]
	if s.state != slotOccupied {
		return "", nil, false
	}
	return s.key, s.value, true
}

// Each calls fn for every live entry in slot order.
func (m *Map) Each(fn func(key string, value Value)) {
	for _, s := range m.slots {
		if s.state == slotOccupied {
			fn(s.key, s.value)
		}
	}
}
