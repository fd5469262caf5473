// Package slots implements the per-device slot table (spec §4.C): the
// fixed-capacity array of (slot -> active-message snapshot) that owns
// the "what is live" truth for one device.
package slots

import "sync"

// Slot holds the banner record currently displayed at one position and
// the last rendered message text (spec §3). An empty slot has a zero
// Recno.
type Slot struct {
	Recno int64
	Text  string
}

// Populated reports whether the slot currently holds a message.
func (s Slot) Populated() bool {
	return s.Recno != 0
}

// Table is a fixed-capacity, ordered slot array for one device. It is
// safe for concurrent use; in practice only one dispatcher worker ever
// mutates a given device's table (spec §3: "a queue envelope is consumed
// by at most one dispatcher worker"), but Snapshot may be called
// concurrently by the journal-writing path and diagnostics.
type Table struct {
	mu    sync.Mutex
	slots []Slot
}

// New creates a slot table with the given fixed capacity.
func New(capacity int) *Table {
	return &Table{slots: make([]Slot, capacity)}
}

// Capacity returns the fixed number of slots.
func (t *Table) Capacity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Set stores recno/text at the given slot index. Index must be within
// [0, Capacity()); out-of-range indices, such as one decoded from a
// sequence character beyond the device's slot count, are ignored.
func (t *Table) Set(index int, recno int64, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.slots) {
		return
	}
	t.slots[index] = Slot{Recno: recno, Text: text}
}

// Clear empties a single slot.
func (t *Table) Clear(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.slots) {
		return
	}
	t.slots[index] = Slot{}
}

// ClearAll empties every slot (spec §4.F clear-sign).
func (t *Table) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		t.slots[i] = Slot{}
	}
}

// Snapshot returns the populated slots in slot order (spec §4.C:
// "snapshot() returning an ordered list of populated slots"). The
// returned slice includes each slot's index so callers (the translator)
// can render signseqnum correctly.
type IndexedSlot struct {
	Index int
	Slot  Slot
}

func (t *Table) Snapshot() []IndexedSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]IndexedSlot, 0, len(t.slots))
	for i, s := range t.slots {
		if s.Populated() {
			out = append(out, IndexedSlot{Index: i, Slot: s})
		}
	}
	return out
}

// Get returns the slot at index and whether index was in range.
func (t *Table) Get(index int) (Slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.slots) {
		return Slot{}, false
	}
	return t.slots[index], true
}

// FindByRecno returns the slot index holding recno, or -1 if not
// present. Used by stop-message handling to locate the slot to clear.
func (t *Table) FindByRecno(recno int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s.Recno == recno {
			return i
		}
	}
	return -1
}

// ClearUnreferenced makes the given sequence byte-string authoritative
// (spec §4.C: "slots whose index is not referenced by that string are
// cleared"; spec §4.F sequence-change: "for each index i not
// referenced, clear slot i"). referenced reports, for a given slot
// index, whether that index appears anywhere in the sequence string;
// the caller (dispatcher) supplies this since the byte-to-index
// decoding is a device-protocol detail (spec glossary: "sequence
// string... i-th byte encodes the slot to occupy position i").
func (t *Table) ClearUnreferenced(referenced func(index int) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if !referenced(i) {
			t.slots[i] = Slot{}
		}
	}
}
