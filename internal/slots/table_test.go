package slots_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/messagenet/evodispatch/internal/slots"
)

func TestSetAndSnapshot(t *testing.T) {
	tbl := slots.New(4)
	tbl.Set(0, 345, "hello")
	tbl.Set(2, 346, "world")

	snap := tbl.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, 0, snap[0].Index)
	assert.Equal(t, int64(345), snap[0].Slot.Recno)
	assert.Equal(t, 2, snap[1].Index)
	assert.Equal(t, int64(346), snap[1].Slot.Recno)
}

func TestClearAllIsIdempotent(t *testing.T) {
	// Clear idempotence (spec §8): two consecutive clears leave all
	// slots empty.
	tbl := slots.New(3)
	tbl.Set(0, 1, "x")
	tbl.ClearAll()
	tbl.ClearAll()
	assert.Empty(t, tbl.Snapshot())
}

func TestFindByRecno(t *testing.T) {
	tbl := slots.New(3)
	tbl.Set(1, 99, "x")
	assert.Equal(t, 1, tbl.FindByRecno(99))
	assert.Equal(t, -1, tbl.FindByRecno(12345))
}

func TestClearUnreferenced(t *testing.T) {
	// With indices {0,1,2} referenced, the unreferenced slot 3 is
	// cleared and slots 0 and 1 are kept. ClearUnreferenced never
	// populates a slot, so the referenced but empty slot 2 stays empty.
	tbl := slots.New(4)
	tbl.Set(0, 345, "a")
	tbl.Set(1, 346, "b")
	tbl.Set(3, 999, "stale")

	referencedIdx := map[int]bool{0: true, 1: true, 2: true}
	tbl.ClearUnreferenced(func(i int) bool { return referencedIdx[i] })

	snap := tbl.Snapshot()
	assert.Len(t, snap, 2)
	for _, s := range snap {
		assert.Contains(t, []int{0, 1}, s.Index)
	}
}

func TestOutOfRangeIndexIsIgnored(t *testing.T) {
	tbl := slots.New(2)
	tbl.Set(5, 1, "x")
	tbl.Clear(5)
	assert.Empty(t, tbl.Snapshot())
}
