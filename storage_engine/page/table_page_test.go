package page

import (
	"testing"

	"coredb/types"
)

func TestInsertGetTuple(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitTablePage(data, types.InvalidPageID)

	slot, ok := InsertTuple(data, []byte("hello"))
	if !ok {
		t.Fatalf("InsertTuple failed")
	}
	got, ok := GetTuple(data, slot)
	if !ok || string(got) != "hello" {
		t.Fatalf("GetTuple = %q, ok=%v", got, ok)
	}
}

func TestMarkRollbackDelete(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitTablePage(data, types.InvalidPageID)

	slot, _ := InsertTuple(data, []byte("x"))
	if !MarkDelete(data, slot) {
		t.Fatalf("MarkDelete failed")
	}
	if SlotLive(data, slot) {
		t.Fatalf("expected slot not live after MarkDelete")
	}
	if _, ok := GetTuple(data, slot); ok {
		t.Fatalf("expected GetTuple to fail on tombstoned slot")
	}
	if !RollbackDelete(data, slot) {
		t.Fatalf("RollbackDelete failed")
	}
	if !SlotLive(data, slot) {
		t.Fatalf("expected slot live after RollbackDelete")
	}
}

func TestApplyDeleteReclaimsAndCompacts(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitTablePage(data, types.InvalidPageID)

	s1, _ := InsertTuple(data, []byte("aaaa"))
	s2, _ := InsertTuple(data, []byte("bbbb"))
	s3, _ := InsertTuple(data, []byte("cccc"))

	MarkDelete(data, s2)
	if !ApplyDelete(data, s2) {
		t.Fatalf("ApplyDelete failed")
	}

	if got, ok := GetTuple(data, s1); !ok || string(got) != "aaaa" {
		t.Fatalf("s1 corrupted after compaction: %q ok=%v", got, ok)
	}
	if got, ok := GetTuple(data, s3); !ok || string(got) != "cccc" {
		t.Fatalf("s3 corrupted after compaction: %q ok=%v", got, ok)
	}
	if SlotLive(data, s2) {
		t.Fatalf("expected s2 free after ApplyDelete")
	}

	// The freed slot should be reusable without growing the directory.
	before := TableSlotCount(data)
	reused, ok := InsertTuple(data, []byte("dddd"))
	if !ok {
		t.Fatalf("InsertTuple after ApplyDelete failed")
	}
	if reused != s2 {
		t.Fatalf("expected freed slot %d to be reused, got %d", s2, reused)
	}
	if TableSlotCount(data) != before {
		t.Fatalf("expected directory not to grow on slot reuse")
	}
}

func TestInsertFailsWhenFull(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitTablePage(data, types.InvalidPageID)

	big := make([]byte, 100)
	count := 0
	for {
		if _, ok := InsertTuple(data, big); !ok {
			break
		}
		count++
	}
	if count == 0 {
		t.Fatalf("expected at least one successful insert before exhaustion")
	}
	if err := ValidateTablePage(data); err != nil {
		t.Fatalf("page invariant violated: %v", err)
	}
}

func TestNextLiveSlotSkipsTombstones(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitTablePage(data, types.InvalidPageID)

	InsertTuple(data, []byte("a"))
	s2, _ := InsertTuple(data, []byte("b"))
	InsertTuple(data, []byte("c"))
	MarkDelete(data, s2)

	i, ok := NextLiveSlot(data, 0)
	if !ok || i != 0 {
		t.Fatalf("expected first live slot 0, got %d ok=%v", i, ok)
	}
	i, ok = NextLiveSlot(data, 1)
	if !ok || i != 2 {
		t.Fatalf("expected next live slot to skip tombstoned slot 1, got %d ok=%v", i, ok)
	}
}
