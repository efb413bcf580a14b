package bitmap

import "testing"

func TestAllocateFreeReallocate(t *testing.T) {
	data := make([]byte, 4096)
	p := Init(data)

	// S1 — bitmap allocate/free.
	var offs []int
	for i := 0; i < 3; i++ {
		off, ok := p.AllocatePage()
		if !ok {
			t.Fatalf("allocate %d failed", i)
		}
		offs = append(offs, off)
	}
	if offs[0] != 0 || offs[1] != 1 || offs[2] != 2 {
		t.Fatalf("expected offsets 0,1,2 got %v", offs)
	}

	p.DeallocatePage(1)
	next, ok := p.AllocatePage()
	if !ok || next != 1 {
		t.Fatalf("expected reallocation of offset 1, got %d ok=%v", next, ok)
	}

	if p.IsPageFree(0) {
		t.Fatalf("offset 0 should be allocated")
	}
	if p.IsPageFree(1) {
		t.Fatalf("offset 1 should be allocated")
	}
	if !p.IsPageFree(3) {
		t.Fatalf("offset 3 should be free")
	}
}

func TestPopcountMatchesAllocated(t *testing.T) {
	data := make([]byte, 4096)
	p := Init(data)
	for i := 0; i < 10; i++ {
		if _, ok := p.AllocatePage(); !ok {
			t.Fatalf("allocate %d failed", i)
		}
	}
	p.DeallocatePage(4)

	if p.Popcount() != p.Allocated() {
		t.Fatalf("popcount %d != allocated %d", p.Popcount(), p.Allocated())
	}
}

func TestIsPageFreeBeyondCapacity(t *testing.T) {
	data := make([]byte, 4096)
	p := Init(data)
	if !p.IsPageFree(p.capacity() + 1) {
		t.Fatalf("offsets past capacity must read as free")
	}
}
