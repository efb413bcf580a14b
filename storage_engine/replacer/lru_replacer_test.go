package replacer

import "testing"

func TestVictimIsStrictLRU(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	if v, ok := r.Victim(); !ok || v != 1 {
		t.Fatalf("expected victim 1, got %d ok=%v", v, ok)
	}
	if v, ok := r.Victim(); !ok || v != 2 {
		t.Fatalf("expected victim 2, got %d ok=%v", v, ok)
	}
}

func TestPinRemovesCandidacy(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)

	if v, ok := r.Victim(); !ok || v != 2 {
		t.Fatalf("expected victim 2, got %d ok=%v", v, ok)
	}
	if _, ok := r.Victim(); ok {
		t.Fatalf("expected replacer to be empty")
	}
}

func TestFirstUnpinWinsNoPromotion(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(1) // should not move 1 back to the front

	if v, ok := r.Victim(); !ok || v != 1 {
		t.Fatalf("expected victim 1 (unchanged LRU order), got %d ok=%v", v, ok)
	}
}

func TestVictimOnEmptyReplacer(t *testing.T) {
	r := NewLRUReplacer()
	if _, ok := r.Victim(); ok {
		t.Fatalf("expected no victim on empty replacer")
	}
}

func TestSize(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	if r.Size() != 2 {
		t.Fatalf("expected size 2, got %d", r.Size())
	}
	r.Pin(1)
	if r.Size() != 1 {
		t.Fatalf("expected size 1, got %d", r.Size())
	}
}
