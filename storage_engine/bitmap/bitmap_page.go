// Package bitmap implements the fixed-layout bitmap page that the disk
// manager stamps at the head of every extent to track allocation of the
// extent's data pages.
//
// Layout (PageSize bytes, little-endian):
//
//	0   4   PageAllocated  uint32  — popcount of the bit array, kept in sync
//	4   4   NextFreeHint   uint32  — advisory only, never load-bearing
//	8   N   Bits           []byte  — one bit per data page in the extent
//
// Bit k of byte b corresponds to data page b*8+k within the extent. A set
// bit means allocated.
package bitmap

import "encoding/binary"

const (
	headerSize         = 8
	offPageAllocated   = 0
	offNextFreeHint    = 4
)

// Capacity returns BITMAP_SIZE for a page of pageSize bytes: the number of
// data pages one bitmap page can track.
func Capacity(pageSize int) int {
	return (pageSize - headerSize) * 8
}

// Page is a typed view over a raw bitmap-page buffer. It does not own the
// buffer — callers get one from a pinned frame and write through it.
type Page struct {
	data []byte
}

// View wraps an existing PageSize-byte buffer as a bitmap page without
// touching its contents.
func View(data []byte) Page {
	return Page{data: data}
}

// Init zeroes a fresh bitmap page: no pages allocated, hint at 0.
func Init(data []byte) Page {
	for i := range data {
		data[i] = 0
	}
	p := Page{data: data}
	p.setAllocated(0)
	p.setHint(0)
	return p
}

func (p Page) capacity() int { return Capacity(len(p.data)) }

func (p Page) Allocated() uint32 { return binary.LittleEndian.Uint32(p.data[offPageAllocated:]) }
func (p Page) setAllocated(v uint32) {
	binary.LittleEndian.PutUint32(p.data[offPageAllocated:], v)
}

func (p Page) Hint() uint32 { return binary.LittleEndian.Uint32(p.data[offNextFreeHint:]) }
func (p Page) setHint(v uint32) {
	binary.LittleEndian.PutUint32(p.data[offNextFreeHint:], v)
}

func (p Page) bitSet(offset int) bool {
	byteIdx := headerSize + offset/8
	bit := uint(offset % 8)
	return p.data[byteIdx]&(1<<bit) != 0
}

func (p Page) setBit(offset int, v bool) {
	byteIdx := headerSize + offset/8
	bit := uint(offset % 8)
	if v {
		p.data[byteIdx] |= 1 << bit
	} else {
		p.data[byteIdx] &^= 1 << bit
	}
}

// IsPageFree reports whether offset is clear, i.e. unallocated. An offset
// at or beyond capacity is treated as free — the extent simply hasn't grown
// that far yet.
func (p Page) IsPageFree(offset int) bool {
	if offset < 0 || offset >= p.capacity() {
		return true
	}
	return !p.bitSet(offset)
}

// AllocatePage probes for the first clear bit, starting at the advisory
// hint and wrapping around to 0 if nothing is found past it. Returns the
// offset and true on success.
func (p Page) AllocatePage() (offset int, ok bool) {
	cap := p.capacity()
	start := int(p.Hint())
	if start >= cap {
		start = 0
	}

	for i := start; i < cap; i++ {
		if !p.bitSet(i) {
			p.commitAllocation(i)
			return i, true
		}
	}
	for i := 0; i < start; i++ {
		if !p.bitSet(i) {
			p.commitAllocation(i)
			return i, true
		}
	}
	return 0, false
}

func (p Page) commitAllocation(offset int) {
	p.setBit(offset, true)
	p.setAllocated(p.Allocated() + 1)
	next := offset + 1
	if next >= p.capacity() {
		next = 0
	}
	p.setHint(uint32(next))
}

// DeallocatePage clears offset's bit if set. Deallocating an already-free
// slot is a no-op. The hint is lowered when the freed slot precedes it, so
// the next allocation probes from the earliest known gap.
func (p Page) DeallocatePage(offset int) {
	if offset < 0 || offset >= p.capacity() {
		return
	}
	if !p.bitSet(offset) {
		return
	}
	p.setBit(offset, false)
	if p.Allocated() > 0 {
		p.setAllocated(p.Allocated() - 1)
	}
	if uint32(offset) < p.Hint() {
		p.setHint(uint32(offset))
	}
}

// Popcount recomputes the allocated-bit count directly from the bit array,
// independent of the maintained PageAllocated counter. Used by consistency
// checks (invariant 6: extent_used == popcount(bits)).
func (p Page) Popcount() uint32 {
	var n uint32
	for _, b := range p.data[headerSize:] {
		for b != 0 {
			n += uint32(b & 1)
			b >>= 1
		}
	}
	return n
}
