package page

import (
	"encoding/binary"
	"fmt"

	"coredb/types"
)

// Index roots page: {count: u32, entries[count]: (index_id: u32,
// root_page_id: u32)}, persisted at types.IndexRootsPageID. One entry per
// live index; an index with no entry has no root yet (empty tree).
const (
	indexRootsOffCount   = 0
	indexRootsHeaderSize = 4
	indexRootsEntrySize  = 8
)

// IndexRootsMaxEntries is how many (index_id, root_page_id) pairs fit on
// one page.
func IndexRootsMaxEntries() int {
	return (types.PageSize - indexRootsHeaderSize) / indexRootsEntrySize
}

func InitIndexRootsPage(data []byte) {
	for i := range data {
		data[i] = 0
	}
	binary.LittleEndian.PutUint32(data[indexRootsOffCount:], 0)
}

type IndexRootEntry struct {
	IndexID     types.IndexID
	RootPageID  types.PageID
}

func IndexRootsCount(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[indexRootsOffCount:])
}

func indexRootsEntryOffset(i int) int {
	return indexRootsHeaderSize + i*indexRootsEntrySize
}

// ReadIndexRoots decodes every entry on the page.
func ReadIndexRoots(data []byte) []IndexRootEntry {
	count := int(IndexRootsCount(data))
	entries := make([]IndexRootEntry, count)
	for i := 0; i < count; i++ {
		off := indexRootsEntryOffset(i)
		entries[i] = IndexRootEntry{
			IndexID:    types.IndexID(int32(binary.LittleEndian.Uint32(data[off:]))),
			RootPageID: types.PageID(int32(binary.LittleEndian.Uint32(data[off+4:]))),
		}
	}
	return entries
}

// WriteIndexRoots encodes entries onto the page, replacing whatever was
// there. Returns an error if entries does not fit.
func WriteIndexRoots(data []byte, entries []IndexRootEntry) error {
	if len(entries) > IndexRootsMaxEntries() {
		return fmt.Errorf("page: %d index root entries exceed page capacity %d", len(entries), IndexRootsMaxEntries())
	}
	for i := range data {
		data[i] = 0
	}
	binary.LittleEndian.PutUint32(data[indexRootsOffCount:], uint32(len(entries)))
	for i, e := range entries {
		off := indexRootsEntryOffset(i)
		binary.LittleEndian.PutUint32(data[off:], uint32(e.IndexID))
		binary.LittleEndian.PutUint32(data[off+4:], uint32(e.RootPageID))
	}
	return nil
}

// SetIndexRoot updates or inserts the root page id for indexID within a
// decoded entry slice, returning the updated slice.
func SetIndexRoot(entries []IndexRootEntry, indexID types.IndexID, rootPageID types.PageID) []IndexRootEntry {
	for i := range entries {
		if entries[i].IndexID == indexID {
			entries[i].RootPageID = rootPageID
			return entries
		}
	}
	return append(entries, IndexRootEntry{IndexID: indexID, RootPageID: rootPageID})
}

// ClearIndexRoot removes indexID's entry, if present.
func ClearIndexRoot(entries []IndexRootEntry, indexID types.IndexID) []IndexRootEntry {
	for i := range entries {
		if entries[i].IndexID == indexID {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

// LookupIndexRoot returns the root page id for indexID, or
// types.InvalidPageID with ok=false if absent.
func LookupIndexRoot(entries []IndexRootEntry, indexID types.IndexID) (types.PageID, bool) {
	for _, e := range entries {
		if e.IndexID == indexID {
			return e.RootPageID, true
		}
	}
	return types.InvalidPageID, false
}
