package page

import (
	"encoding/binary"
	"fmt"

	"coredb/types"
)

// Catalog meta page: {magic: u32, table_count: u32, index_count: u32,
// table_entries: (table_id, meta_page_id)[table_count], index_entries:
// (index_id, meta_page_id)[index_count]}, persisted at
// types.CatalogMetaPageID.
const (
	CatalogMagic = 0x43415441 // "CATA"

	catalogOffMagic      = 0
	catalogOffTableCount = 4
	catalogOffIndexCount = 8
	catalogHeaderSize    = 12
	catalogEntrySize     = 8
)

type CatalogTableEntry struct {
	TableID    types.TableID
	MetaPageID types.PageID
}

type CatalogIndexEntry struct {
	IndexID    types.IndexID
	MetaPageID types.PageID
}

func InitCatalogMetaPage(data []byte) {
	for i := range data {
		data[i] = 0
	}
	binary.LittleEndian.PutUint32(data[catalogOffMagic:], CatalogMagic)
	binary.LittleEndian.PutUint32(data[catalogOffTableCount:], 0)
	binary.LittleEndian.PutUint32(data[catalogOffIndexCount:], 0)
}

func CatalogMagicOf(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[catalogOffMagic:])
}

func CatalogTableCount(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[catalogOffTableCount:])
}

func CatalogIndexCount(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[catalogOffIndexCount:])
}

// ReadCatalogMeta decodes the full meta page. Returns an error if the magic
// number does not match — a fatal invariant violation.
func ReadCatalogMeta(data []byte) (tables []CatalogTableEntry, indexes []CatalogIndexEntry, err error) {
	if CatalogMagicOf(data) != CatalogMagic {
		return nil, nil, fmt.Errorf("page: catalog meta page has bad magic %#x", CatalogMagicOf(data))
	}
	tableCount := int(CatalogTableCount(data))
	indexCount := int(CatalogIndexCount(data))

	off := catalogHeaderSize
	tables = make([]CatalogTableEntry, tableCount)
	for i := 0; i < tableCount; i++ {
		tables[i] = CatalogTableEntry{
			TableID:    types.TableID(int32(binary.LittleEndian.Uint32(data[off:]))),
			MetaPageID: types.PageID(int32(binary.LittleEndian.Uint32(data[off+4:]))),
		}
		off += catalogEntrySize
	}
	indexes = make([]CatalogIndexEntry, indexCount)
	for i := 0; i < indexCount; i++ {
		indexes[i] = CatalogIndexEntry{
			IndexID:    types.IndexID(int32(binary.LittleEndian.Uint32(data[off:]))),
			MetaPageID: types.PageID(int32(binary.LittleEndian.Uint32(data[off+4:]))),
		}
		off += catalogEntrySize
	}
	return tables, indexes, nil
}

// WriteCatalogMeta encodes tables and indexes onto the page. Returns an
// error if they don't fit.
func WriteCatalogMeta(data []byte, tables []CatalogTableEntry, indexes []CatalogIndexEntry) error {
	need := catalogHeaderSize + (len(tables)+len(indexes))*catalogEntrySize
	if need > types.PageSize {
		return fmt.Errorf("page: catalog meta (%d tables, %d indexes) exceeds page capacity", len(tables), len(indexes))
	}
	for i := range data {
		data[i] = 0
	}
	binary.LittleEndian.PutUint32(data[catalogOffMagic:], CatalogMagic)
	binary.LittleEndian.PutUint32(data[catalogOffTableCount:], uint32(len(tables)))
	binary.LittleEndian.PutUint32(data[catalogOffIndexCount:], uint32(len(indexes)))

	off := catalogHeaderSize
	for _, t := range tables {
		binary.LittleEndian.PutUint32(data[off:], uint32(t.TableID))
		binary.LittleEndian.PutUint32(data[off+4:], uint32(t.MetaPageID))
		off += catalogEntrySize
	}
	for _, idx := range indexes {
		binary.LittleEndian.PutUint32(data[off:], uint32(idx.IndexID))
		binary.LittleEndian.PutUint32(data[off+4:], uint32(idx.MetaPageID))
		off += catalogEntrySize
	}
	return nil
}
