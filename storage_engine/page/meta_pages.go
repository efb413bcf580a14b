package page

import (
	"encoding/binary"
	"fmt"

	"coredb/types"
)

// Table metadata page: {magic: u32, table_id: i32, first_page_id: i32,
// name: C-string, schema: SerializeSchema()}. One dedicated page per table,
// addressed by the catalog meta page's table_entries.
const tableMetaMagic = 0x5441424c // "TABL"

// WriteTableMeta encodes a table's metadata onto data. Returns an error if
// it does not fit on one page.
func WriteTableMeta(data []byte, tableID types.TableID, firstPageID types.PageID, name string, schema types.Schema) error {
	schemaBytes := types.SerializeSchema(schema)
	need := 4 + 4 + 4 + len(name) + 1 + len(schemaBytes)
	if need > types.PageSize {
		return fmt.Errorf("page: table meta for %q (%d bytes) exceeds page capacity", name, need)
	}
	for i := range data {
		data[i] = 0
	}
	off := 0
	binary.LittleEndian.PutUint32(data[off:], tableMetaMagic)
	off += 4
	binary.LittleEndian.PutUint32(data[off:], uint32(tableID))
	off += 4
	binary.LittleEndian.PutUint32(data[off:], uint32(firstPageID))
	off += 4
	copy(data[off:], name)
	off += len(name)
	data[off] = 0
	off++
	copy(data[off:], schemaBytes)
	return nil
}

// ReadTableMeta decodes a table metadata page.
func ReadTableMeta(data []byte) (tableID types.TableID, firstPageID types.PageID, name string, schema types.Schema, err error) {
	magic := binary.LittleEndian.Uint32(data[0:])
	if magic != tableMetaMagic {
		return 0, 0, "", types.Schema{}, fmt.Errorf("page: table meta page has bad magic %#x", magic)
	}
	off := 4
	tableID = types.TableID(int32(binary.LittleEndian.Uint32(data[off:])))
	off += 4
	firstPageID = types.PageID(int32(binary.LittleEndian.Uint32(data[off:])))
	off += 4

	nameStart := off
	for off < len(data) && data[off] != 0 {
		off++
	}
	if off >= len(data) {
		return 0, 0, "", types.Schema{}, fmt.Errorf("page: table meta name missing NUL terminator")
	}
	name = string(data[nameStart:off])
	off++

	schema, _, err = types.DeserializeSchema(data[off:])
	if err != nil {
		return 0, 0, "", types.Schema{}, fmt.Errorf("page: table meta schema: %w", err)
	}
	return tableID, firstPageID, name, schema, nil
}

// Index metadata page: {magic: u32, index_id: i32, owning_table_id: i32,
// name: C-string, key_count: u32, key_column_indexes[key_count]: u32}.
const indexMetaMagic = 0x4944584d // "IDXM"

func WriteIndexMeta(data []byte, indexID types.IndexID, owningTableID types.TableID, name string, keyColumnIndexes []uint16) error {
	need := 4 + 4 + 4 + len(name) + 1 + 4 + len(keyColumnIndexes)*4
	if need > types.PageSize {
		return fmt.Errorf("page: index meta for %q (%d bytes) exceeds page capacity", name, need)
	}
	for i := range data {
		data[i] = 0
	}
	off := 0
	binary.LittleEndian.PutUint32(data[off:], indexMetaMagic)
	off += 4
	binary.LittleEndian.PutUint32(data[off:], uint32(indexID))
	off += 4
	binary.LittleEndian.PutUint32(data[off:], uint32(owningTableID))
	off += 4
	copy(data[off:], name)
	off += len(name)
	data[off] = 0
	off++
	binary.LittleEndian.PutUint32(data[off:], uint32(len(keyColumnIndexes)))
	off += 4
	for _, idx := range keyColumnIndexes {
		binary.LittleEndian.PutUint32(data[off:], uint32(idx))
		off += 4
	}
	return nil
}

func ReadIndexMeta(data []byte) (indexID types.IndexID, owningTableID types.TableID, name string, keyColumnIndexes []uint16, err error) {
	magic := binary.LittleEndian.Uint32(data[0:])
	if magic != indexMetaMagic {
		return 0, 0, "", nil, fmt.Errorf("page: index meta page has bad magic %#x", magic)
	}
	off := 4
	indexID = types.IndexID(int32(binary.LittleEndian.Uint32(data[off:])))
	off += 4
	owningTableID = types.TableID(int32(binary.LittleEndian.Uint32(data[off:])))
	off += 4

	nameStart := off
	for off < len(data) && data[off] != 0 {
		off++
	}
	if off >= len(data) {
		return 0, 0, "", nil, fmt.Errorf("page: index meta name missing NUL terminator")
	}
	name = string(data[nameStart:off])
	off++

	count := binary.LittleEndian.Uint32(data[off:])
	off += 4
	keyColumnIndexes = make([]uint16, count)
	for i := uint32(0); i < count; i++ {
		keyColumnIndexes[i] = uint16(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	return indexID, owningTableID, name, keyColumnIndexes, nil
}
