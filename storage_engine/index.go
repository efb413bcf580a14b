package storageengine

import (
	"fmt"
	"math"

	"coredb/storage_engine/btree"
	"coredb/storage_engine/catalog"
	"coredb/types"
)

/*
This file wires the catalog's IndexInfo against the B+ tree package:
index key encoding, adding a newly inserted row to every index on its
table, and index lookup. Only InsertRow maintains indexes; DeleteRow and
UpdateRow leave existing index entries unchanged. Index keys are the fixed-width
concatenation catalog.keySizeOf sizes for — no null bitmap, so an
indexed column's value must always be present.
*/

// openIndex opens ii's B+ tree. Cheap enough to call per access: the tree
// only loads its current root from the index roots page, the rest of its
// state is derived from ii itself.
func (e *Engine) openIndex(ii *catalog.IndexInfo) (*btree.BPlusTree, error) {
	tree, err := btree.New(ii.IndexID, e.BufferPool, ii.KeySize, 0, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("storageengine: open index %q: %w", ii.Name, err)
	}
	return tree, nil
}

// EncodeIndexKey concatenates values[idx] for each idx in keyColumnIndexes,
// in order, using each column's fixed-width on-disk encoding. nil values
// are rejected: an indexed column's value must always be present.
func EncodeIndexKey(schema types.Schema, values []any, keyColumnIndexes []uint16) ([]byte, error) {
	var out []byte
	for _, idx := range keyColumnIndexes {
		if int(idx) >= len(schema.Columns) {
			return nil, fmt.Errorf("storageengine: key column index %d out of range", idx)
		}
		col := schema.Columns[idx]
		v := values[idx]
		if v == nil {
			return nil, fmt.Errorf("storageengine: indexed column %q cannot be null", col.Name)
		}
		b, err := encodeKeyValue(col, v)
		if err != nil {
			return nil, fmt.Errorf("storageengine: column %q: %w", col.Name, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeKeyValue(col types.ColumnDef, v any) ([]byte, error) {
	buf := make([]byte, col.FixedWidth())
	switch col.Type {
	case types.ColumnInt32:
		i, ok := v.(int32)
		if !ok {
			return nil, fmt.Errorf("expected int32, got %T", v)
		}
		// Flip the sign bit so two's-complement negatives sort below
		// positives under a plain unsigned byte comparison.
		u := uint32(i) ^ 0x8000_0000
		for i2 := 0; i2 < 4; i2++ {
			buf[3-i2] = byte(u >> (8 * i2)) // big-endian so byte comparison orders like integer comparison
		}
	case types.ColumnFloat32:
		f, ok := v.(float32)
		if !ok {
			return nil, fmt.Errorf("expected float32, got %T", v)
		}
		bits := math.Float32bits(f)
		if bits&0x8000_0000 != 0 {
			bits = ^bits // negative: invert every bit
		} else {
			bits |= 0x8000_0000 // non-negative: set the sign bit
		}
		for i2 := 0; i2 < 4; i2++ {
			buf[3-i2] = byte(bits >> (8 * i2))
		}
	case types.ColumnChar:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		n := copy(buf, s)
		for i2 := n; i2 < len(buf); i2++ {
			buf[i2] = 0
		}
	default:
		return nil, fmt.Errorf("unknown column type %d", col.Type)
	}
	return buf, nil
}

// insertIntoIndexes adds rid under every index owned by ti, for the row
// values just written. Called after the heap insert succeeds.
func (e *Engine) insertIntoIndexes(ti *catalog.TableInfo, values []any, rid types.RowID) error {
	indexes, err := e.Catalog.GetTableIndexes(ti.Name)
	if err != nil {
		return err
	}
	for _, ii := range indexes {
		key, err := EncodeIndexKey(ti.Schema, values, ii.KeyColumnIndexes)
		if err != nil {
			return fmt.Errorf("storageengine: index %q: %w", ii.Name, err)
		}
		tree, err := e.openIndex(ii)
		if err != nil {
			return err
		}
		if _, err := tree.Insert(key, rid); err != nil {
			return fmt.Errorf("storageengine: index %q: insert: %w", ii.Name, err)
		}
	}
	return nil
}

// lookupByIndex returns the row id stored under key in the named index.
func (e *Engine) lookupByIndex(indexName string, key []byte) (types.RowID, bool, error) {
	ii, err := e.Catalog.GetIndex(indexName)
	if err != nil {
		return types.InvalidRowID, false, err
	}
	tree, err := e.openIndex(ii)
	if err != nil {
		return types.InvalidRowID, false, err
	}
	return tree.GetValue(key)
}
