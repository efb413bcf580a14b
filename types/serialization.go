package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ColumnMagic stamps every serialized column record; a mismatch on
// deserialization is a fatal invariant violation, not a recoverable error.
const ColumnMagic = 0x434f4c31 // "COL1"

// SerializeColumn encodes c as {magic: u32, type: u8, name: C-string
// including NUL, length: u32, table_index: u32, nullable: u8, unique: u8}.
func SerializeColumn(c ColumnDef) []byte {
	buf := make([]byte, 0, 4+1+len(c.Name)+1+4+4+1+1)
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], ColumnMagic)
	buf = append(buf, hdr[:]...)
	buf = append(buf, byte(c.Type))
	buf = append(buf, []byte(c.Name)...)
	buf = append(buf, 0)
	var lenBuf, idxBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(c.Length))
	binary.LittleEndian.PutUint32(idxBuf[:], uint32(c.TableIndex))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, idxBuf[:]...)
	if c.Nullable {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	if c.Unique {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DeserializeColumn reads one column record from buf, returning the column
// and the number of bytes consumed.
func DeserializeColumn(buf []byte) (ColumnDef, int, error) {
	if len(buf) < 5 {
		return ColumnDef{}, 0, fmt.Errorf("types: column record truncated")
	}
	magic := binary.LittleEndian.Uint32(buf[0:])
	if magic != ColumnMagic {
		return ColumnDef{}, 0, fmt.Errorf("types: column record has bad magic %#x", magic)
	}
	off := 4
	colType := ColumnType(buf[off])
	off++

	nameStart := off
	for off < len(buf) && buf[off] != 0 {
		off++
	}
	if off >= len(buf) {
		return ColumnDef{}, 0, fmt.Errorf("types: column name missing NUL terminator")
	}
	name := string(buf[nameStart:off])
	off++ // skip NUL

	if off+10 > len(buf) {
		return ColumnDef{}, 0, fmt.Errorf("types: column record truncated after name")
	}
	length := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	tableIndex := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nullable := buf[off] != 0
	off++
	unique := buf[off] != 0
	off++

	return ColumnDef{
		Name:       name,
		Type:       colType,
		Length:     uint16(length),
		TableIndex: uint16(tableIndex),
		Nullable:   nullable,
		Unique:     unique,
	}, off, nil
}

// SerializeSchema encodes a column count followed by each column's record,
// avoiding the page-bound scan the spec flags as the source's approach.
func SerializeSchema(s Schema) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(s.Columns)))
	for _, c := range s.Columns {
		buf = append(buf, SerializeColumn(c)...)
	}
	return buf
}

// DeserializeSchema reads a schema written by SerializeSchema, returning the
// schema and bytes consumed.
func DeserializeSchema(buf []byte) (Schema, int, error) {
	if len(buf) < 4 {
		return Schema{}, 0, fmt.Errorf("types: schema record truncated")
	}
	count := binary.LittleEndian.Uint32(buf[0:])
	off := 4
	cols := make([]ColumnDef, 0, count)
	for i := uint32(0); i < count; i++ {
		col, n, err := DeserializeColumn(buf[off:])
		if err != nil {
			return Schema{}, 0, fmt.Errorf("types: schema column %d: %w", i, err)
		}
		cols = append(cols, col)
		off += n
	}
	return Schema{Columns: cols}, off, nil
}

// SerializeRow packs values in schema order: a nullability bitmap (one bit
// per column, set when the value is null) followed by each column's
// fixed-width encoding. A null column's bytes are still present, zeroed, to
// keep every row the schema's fixed width.
func SerializeRow(s Schema, values []any) ([]byte, error) {
	if len(values) != len(s.Columns) {
		return nil, fmt.Errorf("types: row has %d values, schema has %d columns", len(values), len(s.Columns))
	}
	bitmapBytes := s.NullBitmapBytes()
	buf := make([]byte, bitmapBytes+s.RowWidth())

	offset := bitmapBytes
	for i, col := range s.Columns {
		v := values[i]
		width := int(col.FixedWidth())
		if v == nil {
			if !col.Nullable {
				return nil, fmt.Errorf("types: column %q is not nullable", col.Name)
			}
			buf[i/8] |= 1 << (uint(i) % 8)
			offset += width
			continue
		}
		if err := encodeValue(buf[offset:offset+width], col, v); err != nil {
			return nil, fmt.Errorf("types: column %q: %w", col.Name, err)
		}
		offset += width
	}
	return buf, nil
}

func encodeValue(dst []byte, col ColumnDef, v any) error {
	switch col.Type {
	case ColumnInt32:
		i, ok := v.(int32)
		if !ok {
			return fmt.Errorf("expected int32, got %T", v)
		}
		binary.LittleEndian.PutUint32(dst, uint32(i))
	case ColumnFloat32:
		f, ok := v.(float32)
		if !ok {
			return fmt.Errorf("expected float32, got %T", v)
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
	case ColumnChar:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		n := copy(dst, s)
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
	default:
		return fmt.Errorf("unknown column type %d", col.Type)
	}
	return nil
}

// DeserializeRow is the inverse of SerializeRow.
func DeserializeRow(s Schema, buf []byte) ([]any, error) {
	bitmapBytes := s.NullBitmapBytes()
	if len(buf) < bitmapBytes+s.RowWidth() {
		return nil, fmt.Errorf("types: row buffer too short: got %d, need %d", len(buf), bitmapBytes+s.RowWidth())
	}
	values := make([]any, len(s.Columns))
	offset := bitmapBytes
	for i, col := range s.Columns {
		width := int(col.FixedWidth())
		isNull := buf[i/8]&(1<<(uint(i)%8)) != 0
		if isNull {
			values[i] = nil
			offset += width
			continue
		}
		v, err := decodeValue(buf[offset:offset+width], col)
		if err != nil {
			return nil, fmt.Errorf("types: column %q: %w", col.Name, err)
		}
		values[i] = v
		offset += width
	}
	return values, nil
}

func decodeValue(src []byte, col ColumnDef) (any, error) {
	switch col.Type {
	case ColumnInt32:
		return int32(binary.LittleEndian.Uint32(src)), nil
	case ColumnFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(src)), nil
	case ColumnChar:
		end := len(src)
		for end > 0 && src[end-1] == 0 {
			end--
		}
		return string(src[:end]), nil
	default:
		return nil, fmt.Errorf("unknown column type %d", col.Type)
	}
}
