package types

// ColumnType enumerates the fixed set of physical column encodings the
// engine understands. Anything richer (varchar, dates, numerics) belongs to
// the SQL layer sitting on top of this core, which is out of scope here.
type ColumnType uint8

const (
	ColumnInt32 ColumnType = iota
	ColumnFloat32
	ColumnChar // fixed-width, padded/truncated to Length bytes
)

// ColumnDef describes one column of a table's physical layout. Length is
// only meaningful for ColumnChar; int32/float32 are always 4 bytes.
type ColumnDef struct {
	Name       string
	Type       ColumnType
	Length     uint16 // byte width on the wire; for ColumnChar, the char(n)
	TableIndex uint16 // ordinal position within the schema
	Nullable   bool
	Unique     bool
}

// Schema is an ordered sequence of column descriptors. Row encoding always
// walks columns in this order.
type Schema struct {
	Columns []ColumnDef
}

// FixedWidth returns the on-disk byte width of the column's value, not
// counting the nullability bit which is packed separately into the row's
// null bitmap.
func (c ColumnDef) FixedWidth() uint16 {
	switch c.Type {
	case ColumnInt32, ColumnFloat32:
		return 4
	case ColumnChar:
		return c.Length
	default:
		return 0
	}
}

// RowWidth returns the total fixed-width payload size of a row under this
// schema, excluding the null bitmap prefix.
func (s Schema) RowWidth() int {
	total := 0
	for _, c := range s.Columns {
		total += int(c.FixedWidth())
	}
	return total
}

// NullBitmapBytes returns the number of bytes needed to hold one bit per
// column.
func (s Schema) NullBitmapBytes() int {
	return (len(s.Columns) + 7) / 8
}
