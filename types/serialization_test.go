package types

import "testing"

func TestColumnRoundTrip(t *testing.T) {
	c := ColumnDef{Name: "age", Type: ColumnInt32, TableIndex: 2, Nullable: true, Unique: false}
	buf := SerializeColumn(c)
	got, n, err := DeserializeColumn(buf)
	if err != nil {
		t.Fatalf("DeserializeColumn: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected to consume %d bytes, got %d", len(buf), n)
	}
	if got != c {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	s := Schema{Columns: []ColumnDef{
		{Name: "id", Type: ColumnInt32, TableIndex: 0},
		{Name: "score", Type: ColumnFloat32, TableIndex: 1, Nullable: true},
		{Name: "name", Type: ColumnChar, Length: 16, TableIndex: 2},
	}}
	buf := SerializeSchema(s)
	got, n, err := DeserializeSchema(buf)
	if err != nil {
		t.Fatalf("DeserializeSchema: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected to consume %d bytes, got %d", len(buf), n)
	}
	if len(got.Columns) != 3 || got.Columns[2].Length != 16 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRowRoundTrip(t *testing.T) {
	s := Schema{Columns: []ColumnDef{
		{Name: "id", Type: ColumnInt32, TableIndex: 0},
		{Name: "score", Type: ColumnFloat32, TableIndex: 1, Nullable: true},
		{Name: "name", Type: ColumnChar, Length: 8, TableIndex: 2},
	}}
	values := []any{int32(42), nil, "bob"}

	buf, err := SerializeRow(s, values)
	if err != nil {
		t.Fatalf("SerializeRow: %v", err)
	}
	got, err := DeserializeRow(s, buf)
	if err != nil {
		t.Fatalf("DeserializeRow: %v", err)
	}
	if got[0].(int32) != 42 {
		t.Fatalf("id mismatch: %v", got[0])
	}
	if got[1] != nil {
		t.Fatalf("expected nil score, got %v", got[1])
	}
	if got[2].(string) != "bob" {
		t.Fatalf("name mismatch: %v", got[2])
	}
}

func TestRowRejectsNullOnNonNullable(t *testing.T) {
	s := Schema{Columns: []ColumnDef{{Name: "id", Type: ColumnInt32, TableIndex: 0}}}
	if _, err := SerializeRow(s, []any{nil}); err == nil {
		t.Fatalf("expected error for null on non-nullable column")
	}
}
