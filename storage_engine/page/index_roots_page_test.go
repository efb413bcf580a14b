package page

import (
	"testing"

	"coredb/types"
)

func TestIndexRootsRoundTrip(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitIndexRootsPage(data)

	entries := ReadIndexRoots(data)
	entries = SetIndexRoot(entries, 1, 10)
	entries = SetIndexRoot(entries, 2, 20)
	if err := WriteIndexRoots(data, entries); err != nil {
		t.Fatalf("WriteIndexRoots: %v", err)
	}

	got := ReadIndexRoots(data)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	root, ok := LookupIndexRoot(got, 2)
	if !ok || root != 20 {
		t.Fatalf("LookupIndexRoot(2) = %d ok=%v", root, ok)
	}

	got = ClearIndexRoot(got, 1)
	if _, ok := LookupIndexRoot(got, 1); ok {
		t.Fatalf("expected index 1 cleared")
	}
}

func TestCatalogMetaRoundTrip(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitCatalogMetaPage(data)

	tables := []CatalogTableEntry{{TableID: 1, MetaPageID: 5}, {TableID: 2, MetaPageID: 6}}
	indexes := []CatalogIndexEntry{{IndexID: 1, MetaPageID: 7}}
	if err := WriteCatalogMeta(data, tables, indexes); err != nil {
		t.Fatalf("WriteCatalogMeta: %v", err)
	}

	gotTables, gotIndexes, err := ReadCatalogMeta(data)
	if err != nil {
		t.Fatalf("ReadCatalogMeta: %v", err)
	}
	if len(gotTables) != 2 || len(gotIndexes) != 1 {
		t.Fatalf("unexpected counts: %d tables, %d indexes", len(gotTables), len(gotIndexes))
	}
	if gotTables[1].MetaPageID != 6 {
		t.Fatalf("unexpected table entry: %+v", gotTables[1])
	}
}

func TestTableMetaRoundTrip(t *testing.T) {
	data := make([]byte, types.PageSize)
	schema := types.Schema{Columns: []types.ColumnDef{
		{Name: "id", Type: types.ColumnInt32, TableIndex: 0},
		{Name: "name", Type: types.ColumnChar, Length: 8, TableIndex: 1},
	}}
	if err := WriteTableMeta(data, 3, 42, "users", schema); err != nil {
		t.Fatalf("WriteTableMeta: %v", err)
	}

	id, firstPage, name, gotSchema, err := ReadTableMeta(data)
	if err != nil {
		t.Fatalf("ReadTableMeta: %v", err)
	}
	if id != 3 || firstPage != 42 || name != "users" {
		t.Fatalf("unexpected meta: id=%d firstPage=%d name=%q", id, firstPage, name)
	}
	if len(gotSchema.Columns) != 2 || gotSchema.Columns[1].Length != 8 {
		t.Fatalf("unexpected schema: %+v", gotSchema)
	}
}

func TestIndexMetaRoundTrip(t *testing.T) {
	data := make([]byte, types.PageSize)
	if err := WriteIndexMeta(data, 1, 3, "users_id_idx", []uint16{0}); err != nil {
		t.Fatalf("WriteIndexMeta: %v", err)
	}

	id, tableID, name, cols, err := ReadIndexMeta(data)
	if err != nil {
		t.Fatalf("ReadIndexMeta: %v", err)
	}
	if id != 1 || tableID != 3 || name != "users_id_idx" || len(cols) != 1 || cols[0] != 0 {
		t.Fatalf("unexpected index meta: id=%d tableID=%d name=%q cols=%v", id, tableID, name, cols)
	}
}
