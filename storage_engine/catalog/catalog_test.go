package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"coredb/storage_engine/bufferpool"
	diskmanager "coredb/storage_engine/disk_manager"
	"coredb/types"
)

func newTestCatalog(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := diskmanager.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	bp := bufferpool.NewBufferPoolManager(16, dm)

	// The index roots page and catalog meta page are the two reserved
	// logical pages, in order; a real engine bootstraps the first before
	// constructing the catalog.
	rootsFrame, err := bp.NewPage()
	require.NoError(t, err)
	require.Equal(t, types.IndexRootsPageID, rootsFrame.PageID)
	bp.UnpinPage(rootsFrame.PageID, true)

	m, err := New(bp, true)
	require.NoError(t, err)
	return m
}

func testSchema() types.Schema {
	return types.Schema{Columns: []types.ColumnDef{
		{Name: "id", Type: types.ColumnInt32, TableIndex: 0},
		{Name: "name", Type: types.ColumnChar, Length: 8, TableIndex: 1},
	}}
}

func TestCreateAndGetTable(t *testing.T) {
	m := newTestCatalog(t)
	schema := testSchema()

	ti, err := m.CreateTable("widgets", schema)
	require.NoError(t, err)
	require.Equal(t, "widgets", ti.Name)

	got, err := m.GetTable("widgets")
	require.NoError(t, err)
	require.Equal(t, ti.TableID, got.TableID)
	require.Equal(t, ti.Heap.FirstPageID(), got.Heap.FirstPageID())
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	m := newTestCatalog(t)
	schema := testSchema()

	_, err := m.CreateTable("widgets", schema)
	require.NoError(t, err)

	_, err = m.CreateTable("widgets", schema)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetTableMissingReturnsNotFound(t *testing.T) {
	m := newTestCatalog(t)
	_, err := m.GetTable("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateIndexValidatesColumns(t *testing.T) {
	m := newTestCatalog(t)
	schema := testSchema()
	_, err := m.CreateTable("widgets", schema)
	require.NoError(t, err)

	_, err = m.CreateIndex("widgets_by_weight", "widgets", []string{"weight"})
	require.ErrorIs(t, err, ErrColumnNotExist)

	idx, err := m.CreateIndex("widgets_by_id", "widgets", []string{"id"})
	require.NoError(t, err)
	require.Equal(t, uint16(4), idx.KeySize)

	indexes, err := m.GetTableIndexes("widgets")
	require.NoError(t, err)
	require.Len(t, indexes, 1)
}

func TestDropTableDropsItsIndexes(t *testing.T) {
	m := newTestCatalog(t)
	schema := testSchema()
	_, err := m.CreateTable("widgets", schema)
	require.NoError(t, err)
	_, err = m.CreateIndex("widgets_by_id", "widgets", []string{"id"})
	require.NoError(t, err)

	require.NoError(t, m.DropTable("widgets"))

	_, err = m.GetTable("widgets")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetIndex("widgets_by_id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := diskmanager.Open(path)
	require.NoError(t, err)

	bp := bufferpool.NewBufferPoolManager(16, dm)
	rootsFrame, err := bp.NewPage()
	require.NoError(t, err)
	require.Equal(t, types.IndexRootsPageID, rootsFrame.PageID)
	bp.UnpinPage(rootsFrame.PageID, true)

	m, err := New(bp, true)
	require.NoError(t, err)
	schema := testSchema()
	_, err = m.CreateTable("widgets", schema)
	require.NoError(t, err)
	require.NoError(t, bp.Close())
	require.NoError(t, dm.Close())

	dm2, err := diskmanager.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { dm2.Close() })
	bp2 := bufferpool.NewBufferPoolManager(16, dm2)

	m2, err := New(bp2, false)
	require.NoError(t, err)
	ti, err := m2.GetTable("widgets")
	require.NoError(t, err)
	require.Equal(t, "widgets", ti.Name)
	require.Len(t, ti.Schema.Columns, 2)
}
