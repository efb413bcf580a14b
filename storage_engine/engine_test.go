package storageengine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"coredb/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(filepath.Join(dir, "test.db"), 32)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func usersSchema() types.Schema {
	return types.Schema{Columns: []types.ColumnDef{
		{Name: "id", Type: types.ColumnInt32, TableIndex: 0},
		{Name: "name", Type: types.ColumnChar, Length: 16, TableIndex: 1},
	}}
}

func TestInsertAndGetRowRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))

	rid, err := e.InsertRow("users", []any{int32(1), "alice"}, types.InvalidTxnID)
	require.NoError(t, err)

	values, err := e.GetRow("users", rid)
	require.NoError(t, err)
	require.Equal(t, int32(1), values[0])
	require.Equal(t, "alice", values[1])
}

func TestCreateIndexAndLookup(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))
	require.NoError(t, e.CreateIndex("users_id_idx", "users", []string{"id"}))

	rid, err := e.InsertRow("users", []any{int32(42), "bob"}, types.InvalidTxnID)
	require.NoError(t, err)

	key, err := EncodeIndexKey(usersSchema(), []any{int32(42), "bob"}, []uint16{0})
	require.NoError(t, err)

	got, found, err := e.lookupByIndex("users_id_idx", key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid, got)
}

func TestDeleteRowTombstonesWithoutIndexCleanup(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))

	rid, err := e.InsertRow("users", []any{int32(1), "alice"}, types.InvalidTxnID)
	require.NoError(t, err)

	require.NoError(t, e.DeleteRow("users", rid, types.InvalidTxnID))

	_, ok, err := (func() ([]byte, bool, error) {
		ti, err := e.Catalog.GetTable("users")
		require.NoError(t, err)
		return ti.Heap.GetTuple(rid)
	})()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScanVisitsEveryInsertedRow(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))

	for i := int32(0); i < 5; i++ {
		_, err := e.InsertRow("users", []any{i, "row"}, types.InvalidTxnID)
		require.NoError(t, err)
	}

	scanner, err := e.Scan("users")
	require.NoError(t, err)
	defer scanner.Close()

	count := 0
	for scanner.Valid() {
		values, err := scanner.Values()
		require.NoError(t, err)
		require.Equal(t, "row", values[1])
		count++
		require.NoError(t, scanner.Next())
	}
	require.Equal(t, 5, count)
}

func TestCheckpointPersistsActiveTransactions(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))

	tx := e.TxnManager.Begin()
	_, err := e.InsertRow("users", []any{int32(1), "alice"}, tx.ID)
	require.NoError(t, err)

	require.NoError(t, e.Checkpoint())

	cp, err := e.CheckpointManager.LoadCheckpoint()
	require.NoError(t, err)
	_, ok := cp.ActiveTxns[tx.ID]
	require.True(t, ok)
}
