package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredb/storage_engine/recovery"
)

func TestBeginCommitRemovesFromActiveSet(t *testing.T) {
	lm := recovery.NewLogManager()
	tm, err := NewTxnManager(lm)
	require.NoError(t, err)

	tx := tm.Begin()
	require.True(t, tm.IsActive(tx.ID))

	require.NoError(t, tm.Commit(tx.ID))
	require.False(t, tm.IsActive(tx.ID))
	require.Equal(t, TxnCommitted, tx.State)

	records := lm.Records()
	require.Len(t, records, 2)
	require.Equal(t, recovery.RecordBegin, records[0].Type)
	require.Equal(t, recovery.RecordCommit, records[1].Type)
}

func TestAbortAfterCommitIsRejected(t *testing.T) {
	lm := recovery.NewLogManager()
	tm, err := NewTxnManager(lm)
	require.NoError(t, err)

	tx := tm.Begin()
	require.NoError(t, tm.Commit(tx.ID))
	require.Error(t, tm.Abort(tx.ID))
}

func TestInsertRejectedOnInactiveTransaction(t *testing.T) {
	lm := recovery.NewLogManager()
	tm, err := NewTxnManager(lm)
	require.NoError(t, err)

	tx := tm.Begin()
	require.NoError(t, tm.Commit(tx.ID))

	require.Error(t, tm.Insert(tx, "a", 1))
}

func TestActiveTransactionsSnapshot(t *testing.T) {
	lm := recovery.NewLogManager()
	tm, err := NewTxnManager(lm)
	require.NoError(t, err)

	t1 := tm.Begin()
	t2 := tm.Begin()
	require.NoError(t, tm.Commit(t1.ID))

	active := tm.ActiveTransactions()
	require.Len(t, active, 1)
	require.Equal(t, t2.ID, active[0].ID)
}
