package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredb/types"
)

// TestRecoveryScenarioS6 reproduces spec.md's literal S6 scenario: a
// checkpoint at LSN 5 with one in-flight transaction, a log tail mixing a
// second transaction's commit with the first transaction's abort, and the
// expected post-recovery state.
func TestRecoveryScenarioS6(t *testing.T) {
	const t1, t2 = types.TxnID(1), types.TxnID(2)

	checkpoint := Checkpoint{
		CheckpointLSN: 5,
		ActiveTxns:    map[types.TxnID]types.LSN{t1: 4},
		PersistData:   map[string]int32{"a": 1},
	}

	records := []*LogRecord{
		{LSN: 6, PrevLSN: 4, TxnID: t1, Type: RecordInsert, Key1: "b", Val1: 2},
		{LSN: 7, PrevLSN: types.InvalidLSN, TxnID: t2, Type: RecordBegin},
		{LSN: 8, PrevLSN: 7, TxnID: t2, Type: RecordInsert, Key1: "c", Val1: 3},
		{LSN: 9, PrevLSN: 8, TxnID: t2, Type: RecordCommit},
		{LSN: 10, PrevLSN: 6, TxnID: t1, Type: RecordAbort},
	}

	m := NewManager()
	m.Init(checkpoint)
	m.Redo(records)
	m.Undo()

	require.Equal(t, map[string]int32{"a": 1, "c": 3}, m.Data())
}

func TestLogManagerTracksPrevLSNPerTransaction(t *testing.T) {
	lm := NewLogManager()
	const txn = types.TxnID(1)

	begin := lm.Begin(txn)
	require.Equal(t, types.InvalidLSN, begin.PrevLSN)

	ins := lm.Insert(txn, "x", 10)
	require.Equal(t, begin.LSN, ins.PrevLSN)

	commit := lm.Commit(txn)
	require.Equal(t, ins.LSN, commit.PrevLSN)
}

func TestLogManagerRecordsRoundTripThroughWireEncoding(t *testing.T) {
	lm := NewLogManager()
	const txn = types.TxnID(1)
	lm.Begin(txn)
	lm.Insert(txn, "x", 10)
	lm.Commit(txn)

	decoded, err := DecodeLog(lm.Bytes())
	require.NoError(t, err)
	require.Equal(t, lm.Records(), decoded)
}

func TestCheckpointRoundTripsThroughMsgpack(t *testing.T) {
	cp := Checkpoint{
		CheckpointLSN: 5,
		ActiveTxns:    map[types.TxnID]types.LSN{1: 4},
		PersistData:   map[string]int32{"a": 1},
	}
	encoded, err := cp.Encode()
	require.NoError(t, err)

	decoded, err := DecodeCheckpoint(encoded)
	require.NoError(t, err)
	require.Equal(t, cp, decoded)
}

func TestUndoRollsBackTransactionWithNoCommitOrAbortRecord(t *testing.T) {
	checkpoint := Checkpoint{
		CheckpointLSN: 0,
		ActiveTxns:    map[types.TxnID]types.LSN{},
		PersistData:   map[string]int32{},
	}
	const txn = types.TxnID(1)
	records := []*LogRecord{
		{LSN: 1, PrevLSN: types.InvalidLSN, TxnID: txn, Type: RecordBegin},
		{LSN: 2, PrevLSN: 1, TxnID: txn, Type: RecordInsert, Key1: "x", Val1: 10},
	}

	m := NewManager()
	m.Init(checkpoint)
	m.Redo(records)
	require.Equal(t, map[string]int32{"x": 10}, m.Data())

	m.Undo()
	require.Equal(t, map[string]int32{}, m.Data())
}
