package recovery

import (
	"log"

	"coredb/types"
)

// Manager runs the REDO-then-UNDO recovery algorithm over a single
// in-memory key-value map, per spec.md 4.8. It is not safe for concurrent
// use — recovery is expected to run single-threaded at startup.
type Manager struct {
	persistLSN types.LSN
	activeTxns map[types.TxnID]types.LSN
	data       map[string]int32

	// logIndex is reset by Init and built by Redo from the log handed to it, and
	// reused by Undo so both phases walk the same prev_lsn chains.
	logIndex map[types.LSN]*LogRecord
}

// NewManager returns a Manager with no state; callers must call Init
// before Redo.
func NewManager() *Manager {
	return &Manager{}
}

// Init installs persist_lsn and active_txns from checkpoint, and starts
// the working data map from checkpoint.PersistData — a fresh copy, so
// mutating Manager.Data() never aliases the checkpoint the caller holds.
func (m *Manager) Init(checkpoint Checkpoint) {
	m.persistLSN = checkpoint.CheckpointLSN
	m.activeTxns = make(map[types.TxnID]types.LSN, len(checkpoint.ActiveTxns))
	for txn, lsn := range checkpoint.ActiveTxns {
		m.activeTxns[txn] = lsn
	}
	m.data = make(map[string]int32, len(checkpoint.PersistData))
	for k, v := range checkpoint.PersistData {
		m.data[k] = v
	}
	m.logIndex = nil
}

// Data returns the manager's current working state. Only meaningful after
// Redo and Undo have both run.
func (m *Manager) Data() map[string]int32 { return m.data }

// Redo replays records in ascending LSN order starting after persist_lsn.
// records need not be sorted by the caller; Redo sorts a copy. Every
// record updates active_txns[txn] to the record's own LSN before its
// type-specific effect is applied — this is how a transaction that only
// appears after the checkpoint (e.g. a Begin with no prior active_txns
// entry) becomes tracked for Undo.
func (m *Manager) Redo(records []*LogRecord) {
	ordered := sortedByLSN(records)
	m.logIndex = make(map[types.LSN]*LogRecord, len(ordered))
	for _, rec := range ordered {
		m.logIndex[rec.LSN] = rec
	}

	applied := 0
	for _, rec := range ordered {
		if rec.LSN <= m.persistLSN {
			continue
		}
		applied++
		m.activeTxns[rec.TxnID] = rec.LSN
		switch rec.Type {
		case RecordInsert:
			m.data[rec.Key1] = rec.Val1
		case RecordDelete:
			delete(m.data, rec.Key1)
		case RecordUpdate:
			delete(m.data, rec.Key1)
			m.data[rec.Key2] = rec.Val2
		case RecordBegin:
			// no data effect; registration above is enough.
		case RecordCommit:
			delete(m.activeTxns, rec.TxnID)
		case RecordAbort:
			m.rollback(rec.TxnID)
			delete(m.activeTxns, rec.TxnID)
		}
	}
	log.Printf("recovery: redo applied %d records past LSN %d, %d txns still active", applied, m.persistLSN, len(m.activeTxns))
}

// Undo rolls back every transaction still in active_txns after Redo —
// the ones that were neither committed nor already aborted by a log
// record Redo processed.
func (m *Manager) Undo() {
	pending := make([]types.TxnID, 0, len(m.activeTxns))
	for txn := range m.activeTxns {
		pending = append(pending, txn)
	}
	for _, txn := range pending {
		m.rollback(txn)
	}
	log.Printf("recovery: undo rolled back %d still-active transactions", len(pending))
	m.activeTxns = make(map[types.TxnID]types.LSN)
}

// rollback walks txn's prev_lsn chain starting at its currently tracked
// last LSN, reversing Insert/Delete/Update effects. It terminates at
// INVALID_LSN or at the first LSN with no corresponding record in
// logIndex — records from before the checkpoint's log window are not
// replayable, but their effects are already folded into persist_data, so
// stopping there is correct, not a truncation.
func (m *Manager) rollback(txn types.TxnID) {
	cur, ok := m.activeTxns[txn]
	if !ok {
		return
	}
	for cur != types.InvalidLSN {
		rec, ok := m.logIndex[cur]
		if !ok {
			return
		}
		switch rec.Type {
		case RecordInsert:
			delete(m.data, rec.Key1)
		case RecordDelete:
			m.data[rec.Key1] = rec.Val1
		case RecordUpdate:
			delete(m.data, rec.Key2)
			m.data[rec.Key1] = rec.Val1
		}
		cur = rec.PrevLSN
	}
}

func sortedByLSN(records []*LogRecord) []*LogRecord {
	out := make([]*LogRecord, len(records))
	copy(out, records)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].LSN > out[j].LSN; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
