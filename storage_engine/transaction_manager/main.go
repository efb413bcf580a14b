package txn

import (
	"fmt"

	"coredb/storage_engine/recovery"
	"coredb/types"
)

/*
Transaction manager tracks the BEGIN/COMMIT/ABORT state of a transaction and
emits the corresponding log records through the shared LogManager. It does
not implement isolation or locking — spec.md's Non-goals leave that to a
lock manager this core does not have — so Begin/Commit/Abort are the whole
surface: the heap and B+ tree call lm.Insert/Delete/Update directly under
whatever txn id the caller is running as.
*/

// NewTxnManager returns a TxnManager whose transactions log through lm.
func NewTxnManager(lm *recovery.LogManager) (*TxnManager, error) {
	return &TxnManager{
		nextID:     1,
		activeTxns: make(map[types.TxnID]*Transaction),
		lm:         lm,
	}, nil
}

// Begin issues a new transaction id, writes its Begin record, and registers
// it as active.
func (tm *TxnManager) Begin() *Transaction {
	tm.mu.Lock()
	txnID := tm.nextID
	tm.nextID++
	txn := &Transaction{ID: txnID, State: TxnActive}
	tm.activeTxns[txnID] = txn
	tm.mu.Unlock()

	tm.lm.Begin(txnID)
	return txn
}

// Commit writes txnID's Commit record and removes it from the active set.
func (tm *TxnManager) Commit(txnID types.TxnID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	txn, exists := tm.activeTxns[txnID]
	if !exists {
		return nil // already committed/aborted, or never existed — idempotent
	}
	if txn.State == TxnAborted {
		return fmt.Errorf("txn: transaction %d was already aborted", txnID)
	}

	txn.State = TxnCommitted
	delete(tm.activeTxns, txnID)
	tm.lm.Commit(txnID)
	return nil
}

// Abort writes txnID's Abort record and removes it from the active set.
// Aborting an id that was issued but has already committed or aborted is an
// error; an id that was never issued is a no-op. Undoing the transaction's effects is recovery.Manager's job, driven by
// the Abort record this leaves behind — not this method's.
func (tm *TxnManager) Abort(txnID types.TxnID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	txn, exists := tm.activeTxns[txnID]
	if !exists {
		if txnID >= 1 && txnID < tm.nextID {
			return fmt.Errorf("txn: transaction %d has already finished", txnID)
		}
		return nil
	}
	if txn.State == TxnCommitted {
		return fmt.Errorf("txn: transaction %d was already committed", txnID)
	}

	txn.State = TxnAborted
	delete(tm.activeTxns, txnID)
	tm.lm.Abort(txnID)
	return nil
}

// GetTransaction returns the transaction with the given id, or nil if it
// isn't currently active.
func (tm *TxnManager) GetTransaction(txnID types.TxnID) *Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.activeTxns[txnID]
}

// IsActive reports whether txnID is currently active.
func (tm *TxnManager) IsActive(txnID types.TxnID) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, exists := tm.activeTxns[txnID]
	return exists
}

// ActiveTransactions returns a snapshot of every transaction still active,
// the set a checkpoint needs for recovery.Checkpoint.ActiveTxns.
func (tm *TxnManager) ActiveTransactions() []*Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	txns := make([]*Transaction, 0, len(tm.activeTxns))
	for _, txn := range tm.activeTxns {
		txns = append(txns, txn)
	}
	return txns
}
