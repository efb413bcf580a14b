package txn

import (
	"sync"

	"coredb/storage_engine/recovery"
	"coredb/types"
)

type TxnState uint8

const (
	TxnActive TxnState = iota
	TxnCommitted
	TxnAborted
)

// Transaction is the minimal handle spec.md's Non-goals leave for the lock
// manager beyond the hooks the heap and B+ tree expose to it: an id and a
// state, with every data effect recorded through the shared LogManager
// rather than a private undo log.
type Transaction struct {
	ID    types.TxnID
	State TxnState
}

// TxnManager issues transaction ids and tracks which are still active. It
// does not implement isolation or locking — spec.md's Non-goals exclude
// the lock manager from this core — it exists so the recovery manager has
// something to build a Checkpoint.ActiveTxns snapshot from.
type TxnManager struct {
	nextID     types.TxnID
	activeTxns map[types.TxnID]*Transaction
	lm         *recovery.LogManager
	mu         sync.RWMutex
}
