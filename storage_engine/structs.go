// Package storageengine assembles the disk manager, buffer pool, catalog,
// table heaps, B+ tree indexes, transaction manager and recovery machinery
// into one handle for a single database file. Everything above this layer
// — a SQL parser, a query planner, a VM — is out of scope per spec.md's
// Non-goals; this package exposes tuple-level CRUD and index maintenance
// only.
package storageengine

import (
	"fmt"
	"path/filepath"

	"coredb/storage_engine/bufferpool"
	"coredb/storage_engine/catalog"
	checkpoint "coredb/storage_engine/checkpoint_manager"
	diskmanager "coredb/storage_engine/disk_manager"
	"coredb/storage_engine/recovery"
	txn "coredb/storage_engine/transaction_manager"
	"coredb/storage_engine/wal_manager"
	"coredb/types"
)

// DefaultPoolSize is the buffer pool's frame count when the caller doesn't
// override it. Chosen to comfortably hold a small working set of table and
// index pages without configuration.
const DefaultPoolSize = 256

// Engine owns every resource backing one database file: the disk manager,
// its buffer pool, the catalog, the write-ahead log and checkpoint files,
// and the transaction manager issuing txn ids against that log.
type Engine struct {
	DiskManager       *diskmanager.DiskManager
	BufferPool        *bufferpool.BufferPoolManager
	Catalog           *catalog.Manager
	LogManager        *recovery.LogManager
	WalManager        *wal_manager.WALManager
	TxnManager        *txn.TxnManager
	CheckpointManager *checkpoint.CheckpointManager
}

// Open opens (creating if necessary) the database file at dbPath and the
// wal/checkpoint state alongside it. A brand-new file bootstraps the
// reserved index-roots and catalog meta pages; an existing one reloads the
// catalog from them.
func Open(dbPath string, poolSize int) (*Engine, error) {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	dm, err := diskmanager.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("storageengine: open disk manager: %w", err)
	}
	bp := bufferpool.NewBufferPoolManager(poolSize, dm)

	fresh := dm.Stats().NumAllocatedPages == 0
	if fresh {
		if _, err := bp.NewPage(); err != nil { // claims IndexRootsPageID
			return nil, fmt.Errorf("storageengine: bootstrap index roots page: %w", err)
		}
		bp.UnpinPage(types.IndexRootsPageID, true)
	}

	cat, err := catalog.New(bp, fresh)
	if err != nil {
		return nil, fmt.Errorf("storageengine: open catalog: %w", err)
	}

	lm := recovery.NewLogManager()

	walDir := filepath.Join(filepath.Dir(dbPath), "wal")
	wm, err := wal_manager.Open(walDir)
	if err != nil {
		return nil, fmt.Errorf("storageengine: open wal: %w", err)
	}

	cm, err := checkpoint.NewCheckpointManager(filepath.Dir(dbPath))
	if err != nil {
		return nil, fmt.Errorf("storageengine: open checkpoint manager: %w", err)
	}

	tm, err := txn.NewTxnManager(lm)
	if err != nil {
		return nil, fmt.Errorf("storageengine: open txn manager: %w", err)
	}

	return &Engine{
		DiskManager:       dm,
		BufferPool:        bp,
		Catalog:           cat,
		LogManager:        lm,
		WalManager:        wm,
		TxnManager:        tm,
		CheckpointManager: cm,
	}, nil
}

// Checkpoint flushes every dirty page, drains the log to the WAL, and
// records a recovery checkpoint at the log's current LSN, so a crash
// before the next checkpoint can resume recovery from here rather than
// from LSN 0.
func (e *Engine) Checkpoint() error {
	if err := e.Catalog.FlushCatalogMetaPage(); err != nil {
		return fmt.Errorf("storageengine: checkpoint: %w", err)
	}
	if err := e.BufferPool.FlushAllPages(); err != nil {
		return fmt.Errorf("storageengine: checkpoint: flush pages: %w", err)
	}

	active := map[types.TxnID]types.LSN{}
	for _, t := range e.TxnManager.ActiveTransactions() {
		active[t.ID] = e.LogManager.LastLSN(t.ID)
	}

	lsn := e.lastLSN()
	if err := e.WalManager.Flush(e.LogManager); err != nil {
		return fmt.Errorf("storageengine: checkpoint: flush wal: %w", err)
	}

	return e.CheckpointManager.SaveCheckpoint(recovery.Checkpoint{
		CheckpointLSN: lsn,
		ActiveTxns:    active,
		PersistData:   map[string]int32{},
	})
}

func (e *Engine) lastLSN() types.LSN {
	records := e.LogManager.Records()
	if len(records) == 0 {
		return types.InvalidLSN
	}
	return records[len(records)-1].LSN
}

// Close checkpoints and releases every resource Open acquired.
func (e *Engine) Close() error {
	if err := e.Checkpoint(); err != nil {
		return err
	}
	if err := e.WalManager.Close(); err != nil {
		return fmt.Errorf("storageengine: close wal: %w", err)
	}
	if err := e.BufferPool.Close(); err != nil {
		return fmt.Errorf("storageengine: close buffer pool: %w", err)
	}
	if err := e.DiskManager.Close(); err != nil {
		return fmt.Errorf("storageengine: close disk manager: %w", err)
	}
	return nil
}

// CreateTable registers a new table in the catalog with a fresh heap.
func (e *Engine) CreateTable(name string, schema types.Schema) error {
	_, err := e.Catalog.CreateTable(name, schema)
	return err
}

// CreateIndex builds a secondary index over tableName's keyColumns.
func (e *Engine) CreateIndex(indexName, tableName string, keyColumns []string) error {
	_, err := e.Catalog.CreateIndex(indexName, tableName, keyColumns)
	return err
}
