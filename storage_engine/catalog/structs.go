package catalog

import (
	"sync"

	ristretto "github.com/dgraph-io/ristretto/v2"

	"coredb/storage_engine/bufferpool"
	"coredb/storage_engine/heap"
	"coredb/types"
)

// TableInfo is everything the catalog knows about one table, reconstructed
// from its dedicated metadata page (or freshly built by CreateTable).
type TableInfo struct {
	TableID    types.TableID
	Name       string
	Schema     types.Schema
	Heap       *heap.TableHeap
	MetaPageID types.PageID
}

// IndexInfo is everything the catalog knows about one secondary index. It
// does not embed a *btree.BPlusTree: the tree is opened lazily by callers
// that need it (GetIndex only resolves the handle; btree.New is cheap
// enough to call on every access, and keeps the catalog from having to
// track per-tree degree parameters it has no use for otherwise).
type IndexInfo struct {
	IndexID          types.IndexID
	Name             string
	OwningTableID    types.TableID
	KeyColumnIndexes []uint16
	KeySize          uint16
	MetaPageID       types.PageID
}

// Manager persists and resolves table and index metadata. Every mutation
// to the set of tables or indexes is followed by reserializing and
// flushing the catalog meta page (CATALOG_META_PAGE_ID), per spec.md
// 4.7's write-through discipline.
type Manager struct {
	bp *bufferpool.BufferPoolManager

	mu sync.Mutex

	tables     map[types.TableID]*TableInfo
	byMetaPage map[types.PageID]*TableInfo
	indexes    map[types.IndexID]*IndexInfo

	nextTableID types.TableID
	nextIndexID types.IndexID

	// cache is a read-through name -> metadata-page-id cache. A hit skips
	// straight to byMetaPage; a miss falls back to a linear scan of the
	// in-memory tables/indexes maps by name, and re-populates the cache.
	cache *ristretto.Cache[string, types.PageID]
}
