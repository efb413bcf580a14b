// Package catalog persists table and index metadata in dedicated pages and
// resolves names to handles, per spec.md 4.7. A fresh Manager claims
// CATALOG_META_PAGE_ID for its own bookkeeping page; reopening one walks
// that page's table_entries/index_entries and reconstructs every TableHeap
// and index's metadata in memory.
package catalog

import (
	"fmt"
	"log"

	ristretto "github.com/dgraph-io/ristretto/v2"

	"coredb/storage_engine/btree"
	"coredb/storage_engine/bufferpool"
	"coredb/storage_engine/heap"
	"coredb/storage_engine/page"
	"coredb/types"
)

var (
	// ErrAlreadyExists is returned when a table or index name is already
	// registered.
	ErrAlreadyExists = fmt.Errorf("catalog: already exists")
	// ErrNotFound is returned when a name or id has no registered entry.
	ErrNotFound = fmt.Errorf("catalog: not found")
	// ErrColumnNotExist is returned when an index is created against a
	// column the owning table's schema does not have.
	ErrColumnNotExist = fmt.Errorf("catalog: column does not exist")
)

// New constructs a Manager. With init=true it claims a fresh page at
// CATALOG_META_PAGE_ID (the caller must have already allocated
// INDEX_ROOTS_PAGE_ID, so the two reserved pages come out in order). With
// init=false it fetches that page, deserializes it, and reconstructs every
// table's TableHeap and every index's metadata from their own pages.
func New(bp *bufferpool.BufferPoolManager, init bool) (*Manager, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, types.PageID]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: new cache: %w", err)
	}

	m := &Manager{
		bp:         bp,
		tables:     make(map[types.TableID]*TableInfo),
		byMetaPage: make(map[types.PageID]*TableInfo),
		indexes:    make(map[types.IndexID]*IndexInfo),
		cache:      cache,
	}

	if init {
		frame, err := bp.NewPage()
		if err != nil {
			return nil, fmt.Errorf("catalog: claim meta page: %w", err)
		}
		if frame.PageID != types.CatalogMetaPageID {
			bp.UnpinPage(frame.PageID, false)
			return nil, fmt.Errorf("catalog: expected to claim page %d, got %d (index roots page must be allocated first)", types.CatalogMetaPageID, frame.PageID)
		}
		page.InitCatalogMetaPage(frame.Data)
		bp.UnpinPage(frame.PageID, true)
		return m, nil
	}

	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// load fetches the catalog meta page and reconstructs every table and
// index's in-memory metadata from its own dedicated page.
func (m *Manager) load() error {
	frame, err := m.bp.FetchPage(types.CatalogMetaPageID)
	if err != nil {
		return fmt.Errorf("catalog: load: fetch meta page: %w", err)
	}
	tableEntries, indexEntries, err := page.ReadCatalogMeta(frame.Data)
	m.bp.UnpinPage(types.CatalogMetaPageID, false)
	if err != nil {
		return fmt.Errorf("catalog: load: %w", err)
	}

	for _, e := range tableEntries {
		ti, err := m.loadTableMeta(e.MetaPageID)
		if err != nil {
			return fmt.Errorf("catalog: load table %d: %w", e.TableID, err)
		}
		m.tables[ti.TableID] = ti
		m.byMetaPage[ti.MetaPageID] = ti
		m.cache.Set("tbl:"+ti.Name, ti.MetaPageID, 1)
		if ti.TableID >= m.nextTableID {
			m.nextTableID = ti.TableID + 1
		}
	}
	for _, e := range indexEntries {
		ii, err := m.loadIndexMeta(e.MetaPageID)
		if err != nil {
			return fmt.Errorf("catalog: load index %d: %w", e.IndexID, err)
		}
		m.indexes[ii.IndexID] = ii
		m.cache.Set("idx:"+ii.Name, ii.MetaPageID, 1)
		if ii.IndexID >= m.nextIndexID {
			m.nextIndexID = ii.IndexID + 1
		}
	}
	m.cache.Wait()
	return nil
}

func (m *Manager) loadTableMeta(metaPageID types.PageID) (*TableInfo, error) {
	frame, err := m.bp.FetchPage(metaPageID)
	if err != nil {
		return nil, err
	}
	tableID, firstPageID, name, schema, err := page.ReadTableMeta(frame.Data)
	m.bp.UnpinPage(metaPageID, false)
	if err != nil {
		return nil, err
	}
	return &TableInfo{
		TableID:    tableID,
		Name:       name,
		Schema:     schema,
		Heap:       heap.Open(m.bp, firstPageID),
		MetaPageID: metaPageID,
	}, nil
}

func (m *Manager) loadIndexMeta(metaPageID types.PageID) (*IndexInfo, error) {
	frame, err := m.bp.FetchPage(metaPageID)
	if err != nil {
		return nil, err
	}
	indexID, owningTableID, name, keyCols, err := page.ReadIndexMeta(frame.Data)
	m.bp.UnpinPage(metaPageID, false)
	if err != nil {
		return nil, err
	}
	owner, ok := m.tables[owningTableID]
	var keySize uint16
	if ok {
		keySize = keySizeOf(owner.Schema, keyCols)
	}
	return &IndexInfo{
		IndexID:          indexID,
		Name:             name,
		OwningTableID:    owningTableID,
		KeyColumnIndexes: keyCols,
		KeySize:          keySize,
		MetaPageID:       metaPageID,
	}, nil
}

// keySizeOf sums the fixed widths of the key columns, in key order — the
// concatenated encoding a btree.BPlusTree over this index compares as one
// fixed-width key.
func keySizeOf(schema types.Schema, keyColumnIndexes []uint16) uint16 {
	var size uint16
	for _, idx := range keyColumnIndexes {
		if int(idx) < len(schema.Columns) {
			size += schema.Columns[idx].FixedWidth()
		}
	}
	return size
}

// CreateTable registers a new table with a fresh TableHeap, persists its
// metadata to a newly allocated page, and write-through flushes the
// catalog meta page.
func (m *Manager) CreateTable(name string, schema types.Schema) (*TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.findTableLocked(name); exists {
		return nil, fmt.Errorf("%w: table %q", ErrAlreadyExists, name)
	}

	h, err := heap.Create(m.bp)
	if err != nil {
		return nil, fmt.Errorf("catalog: create table %q: %w", name, err)
	}

	frame, err := m.bp.NewPage()
	if err != nil {
		return nil, fmt.Errorf("catalog: create table %q: allocate meta page: %w", name, err)
	}
	tableID := m.nextTableID
	if err := page.WriteTableMeta(frame.Data, tableID, h.FirstPageID(), name, schema); err != nil {
		m.bp.UnpinPage(frame.PageID, false)
		return nil, fmt.Errorf("catalog: create table %q: %w", name, err)
	}
	metaPageID := frame.PageID
	m.bp.UnpinPage(metaPageID, true)
	m.nextTableID++

	ti := &TableInfo{TableID: tableID, Name: name, Schema: schema, Heap: h, MetaPageID: metaPageID}
	m.tables[tableID] = ti
	m.byMetaPage[metaPageID] = ti
	m.cache.Set("tbl:"+name, metaPageID, 1)
	m.cache.Wait()

	if err := m.flushMetaLocked(); err != nil {
		return nil, fmt.Errorf("catalog: create table %q: %w", name, err)
	}
	log.Printf("catalog: created table %q (id=%d, first_page=%d)", name, tableID, h.FirstPageID())
	return ti, nil
}

// findTableLocked resolves name via the cache, falling back to a cold scan
// of every resident TableInfo (which, short of eviction, is everything —
// load() populates the cache for every table at construction).
func (m *Manager) findTableLocked(name string) (*TableInfo, bool) {
	if metaPageID, hit := m.cache.Get("tbl:" + name); hit {
		if ti, ok := m.byMetaPage[metaPageID]; ok {
			return ti, true
		}
	}
	for _, ti := range m.tables {
		if ti.Name == name {
			m.cache.Set("tbl:"+name, ti.MetaPageID, 1)
			return ti, true
		}
	}
	return nil, false
}

func (m *Manager) findIndexLocked(name string) (*IndexInfo, bool) {
	if metaPageID, hit := m.cache.Get("idx:" + name); hit {
		for _, ii := range m.indexes {
			if ii.MetaPageID == metaPageID {
				return ii, true
			}
		}
	}
	for _, ii := range m.indexes {
		if ii.Name == name {
			m.cache.Set("idx:"+name, ii.MetaPageID, 1)
			return ii, true
		}
	}
	return nil, false
}

// GetTable resolves a table by name.
func (m *Manager) GetTable(name string) (*TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ti, ok := m.findTableLocked(name)
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, name)
	}
	return ti, nil
}

// GetTables returns every registered table, in no particular order.
func (m *Manager) GetTables() []*TableInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*TableInfo, 0, len(m.tables))
	for _, ti := range m.tables {
		out = append(out, ti)
	}
	return out
}

// DropTable frees the table's page chain, every index registered against
// it, removes its metadata entry, and write-through flushes the catalog
// meta page.
func (m *Manager) DropTable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ti, ok := m.findTableLocked(name)
	if !ok {
		return fmt.Errorf("%w: table %q", ErrNotFound, name)
	}

	for _, ii := range m.indexes {
		if ii.OwningTableID == ti.TableID {
			if err := m.dropIndexLocked(ii); err != nil {
				return fmt.Errorf("catalog: drop table %q: %w", name, err)
			}
		}
	}

	if err := ti.Heap.DeleteTable(); err != nil {
		return fmt.Errorf("catalog: drop table %q: %w", name, err)
	}
	if !m.bp.DeletePage(ti.MetaPageID) {
		return fmt.Errorf("catalog: drop table %q: meta page %d still pinned", name, ti.MetaPageID)
	}

	delete(m.tables, ti.TableID)
	delete(m.byMetaPage, ti.MetaPageID)
	m.cache.Del("tbl:" + name)
	m.cache.Wait()

	if err := m.flushMetaLocked(); err != nil {
		return fmt.Errorf("catalog: drop table %q: %w", name, err)
	}
	log.Printf("catalog: dropped table %q (id=%d)", name, ti.TableID)
	return nil
}

// CreateIndex registers a secondary index over tableName's keyColumns,
// validating every column name against the table's schema first.
func (m *Manager) CreateIndex(indexName, tableName string, keyColumns []string) (*IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ti, ok := m.findTableLocked(tableName)
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, tableName)
	}
	if _, exists := m.findIndexLocked(indexName); exists {
		return nil, fmt.Errorf("%w: index %q", ErrAlreadyExists, indexName)
	}

	keyCols := make([]uint16, 0, len(keyColumns))
	for _, col := range keyColumns {
		pos, ok := columnIndex(ti.Schema, col)
		if !ok {
			return nil, fmt.Errorf("%w: column %q on table %q", ErrColumnNotExist, col, tableName)
		}
		keyCols = append(keyCols, pos)
	}

	frame, err := m.bp.NewPage()
	if err != nil {
		return nil, fmt.Errorf("catalog: create index %q: allocate meta page: %w", indexName, err)
	}
	indexID := m.nextIndexID
	if err := page.WriteIndexMeta(frame.Data, indexID, ti.TableID, indexName, keyCols); err != nil {
		m.bp.UnpinPage(frame.PageID, false)
		return nil, fmt.Errorf("catalog: create index %q: %w", indexName, err)
	}
	metaPageID := frame.PageID
	m.bp.UnpinPage(metaPageID, true)
	m.nextIndexID++

	ii := &IndexInfo{
		IndexID:          indexID,
		Name:             indexName,
		OwningTableID:    ti.TableID,
		KeyColumnIndexes: keyCols,
		KeySize:          keySizeOf(ti.Schema, keyCols),
		MetaPageID:       metaPageID,
	}
	m.indexes[indexID] = ii
	m.cache.Set("idx:"+indexName, metaPageID, 1)
	m.cache.Wait()

	if err := m.flushMetaLocked(); err != nil {
		return nil, fmt.Errorf("catalog: create index %q: %w", indexName, err)
	}
	log.Printf("catalog: created index %q on table %q (id=%d)", indexName, tableName, indexID)
	return ii, nil
}

func columnIndex(schema types.Schema, name string) (uint16, bool) {
	for i, c := range schema.Columns {
		if c.Name == name {
			return uint16(i), true
		}
	}
	return 0, false
}

// GetIndex resolves a secondary index by name.
func (m *Manager) GetIndex(name string) (*IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ii, ok := m.findIndexLocked(name)
	if !ok {
		return nil, fmt.Errorf("%w: index %q", ErrNotFound, name)
	}
	return ii, nil
}

// GetTableIndexes returns every index registered against tableName.
func (m *Manager) GetTableIndexes(tableName string) ([]*IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ti, ok := m.findTableLocked(tableName)
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, tableName)
	}
	var out []*IndexInfo
	for _, ii := range m.indexes {
		if ii.OwningTableID == ti.TableID {
			out = append(out, ii)
		}
	}
	return out, nil
}

// DropIndex frees the index's on-disk pages (if any were ever written —
// an index with no root entry is dropped as pure metadata) and its
// metadata entry, then write-through flushes the catalog meta page.
func (m *Manager) DropIndex(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ii, ok := m.findIndexLocked(name)
	if !ok {
		return fmt.Errorf("%w: index %q", ErrNotFound, name)
	}
	if err := m.dropIndexLocked(ii); err != nil {
		return fmt.Errorf("catalog: drop index %q: %w", name, err)
	}
	if err := m.flushMetaLocked(); err != nil {
		return fmt.Errorf("catalog: drop index %q: %w", name, err)
	}
	log.Printf("catalog: dropped index %q", name)
	return nil
}

// dropIndexLocked tears down ii's on-disk pages via the B+ tree's own
// Destroy (which also clears the index roots page entry) and removes its
// metadata-page entry. Callers hold m.mu and are responsible for the
// write-through flush.
func (m *Manager) dropIndexLocked(ii *IndexInfo) error {
	tree, err := btree.New(ii.IndexID, m.bp, ii.KeySize, 0, 0, nil)
	if err != nil {
		return fmt.Errorf("open index %d for teardown: %w", ii.IndexID, err)
	}
	if root := tree.Root(); root != types.InvalidPageID {
		if err := tree.Destroy(root); err != nil {
			return fmt.Errorf("destroy index %d pages: %w", ii.IndexID, err)
		}
	}

	if !m.bp.DeletePage(ii.MetaPageID) {
		return fmt.Errorf("index meta page %d still pinned", ii.MetaPageID)
	}
	delete(m.indexes, ii.IndexID)
	m.cache.Del("idx:" + ii.Name)
	m.cache.Wait()
	return nil
}

// FlushCatalogMetaPage forces the catalog meta page to disk, independent
// of any pending mutation.
func (m *Manager) FlushCatalogMetaPage() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushMetaLocked()
}

func (m *Manager) flushMetaLocked() error {
	frame, err := m.bp.FetchPage(types.CatalogMetaPageID)
	if err != nil {
		return fmt.Errorf("fetch catalog meta page: %w", err)
	}
	tableEntries := make([]page.CatalogTableEntry, 0, len(m.tables))
	for _, ti := range m.tables {
		tableEntries = append(tableEntries, page.CatalogTableEntry{TableID: ti.TableID, MetaPageID: ti.MetaPageID})
	}
	indexEntries := make([]page.CatalogIndexEntry, 0, len(m.indexes))
	for _, ii := range m.indexes {
		indexEntries = append(indexEntries, page.CatalogIndexEntry{IndexID: ii.IndexID, MetaPageID: ii.MetaPageID})
	}
	if err := page.WriteCatalogMeta(frame.Data, tableEntries, indexEntries); err != nil {
		m.bp.UnpinPage(types.CatalogMetaPageID, false)
		return err
	}
	m.bp.UnpinPage(types.CatalogMetaPageID, true)
	if !m.bp.FlushPage(types.CatalogMetaPageID) {
		return fmt.Errorf("flush catalog meta page")
	}
	return nil
}
