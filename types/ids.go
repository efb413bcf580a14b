// Package types holds the identifier types and page-format constants shared
// by every layer of the storage engine: disk manager, buffer pool, page
// layouts, B+ tree, table heap, catalog and recovery. Keeping them in one
// leaf package avoids import cycles between those layers.
package types

// PageSize is the fixed size, in bytes, of every physical and logical page.
// It is a compile-time constant shared by all components — nothing in the
// engine supports a mixed page size within one database file.
const PageSize = 4096

// Sentinel identifiers. All ID types are 32-bit signed integers so that a
// negative value can serve as "invalid" without needing an extra bool.
const (
	InvalidPageID  PageID  = -1
	InvalidFrameID FrameID = -1
	InvalidTxnID   TxnID   = -1
	InvalidLSN     LSN     = -1
)

// Reserved logical page IDs. The disk file's meta page (num_allocated_pages,
// num_extents, per-extent used counts) lives at physical page 0, outside the
// bitmap/extent scheme entirely, and is never addressed through the normal
// logical page API — so the logical space can start allocation at 0. The
// first two logical pages a fresh file allocates are always reserved, in
// order, for the index-roots map and the catalog meta page, so every
// component can find them without a bootstrap lookup.
const (
	IndexRootsPageID  PageID = 0
	CatalogMetaPageID PageID = 1
)

type (
	// PageID is a logical page identifier, dense starting at 0.
	PageID int32
	// FrameID indexes a frame slot in the buffer pool's frame array.
	FrameID int32
	// TableID identifies a table registered in the catalog.
	TableID int32
	// IndexID identifies a secondary index registered in the catalog.
	IndexID int32
	// TxnID identifies a logical transaction in the recovery log.
	TxnID int32
	// LSN is a monotonically increasing log sequence number.
	LSN int32
)

// RowID locates one tuple inside a table heap: the page that holds it and
// its slot within that page's slot directory.
type RowID struct {
	PageID PageID
	Slot   uint16
}

// InvalidRowID is the sentinel "no such row" value, used as the End()
// cursor of a table heap scan.
var InvalidRowID = RowID{PageID: InvalidPageID, Slot: 0}

func (r RowID) Valid() bool { return r.PageID != InvalidPageID }
