// Package btree implements a disk-resident B+ tree index keyed by
// fixed-width byte strings and valued by RowId, built directly on the
// buffer pool. Every page touched during a call is pinned for the
// duration of that call and unpinned before the call returns; the tree
// itself is single-writer, serialized by one mutex, matching the
// coarse-grained locking the rest of the storage engine uses instead of
// per-page latch coupling.
package btree

import (
	"bytes"
	"fmt"
	"sync"

	"coredb/storage_engine/bufferpool"
	"coredb/storage_engine/page"
	"coredb/types"
)

// Comparator orders two fixed-width keys the same way bytes.Compare does.
type Comparator func(a, b []byte) int

// BPlusTree is one secondary index's on-disk structure, rooted at the page
// recorded for its IndexID in the index roots page.
type BPlusTree struct {
	indexID           types.IndexID
	bp                *bufferpool.BufferPoolManager
	keySize           uint16
	leafMaxSize       uint16
	internalMaxSize   uint16
	cmp               Comparator
	root              types.PageID

	mu sync.Mutex
}

// New opens the tree for indexID, loading its current root (if any) from
// the index roots page. A leafMaxSize or internalMaxSize of 0 is replaced
// with however many fixed-width entries of keySize actually fit on a page,
// matching how the source derives its degree from record width rather
// than hardcoding it.
func New(indexID types.IndexID, bp *bufferpool.BufferPoolManager, keySize uint16, leafMaxSize, internalMaxSize uint16, cmp Comparator) (*BPlusTree, error) {
	if cmp == nil {
		cmp = bytes.Compare
	}
	if leafMaxSize == 0 {
		leafMaxSize = defaultLeafMaxSize(keySize)
	}
	if internalMaxSize == 0 {
		internalMaxSize = defaultInternalMaxSize(keySize)
	}

	t := &BPlusTree{
		indexID:         indexID,
		bp:              bp,
		keySize:         keySize,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		cmp:             cmp,
		root:            types.InvalidPageID,
	}

	frame, err := bp.FetchPage(types.IndexRootsPageID)
	if err != nil {
		return nil, fmt.Errorf("btree: open index %d: %w", indexID, err)
	}
	entries := page.ReadIndexRoots(frame.Data)
	if root, ok := page.LookupIndexRoot(entries, indexID); ok {
		t.root = root
	}
	bp.UnpinPage(types.IndexRootsPageID, false)
	return t, nil
}

func defaultLeafMaxSize(keySize uint16) uint16 {
	tmp := make([]byte, types.PageSize)
	page.InitLeafPage(tmp, 0, types.InvalidPageID, keySize, 0)
	return uint16(page.BTreeCapacity(tmp))
}

func defaultInternalMaxSize(keySize uint16) uint16 {
	tmp := make([]byte, types.PageSize)
	page.InitInternalPage(tmp, 0, types.InvalidPageID, keySize, 0)
	return uint16(page.BTreeCapacity(tmp))
}

func (t *BPlusTree) leafMinSize() int     { return int(t.leafMaxSize+1) / 2 }
func (t *BPlusTree) internalMinSize() int { return int(t.internalMaxSize+1) / 2 }

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root == types.InvalidPageID
}

// Root returns the tree's current root page id, or types.InvalidPageID if
// the tree is empty. Used by the catalog manager to tear down an index's
// pages on DropIndex without duplicating root-map bookkeeping.
func (t *BPlusTree) Root() types.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

func (t *BPlusTree) updateRootMap(newRoot types.PageID) error {
	frame, err := t.bp.FetchPage(types.IndexRootsPageID)
	if err != nil {
		return fmt.Errorf("btree: update root map: %w", err)
	}
	entries := page.ReadIndexRoots(frame.Data)
	if newRoot == types.InvalidPageID {
		entries = page.ClearIndexRoot(entries, t.indexID)
	} else {
		entries = page.SetIndexRoot(entries, t.indexID, newRoot)
	}
	if err := page.WriteIndexRoots(frame.Data, entries); err != nil {
		t.bp.UnpinPage(types.IndexRootsPageID, false)
		return fmt.Errorf("btree: update root map: %w", err)
	}
	t.bp.UnpinPage(types.IndexRootsPageID, true)
	return nil
}

// leafSearch returns the index of key within data if present; otherwise it
// returns the index at which key would need to be inserted to keep the
// entries sorted (found=false).
func (t *BPlusTree) leafSearch(data []byte, key []byte) (idx int, found bool) {
	n := int(page.BTreeSize(data))
	for i := 0; i < n; i++ {
		c := t.cmp(page.KeyAt(data, i), key)
		if c == 0 {
			return i, true
		}
		if c > 0 {
			return i, false
		}
	}
	return n, false
}

// internalChildIndex returns the largest i >= 1 such that keys[i] <= key,
// or 0 if no such i exists — the entry whose child subtree may contain
// key, honoring entry 0's unused placeholder key.
func (t *BPlusTree) internalChildIndex(data []byte, key []byte) int {
	n := int(page.BTreeSize(data))
	result := 0
	for i := 1; i < n; i++ {
		if t.cmp(page.KeyAt(data, i), key) <= 0 {
			result = i
		} else {
			break
		}
	}
	return result
}

func findChildPos(parentData []byte, childID types.PageID) int {
	n := int(page.BTreeSize(parentData))
	for i := 0; i < n; i++ {
		if page.InternalValueAt(parentData, i) == childID {
			return i
		}
	}
	return -1
}

// findLeaf descends from the root to the leaf that would hold key,
// unpinning every ancestor page along the way. Returns the leaf pinned.
func (t *BPlusTree) findLeaf(key []byte) (*page.Frame, error) {
	frame, err := t.bp.FetchPage(t.root)
	if err != nil {
		return nil, fmt.Errorf("btree: descend: %w", err)
	}
	for !page.BTreeIsLeaf(frame.Data) {
		childIdx := t.internalChildIndex(frame.Data, key)
		childID := page.InternalValueAt(frame.Data, childIdx)
		childFrame, err := t.bp.FetchPage(childID)
		if err != nil {
			t.bp.UnpinPage(frame.PageID, false)
			return nil, fmt.Errorf("btree: descend: %w", err)
		}
		t.bp.UnpinPage(frame.PageID, false)
		frame = childFrame
	}
	return frame, nil
}

func (t *BPlusTree) leftmostLeaf() (*page.Frame, error) {
	frame, err := t.bp.FetchPage(t.root)
	if err != nil {
		return nil, err
	}
	for !page.BTreeIsLeaf(frame.Data) {
		childID := page.InternalValueAt(frame.Data, 0)
		childFrame, err := t.bp.FetchPage(childID)
		if err != nil {
			t.bp.UnpinPage(frame.PageID, false)
			return nil, err
		}
		t.bp.UnpinPage(frame.PageID, false)
		frame = childFrame
	}
	return frame, nil
}

// GetValue looks up key, returning its RowId and ok=true if present.
func (t *BPlusTree) GetValue(key []byte) (types.RowID, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == types.InvalidPageID {
		return types.InvalidRowID, false, nil
	}
	leaf, err := t.findLeaf(key)
	if err != nil {
		return types.InvalidRowID, false, err
	}
	idx, found := t.leafSearch(leaf.Data, key)
	var rid types.RowID
	if found {
		rid = page.LeafValueAt(leaf.Data, idx)
	}
	t.bp.UnpinPage(leaf.PageID, false)
	return rid, found, nil
}

// Insert adds (key, value). Returns ok=false without modifying the tree if
// key is already present — duplicate keys are rejected, not overwritten.
func (t *BPlusTree) Insert(key []byte, value types.RowID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == types.InvalidPageID {
		frame, err := t.bp.NewPage()
		if err != nil {
			return false, fmt.Errorf("btree: insert: %w", err)
		}
		page.InitLeafPage(frame.Data, frame.PageID, types.InvalidPageID, t.keySize, t.leafMaxSize)
		page.InsertLeafEntryAt(frame.Data, 0, key, value)
		t.root = frame.PageID
		if err := t.updateRootMap(t.root); err != nil {
			t.bp.UnpinPage(frame.PageID, true)
			return false, err
		}
		t.bp.UnpinPage(frame.PageID, true)
		return true, nil
	}

	leaf, err := t.findLeaf(key)
	if err != nil {
		return false, err
	}
	idx, found := t.leafSearch(leaf.Data, key)
	if found {
		t.bp.UnpinPage(leaf.PageID, false)
		return false, nil
	}

	page.InsertLeafEntryAt(leaf.Data, idx, key, value)
	if page.BTreeSize(leaf.Data) == t.leafMaxSize {
		if err := t.splitLeaf(leaf); err != nil {
			return false, err
		}
		return true, nil
	}
	t.bp.UnpinPage(leaf.PageID, true)
	return true, nil
}

// splitLeaf moves the upper half of leaf's entries into a new right
// sibling, links it into the leaf chain, and promotes its first key to
// the parent. Takes ownership of unpinning both leaf and the new page.
func (t *BPlusTree) splitLeaf(leaf *page.Frame) error {
	splitPoint := int(page.BTreeSize(leaf.Data)) / 2
	right, err := t.bp.NewPage()
	if err != nil {
		t.bp.UnpinPage(leaf.PageID, true)
		return fmt.Errorf("btree: split leaf: %w", err)
	}
	page.InitLeafPage(right.Data, right.PageID, page.BTreeParentPageID(leaf.Data), t.keySize, t.leafMaxSize)
	page.SetBTreeNextPageID(right.Data, page.BTreeNextPageID(leaf.Data))
	page.MoveEntriesTo(leaf.Data, right.Data, splitPoint)
	page.SetBTreeNextPageID(leaf.Data, right.PageID)

	promoted := page.KeyAt(right.Data, 0)
	if err := t.insertIntoParent(leaf, promoted, right); err != nil {
		t.bp.UnpinPage(leaf.PageID, true)
		t.bp.UnpinPage(right.PageID, true)
		return err
	}
	t.bp.UnpinPage(leaf.PageID, true)
	t.bp.UnpinPage(right.PageID, true)
	return nil
}

// splitInternal moves the upper half of node's entries (including the
// entry at the split point, whose key is promoted) into a new right
// sibling, reparenting its children. Takes ownership of unpinning both
// node and the new page.
func (t *BPlusTree) splitInternal(node *page.Frame) error {
	splitPoint := int(page.BTreeSize(node.Data)) / 2
	promoted := page.KeyAt(node.Data, splitPoint)

	right, err := t.bp.NewPage()
	if err != nil {
		t.bp.UnpinPage(node.PageID, true)
		return fmt.Errorf("btree: split internal: %w", err)
	}
	page.InitInternalPage(right.Data, right.PageID, page.BTreeParentPageID(node.Data), t.keySize, t.internalMaxSize)
	page.MoveEntriesTo(node.Data, right.Data, splitPoint)

	for i := 0; i < int(page.BTreeSize(right.Data)); i++ {
		childID := page.InternalValueAt(right.Data, i)
		childFrame, err := t.bp.FetchPage(childID)
		if err != nil {
			t.bp.UnpinPage(node.PageID, true)
			t.bp.UnpinPage(right.PageID, true)
			return fmt.Errorf("btree: split internal: reparent child %d: %w", childID, err)
		}
		page.SetBTreeParentPageID(childFrame.Data, right.PageID)
		t.bp.UnpinPage(childID, true)
	}

	if err := t.insertIntoParent(node, promoted, right); err != nil {
		t.bp.UnpinPage(node.PageID, true)
		t.bp.UnpinPage(right.PageID, true)
		return err
	}
	t.bp.UnpinPage(node.PageID, true)
	t.bp.UnpinPage(right.PageID, true)
	return nil
}

// insertIntoParent links a freshly split right page into left's parent,
// creating a new root if left had none, recursing into another split if
// the parent itself overflows.
func (t *BPlusTree) insertIntoParent(left *page.Frame, promotedKey []byte, right *page.Frame) error {
	parentID := page.BTreeParentPageID(left.Data)
	if parentID == types.InvalidPageID {
		newRoot, err := t.bp.NewPage()
		if err != nil {
			return fmt.Errorf("btree: new root: %w", err)
		}
		page.InitInternalPage(newRoot.Data, newRoot.PageID, types.InvalidPageID, t.keySize, t.internalMaxSize)
		page.InsertInternalEntryAt(newRoot.Data, 0, make([]byte, t.keySize), left.PageID)
		page.InsertInternalEntryAt(newRoot.Data, 1, promotedKey, right.PageID)
		page.SetBTreeParentPageID(left.Data, newRoot.PageID)
		page.SetBTreeParentPageID(right.Data, newRoot.PageID)

		t.root = newRoot.PageID
		if err := t.updateRootMap(t.root); err != nil {
			t.bp.UnpinPage(newRoot.PageID, true)
			return err
		}
		t.bp.UnpinPage(newRoot.PageID, true)
		return nil
	}

	parent, err := t.bp.FetchPage(parentID)
	if err != nil {
		return fmt.Errorf("btree: insert into parent: %w", err)
	}
	pos := findChildPos(parent.Data, left.PageID)
	if pos < 0 {
		t.bp.UnpinPage(parentID, false)
		return fmt.Errorf("btree: insert into parent: child %d not found in parent %d", left.PageID, parentID)
	}
	page.InsertInternalEntryAt(parent.Data, pos+1, promotedKey, right.PageID)
	page.SetBTreeParentPageID(right.Data, parentID)

	if page.BTreeSize(parent.Data) == t.internalMaxSize {
		return t.splitInternal(parent)
	}
	t.bp.UnpinPage(parentID, true)
	return nil
}

// Destroy frees every page reachable from pid, depth first. It clears
// this index's entry in the root map only when pid is the tree's current
// root — destroying an arbitrary subtree (e.g. during a partial rebuild)
// must not make the tree appear empty.
func (t *BPlusTree) Destroy(pid types.PageID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pid == types.InvalidPageID {
		return nil
	}
	if err := t.destroySubtree(pid); err != nil {
		return err
	}
	if pid == t.root {
		t.root = types.InvalidPageID
		return t.updateRootMap(types.InvalidPageID)
	}
	return nil
}

func (t *BPlusTree) destroySubtree(pid types.PageID) error {
	frame, err := t.bp.FetchPage(pid)
	if err != nil {
		return fmt.Errorf("btree: destroy: %w", err)
	}
	var children []types.PageID
	if !page.BTreeIsLeaf(frame.Data) {
		n := int(page.BTreeSize(frame.Data))
		children = make([]types.PageID, n)
		for i := 0; i < n; i++ {
			children[i] = page.InternalValueAt(frame.Data, i)
		}
	}
	t.bp.UnpinPage(pid, false)

	for _, c := range children {
		if err := t.destroySubtree(c); err != nil {
			return err
		}
	}
	if !t.bp.DeletePage(pid) {
		return fmt.Errorf("btree: destroy: page %d still pinned", pid)
	}
	return nil
}
