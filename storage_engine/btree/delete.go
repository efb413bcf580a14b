package btree

import (
	"fmt"

	"coredb/storage_engine/page"
	"coredb/types"
)

// Remove deletes key, if present, rebalancing underflowing nodes via
// coalesce-or-redistribute rather than the borrow-threshold scheme used
// elsewhere in the source: a node below its minimum size takes one entry
// from a sibling when the two nodes' combined size would not fit in one
// page, and is merged with that sibling otherwise.
func (t *BPlusTree) Remove(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == types.InvalidPageID {
		return nil
	}
	leaf, err := t.findLeaf(key)
	if err != nil {
		return err
	}
	idx, found := t.leafSearch(leaf.Data, key)
	if !found {
		t.bp.UnpinPage(leaf.PageID, false)
		return nil
	}
	page.RemoveEntryAt(leaf.Data, idx)

	if idx == 0 && page.BTreeSize(leaf.Data) > 0 {
		if err := t.propagateFirstKeyUpdate(leaf.PageID, page.KeyAt(leaf.Data, 0)); err != nil {
			t.bp.UnpinPage(leaf.PageID, true)
			return err
		}
	}

	if leaf.PageID == t.root {
		t.bp.UnpinPage(leaf.PageID, true)
		return t.adjustRootIfNeeded()
	}
	if int(page.BTreeSize(leaf.Data)) >= t.leafMinSize() {
		t.bp.UnpinPage(leaf.PageID, true)
		return nil
	}
	return t.coalesceOrRedistribute(leaf)
}

// propagateFirstKeyUpdate fixes the separator that points at childID after
// childID's first key changed, climbing toward the root when childID sits
// at its parent's placeholder position (position 0), whose key is never a
// real separator and so carries nothing to repair.
func (t *BPlusTree) propagateFirstKeyUpdate(childID types.PageID, newKey []byte) error {
	current := childID
	for {
		frame, err := t.bp.FetchPage(current)
		if err != nil {
			return fmt.Errorf("btree: propagate first key: %w", err)
		}
		parentID := page.BTreeParentPageID(frame.Data)
		t.bp.UnpinPage(current, false)
		if parentID == types.InvalidPageID {
			return nil
		}

		parent, err := t.bp.FetchPage(parentID)
		if err != nil {
			return fmt.Errorf("btree: propagate first key: %w", err)
		}
		pos := findChildPos(parent.Data, current)
		if pos < 0 {
			t.bp.UnpinPage(parentID, false)
			return fmt.Errorf("btree: propagate first key: child %d not found in parent %d", current, parentID)
		}
		if pos == 0 {
			t.bp.UnpinPage(parentID, false)
			current = parentID
			continue
		}
		page.SetKeyAt(parent.Data, pos, newKey)
		t.bp.UnpinPage(parentID, true)
		return nil
	}
}

// coalesceOrRedistribute rebalances node, which is pinned and below its
// minimum size. It chooses the right sibling when node is its parent's
// first child (position 0, where the separator is the unused placeholder)
// and the left sibling otherwise.
func (t *BPlusTree) coalesceOrRedistribute(node *page.Frame) error {
	parentID := page.BTreeParentPageID(node.Data)
	if parentID == types.InvalidPageID {
		t.bp.UnpinPage(node.PageID, true)
		return t.adjustRootIfNeeded()
	}

	parent, err := t.bp.FetchPage(parentID)
	if err != nil {
		t.bp.UnpinPage(node.PageID, true)
		return fmt.Errorf("btree: coalesce or redistribute: %w", err)
	}
	pos := findChildPos(parent.Data, node.PageID)
	if pos < 0 {
		t.bp.UnpinPage(node.PageID, true)
		t.bp.UnpinPage(parentID, false)
		return fmt.Errorf("btree: coalesce or redistribute: node %d not found in parent %d", node.PageID, parentID)
	}

	var siblingID types.PageID
	siblingIsLeft := pos != 0
	if siblingIsLeft {
		siblingID = page.InternalValueAt(parent.Data, pos-1)
	} else {
		siblingID = page.InternalValueAt(parent.Data, pos+1)
	}
	sibling, err := t.bp.FetchPage(siblingID)
	if err != nil {
		t.bp.UnpinPage(node.PageID, true)
		t.bp.UnpinPage(parentID, false)
		return fmt.Errorf("btree: coalesce or redistribute: %w", err)
	}

	maxSize := int(t.leafMaxSize)
	if !page.BTreeIsLeaf(node.Data) {
		maxSize = int(t.internalMaxSize)
	}
	combined := int(page.BTreeSize(sibling.Data)) + int(page.BTreeSize(node.Data))

	if combined >= maxSize {
		t.redistribute(node, sibling, parent, pos, siblingIsLeft)
		t.bp.UnpinPage(node.PageID, true)
		t.bp.UnpinPage(sibling.PageID, true)
		t.bp.UnpinPage(parentID, true)
		return nil
	}

	var left, right *page.Frame
	var rightPos int
	if siblingIsLeft {
		left, right, rightPos = sibling, node, pos
	} else {
		left, right, rightPos = node, sibling, pos+1
	}
	parentUnderflow, err := t.coalesce(left, right, parent, rightPos)
	if err != nil {
		t.bp.UnpinPage(parentID, true)
		return err
	}

	if parentID == t.root {
		if int(page.BTreeSize(parent.Data)) <= 1 {
			t.bp.UnpinPage(parentID, true)
			return t.adjustRootIfNeeded()
		}
		t.bp.UnpinPage(parentID, true)
		return nil
	}
	if parentUnderflow {
		return t.coalesceOrRedistribute(parent)
	}
	t.bp.UnpinPage(parentID, true)
	return nil
}

// redistribute moves exactly one entry across the node/sibling boundary
// and repairs the parent separator between them.
func (t *BPlusTree) redistribute(node, sibling, parent *page.Frame, pos int, siblingIsLeft bool) {
	isLeaf := page.BTreeIsLeaf(node.Data)

	if siblingIsLeft {
		sibSize := int(page.BTreeSize(sibling.Data))
		last := sibSize - 1
		if isLeaf {
			key := page.KeyAt(sibling.Data, last)
			val := page.LeafValueAt(sibling.Data, last)
			page.RemoveEntryAt(sibling.Data, last)
			page.InsertLeafEntryAt(node.Data, 0, key, val)
			page.SetKeyAt(parent.Data, pos, page.KeyAt(node.Data, 0))
			return
		}
		borrowedKey := page.KeyAt(sibling.Data, last)
		borrowedChild := page.InternalValueAt(sibling.Data, last)
		page.RemoveEntryAt(sibling.Data, last)
		parentSeparator := page.KeyAt(parent.Data, pos)
		page.InsertInternalEntryAt(node.Data, 0, make([]byte, t.keySize), borrowedChild)
		page.SetKeyAt(node.Data, 1, parentSeparator)
		page.SetKeyAt(parent.Data, pos, borrowedKey)
		t.reparentChild(borrowedChild, node.PageID)
		return
	}

	if isLeaf {
		key := page.KeyAt(sibling.Data, 0)
		val := page.LeafValueAt(sibling.Data, 0)
		page.RemoveEntryAt(sibling.Data, 0)
		nodeSize := int(page.BTreeSize(node.Data))
		page.InsertLeafEntryAt(node.Data, nodeSize, key, val)
		page.SetKeyAt(parent.Data, pos+1, page.KeyAt(sibling.Data, 0))
		return
	}
	parentSeparator := page.KeyAt(parent.Data, pos+1)
	firstChild := page.InternalValueAt(sibling.Data, 0)
	newSeparator := page.KeyAt(sibling.Data, 1)
	page.RemoveEntryAt(sibling.Data, 0)
	nodeSize := int(page.BTreeSize(node.Data))
	page.InsertInternalEntryAt(node.Data, nodeSize, parentSeparator, firstChild)
	page.SetKeyAt(parent.Data, pos+1, newSeparator)
	t.reparentChild(firstChild, node.PageID)
}

func (t *BPlusTree) reparentChild(childID, newParentID types.PageID) {
	frame, err := t.bp.FetchPage(childID)
	if err != nil {
		return
	}
	page.SetBTreeParentPageID(frame.Data, newParentID)
	t.bp.UnpinPage(childID, true)
}

// coalesce merges right's entries into left and deletes right's page,
// pulling down the parent separator at rightPos for internal merges.
// Unpins and, for the deleted side, frees both left and right; leaves
// parent pinned for the caller. Returns whether parent now underflows.
func (t *BPlusTree) coalesce(left, right, parent *page.Frame, rightPos int) (bool, error) {
	isLeaf := page.BTreeIsLeaf(left.Data)

	if isLeaf {
		page.MoveEntriesTo(right.Data, left.Data, 0)
		page.SetBTreeNextPageID(left.Data, page.BTreeNextPageID(right.Data))
	} else {
		sep := page.KeyAt(parent.Data, rightPos)
		page.SetKeyAt(right.Data, 0, sep)
		for i := 0; i < int(page.BTreeSize(right.Data)); i++ {
			t.reparentChild(page.InternalValueAt(right.Data, i), left.PageID)
		}
		page.MoveEntriesTo(right.Data, left.Data, 0)
	}

	t.bp.UnpinPage(right.PageID, false)
	if !t.bp.DeletePage(right.PageID) {
		return false, fmt.Errorf("btree: coalesce: page %d still pinned", right.PageID)
	}
	page.RemoveEntryAt(parent.Data, rightPos)
	t.bp.UnpinPage(left.PageID, true)

	return int(page.BTreeSize(parent.Data)) < t.internalMinSize(), nil
}

// adjustRootIfNeeded collapses the root when it has underflowed: an empty
// leaf root means the tree is now empty, and an internal root with a
// single child is replaced by that child.
func (t *BPlusTree) adjustRootIfNeeded() error {
	if t.root == types.InvalidPageID {
		return nil
	}
	root, err := t.bp.FetchPage(t.root)
	if err != nil {
		return fmt.Errorf("btree: adjust root: %w", err)
	}

	if page.BTreeIsLeaf(root.Data) {
		if page.BTreeSize(root.Data) == 0 {
			oldRoot := t.root
			t.bp.UnpinPage(oldRoot, false)
			t.bp.DeletePage(oldRoot)
			t.root = types.InvalidPageID
			return t.updateRootMap(types.InvalidPageID)
		}
		t.bp.UnpinPage(t.root, false)
		return nil
	}

	if page.BTreeSize(root.Data) <= 1 {
		var onlyChild types.PageID
		if page.BTreeSize(root.Data) == 1 {
			onlyChild = page.InternalValueAt(root.Data, 0)
		}
		oldRoot := t.root
		t.bp.UnpinPage(oldRoot, false)
		if onlyChild == types.InvalidPageID {
			t.bp.DeletePage(oldRoot)
			t.root = types.InvalidPageID
			return t.updateRootMap(types.InvalidPageID)
		}
		t.reparentChild(onlyChild, types.InvalidPageID)
		t.bp.DeletePage(oldRoot)
		t.root = onlyChild
		return t.updateRootMap(t.root)
	}
	t.bp.UnpinPage(t.root, false)
	return nil
}
