// Package blockalloc provides an O(1) offset-based suballocator for a single
// contiguous range of units, for carving up regions the caller owns elsewhere
// (a device heap, a shared-memory arena, an atlas). The allocator arbitrates
// offsets only; it never touches the memory behind them.
//
// Free blocks are indexed by a two-level bitmap over 256 logarithmic size
// classes (see the smallfloat subpackage), so Allocate and Free run in
// constant time regardless of fragmentation or live allocation count.
//
// Concurrency: an Allocator is a sequential data structure with no internal
// locking. Sharing one instance between goroutines requires external mutual
// exclusion around every method, including the report methods. Distinct
// instances are independent.
package blockalloc

import (
	"github.com/TomTonic/blockalloc/smallfloat"
)

const (
	// NumTopBins is the number of leaf groups in the two-level bin index.
	NumTopBins = 32
	// BinsPerLeaf is the number of bins per leaf group.
	BinsPerLeaf = 8
	// NumLeafBins is the total number of size-class bins.
	NumLeafBins = NumTopBins * BinsPerLeaf

	topBinsIndexShift = 3
	leafBinsIndexMask = 0x7

	// NoSpace marks the Offset and Metadata of a failed allocation.
	NoSpace uint32 = 0xffffffff

	// DefaultMaxAllocs is the descriptor budget used when New is called
	// with maxAllocs == 0.
	DefaultMaxAllocs = 128 * 1024
)

// Allocation is the handle returned by Allocate. Offset is the position of
// the block within the region; Metadata identifies the backing descriptor
// and must be treated as opaque. A handle is valid until the matching Free
// and must not be used afterwards.
type Allocation struct {
	Offset   uint32
	Metadata uint32
}

var noAllocation = Allocation{Offset: NoSpace, Metadata: NoSpace}

// Allocator carves a [0, size) range into blocks. The zero value is inert;
// use New to obtain a working instance.
type Allocator struct {
	size        uint32
	maxAllocs   uint32
	freeStorage uint32

	usedBinsTop topBitmap
	usedBins    [NumTopBins]leafBitmap
	binHead     [NumLeafBins]nodeIndex

	nodes        []node
	freeNodeHead nodeIndex // embedded freelist, threaded through binListNext
	freeOffset   uint32    // count of never-used descriptors (watermark)
}

// New returns an allocator for a region of size units that supports up to
// maxAllocs simultaneously live allocations (DefaultMaxAllocs if 0, clamped
// to the node index width's limit). It panics if maxAllocs exceeds what the configured node index width can
// address (65535 when built with the blockalloc16 tag).
func New(size uint32, maxAllocs uint32) *Allocator {
	if maxAllocs == 0 {
		maxAllocs = DefaultMaxAllocs
		if maxAllocs > maxNodeCount {
			maxAllocs = maxNodeCount
		}
	}
	if maxAllocs > maxNodeCount {
		panic("blockalloc: maxAllocs exceeds the node index width")
	}
	a := &Allocator{size: size, maxAllocs: maxAllocs}
	a.Reset()
	return a
}

// Reset returns the allocator to its initial state: one free block covering
// the whole region. All outstanding handles become invalid. The node pool is
// retained (or reallocated after Destroy).
func (a *Allocator) Reset() {
	a.freeStorage = 0
	a.usedBinsTop = 0
	for i := range a.usedBins {
		a.usedBins[i] = 0
	}
	for i := range a.binHead {
		a.binHead[i] = unusedNode
	}

	if a.nodes == nil && a.maxAllocs > 0 {
		a.nodes = make([]node, a.maxAllocs)
	}
	a.freeNodeHead = unusedNode
	a.freeOffset = a.maxAllocs

	// Start state: the whole region as one big free node. Allocate splits
	// remainders off it and pushes them back as smaller nodes.
	if a.size > 0 && a.maxAllocs > 0 {
		a.insertNodeIntoBin(a.size, 0)
	}
}

// Destroy releases the node pool. Afterwards every method is a no-op (or
// reports zero) until Reset is called again; destroying twice is harmless.
func (a *Allocator) Destroy() {
	a.nodes = nil
	a.freeNodeHead = unusedNode
	a.freeStorage = 0
}

// Allocate reserves size units and returns the handle for the block.
// ok is false when no free block of a sufficient size class exists, when the
// found block must be split and no descriptor is left for the remainder, or
// when size is 0 or exceeds the region. An exact fit succeeds even when the
// descriptor budget is exhausted.
// A failed Allocate leaves the allocator unchanged and can succeed again
// after a Free.
func (a *Allocator) Allocate(size uint32) (Allocation, bool) {
	if len(a.nodes) == 0 || size == 0 || size > a.size {
		return noAllocation, false
	}

	// Round up so every block in the found bin fits the request.
	minBinIndex := smallfloat.RoundUp(size)
	binIndex, ok := a.findFreeBin(minBinIndex)
	if !ok {
		return noAllocation, false
	}

	nodeIdx := a.binHead[binIndex]
	n := &a.nodes[nodeIdx]
	extent := n.dataSize

	// A split needs a fresh descriptor for the remainder. Refuse before
	// mutating anything so a failed allocation leaves no trace; an
	// exact fit still succeeds on a fully subscribed pool.
	if extent > size && !a.canAcquireNode() {
		return noAllocation, false
	}

	n.dataSize = size
	n.setUsed(true)

	// Pop the bin head. Bin top = node.binListNext.
	a.binHead[binIndex] = n.binListNext
	if n.binListNext != unusedNode {
		a.nodes[n.binListNext].binListPrev = unusedNode
	}
	a.freeStorage -= extent

	if a.binHead[binIndex] == unusedNode {
		a.clearBinBits(binIndex)
	}

	if remainder := extent - size; remainder > 0 {
		newNodeIdx := a.insertNodeIntoBin(remainder, n.dataOffset+size)

		// Splice the remainder between the node and its old right
		// neighbor so the pieces can merge again once both are free.
		if next := n.getNeighborNext(); next != unusedNode {
			a.nodes[next].setNeighborPrev(newNodeIdx)
		}
		a.nodes[newNodeIdx].setNeighborPrev(nodeIdx)
		a.nodes[newNodeIdx].setNeighborNext(n.getNeighborNext())
		n.setNeighborNext(newNodeIdx)
	}

	return Allocation{Offset: n.dataOffset, Metadata: uint32(nodeIdx)}, true
}

// Free releases the block behind the handle and eagerly merges it with any
// free physical neighbors. Freeing a handle twice, or a handle this
// allocator did not return, is a caller bug. Free does nothing when the
// handle's descriptor index is out of range or the descriptor is not marked
// used; a stale handle whose descriptor has since been reused by another
// allocation is not detected and frees that allocation.
func (a *Allocator) Free(alloc Allocation) {
	if len(a.nodes) == 0 || alloc.Metadata >= uint32(len(a.nodes)) {
		return
	}
	nodeIdx := nodeIndex(alloc.Metadata)
	n := &a.nodes[nodeIdx]
	if !n.isUsed() {
		// double free
		return
	}

	offset := n.dataOffset
	size := n.dataSize

	if prev := n.getNeighborPrev(); prev != unusedNode && !a.nodes[prev].isUsed() {
		// Contiguous free node on the left: take its offset, sum sizes.
		prevNode := &a.nodes[prev]
		offset = prevNode.dataOffset
		size += prevNode.dataSize
		newPrev := prevNode.getNeighborPrev()
		a.removeNodeFromBin(prev)
		n.setNeighborPrev(newPrev)
	}

	if next := n.getNeighborNext(); next != unusedNode && !a.nodes[next].isUsed() {
		// Contiguous free node on the right: offset stays, sum sizes.
		nextNode := &a.nodes[next]
		size += nextNode.dataSize
		newNext := nextNode.getNeighborNext()
		a.removeNodeFromBin(next)
		n.setNeighborNext(newNext)
	}

	neighborNext := n.getNeighborNext()
	neighborPrev := n.getNeighborPrev()

	// Release the descriptor, then insert the merged block; the freelist is
	// LIFO, so the insert gets the same descriptor back.
	a.releaseNode(nodeIdx)
	combinedIdx := a.insertNodeIntoBin(size, offset)

	if neighborNext != unusedNode {
		a.nodes[combinedIdx].setNeighborNext(neighborNext)
		a.nodes[neighborNext].setNeighborPrev(combinedIdx)
	}
	if neighborPrev != unusedNode {
		a.nodes[combinedIdx].setNeighborPrev(neighborPrev)
		a.nodes[neighborPrev].setNeighborNext(combinedIdx)
	}
}

// findFreeBin returns the smallest occupied bin with index >= minBinIndex.
func (a *Allocator) findFreeBin(minBinIndex uint32) (uint32, bool) {
	minTopBinIndex := minBinIndex >> topBinsIndexShift
	minLeafBinIndex := minBinIndex & leafBinsIndexMask

	topBinIndex := minTopBinIndex
	leafBinIndex := NoSpace

	// If the top bin exists, scan its leaf group. This can come up empty.
	if a.usedBinsTop.get(topBinIndex) {
		leafBinIndex = findLowestSetBitAfter(uint32(a.usedBins[topBinIndex]), minLeafBinIndex)
	}

	if leafBinIndex == NoSpace {
		topBinIndex = findLowestSetBitAfter(uint32(a.usedBinsTop), minTopBinIndex+1)
		if topBinIndex == NoSpace {
			return 0, false
		}

		// The top bin was rounded up, so every leaf here fits; the leaf
		// scan cannot fail because the top bit was set.
		leafBinIndex = findLowestSetBitAfter(uint32(a.usedBins[topBinIndex]), 0)
	}

	return topBinIndex<<topBinsIndexShift | leafBinIndex, true
}

// insertNodeIntoBin links a new free block of the given size and offset into
// the bin list of its size class and returns the descriptor index. The
// caller must ensure a descriptor is available.
func (a *Allocator) insertNodeIntoBin(size, dataOffset uint32) nodeIndex {
	// Round down so every block in a bin is at least the bin's class size.
	binIndex := smallfloat.RoundDown(size)

	if a.binHead[binIndex] == unusedNode {
		a.usedBins[binIndex>>topBinsIndexShift].set(binIndex & leafBinsIndexMask)
		a.usedBinsTop.set(binIndex >> topBinsIndexShift)
	}

	topNodeIdx := a.binHead[binIndex]
	nodeIdx := a.acquireNode()

	n := &a.nodes[nodeIdx]
	n.dataOffset = dataOffset
	n.dataSize = size
	n.binListPrev = unusedNode
	n.binListNext = topNodeIdx
	n.resetNeighbors()

	if topNodeIdx != unusedNode {
		a.nodes[topNodeIdx].binListPrev = nodeIdx
	}
	a.binHead[binIndex] = nodeIdx

	a.freeStorage += size
	return nodeIdx
}

// removeNodeFromBin unlinks a free block from its bin list and returns its
// descriptor to the pool freelist.
func (a *Allocator) removeNodeFromBin(nodeIdx nodeIndex) {
	n := &a.nodes[nodeIdx]

	if n.binListPrev != unusedNode {
		// Interior node: rewire the neighbors in the list.
		a.nodes[n.binListPrev].binListNext = n.binListNext
		if n.binListNext != unusedNode {
			a.nodes[n.binListNext].binListPrev = n.binListPrev
		}
	} else {
		// Head of its bin: recompute the bin from the block size.
		binIndex := smallfloat.RoundDown(n.dataSize)
		a.binHead[binIndex] = n.binListNext
		if n.binListNext != unusedNode {
			a.nodes[n.binListNext].binListPrev = unusedNode
		}
		if a.binHead[binIndex] == unusedNode {
			a.clearBinBits(binIndex)
		}
	}

	a.freeStorage -= n.dataSize
	a.releaseNode(nodeIdx)
}

// clearBinBits drops the bitmap bits of a bin that just became empty.
func (a *Allocator) clearBinBits(binIndex uint32) {
	topBinIndex := binIndex >> topBinsIndexShift
	a.usedBins[topBinIndex].clear(binIndex & leafBinsIndexMask)
	if a.usedBins[topBinIndex] == 0 {
		a.usedBinsTop.clear(topBinIndex)
	}
}

// acquireNode hands out a descriptor: the freelist head if there is one,
// otherwise the next never-used slot below the watermark. The caller must
// check canAcquireNode first.
func (a *Allocator) acquireNode() nodeIndex {
	if a.freeNodeHead != unusedNode {
		nodeIdx := a.freeNodeHead
		a.freeNodeHead = a.nodes[nodeIdx].binListNext
		return nodeIdx
	}
	a.freeOffset--
	return nodeIndex(a.freeOffset)
}

// canAcquireNode reports whether a descriptor is available.
func (a *Allocator) canAcquireNode() bool {
	return a.freeNodeHead != unusedNode || a.freeOffset > 0
}

// releaseNode pushes a dead descriptor onto the pool freelist. The link is
// overlaid on binListNext; the rest of the descriptor keeps its last value
// until reuse.
func (a *Allocator) releaseNode(nodeIdx nodeIndex) {
	a.nodes[nodeIdx].binListNext = a.freeNodeHead
	a.freeNodeHead = nodeIdx
}
