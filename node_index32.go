//go:build !blockalloc16

package blockalloc

// nodeIndex references a block descriptor in the allocator's node pool.
// The default build uses 32-bit indices; building with the blockalloc16 tag
// halves the metadata cost in exchange for a 65535 descriptor cap.
type nodeIndex = uint32

const (
	// unusedNode is the list sentinel. It fits in the 31 index bits of
	// neighborNext so accessors round-trip it unchanged.
	unusedNode nodeIndex = 0x7fffffff

	// maxNodeCount is the largest descriptor pool this index width can address.
	maxNodeCount = uint32(unusedNode)

	usedFlagBit  = 0x80000000
	neighborMask = 0x7fffffff
)

// node describes one block of the region, used or free. Free nodes are
// threaded through per-bin lists via binListPrev/binListNext; all live nodes
// are threaded through the physical-order neighbor chain. The used flag is
// packed into the high bit of neighborNext, so neighbor access goes through
// the accessor methods below.
type node struct {
	dataOffset   uint32
	dataSize     uint32
	binListPrev  nodeIndex
	binListNext  nodeIndex
	neighborPrev nodeIndex
	neighborNext nodeIndex // bit 31 is the used flag, low 31 bits the index
}

func (n *node) isUsed() bool {
	return n.neighborNext&usedFlagBit != 0
}

func (n *node) setUsed(used bool) {
	if used {
		n.neighborNext |= usedFlagBit
	} else {
		n.neighborNext &= neighborMask
	}
}

func (n *node) getNeighborNext() nodeIndex {
	return n.neighborNext & neighborMask
}

func (n *node) setNeighborNext(index nodeIndex) {
	n.neighborNext = (n.neighborNext & usedFlagBit) | (index & neighborMask)
}

func (n *node) getNeighborPrev() nodeIndex {
	return n.neighborPrev
}

func (n *node) setNeighborPrev(index nodeIndex) {
	n.neighborPrev = index
}

// resetNeighbors detaches the node from the neighbor chain and clears the
// used flag. Descriptors coming back from the pool freelist carry stale
// link words, so every bin insert starts from this state.
func (n *node) resetNeighbors() {
	n.neighborPrev = unusedNode
	n.neighborNext = unusedNode // used flag bit is clear in the sentinel
}
