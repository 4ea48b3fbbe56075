//go:build blockalloc16

package blockalloc

// nodeIndex references a block descriptor in the allocator's node pool.
// The blockalloc16 build halves the link storage per descriptor. 16 bits
// cannot spare an index bit for the used flag, so the flag is a separate
// field; the functional contract is identical to the 32-bit build.
type nodeIndex = uint16

const (
	// unusedNode is the list sentinel; the top index is reserved for it.
	unusedNode nodeIndex = 0xffff

	// maxNodeCount is the largest descriptor pool this index width can address.
	maxNodeCount = uint32(unusedNode)
)

// node describes one block of the region, used or free. Free nodes are
// threaded through per-bin lists via binListPrev/binListNext; all live nodes
// are threaded through the physical-order neighbor chain.
type node struct {
	dataOffset   uint32
	dataSize     uint32
	binListPrev  nodeIndex
	binListNext  nodeIndex
	neighborPrev nodeIndex
	neighborNext nodeIndex
	used         bool
}

func (n *node) isUsed() bool {
	return n.used
}

func (n *node) setUsed(used bool) {
	n.used = used
}

func (n *node) getNeighborNext() nodeIndex {
	return n.neighborNext
}

func (n *node) setNeighborNext(index nodeIndex) {
	n.neighborNext = index
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
	n.neighborNext = unusedNode
	n.used = false
}
