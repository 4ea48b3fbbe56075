package blockalloc

import "github.com/TomTonic/blockalloc/smallfloat"

// StorageReport summarizes the free state of the region.
type StorageReport struct {
	TotalFreeSpace    uint32
	LargestFreeRegion uint32
	NumberOfBins      uint32
	NumberOfUsedBins  uint32
}

// BinReport describes one size-class bin: the class size and the number of
// free blocks currently in the bin.
type BinReport struct {
	Size  uint32
	Count uint32
}

// StorageReport returns the total free space, the size class of the largest
// free region, and bin occupancy counts. With the descriptor pool fully
// subscribed the allocator cannot split any block, so free space and largest
// region report as zero until a Free returns a descriptor.
func (a *Allocator) StorageReport() StorageReport {
	if len(a.nodes) == 0 {
		return StorageReport{}
	}

	report := StorageReport{NumberOfBins: NumLeafBins}

	if a.canAcquireNode() {
		report.TotalFreeSpace = a.freeStorage
		if a.usedBinsTop != 0 {
			topBinIndex := a.usedBinsTop.highestSet()
			leafBinIndex := a.usedBins[topBinIndex].highestSet()
			report.LargestFreeRegion = smallfloat.Decode(topBinIndex<<topBinsIndexShift | leafBinIndex)
		}
	}

	for i := range a.binHead {
		if a.binHead[i] != unusedNode {
			report.NumberOfUsedBins++
		}
	}
	return report
}

// StorageBinState reports the class size and free-block count of one bin.
// Out-of-range bin indices report zero.
func (a *Allocator) StorageBinState(binIndex uint32) BinReport {
	if binIndex >= NumLeafBins || len(a.nodes) == 0 {
		return BinReport{}
	}

	var count uint32
	for nodeIdx := a.binHead[binIndex]; nodeIdx != unusedNode; nodeIdx = a.nodes[nodeIdx].binListNext {
		count++
	}
	return BinReport{Size: smallfloat.Decode(binIndex), Count: count}
}
