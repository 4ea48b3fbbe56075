package blockalloc_test

import (
	"fmt"

	"github.com/TomTonic/blockalloc"
)

func Example_basicUsage() {
	// Carve a region of 1024 units with room for up to 128 live blocks.
	a := blockalloc.New(1024, 128)

	alloc, ok := a.Allocate(100)
	fmt.Println(ok, alloc.Offset)

	report := a.StorageReport()
	fmt.Println(report.TotalFreeSpace, report.LargestFreeRegion)

	a.Free(alloc)
	report = a.StorageReport()
	fmt.Println(report.TotalFreeSpace, report.LargestFreeRegion)
	// Output:
	// true 0
	// 924 896
	// 1024 1024
}

func Example_exhaustion() {
	a := blockalloc.New(64, 4)

	first, _ := a.Allocate(32)
	second, _ := a.Allocate(32)

	// The region is fully allocated; further requests report no space.
	_, ok := a.Allocate(1)
	fmt.Println(ok)

	// Freeing makes the space available again.
	a.Free(first)
	a.Free(second)
	third, ok := a.Allocate(64)
	fmt.Println(ok, third.Offset)
	// Output:
	// false
	// true 0
}
