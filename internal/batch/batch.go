// Package batch splits recipient lists into fixed-size waves.
package batch

import "slices"

// DefaultSize matches the provider's per-second send allowance.
const DefaultSize = 1000

// Partition splits items into consecutive chunks of size, preserving order.
// The last chunk may be shorter. Empty input yields no chunks.
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = DefaultSize
	}
	return slices.Collect(slices.Chunk(items, size))
}
