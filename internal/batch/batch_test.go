package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestPartitionSizes(t *testing.T) {
	cases := []struct {
		n, size int
		want    []int
	}{
		{n: 2500, size: 1000, want: []int{1000, 1000, 500}},
		{n: 2000, size: 1000, want: []int{1000, 1000}},
		{n: 1, size: 1000, want: []int{1}},
		{n: 7, size: 3, want: []int{3, 3, 1}},
		{n: 0, size: 1000, want: nil},
	}
	for _, tc := range cases {
		got := Partition(seq(tc.n), tc.size)
		var sizes []int
		for _, b := range got {
			sizes = append(sizes, len(b))
		}
		assert.Equal(t, tc.want, sizes, "n=%d size=%d", tc.n, tc.size)
		assert.Len(t, got, (tc.n+tc.size-1)/tc.size)
	}
}

func TestPartitionPreservesOrder(t *testing.T) {
	in := seq(25)
	var flat []int
	for _, b := range Partition(in, 4) {
		flat = append(flat, b...)
	}
	require.Equal(t, in, flat)
}

func TestPartitionNonPositiveSizeUsesDefault(t *testing.T) {
	got := Partition(seq(1500), 0)
	require.Len(t, got, 2)
	assert.Len(t, got[0], DefaultSize)
}
