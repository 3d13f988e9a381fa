package lottery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixed returns an IntN that always yields i and records the n it was asked for.
func fixed(i int, seen *int) IntN {
	return func(n int) int {
		if seen != nil {
			*seen = n
		}
		return i
	}
}

func TestPickContiguous_Single(t *testing.T) {
	pool := []int{1, 3, 4, 9}

	var n int
	picked, rest, ok := PickContiguous(pool, 1, fixed(3, &n))
	require.True(t, ok)
	assert.Equal(t, 4, n, "single picks are uniform over all elements")
	assert.Equal(t, []int{9}, picked)
	assert.Equal(t, []int{1, 3, 4}, rest)
	assert.Equal(t, []int{1, 3, 4, 9}, pool, "input must not be modified")
}

func TestPickContiguous_EnumeratesEveryStart(t *testing.T) {
	// runs: [1 2 3] [5 6] [8] [10 11 12 13]
	pool := []int{1, 2, 3, 5, 6, 8, 10, 11, 12, 13}

	var n int
	_, _, ok := PickContiguous(pool, 2, fixed(0, &n))
	require.True(t, ok)
	// 2 starts in the first run, 1 in the second, 0 in the third, 3 in the last
	assert.Equal(t, 6, n)

	want := [][]int{{1, 2}, {2, 3}, {5, 6}, {10, 11}, {11, 12}, {12, 13}}
	for i, w := range want {
		picked, rest, ok := PickContiguous(pool, 2, fixed(i, nil))
		require.True(t, ok)
		assert.Equal(t, w, picked)
		assert.Len(t, rest, len(pool)-2)
		assert.NotContains(t, rest, w[0])
		assert.NotContains(t, rest, w[1])
	}
}

func TestPickContiguous_Failures(t *testing.T) {
	tests := []struct {
		name  string
		pool  []int
		count int
	}{
		{"empty pool", nil, 1},
		{"pool smaller than count", []int{1, 2}, 3},
		{"enough numbers but no run", []int{1, 3, 5, 7}, 2},
		{"zero count", []int{1, 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			picked, rest, ok := PickContiguous(tt.pool, tt.count, nil)
			assert.False(t, ok)
			assert.Nil(t, picked)
			assert.Equal(t, tt.pool, rest)
		})
	}
}

func TestPickContiguous_RandomIsContiguous(t *testing.T) {
	pool := []int{1, 2, 3, 4, 5, 7, 8, 9, 12}
	for i := 0; i < 200; i++ {
		picked, rest, ok := PickContiguous(pool, 3, nil)
		require.True(t, ok)
		require.Len(t, picked, 3)
		assert.Equal(t, picked[0]+1, picked[1])
		assert.Equal(t, picked[1]+1, picked[2])
		assert.Len(t, rest, len(pool)-3)
	}
}
