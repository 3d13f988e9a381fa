package lottery

import "math/rand/v2"

// IntN returns a uniform integer in [0, n). rand.IntN is the default source.
type IntN func(n int) int

// PickContiguous selects count consecutive integers from an ascending pool.
//
// For count == 1 every element is equally likely. For count > 1 the pool is split into
// maximal runs of consecutive integers and the choice is uniform over every valid start
// position across all runs long enough, so a run of length L contributes L-count+1 starts.
//
// It returns the picked numbers in ascending order and the pool without them. The input
// slice is not modified. ok is false when no run of the required length exists.
func PickContiguous(pool []int, count int, intn IntN) (picked, rest []int, ok bool) {
	if count <= 0 || len(pool) < count {
		return nil, pool, false
	}
	if intn == nil {
		intn = rand.IntN
	}

	var start int
	if count == 1 {
		start = intn(len(pool))
	} else {
		starts := contiguousStarts(pool, count)
		if len(starts) == 0 {
			return nil, pool, false
		}
		start = starts[intn(len(starts))]
	}

	picked = make([]int, count)
	copy(picked, pool[start:start+count])

	rest = make([]int, 0, len(pool)-count)
	rest = append(rest, pool[:start]...)
	rest = append(rest, pool[start+count:]...)
	return picked, rest, true
}

// contiguousStarts lists the pool indexes at which count consecutive integers begin.
func contiguousStarts(pool []int, count int) []int {
	var starts []int
	runStart := 0
	for i := 1; i <= len(pool); i++ {
		if i < len(pool) && pool[i] == pool[i-1]+1 {
			continue
		}
		// pool[runStart:i] is a maximal run
		for s := runStart; s+count <= i; s++ {
			starts = append(starts, s)
		}
		runStart = i
	}
	return starts
}
