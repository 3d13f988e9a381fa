package lottery

import (
	"sort"
	"strconv"
	"strings"

	"stall-lottery/internal/model"
)

// ComputeRanges assigns each sub-class of category a contiguous block of stall numbers.
// Classes are ordered by (OrderNo, ID) and numbered from 1; a zero-count class gets an
// empty range. It returns the ranges in numbering order and the total numbering size.
func ComputeRanges(classes []model.StallClass, category string) ([]model.ClassRange, int) {
	selected := make([]model.StallClass, 0, len(classes))
	for _, c := range classes {
		if c.Category == category {
			selected = append(selected, c)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].OrderNo != selected[j].OrderNo {
			return selected[i].OrderNo < selected[j].OrderNo
		}
		return selected[i].ID < selected[j].ID
	})

	ranges := make([]model.ClassRange, 0, len(selected))
	cursor := 1
	for _, c := range selected {
		r := model.ClassRange{ClassID: c.ID, SubClass: c.SubClass}
		if c.StallCount > 0 {
			r.Count = c.StallCount
			r.Start = cursor
			r.End = cursor + c.StallCount - 1
			cursor += c.StallCount
		}
		ranges = append(ranges, r)
	}
	return ranges, cursor - 1
}

// PoolSet holds the available stall numbers of one category, one ascending pool
// per sub-class. It is not safe for concurrent use; the Session guards it.
type PoolSet struct {
	total  int
	ranges []model.ClassRange
	pools  map[string][]int
}

// BuildPools derives the pools of category from its stall classes, excluding drawn numbers.
// Drawn values that are not integers are ignored.
func BuildPools(classes []model.StallClass, category string, drawn []string) *PoolSet {
	ranges, total := ComputeRanges(classes, category)

	used := make(map[int]struct{}, len(drawn))
	for _, s := range drawn {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			used[n] = struct{}{}
		}
	}

	pools := make(map[string][]int, len(ranges))
	for _, r := range ranges {
		pool := make([]int, 0, r.Count)
		for n := r.Start; r.Count > 0 && n <= r.End; n++ {
			if _, ok := used[n]; !ok {
				pool = append(pool, n)
			}
		}
		pools[r.SubClass] = pool
	}

	return &PoolSet{total: total, ranges: ranges, pools: pools}
}

// Total is the size of the category's numbering.
func (p *PoolSet) Total() int {
	if p == nil {
		return 0
	}
	return p.total
}

// Ranges returns the numbering blocks in order.
func (p *PoolSet) Ranges() []model.ClassRange {
	if p == nil {
		return nil
	}
	return append([]model.ClassRange(nil), p.ranges...)
}

// Remaining is the number of stall numbers not yet drawn.
func (p *PoolSet) Remaining() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, pool := range p.pools {
		n += len(pool)
	}
	return n
}

// Available returns a copy of one sub-class pool.
func (p *PoolSet) Available(subClass string) []int {
	if p == nil {
		return nil
	}
	return append([]int(nil), p.pools[subClass]...)
}

// Take removes count contiguous numbers from the sub-class pool and returns them.
func (p *PoolSet) Take(subClass string, count int, intn IntN) ([]int, error) {
	if p == nil {
		return nil, ErrPoolExhausted
	}
	pool := p.pools[subClass]
	if len(pool) == 0 {
		return nil, ErrPoolExhausted
	}
	if len(pool) < count {
		return nil, ErrInsufficientStalls
	}

	picked, rest, ok := PickContiguous(pool, count, intn)
	if !ok {
		return nil, ErrNoContiguousBlock
	}
	p.pools[subClass] = rest
	return picked, nil
}

// Restore puts numbers back into a sub-class pool, keeping it ascending.
// Used when persisting a draw fails after Take.
func (p *PoolSet) Restore(subClass string, nums []int) {
	if p == nil || len(nums) == 0 {
		return
	}
	pool := append(p.pools[subClass], nums...)
	sort.Ints(pool)
	p.pools[subClass] = pool
}
