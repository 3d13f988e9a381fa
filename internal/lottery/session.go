package lottery

import (
	"sync"

	"stall-lottery/internal/model"
)

// Session is the process-wide lottery state: the current category, mode and quantity
// filter, plus the derived pools, draw cursors and per-category statuses.
//
// Only the Controller changes the current selection and only the draw path mutates
// pools and cursors. Everyone else reads through the accessors.
type Session struct {
	mu        sync.RWMutex
	category  string
	mode      model.Mode
	qtyFilter model.QtyFilter

	pools    map[string]*PoolSet
	cursors  map[string]int
	statuses map[string]model.CategoryStatus
	order    []string // categories in first-seen order

	locks keyedMutex
}

// NewSession returns an idle session with no category selected.
func NewSession() *Session {
	return &Session{
		mode:      model.ModeIdle,
		qtyFilter: model.QtySingle,
		pools:     make(map[string]*PoolSet),
		cursors:   make(map[string]int),
		statuses:  make(map[string]model.CategoryStatus),
	}
}

// Mode returns the current category, mode and quantity filter.
func (s *Session) Mode() model.ModeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.ModeSnapshot{Category: s.category, Mode: s.mode, QtyFilter: s.qtyFilter}
}

// Current returns the current category and its remaining stall count.
func (s *Session) Current() model.CategorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.category == "" {
		return model.CategorySnapshot{}
	}
	return model.CategorySnapshot{Category: s.category, Remaining: s.pools[s.category].Remaining()}
}

// Statuses returns every category status in first-seen order.
func (s *Session) Statuses() []model.CategoryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CategoryStatus, 0, len(s.order))
	for _, c := range s.order {
		out = append(out, s.statuses[c])
	}
	return out
}

// Cursor returns the lowest queue number the draw engine may offer next.
func (s *Session) Cursor(category string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[category]
}

// Total returns the numbering size of the category's pools, 0 when none are built.
func (s *Session) Total(category string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools[category].Total()
}

// Remaining returns the stall numbers still available in the category.
func (s *Session) Remaining(category string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools[category].Remaining()
}

// Ranges returns the numbering blocks of the category's pools.
func (s *Session) Ranges(category string) []model.ClassRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools[category].Ranges()
}

// Available returns a copy of one sub-class pool.
func (s *Session) Available(category, subClass string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools[category].Available(subClass)
}

// lockCategory serialises draws and transitions of one category.
func (s *Session) lockCategory(category string) func() {
	return s.locks.Lock(category)
}

// apply switches the current selection and resets the category's derived state.
// pools must be non-nil when mode is draw.
func (s *Session) apply(category string, mode model.Mode, filter model.QtyFilter, pools *PoolSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.category = category
	s.mode = mode
	s.qtyFilter = filter

	switch mode {
	case model.ModeDraw:
		s.pools[category] = pools
		s.cursors[category] = 0
		remaining := pools.Remaining()
		s.setStatusLocked(model.CategoryStatus{Category: category, Started: true, Ended: remaining == 0, Remaining: remaining})
	case model.ModeQueue:
		delete(s.pools, category)
		delete(s.cursors, category)
		s.setStatusLocked(model.CategoryStatus{Category: category, Started: true})
	default:
		delete(s.pools, category)
		delete(s.cursors, category)
		s.setStatusLocked(model.CategoryStatus{Category: category})
	}
}

// take removes a contiguous block from the category's sub-class pool.
func (s *Session) take(category, subClass string, count int, intn IntN) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pools[category].Take(subClass, count, intn)
}

// restore returns numbers taken by a draw that could not be persisted.
func (s *Session) restore(category, subClass string, nums []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[category].Restore(subClass, nums)
}

// commitDraw advances the cursor past queueNo and refreshes the category status.
// It returns the category's remaining count.
func (s *Session) commitDraw(category string, queueNo int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[category] = queueNo + 1
	remaining := s.pools[category].Remaining()
	s.setStatusLocked(model.CategoryStatus{Category: category, Started: true, Ended: remaining == 0, Remaining: remaining})
	return remaining
}

func (s *Session) setStatusLocked(st model.CategoryStatus) {
	if _, ok := s.statuses[st.Category]; !ok {
		s.order = append(s.order, st.Category)
	}
	s.statuses[st.Category] = st
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock locks key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
