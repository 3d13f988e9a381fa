package lottery

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stall-lottery/internal/model"
	"stall-lottery/internal/repository"
)

func newRegistry(t *testing.T) *repository.SQLiteRegistry {
	t.Helper()
	reg, err := repository.NewSQLiteRegistry(filepath.Join(t.TempDir(), "lottery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func addClass(t *testing.T, reg repository.Registry, category, subClass string, count, order int) {
	t.Helper()
	_, err := reg.AddStallClass(context.Background(), model.StallClass{
		Category: category, SubClass: subClass, StallCount: count, OrderNo: order,
	})
	require.NoError(t, err)
}

func addOwners(t *testing.T, reg repository.Registry, owners ...model.Owner) {
	t.Helper()
	_, err := reg.InsertOwners(context.Background(), owners)
	require.NoError(t, err)
}

// queueAll opens queue mode and queues every id in order.
func queueAll(t *testing.T, e *Engine, category, filter string, ids ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.Controller.SetConfig(ctx, category, "queue", filter)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := e.Allocator.Allocate(ctx, id, category)
		require.NoError(t, err)
	}
}

func isRun(nums []int) bool {
	sorted := append([]int(nil), nums...)
	sort.Ints(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return false
		}
	}
	return true
}

func TestSetConfig_Validation(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newRegistry(t), nil)

	_, err := e.Controller.SetConfig(ctx, " ", "queue", "")
	assert.ErrorIs(t, err, ErrMissingCategory)

	_, err = e.Controller.SetConfig(ctx, "X", "paused", "")
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.True(t, IsValidationError(err))

	_, err = e.Controller.SetConfig(ctx, "X", "queue", "many")
	assert.ErrorIs(t, err, ErrInvalidQtyFilter)

	assert.Equal(t, model.ModeIdle, e.Session.Mode().Mode, "rejected transitions change nothing")

	snap, err := e.Controller.SetConfig(ctx, "X", "queue", "multi")
	require.NoError(t, err)
	assert.Equal(t, model.ModeSnapshot{Category: "X", Mode: model.ModeQueue, QtyFilter: model.QtyMulti}, snap)

	snap, err = e.Controller.SetConfig(ctx, "X", "idle", "")
	require.NoError(t, err)
	assert.Equal(t, model.QtyMulti, snap.QtyFilter, "empty filter keeps the current one")
	assert.Equal(t, []model.CategoryStatus{{Category: "X"}}, e.Session.Statuses())
}

func TestAllocate_Eligibility(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addOwners(t, reg,
		model.Owner{Name: "A", IDCard: "1", Category: "X", SubClass: "a", Qty: 1},
		model.Owner{Name: "B", IDCard: "2", Category: "X", SubClass: "a", Qty: 2},
	)
	e := NewEngine(reg, nil)

	_, err := e.Allocator.Allocate(ctx, "1", "X")
	assert.ErrorIs(t, err, ErrCategoryNotActive)

	_, err = e.Controller.SetConfig(ctx, "X", "idle", "single")
	require.NoError(t, err)
	_, err = e.Allocator.Allocate(ctx, "1", "X")
	assert.ErrorIs(t, err, ErrNotQueueMode)

	_, err = e.Controller.SetConfig(ctx, "X", "queue", "single")
	require.NoError(t, err)

	_, err = e.Allocator.Allocate(ctx, "", "X")
	assert.ErrorIs(t, err, ErrMissingIdentity)

	_, err = e.Allocator.Allocate(ctx, "1", "Y")
	assert.ErrorIs(t, err, ErrCategoryNotActive)

	_, err = e.Allocator.Allocate(ctx, "9", "X")
	assert.ErrorIs(t, err, ErrOwnerNotFound)

	_, err = e.Allocator.Allocate(ctx, "2", "X")
	assert.ErrorIs(t, err, ErrQtyFilterMismatch)
	assert.True(t, IsEligibilityError(err))

	first, err := e.Allocator.Allocate(ctx, "1", "X")
	require.NoError(t, err)
	assert.Equal(t, 1, first.QueueNo)
	assert.True(t, first.Queued)

	again, err := e.Allocator.Allocate(ctx, "1", "X")
	require.NoError(t, err)
	assert.Equal(t, first.QueueNo, again.QueueNo)
}

// Two owners queueing at once get exactly {1, 2}.
func TestAllocate_Concurrent(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addOwners(t, reg,
		model.Owner{Name: "A", IDCard: "1", Category: "X", Qty: 1},
		model.Owner{Name: "B", IDCard: "2", Category: "X", Qty: 1},
	)
	e := NewEngine(reg, nil)
	_, err := e.Controller.SetConfig(ctx, "X", "queue", "single")
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []int
	)
	for _, id := range []string{"1", "2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			o, err := e.Allocator.Allocate(ctx, id, "X")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			got = append(got, o.QueueNo)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	sort.Ints(got)
	assert.Equal(t, []int{1, 2}, got)
}

// A quantity-2 owner drawing first from numbers 1-5 gets an adjacent pair.
func TestDraw_ContiguousPair(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addClass(t, reg, "X", "a", 5, 1)
	addOwners(t, reg, model.Owner{Name: "A", IDCard: "1", Category: "X", SubClass: "a", Qty: 2})
	e := NewEngine(reg, nil)

	queueAll(t, e, "X", "multi", "1")
	_, err := e.Controller.SetConfig(ctx, "X", "draw", "")
	require.NoError(t, err)
	assert.Equal(t, 5, e.Session.Remaining("X"))

	next, err := e.Draws.FindNextDrawable(ctx, "X")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "1", next.IDCard)
	assert.Zero(t, next.DrawnCount)

	out, err := e.Draws.Draw(ctx, "X", "1")
	require.NoError(t, err)
	require.Len(t, out.Result.StallNos, 2)
	assert.True(t, isRun(out.Result.StallNos))
	assert.Equal(t, Quota{Qty: 2, DrawnCount: 2, RemainingCount: 0}, out.Draw)
	assert.Equal(t, 3, out.Remaining)

	pool := e.Session.Available("X", "a")
	assert.Len(t, pool, 3)
	for _, n := range out.Result.StallNos {
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 5)
		assert.NotContains(t, pool, n)
	}

	drawn, err := reg.ListDrawnStallNos(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 5, len(drawn)+e.Session.Remaining("X"))

	_, err = e.Draws.Draw(ctx, "X", "1")
	assert.ErrorIs(t, err, ErrAlreadyDrawn)

	next, err = e.Draws.FindNextDrawable(ctx, "X")
	require.NoError(t, err)
	assert.Nil(t, next)

	st, err := e.Controller.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Draw)
	assert.Equal(t, 2, st.Draw.Cursor)
	assert.Equal(t, 5, st.Draw.Total)
	assert.Equal(t, 2, st.Draw.DrawnCount)
	assert.Equal(t, 3, st.Draw.RemainingCount)
}

// An owner wanting 3 who already holds 2 numbers draws exactly 1 more.
func TestDraw_RemainderOnly(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addClass(t, reg, "X", "a", 5, 1)
	addOwners(t, reg, model.Owner{Name: "A", IDCard: "1", Category: "X", SubClass: "a", Qty: 3})
	e := NewEngine(reg, nil)
	queueAll(t, e, "X", "multi", "1")

	require.NoError(t, reg.InsertResults(ctx, []model.LotteryResult{
		{Name: "A", IDCard: "1", Category: "X", SubClass: "a", QueueNo: 1, StallNo: "1"},
		{Name: "A", IDCard: "1", Category: "X", SubClass: "a", QueueNo: 1, StallNo: "2"},
	}))

	_, err := e.Controller.SetConfig(ctx, "X", "draw", "")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, e.Session.Available("X", "a"))

	out, err := e.Draws.Draw(ctx, "X", "1")
	require.NoError(t, err)
	assert.Len(t, out.Result.StallNos, 1)
	assert.Equal(t, 3, out.Draw.DrawnCount)
	assert.Equal(t, 2, out.Remaining)

	n, err := reg.CountDrawn(ctx, "1", "X")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "quota is never exceeded")
}

// Drawing from an empty sub-class pool fails and writes nothing.
func TestDraw_EmptyPool(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addClass(t, reg, "X", "a", 0, 1)
	addOwners(t, reg, model.Owner{Name: "A", IDCard: "1", Category: "X", SubClass: "a", Qty: 1})
	e := NewEngine(reg, nil)
	queueAll(t, e, "X", "single", "1")
	_, err := e.Controller.SetConfig(ctx, "X", "draw", "")
	require.NoError(t, err)

	assert.Equal(t, []model.CategoryStatus{{Category: "X", Started: true, Ended: true}}, e.Session.Statuses())

	_, err = e.Draws.Draw(ctx, "X", "1")
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.True(t, IsExhaustionError(err))

	results, err := reg.ListResults(ctx, "X")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, e.Session.Cursor("X"))
}

type failingResults struct {
	repository.Registry
}

func (failingResults) InsertResults(context.Context, []model.LotteryResult) error {
	return errors.New("disk full")
}

func TestDraw_PersistFailureRestoresPool(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addClass(t, reg, "X", "a", 4, 1)
	addOwners(t, reg, model.Owner{Name: "A", IDCard: "1", Category: "X", SubClass: "a", Qty: 2})

	e := NewEngine(failingResults{Registry: reg}, nil)
	queueAll(t, e, "X", "multi", "1")
	_, err := e.Controller.SetConfig(ctx, "X", "draw", "")
	require.NoError(t, err)

	_, err = e.Draws.Draw(ctx, "X", "1")
	require.Error(t, err)
	assert.False(t, IsExhaustionError(err))

	assert.Equal(t, []int{1, 2, 3, 4}, e.Session.Available("X", "a"))
	assert.Equal(t, 4, e.Session.Remaining("X"))
	assert.Zero(t, e.Session.Cursor("X"))
}

func TestDraw_Eligibility(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addClass(t, reg, "X", "a", 10, 1)
	addOwners(t, reg,
		model.Owner{Name: "A", IDCard: "1", Category: "X", SubClass: "a", Qty: 1},
		model.Owner{Name: "B", IDCard: "2", Category: "X", SubClass: "a", Qty: 1},
		model.Owner{Name: "C", IDCard: "3", Category: "X", SubClass: "", Qty: 1},
		model.Owner{Name: "D", IDCard: "4", Category: "X", SubClass: "a", Qty: 2},
	)
	e := NewEngine(reg, nil)

	queueAll(t, e, "X", "single", "1", "3")

	_, err := e.Draws.Draw(ctx, "X", "1")
	assert.ErrorIs(t, err, ErrNotDrawMode)

	_, err = e.Controller.SetConfig(ctx, "X", "draw", "")
	require.NoError(t, err)

	_, err = e.Draws.Draw(ctx, "Y", "1")
	assert.ErrorIs(t, err, ErrCategoryNotActive)

	_, err = e.Draws.Draw(ctx, "X", "2")
	assert.ErrorIs(t, err, ErrOwnerNotQueued)

	_, err = e.Draws.Draw(ctx, "X", "4")
	assert.ErrorIs(t, err, ErrQtyFilterMismatch)

	_, err = e.Draws.Draw(ctx, "X", "3")
	assert.ErrorIs(t, err, ErrMissingSubClass)

	_, err = e.Draws.Draw(ctx, "X", "nobody")
	assert.ErrorIs(t, err, ErrOwnerNotFound)
}

func TestFindNextDrawable_FollowsCursor(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addClass(t, reg, "X", "a", 10, 1)
	addOwners(t, reg,
		model.Owner{Name: "A", IDCard: "1", Category: "X", SubClass: "a", Qty: 1},
		model.Owner{Name: "B", IDCard: "2", Category: "X", SubClass: "a", Qty: 1},
		model.Owner{Name: "C", IDCard: "3", Category: "X", SubClass: "a", Qty: 1},
	)
	e := NewEngine(reg, nil)
	queueAll(t, e, "X", "single", "3", "1", "2")
	_, err := e.Controller.SetConfig(ctx, "X", "draw", "")
	require.NoError(t, err)

	for _, want := range []string{"3", "1", "2"} {
		next, err := e.Draws.FindNextDrawable(ctx, "X")
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, want, next.IDCard)

		_, err = e.Draws.Draw(ctx, "X", next.IDCard)
		require.NoError(t, err)
	}

	next, err := e.Draws.FindNextDrawable(ctx, "X")
	require.NoError(t, err)
	assert.Nil(t, next)
}

// Concurrent draws of one category never hand out the same number.
func TestDraw_ConcurrentUnique(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addClass(t, reg, "X", "a", 8, 1)
	var owners []model.Owner
	var ids []string
	for i := 1; i <= 8; i++ {
		id := strconv.Itoa(i)
		ids = append(ids, id)
		owners = append(owners, model.Owner{Name: "N" + id, IDCard: id, Category: "X", SubClass: "a", Qty: 1})
	}
	addOwners(t, reg, owners...)
	e := NewEngine(reg, nil)
	queueAll(t, e, "X", "single", ids...)
	_, err := e.Controller.SetConfig(ctx, "X", "draw", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.Draws.Draw(ctx, "X", id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	drawn, err := reg.ListDrawnStallNos(ctx, "X")
	require.NoError(t, err)
	sort.Slice(drawn, func(i, j int) bool {
		a, _ := strconv.Atoi(drawn[i])
		b, _ := strconv.Atoi(drawn[j])
		return a < b
	})
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, drawn)
	assert.Zero(t, e.Session.Remaining("X"))
	assert.True(t, e.Session.Statuses()[0].Ended)
}

// A restarted process rebuilds identical pools from the registry alone.
func TestRestore_RebuildsPools(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addClass(t, reg, "X", "a", 6, 1)
	addClass(t, reg, "X", "b", 3, 2)
	addOwners(t, reg,
		model.Owner{Name: "A", IDCard: "1", Category: "X", SubClass: "a", Qty: 2},
		model.Owner{Name: "B", IDCard: "2", Category: "X", SubClass: "b", Qty: 2},
	)
	first := NewEngine(reg, nil)
	queueAll(t, first, "X", "multi", "1", "2")
	_, err := first.Controller.SetConfig(ctx, "X", "draw", "")
	require.NoError(t, err)
	_, err = first.Draws.Draw(ctx, "X", "1")
	require.NoError(t, err)
	_, err = first.Draws.Draw(ctx, "X", "2")
	require.NoError(t, err)

	second := NewEngine(reg, nil)
	require.NoError(t, second.Controller.Restore(ctx))

	assert.Equal(t, first.Session.Mode(), second.Session.Mode())
	assert.Equal(t, first.Session.Available("X", "a"), second.Session.Available("X", "a"))
	assert.Equal(t, first.Session.Available("X", "b"), second.Session.Available("X", "b"))
	assert.Equal(t, first.Session.Remaining("X"), second.Session.Remaining("X"))
	assert.Equal(t, 5, second.Session.Remaining("X"))
	assert.Equal(t, first.Session.Current(), second.Session.Current())
}

func TestRestore_Defaults(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing persisted", func(t *testing.T) {
		e := NewEngine(newRegistry(t), nil)
		require.NoError(t, e.Controller.Restore(ctx))
		assert.Equal(t, model.ModeSnapshot{Mode: model.ModeIdle, QtyFilter: model.QtySingle}, e.Session.Mode())
		assert.Empty(t, e.Session.Statuses())
	})

	t.Run("unknown values", func(t *testing.T) {
		reg := newRegistry(t)
		require.NoError(t, reg.SetConfigValues(ctx, map[string]string{
			ConfigKeyCategory:  "X",
			ConfigKeyMode:      "paused",
			ConfigKeyQtyFilter: "many",
		}))
		e := NewEngine(reg, nil)
		require.NoError(t, e.Controller.Restore(ctx))
		assert.Equal(t, model.ModeSnapshot{Category: "X", Mode: model.ModeIdle, QtyFilter: model.QtySingle}, e.Session.Mode())
	})
}

func TestStatus_QueuePhase(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	addOwners(t, reg,
		model.Owner{Name: "A", IDCard: "1", Category: "X", Qty: 1},
		model.Owner{Name: "B", IDCard: "2", Category: "X", Qty: 1},
		model.Owner{Name: "C", IDCard: "3", Category: "X", Qty: 4},
	)
	e := NewEngine(reg, nil)
	queueAll(t, e, "X", "single", "2")

	st, err := e.Controller.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Draw)
	assert.Equal(t, &QueueStatus{NextQueueNo: 2, QueuedCount: 1, UnqueuedCount: 1}, st.Queue)
}
