package lottery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"stall-lottery/internal/model"
	"stall-lottery/internal/repository"
	"stall-lottery/pkg/logger"
)

// DrawResult is the block of stall numbers awarded by one draw.
type DrawResult struct {
	Name     string `json:"name"`
	IDCard   string `json:"id_card"`
	Category string `json:"category"`
	SubClass string `json:"sub_class"`
	QueueNo  int    `json:"queue_no"`
	StallNos []int  `json:"stall_nos"`
}

// Quota is an owner's progress after a draw.
type Quota struct {
	Qty            int `json:"qty"`
	DrawnCount     int `json:"drawn_count"`
	RemainingCount int `json:"remaining_count"`
}

// DrawOutcome is returned by a successful draw.
type DrawOutcome struct {
	Result    DrawResult `json:"result"`
	Draw      Quota      `json:"draw"`
	Remaining int        `json:"remaining"` // numbers left in the category
}

// DrawEngine consumes the queue of the current category in draw mode.
type DrawEngine struct {
	registry repository.Registry
	session  *Session
	intn     IntN
	log      *logger.Logger
}

// NewDrawEngine creates a draw engine. A nil intn uses math/rand/v2.
func NewDrawEngine(registry repository.Registry, session *Session, intn IntN) *DrawEngine {
	return &DrawEngine{
		registry: registry,
		session:  session,
		intn:     intn,
		log:      logger.Named("draw"),
	}
}

func (e *DrawEngine) checkOpen(category string) (model.ModeSnapshot, error) {
	snap := e.session.Mode()
	if snap.Category == "" || snap.Category != category {
		return snap, ErrCategoryNotActive
	}
	if snap.Mode != model.ModeDraw {
		return snap, ErrNotDrawMode
	}
	return snap, nil
}

// FindNextDrawable returns the first queued owner at or after the draw cursor who has
// not yet received every requested number. It returns nil when the queue is exhausted.
func (e *DrawEngine) FindNextDrawable(ctx context.Context, category string) (*model.OwnerProgress, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, ErrMissingCategory
	}
	snap, err := e.checkOpen(category)
	if err != nil {
		return nil, err
	}

	owners, err := e.registry.ListOwners(ctx, model.OwnerFilter{
		Category:  category,
		QtyFilter: snap.QtyFilter,
		Queued:    model.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	cursor := e.session.Cursor(category)
	for _, o := range owners {
		if o.QueueNo == 0 || o.QueueNo < cursor {
			continue
		}
		drawn, err := e.registry.CountDrawn(ctx, o.IDCard, category)
		if err != nil {
			return nil, err
		}
		if drawn < o.Qty {
			return &model.OwnerProgress{Owner: o, DrawnCount: drawn}, nil
		}
	}
	return nil, nil
}

// Draw awards the owner of (idCard, category) a contiguous block covering the rest of
// their requested quantity. Draws of one category run one at a time. If the results
// cannot be recorded the numbers go back to the pool and nothing changes.
func (e *DrawEngine) Draw(ctx context.Context, category, idCard string) (*DrawOutcome, error) {
	category = strings.TrimSpace(category)
	idCard = strings.TrimSpace(idCard)
	if category == "" {
		return nil, ErrMissingCategory
	}
	if idCard == "" {
		return nil, ErrMissingIdentity
	}

	unlock := e.session.lockCategory(category)
	defer unlock()

	snap, err := e.checkOpen(category)
	if err != nil {
		return nil, err
	}

	owner, err := e.registry.GetOwner(ctx, idCard, category)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrOwnerNotFound
	}
	if !snap.QtyFilter.Admits(owner.Qty) {
		return nil, ErrQtyFilterMismatch
	}
	if !owner.Queued || owner.QueueNo == 0 {
		return nil, ErrOwnerNotQueued
	}

	already, err := e.registry.CountDrawn(ctx, idCard, category)
	if err != nil {
		return nil, err
	}
	if already >= owner.Qty {
		return nil, ErrAlreadyDrawn
	}
	subClass := strings.TrimSpace(owner.SubClass)
	if subClass == "" {
		return nil, ErrMissingSubClass
	}

	need := owner.Qty - already
	nums, err := e.session.take(category, subClass, need, e.intn)
	if err != nil {
		return nil, err
	}

	rows := make([]model.LotteryResult, 0, len(nums))
	for _, n := range nums {
		rows = append(rows, model.LotteryResult{
			Name:     owner.Name,
			IDCard:   owner.IDCard,
			Category: category,
			SubClass: subClass,
			QueueNo:  owner.QueueNo,
			StallNo:  strconv.Itoa(n),
		})
	}
	if err := e.registry.InsertResults(ctx, rows); err != nil {
		e.session.restore(category, subClass, nums)
		return nil, fmt.Errorf("failed to record draw: %w", err)
	}

	remaining := e.session.commitDraw(category, owner.QueueNo)
	drawn := already + len(nums)

	e.log.Info("stall numbers drawn",
		zap.String("category", category),
		zap.String("sub_class", subClass),
		zap.Int("queue_no", owner.QueueNo),
		zap.Ints("stall_nos", nums),
		zap.Int("remaining", remaining),
	)

	return &DrawOutcome{
		Result: DrawResult{
			Name:     owner.Name,
			IDCard:   owner.IDCard,
			Category: category,
			SubClass: subClass,
			QueueNo:  owner.QueueNo,
			StallNos: nums,
		},
		Draw: Quota{
			Qty:            owner.Qty,
			DrawnCount:     drawn,
			RemainingCount: owner.Qty - drawn,
		},
		Remaining: remaining,
	}, nil
}
