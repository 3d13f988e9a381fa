package lottery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"stall-lottery/internal/model"
	"stall-lottery/internal/repository"
	"stall-lottery/pkg/logger"
)

// Allocator hands out queue numbers while the current category is in queue mode.
type Allocator struct {
	registry repository.Registry
	session  *Session
	log      *logger.Logger
}

// NewAllocator creates an allocator reading the current selection from session.
func NewAllocator(registry repository.Registry, session *Session) *Allocator {
	return &Allocator{
		registry: registry,
		session:  session,
		log:      logger.Named("allocator"),
	}
}

// Allocate queues the owner of (idCard, category) in the current quantity partition.
// An owner that is already queued keeps its number.
func (a *Allocator) Allocate(ctx context.Context, idCard, category string) (*model.OwnerProgress, error) {
	idCard = strings.TrimSpace(idCard)
	category = strings.TrimSpace(category)
	if idCard == "" {
		return nil, ErrMissingIdentity
	}
	if category == "" {
		return nil, ErrMissingCategory
	}

	snap := a.session.Mode()
	if snap.Category == "" || snap.Category != category {
		return nil, ErrCategoryNotActive
	}
	if snap.Mode != model.ModeQueue {
		return nil, ErrNotQueueMode
	}

	owner, err := a.registry.GetOwner(ctx, idCard, category)
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
		queueNo, err := a.registry.AllocateQueueNo(ctx, idCard, category, snap.QtyFilter)
		if err != nil {
			if errors.Is(err, repository.ErrAllocationLost) {
				return nil, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
			}
			return nil, err
		}
		a.log.Info("queue number allocated",
			zap.String("category", category),
			zap.String("qty_filter", string(snap.QtyFilter)),
			zap.Int("queue_no", queueNo),
		)
	}

	updated, err := a.registry.GetOwner(ctx, idCard, category)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrOwnerNotFound
	}
	drawn, err := a.registry.CountDrawn(ctx, idCard, category)
	if err != nil {
		return nil, err
	}
	return &model.OwnerProgress{Owner: *updated, DrawnCount: drawn}, nil
}
