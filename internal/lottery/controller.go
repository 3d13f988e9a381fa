package lottery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"stall-lottery/internal/model"
	"stall-lottery/internal/repository"
	"stall-lottery/pkg/logger"
)

// Runtime config keys. The derived numbering is never stored.
const (
	ConfigKeyCategory  = "session:category"
	ConfigKeyMode      = "session:mode"
	ConfigKeyQtyFilter = "session:qty_filter"
)

// Controller drives the idle/queue/draw state machine of the Session.
type Controller struct {
	registry repository.Registry
	session  *Session
	log      *logger.Logger

	mu sync.Mutex // serialises transitions
}

// NewController creates a controller over session.
func NewController(registry repository.Registry, session *Session) *Controller {
	return &Controller{
		registry: registry,
		session:  session,
		log:      logger.Named("controller"),
	}
}

// SetConfig selects the current category and enters mode. An empty qtyFilter keeps the
// current one. Nothing changes unless the new state is derived and persisted.
func (c *Controller) SetConfig(ctx context.Context, category, mode, qtyFilter string) (model.ModeSnapshot, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return model.ModeSnapshot{}, ErrMissingCategory
	}
	m, ok := model.ParseMode(mode)
	if !ok {
		return model.ModeSnapshot{}, ErrInvalidMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	filter := c.session.Mode().QtyFilter
	if strings.TrimSpace(qtyFilter) != "" {
		f, ok := model.ParseQtyFilter(qtyFilter)
		if !ok {
			return model.ModeSnapshot{}, ErrInvalidQtyFilter
		}
		filter = f
	}

	if err := c.transition(ctx, category, m, filter, true); err != nil {
		return model.ModeSnapshot{}, err
	}
	return c.session.Mode(), nil
}

// Restore re-enters the persisted state. With nothing persisted the session stays idle.
// An unknown persisted mode restores as idle and an unknown filter as single.
func (c *Controller) Restore(ctx context.Context) error {
	category, _, err := c.registry.GetConfigValue(ctx, ConfigKeyCategory)
	if err != nil {
		return err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		c.log.Info("no persisted session, staying idle")
		return nil
	}

	rawMode, _, err := c.registry.GetConfigValue(ctx, ConfigKeyMode)
	if err != nil {
		return err
	}
	rawFilter, _, err := c.registry.GetConfigValue(ctx, ConfigKeyQtyFilter)
	if err != nil {
		return err
	}

	mode, ok := model.ParseMode(rawMode)
	if !ok {
		mode = model.ModeIdle
	}
	filter, ok := model.ParseQtyFilter(rawFilter)
	if !ok {
		filter = model.QtySingle
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transition(ctx, category, mode, filter, false); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	return nil
}

// transition derives the new state, persists it, then applies it in memory.
// The category lock keeps pools from being replaced under an in-flight draw.
func (c *Controller) transition(ctx context.Context, category string, mode model.Mode, filter model.QtyFilter, persist bool) error {
	unlock := c.session.lockCategory(category)
	defer unlock()

	var pools *PoolSet
	if mode == model.ModeDraw {
		var err error
		pools, err = c.buildPools(ctx, category)
		if err != nil {
			return err
		}
	}

	if persist {
		err := c.registry.SetConfigValues(ctx, map[string]string{
			ConfigKeyCategory:  category,
			ConfigKeyMode:      string(mode),
			ConfigKeyQtyFilter: string(filter),
		})
		if err != nil {
			return err
		}
	}

	c.session.apply(category, mode, filter, pools)

	fields := []zap.Field{
		zap.String("category", category),
		zap.String("mode", string(mode)),
		zap.String("qty_filter", string(filter)),
	}
	if pools != nil {
		fields = append(fields, zap.Int("total", pools.Total()), zap.Int("remaining", pools.Remaining()))
	}
	c.log.Info("session transition", fields...)
	return nil
}

func (c *Controller) buildPools(ctx context.Context, category string) (*PoolSet, error) {
	classes, err := c.registry.ListStallClasses(ctx)
	if err != nil {
		return nil, err
	}
	drawn, err := c.registry.ListDrawnStallNos(ctx, category)
	if err != nil {
		return nil, err
	}
	return BuildPools(classes, category, drawn), nil
}

// QueueStatus summarises the queue phase of the current category.
type QueueStatus struct {
	NextQueueNo   int `json:"next_queue_no"`
	QueuedCount   int `json:"queued_count"`
	UnqueuedCount int `json:"unqueued_count"`
}

// DrawStatus summarises the draw phase of the current category.
type DrawStatus struct {
	Cursor         int      `json:"cursor"`
	Total          int      `json:"total"`
	DrawnCount     int      `json:"drawn_count"`
	RemainingCount int      `json:"remaining_count"`
	DrawnStallNos  []string `json:"drawn_stall_nos"`
}

// Status is the operator view of the session.
type Status struct {
	model.ModeSnapshot
	Queue *QueueStatus `json:"queue,omitempty"`
	Draw  *DrawStatus  `json:"draw,omitempty"`
}

// Status reports the progress of the current phase.
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	snap := c.session.Mode()
	st := &Status{ModeSnapshot: snap}
	if snap.Category == "" {
		return st, nil
	}

	switch snap.Mode {
	case model.ModeQueue:
		next, err := c.registry.NextQueueNo(ctx, snap.Category, snap.QtyFilter)
		if err != nil {
			return nil, err
		}
		queued, err := c.registry.CountOwners(ctx, model.OwnerFilter{Category: snap.Category, QtyFilter: snap.QtyFilter, Queued: model.Bool(true)})
		if err != nil {
			return nil, err
		}
		unqueued, err := c.registry.CountOwners(ctx, model.OwnerFilter{Category: snap.Category, QtyFilter: snap.QtyFilter, Queued: model.Bool(false)})
		if err != nil {
			return nil, err
		}
		st.Queue = &QueueStatus{NextQueueNo: next, QueuedCount: queued, UnqueuedCount: unqueued}

	case model.ModeDraw:
		drawn, err := c.registry.ListDrawnStallNos(ctx, snap.Category)
		if err != nil {
			return nil, err
		}
		if drawn == nil {
			drawn = []string{}
		}
		total := c.session.Total(snap.Category)
		remaining := c.session.Remaining(snap.Category)
		drawnCount := total - remaining
		if drawnCount < 0 {
			drawnCount = 0
		}
		st.Draw = &DrawStatus{
			Cursor:         c.session.Cursor(snap.Category),
			Total:          total,
			DrawnCount:     drawnCount,
			RemainingCount: remaining,
			DrawnStallNos:  drawn,
		}
	}
	return st, nil
}
