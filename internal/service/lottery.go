package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"stall-lottery/internal/cache"
	"stall-lottery/internal/lottery"
	"stall-lottery/internal/model"
	"stall-lottery/internal/repository"
	"stall-lottery/pkg/logger"
	"stall-lottery/pkg/uid"
)

// Events pushed to every observer.
const (
	EventMode         = "server:mode"
	EventCurrentType  = "server:currentType"
	EventTypeStates   = "server:typeStates"
	EventOwnerQueued  = "server:ownerQueued"
	EventQueueUpdated = "server:queueUpdated"
	EventDrawResult   = "server:drawResult"
)

// Broadcaster fans an event out to every connected observer.
type Broadcaster interface {
	Broadcast(event string, data interface{})
}

// LotteryService is the adapter between the transports and the lottery engine.
// It decides what to broadcast after each state change.
type LotteryService struct {
	engine      *lottery.Engine
	registry    repository.Registry
	cache       cache.Cache
	cacheTTL    time.Duration
	broadcaster Broadcaster
	log         *logger.Logger
}

// NewLotteryService creates the service. cache and broadcaster may be nil.
func NewLotteryService(
	engine *lottery.Engine,
	registry repository.Registry,
	c cache.Cache,
	cacheTTL time.Duration,
	broadcaster Broadcaster,
) *LotteryService {
	return &LotteryService{
		engine:      engine,
		registry:    registry,
		cache:       c,
		cacheTTL:    cacheTTL,
		broadcaster: broadcaster,
		log:         logger.Named("service"),
	}
}

// ConfigView is the operator's view of the session selection.
type ConfigView struct {
	model.ModeSnapshot
	Total  int                `json:"total"`
	Ranges []model.ClassRange `json:"ranges"`
}

// QueueSnapshot lists the queued and unqueued owners of a category.
type QueueSnapshot struct {
	Category  string          `json:"category"`
	QtyFilter model.QtyFilter `json:"qty_filter"`
	Queued    []model.Owner   `json:"queued"`
	Unqueued  []model.Owner   `json:"unqueued"`
}

// UnqueuedList lists owners of a category still waiting for a queue number.
type UnqueuedList struct {
	Category  string          `json:"category"`
	QtyFilter model.QtyFilter `json:"qty_filter"`
	Unqueued  []model.Owner   `json:"unqueued"`
}

// OwnerQueued is the payload of EventOwnerQueued.
type OwnerQueued struct {
	Category string      `json:"category"`
	Owner    model.Owner `json:"owner"`
}

// ImportResult reports an owner import.
type ImportResult struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
}

// ============================================================================
// Session
// ============================================================================

// Mode returns the current category, mode and quantity filter.
func (s *LotteryService) Mode() model.ModeSnapshot {
	return s.engine.Session.Mode()
}

// CurrentCategory returns the current category and its remaining count.
func (s *LotteryService) CurrentCategory() model.CategorySnapshot {
	return s.engine.Session.Current()
}

// Statuses returns every category status seen since start.
func (s *LotteryService) Statuses() []model.CategoryStatus {
	return s.engine.Session.Statuses()
}

// Config returns the selection with the derived numbering of the current category.
func (s *LotteryService) Config() ConfigView {
	snap := s.engine.Session.Mode()
	ranges := s.engine.Session.Ranges(snap.Category)
	if ranges == nil {
		ranges = []model.ClassRange{}
	}
	return ConfigView{
		ModeSnapshot: snap,
		Total:        s.engine.Session.Total(snap.Category),
		Ranges:       ranges,
	}
}

// Status reports progress of the current phase.
func (s *LotteryService) Status(ctx context.Context) (*lottery.Status, error) {
	return s.engine.Controller.Status(ctx)
}

// SetConfig switches category and mode, then pushes the new state to everyone.
func (s *LotteryService) SetConfig(ctx context.Context, category, mode, qtyFilter string) (model.ModeSnapshot, error) {
	snap, err := s.engine.Controller.SetConfig(ctx, category, mode, qtyFilter)
	if err != nil {
		return model.ModeSnapshot{}, err
	}
	s.broadcastState()
	return snap, nil
}

// Restore resumes the persisted session at startup.
func (s *LotteryService) Restore(ctx context.Context) error {
	if err := s.engine.Controller.Restore(ctx); err != nil {
		return err
	}
	snap := s.engine.Session.Mode()
	s.log.Info("session restored",
		zap.String("category", snap.Category),
		zap.String("mode", string(snap.Mode)),
		zap.String("qty_filter", string(snap.QtyFilter)),
	)
	return nil
}

func (s *LotteryService) broadcastState() {
	s.broadcast(EventMode, s.engine.Session.Mode())
	s.broadcast(EventCurrentType, s.engine.Session.Current())
	s.broadcast(EventTypeStates, s.engine.Session.Statuses())
}

func (s *LotteryService) broadcast(event string, data interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(event, data)
	}
}

// resolveCategory falls back to the current category.
func (s *LotteryService) resolveCategory(category string) (string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		category = s.engine.Session.Mode().Category
	}
	if category == "" {
		return "", lottery.ErrMissingCategory
	}
	return category, nil
}

// ============================================================================
// Queue phase
// ============================================================================

// Snapshot lists queued and unqueued owners of the category under the current filter.
func (s *LotteryService) Snapshot(ctx context.Context, category string) (*QueueSnapshot, error) {
	category, err := s.resolveCategory(category)
	if err != nil {
		return nil, err
	}
	filter := s.engine.Session.Mode().QtyFilter

	queued, err := s.registry.ListOwners(ctx, model.OwnerFilter{Category: category, QtyFilter: filter, Queued: model.Bool(true)})
	if err != nil {
		return nil, err
	}
	unqueued, err := s.registry.ListOwners(ctx, model.OwnerFilter{Category: category, QtyFilter: filter, Queued: model.Bool(false)})
	if err != nil {
		return nil, err
	}
	return &QueueSnapshot{Category: category, QtyFilter: filter, Queued: ownersOrEmpty(queued), Unqueued: ownersOrEmpty(unqueued)}, nil
}

// Unqueued lists owners of the category still waiting for a queue number.
func (s *LotteryService) Unqueued(ctx context.Context, category string) (*UnqueuedList, error) {
	category, err := s.resolveCategory(category)
	if err != nil {
		return nil, err
	}
	filter := s.engine.Session.Mode().QtyFilter

	unqueued, err := s.registry.ListOwners(ctx, model.OwnerFilter{Category: category, QtyFilter: filter, Queued: model.Bool(false)})
	if err != nil {
		return nil, err
	}
	return &UnqueuedList{Category: category, QtyFilter: filter, Unqueued: ownersOrEmpty(unqueued)}, nil
}

func ownersOrEmpty(owners []model.Owner) []model.Owner {
	if owners == nil {
		return []model.Owner{}
	}
	return owners
}

// DefaultRange returns "1-<sum of requested quantities>" for the category.
func (s *LotteryService) DefaultRange(ctx context.Context, category string) (string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return "", lottery.ErrMissingCategory
	}
	sum, err := s.registry.SumQty(ctx, category, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("1-%d", sum), nil
}

// Queue allocates a queue number for the owner and announces it.
func (s *LotteryService) Queue(ctx context.Context, idCard, category string) (*model.OwnerProgress, error) {
	progress, err := s.engine.Allocator.Allocate(ctx, idCard, category)
	if err != nil {
		return nil, err
	}
	s.invalidateOwner(ctx, progress.IDCard)
	s.broadcast(EventOwnerQueued, OwnerQueued{Category: progress.Category, Owner: progress.Owner})
	return progress, nil
}

// ============================================================================
// Draw phase
// ============================================================================

// NextDrawable returns the next owner due to draw, or nil when none is left.
func (s *LotteryService) NextDrawable(ctx context.Context, category string) (*model.OwnerProgress, error) {
	category, err := s.resolveCategory(category)
	if err != nil {
		return nil, err
	}
	return s.engine.Draws.FindNextDrawable(ctx, category)
}

// Draw performs a draw for the owner and pushes the result and new counters to everyone.
func (s *LotteryService) Draw(ctx context.Context, category, idCard string) (*lottery.DrawOutcome, error) {
	category, err := s.resolveCategory(category)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.Draws.Draw(ctx, category, idCard)
	if err != nil {
		return nil, err
	}

	s.invalidateOwner(ctx, out.Result.IDCard)
	s.broadcast(EventDrawResult, out)
	s.broadcast(EventCurrentType, model.CategorySnapshot{Category: category, Remaining: out.Remaining})
	s.broadcast(EventTypeStates, s.engine.Session.Statuses())
	return out, nil
}

// Results lists the awarded numbers of a category.
func (s *LotteryService) Results(ctx context.Context, category string) ([]model.LotteryResult, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, lottery.ErrMissingCategory
	}
	return s.registry.ListResults(ctx, category)
}

// ============================================================================
// Participants
// ============================================================================

// Login entries are keyed by a per-participant generation. Writes replace the
// generation, so an entry computed from a read that raced a write is never served.
func ownerCacheKey(idCard, generation, name string) string {
	return "owner:" + idCard + ":" + generation + ":" + name
}

func ownerGenerationKey(idCard string) string {
	return "owner-gen:" + idCard
}

func (s *LotteryService) ownerGeneration(ctx context.Context, idCard string) string {
	raw, err := s.cache.Get(ctx, ownerGenerationKey(idCard))
	if err != nil {
		return "0"
	}
	return string(raw)
}

// Login returns every registration of a participant with their drawn counts.
// Lookups are cached until the participant queues or draws.
func (s *LotteryService) Login(ctx context.Context, idCard, name string) ([]model.OwnerProgress, error) {
	idCard = strings.TrimSpace(idCard)
	name = strings.TrimSpace(name)
	if idCard == "" {
		return nil, lottery.ErrMissingIdentity
	}
	if name == "" {
		return nil, lottery.ErrMissingName
	}

	load := func() ([]byte, error) {
		owners, err := s.registry.FindOwners(ctx, idCard, name)
		if err != nil {
			return nil, err
		}
		if len(owners) == 0 {
			return nil, lottery.ErrOwnerNotFound
		}
		out := make([]model.OwnerProgress, 0, len(owners))
		for _, o := range owners {
			drawn, err := s.registry.CountDrawn(ctx, o.IDCard, o.Category)
			if err != nil {
				return nil, err
			}
			out = append(out, model.OwnerProgress{Owner: o, DrawnCount: drawn})
		}
		return json.Marshal(out)
	}

	var (
		raw []byte
		err error
	)
	if s.cache != nil {
		gen := s.ownerGeneration(ctx, idCard)
		raw, err = s.cache.GetOrSet(ctx, ownerCacheKey(idCard, gen, name), s.cacheTTL, load)
	} else {
		raw, err = load()
	}
	if err != nil {
		return nil, err
	}

	var owners []model.OwnerProgress
	if err := json.Unmarshal(raw, &owners); err != nil {
		return nil, fmt.Errorf("failed to decode participant: %w", err)
	}
	return owners, nil
}

func (s *LotteryService) invalidateOwner(ctx context.Context, idCard string) {
	if s.cache == nil {
		return
	}
	// Outlive every entry keyed by the previous generation.
	ttl := 2*s.cacheTTL + time.Minute
	if err := s.cache.Set(ctx, ownerGenerationKey(idCard), []byte(uid.New()), ttl); err != nil {
		s.log.Warn("failed to bump participant cache generation", zap.Error(err))
	}
	if err := s.cache.DeletePrefix(ctx, "owner:"+idCard+":"); err != nil {
		s.log.Warn("failed to invalidate participant cache", zap.Error(err))
	}
}

// ImportOwners inserts registrations, skipping ones that already exist, and refreshes
// the per-class person counts.
func (s *LotteryService) ImportOwners(ctx context.Context, owners []model.Owner) (*ImportResult, error) {
	clean := make([]model.Owner, 0, len(owners))
	for i, o := range owners {
		o.IDCard = strings.TrimSpace(o.IDCard)
		o.Name = strings.TrimSpace(o.Name)
		o.Category = strings.TrimSpace(o.Category)
		o.SubClass = strings.TrimSpace(o.SubClass)
		switch {
		case o.IDCard == "":
			return nil, fmt.Errorf("row %d: %w", i+1, lottery.ErrMissingIdentity)
		case o.Name == "":
			return nil, fmt.Errorf("row %d: %w", i+1, lottery.ErrMissingName)
		case o.Category == "":
			return nil, fmt.Errorf("row %d: %w", i+1, lottery.ErrMissingCategory)
		case o.Qty < 1:
			return nil, fmt.Errorf("row %d: %w", i+1, lottery.ErrInvalidQty)
		}
		clean = append(clean, o)
	}

	inserted, err := s.registry.InsertOwners(ctx, clean)
	if err != nil {
		return nil, err
	}
	if err := s.registry.SyncPersonCounts(ctx); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.DeletePrefix(ctx, "owner:"); err != nil {
			s.log.Warn("failed to clear participant cache", zap.Error(err))
		}
	}

	s.log.Info("owners imported", zap.Int("received", len(owners)), zap.Int("inserted", inserted))
	return &ImportResult{Received: len(owners), Inserted: inserted}, nil
}

// Stats returns registry and cache statistics for the admin endpoint.
func (s *LotteryService) Stats(ctx context.Context) (map[string]interface{}, error) {
	reg, err := s.registry.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	stats := map[string]interface{}{
		"registry": reg,
		"session":  s.Config(),
		"statuses": s.Statuses(),
	}
	if s.cache != nil {
		stats["cache"] = s.cache.Stats()
	}
	return stats, nil
}

// Ping checks the registry.
func (s *LotteryService) Ping(ctx context.Context) error {
	return s.registry.Ping(ctx)
}
