package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"stall-lottery/internal/repository"
	"stall-lottery/pkg/logger"
)

// ClassSyncConfig holds configuration for the person-count sync scheduler.
type ClassSyncConfig struct {
	// Interval is how often person counts are recomputed.
	// Default: 10 minutes
	Interval time.Duration

	// InitialDelay is the wait before the first run after Start.
	InitialDelay time.Duration

	// Timeout bounds a single run.
	// Default: 1 minute
	Timeout time.Duration
}

// DefaultClassSyncConfig returns default sync configuration.
func DefaultClassSyncConfig() ClassSyncConfig {
	return ClassSyncConfig{
		Interval:     10 * time.Minute,
		InitialDelay: 5 * time.Second,
		Timeout:      time.Minute,
	}
}

// ClassSyncScheduler keeps stall class person counts in line with registrations.
type ClassSyncScheduler struct {
	repo      repository.StallClassRepository
	config    ClassSyncConfig
	log       *logger.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewClassSyncScheduler creates a new sync scheduler.
func NewClassSyncScheduler(repo repository.StallClassRepository, config ClassSyncConfig) *ClassSyncScheduler {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}

	return &ClassSyncScheduler{
		repo:   repo,
		config: config,
		log:    logger.Named("class-sync"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *ClassSyncScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.log.Info("class sync scheduler started", zap.Duration("interval", s.config.Interval))

	go func() {
		select {
		case <-time.After(s.config.InitialDelay):
			s.runSync()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

func (s *ClassSyncScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runSync()
		case <-s.stopCh:
			s.log.Info("class sync scheduler stopped")
			return
		}
	}
}

func (s *ClassSyncScheduler) runSync() {
	if err := s.RunNow(context.Background()); err != nil {
		s.log.Error("person count sync failed", zap.Error(err))
		return
	}
	s.log.Debug("person counts synced")
}

// Stop stops the scheduler. It is safe to call more than once.
func (s *ClassSyncScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate sync.
func (s *ClassSyncScheduler) RunNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	return s.repo.SyncPersonCounts(ctx)
}
