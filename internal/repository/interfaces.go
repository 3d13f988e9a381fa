package repository

import (
	"context"
	"errors"

	"stall-lottery/internal/model"
)

// ErrAllocationLost is returned when the conditional queue update matched no row.
var ErrAllocationLost = errors.New("queue allocation lost: owner not in an unqueued state")

var (
	// ErrStallClassNotFound is returned when a stall class id matches no row.
	ErrStallClassNotFound = errors.New("stall class not found")

	// ErrStallClassExists is returned when another row already holds the (category, sub-class) pair.
	ErrStallClassExists = errors.New("stall class already exists")
)

// ConfigRepository stores named runtime configuration values.
type ConfigRepository interface {
	// GetConfigValue returns the value for key and whether it was present.
	GetConfigValue(ctx context.Context, key string) (string, bool, error)

	// SetConfigValues upserts all values in a single transaction.
	SetConfigValues(ctx context.Context, values map[string]string) error
}

// OwnerRepository defines vendor registration access.
type OwnerRepository interface {
	// ListOwners lists owners of a category. Queued owners are ordered by queue number,
	// everything else by id.
	ListOwners(ctx context.Context, filter model.OwnerFilter) ([]model.Owner, error)

	// CountOwners counts owners matching the filter.
	CountOwners(ctx context.Context, filter model.OwnerFilter) (int, error)

	// GetOwner returns one registration, or nil if absent.
	GetOwner(ctx context.Context, idCard, category string) (*model.Owner, error)

	// FindOwners returns every registration of one person across categories.
	FindOwners(ctx context.Context, idCard, name string) ([]model.Owner, error)

	// AllocateQueueNo assigns the next queue number in the (category, qtyFilter) partition.
	// It returns the existing number if the owner is already queued.
	AllocateQueueNo(ctx context.Context, idCard, category string, qtyFilter model.QtyFilter) (int, error)

	// NextQueueNo returns the number the next allocation in the partition would receive.
	NextQueueNo(ctx context.Context, category string, qtyFilter model.QtyFilter) (int, error)

	// SumQty sums requested quantities in the partition.
	SumQty(ctx context.Context, category string, qtyFilter model.QtyFilter) (int, error)

	// InsertOwners bulk-inserts registrations, ignoring rows that already exist.
	InsertOwners(ctx context.Context, owners []model.Owner) (int, error)
}

// ResultRepository defines lottery result access.
type ResultRepository interface {
	// CountDrawn counts stall numbers already awarded to an owner in a category.
	CountDrawn(ctx context.Context, idCard, category string) (int, error)

	// ListDrawnStallNos lists stall numbers already awarded in a category.
	ListDrawnStallNos(ctx context.Context, category string) ([]string, error)

	// InsertResults appends all rows atomically.
	InsertResults(ctx context.Context, results []model.LotteryResult) error

	// ListResults lists results of a category ordered by queue number then stall number.
	ListResults(ctx context.Context, category string) ([]model.LotteryResult, error)
}

// StallClassRepository defines stall class configuration access.
type StallClassRepository interface {
	// ListStallClasses lists every class ordered by (order_no, id).
	ListStallClasses(ctx context.Context) ([]model.StallClass, error)

	// AddStallClass returns ErrStallClassExists for a duplicate (category, sub-class).
	AddStallClass(ctx context.Context, class model.StallClass) (int64, error)

	// UpdateStallClass returns ErrStallClassNotFound or ErrStallClassExists.
	UpdateStallClass(ctx context.Context, class model.StallClass) error

	// UpdateStallClasses updates all rows in one transaction.
	UpdateStallClasses(ctx context.Context, classes []model.StallClass) error

	// DeleteStallClass returns ErrStallClassNotFound for an unknown id.
	DeleteStallClass(ctx context.Context, id int64) error

	// SyncPersonCounts recomputes person_count from registrations.
	SyncPersonCounts(ctx context.Context) error
}

// Registry is the durable store behind the lottery engine.
type Registry interface {
	ConfigRepository
	OwnerRepository
	ResultRepository
	StallClassRepository

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// GetStats returns statistics about the registry database.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}
