package model

import (
	"strings"
	"time"
)

// Owner is one vendor's registration for one stall category.
// At most one row exists per (IDCard, Category).
type Owner struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IDCard    string    `json:"id_card"`
	Category  string    `json:"category"`
	SubClass  string    `json:"sub_class"`
	Qty       int       `json:"qty"`
	QueueNo   int       `json:"queue_no"` // 0 = unassigned
	Queued    bool      `json:"queued"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnerProgress is an owner together with the number of stall numbers already awarded.
type OwnerProgress struct {
	Owner
	DrawnCount int `json:"drawn_count"`
}

// QtyFilter partitions owners by requested unit quantity.
type QtyFilter string

const (
	QtySingle QtyFilter = "single" // qty = 1
	QtyMulti  QtyFilter = "multi"  // qty > 1
)

// ParseQtyFilter validates a textual quantity filter.
func ParseQtyFilter(s string) (QtyFilter, bool) {
	switch QtyFilter(strings.TrimSpace(s)) {
	case QtySingle:
		return QtySingle, true
	case QtyMulti:
		return QtyMulti, true
	}
	return "", false
}

// Admits reports whether an owner requesting qty units belongs to the partition.
// An empty filter admits everyone.
func (f QtyFilter) Admits(qty int) bool {
	switch f {
	case QtySingle:
		return qty == 1
	case QtyMulti:
		return qty > 1
	}
	return true
}

// OwnerFilter selects owners of one category.
type OwnerFilter struct {
	Category  string
	QtyFilter QtyFilter // empty = any quantity
	Queued    *bool     // nil = both
}

// Bool returns a pointer to b, for OwnerFilter.Queued.
func Bool(b bool) *bool {
	return &b
}
