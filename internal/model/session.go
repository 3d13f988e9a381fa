package model

import "strings"

// Mode is the phase the current category is in.
type Mode string

const (
	ModeIdle  Mode = "idle"
	ModeQueue Mode = "queue"
	ModeDraw  Mode = "draw"
)

// ParseMode validates a textual mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.TrimSpace(s)) {
	case ModeIdle:
		return ModeIdle, true
	case ModeQueue:
		return ModeQueue, true
	case ModeDraw:
		return ModeDraw, true
	}
	return "", false
}

// CategoryStatus summarises one category's progress.
type CategoryStatus struct {
	Category  string `json:"category"`
	Started   bool   `json:"started"`
	Ended     bool   `json:"ended"`
	Remaining int    `json:"remaining"`
}

// ModeSnapshot is the current category, mode and quantity filter.
type ModeSnapshot struct {
	Category  string    `json:"category"`
	Mode      Mode      `json:"mode"`
	QtyFilter QtyFilter `json:"qty_filter"`
}

// CategorySnapshot is the current category and its remaining stall count.
type CategorySnapshot struct {
	Category  string `json:"category"`
	Remaining int    `json:"remaining"`
}
