package model

import "time"

// LotteryResult records one stall number awarded to an owner.
// Unique per (Category, StallNo); never mutated after insert.
type LotteryResult struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IDCard    string    `json:"id_card"`
	Category  string    `json:"category"`
	SubClass  string    `json:"sub_class"`
	QueueNo   int       `json:"queue_no"`
	StallNo   string    `json:"stall_no"`
	CreatedAt time.Time `json:"created_at"`
}
