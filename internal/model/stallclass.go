package model

// StallClass describes how many stall numbers a sub-class owns within a category
// and where its block sits in the numbering sequence.
type StallClass struct {
	ID          int64  `json:"id"`
	Category    string `json:"category"`
	SubClass    string `json:"sub_class"`
	PersonCount int    `json:"person_count"`
	StallCount  int    `json:"stall_count"`
	OrderNo     int    `json:"order_no"`
}

// ClassRange is the contiguous block of stall numbers owned by one StallClass.
// Start and End are zero when Count is zero.
type ClassRange struct {
	ClassID  int64  `json:"class_id"`
	SubClass string `json:"sub_class"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Count    int    `json:"count"`
}
