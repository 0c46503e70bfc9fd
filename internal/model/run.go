package model

import "time"

// RunStatus represents the current state of a scan run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the batch scanner, persisted for history.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Targets   []Identity  `json:"targets"`
	MinScore  float64     `json:"min_score"`
	Documents int         `json:"documents"`
	Stats     *BatchStats `json:"stats,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
