package models

import "time"

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Finished reports whether the run has reached a terminal status.
func (s RunStatus) Finished() bool {
	switch s {
	case RunStatusComplete, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

type RunKind string

const (
	RunKindEvaluation RunKind = "evaluation"
	RunKindSimulation RunKind = "simulation"
)

type Run struct {
	ID           int64
	Kind         RunKind
	CreatedAt    time.Time
	CompletedAt  *time.Time
	WorkflowName string
	WorkflowPath string
	ModelID      string
	SessionID    string // claude session, resumable with `claude --resume`
	Input        string // user input for simulations
	Status       RunStatus
	Error        string
	ReportPath   string
	PID          *int
}
