package model

import "time"

type TargetPhase string

const (
	TargetPhaseIdle       TargetPhase = "idle"
	TargetPhaseScheduling TargetPhase = "scheduling"
	TargetPhaseWaiting    TargetPhase = "waiting"
	TargetPhaseSubmitting TargetPhase = "submitting"
	TargetPhaseStopped    TargetPhase = "stopped"
	TargetPhaseFailed     TargetPhase = "failed"
)

// TargetState is the operator-facing view of one per-target loop.
type TargetState struct {
	URL       string      `json:"url"`
	Phase     TargetPhase `json:"phase"`
	Cycle     int         `json:"cycle"`
	Planned   int         `json:"planned"`
	Done      int         `json:"done"`
	Failed    int         `json:"failed"`
	NextAtMs  int64       `json:"nextAtMs,omitempty"`
	LastError string      `json:"lastError,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
