package models

import "time"

// Outcome is the terminal result of one team's switch transaction.
type Outcome string

const (
	OutcomeCommitted  Outcome = "COMMITTED"
	OutcomeRolledBack Outcome = "ROLLED_BACK"
	OutcomeAborted    Outcome = "ABORTED"

	// OutcomePlanned is reported for dry runs only: no transaction was
	// created and no collaborator was called.
	OutcomePlanned Outcome = "PLANNED"
)

// StepRecord is one completed state-machine step inside a transaction.
type StepRecord struct {
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SwitchTransaction is the audit record of one team's blue-green switch.
// It exists while the transaction runs and is summarized into the audit
// log once terminal.
type SwitchTransaction struct {
	ID        string        `json:"id"`
	Team      string        `json:"team"`
	Operation Operation     `json:"operation"`
	FromSlot  Slot          `json:"from_slot"`
	ToSlot    Slot          `json:"to_slot"`
	Steps     []StepRecord  `json:"steps"`
	Outcome   Outcome       `json:"outcome"`
	Reason    string        `json:"reason,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// TeamResult is the per-team slice of an operation's result set. The
// operation never collapses these into a single pass/fail.
type TeamResult struct {
	Team     string  `json:"team"`
	Outcome  Outcome `json:"outcome"`
	FromSlot Slot    `json:"from_slot,omitempty"`
	ToSlot   Slot    `json:"to_slot,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Duration int64   `json:"duration_ms"`
}

// HealthCheckResult is the verdict of one health gate run. Ephemeral:
// consumed by the coordinator and logged, never persisted on its own.
type HealthCheckResult struct {
	Team      string        `json:"team"`
	Slot      Slot          `json:"slot"`
	Healthy   bool          `json:"healthy"`
	Attempts  int           `json:"attempts"`
	Latency   time.Duration `json:"latency"`
	Detail    string        `json:"detail,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
