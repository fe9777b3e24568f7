package job

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a replication job.
//
// NOTE: These values are persisted in the job store and are part of the
// stable on-the-wire contract.
type State string

const (
	StateProvisioning State = "provisioning"
	StatePending      State = "pending"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// Terminal reports whether the state permits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// NonTerminalStates are the states the reconciler sweeps. Jobs in
// provisioning are excluded: a provisioning failure is marked failed
// synchronously at submit time, and a successful launch moves the job to
// pending as soon as the worker reports in.
var NonTerminalStates = []State{StatePending, StateRunning}

// Spec is a replication job submission.
//
// Filter and Options are opaque to the service; they are stored and
// forwarded to the worker verbatim.
type Spec struct {
	Command   string          `json:"command"`
	SourceURL string          `json:"source_url"`
	TargetURL string          `json:"target_url"`
	Filter    json.RawMessage `json:"filter,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
}

// Record is the persistent job record.
//
// Timestamps decode best-effort: a record with a missing or malformed
// created_at loads with a zero CreatedAt rather than failing the read.
// The reconciler treats such records as having no trustworthy age.
type Record struct {
	ID          string
	Status      State
	Command     string
	SourceURL   string
	TargetURL   string
	Filter      json.RawMessage
	Options     json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	InstanceID  string
	Error       string
	Progress    string // raw JSON reported by the worker, parsed only for exposure
	ExpiresAt   int64  // epoch seconds; the store purges the record after this
}

// Submission is the result of a successful Submit.
type Submission struct {
	JobID  string `json:"job_id"`
	Status State  `json:"status"`
}

// StatusView is the read-only projection of a job returned by Get.
type StatusView struct {
	JobID       string         `json:"job_id"`
	Status      State          `json:"status"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	InstanceID  string         `json:"instance_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Progress    map[string]any `json:"progress,omitempty"`
}

// View builds the externally visible projection of a record. Progress is
// best-effort telemetry: malformed progress is omitted, never an error.
func (r *Record) View() *StatusView {
	v := &StatusView{
		JobID:       r.ID,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		InstanceID:  r.InstanceID,
		Error:       r.Error,
	}
	if r.Progress != "" {
		var progress map[string]any
		if err := json.Unmarshal([]byte(r.Progress), &progress); err == nil {
			v.Progress = progress
		}
	}
	return v
}
