// Package contracts defines the messages exchanged between the waiter and
// its observers (TUI, Redpanda consumers, the history store).
package contracts

import "time"

// PipelineEvent is published every time a waiter observes a pipeline's state.
// Published to: bb.pipelines.status
// Key: {pipeline_id}
type PipelineEvent struct {
	PipelineID  string `json:"pipeline_id"`
	BuildNumber int    `json:"build_number"`
	Branch      string `json:"branch,omitempty"`
	BuildURL    string `json:"build_url,omitempty"`

	// Remote state as observed.
	State  string `json:"state"`
	Stage  string `json:"stage,omitempty"`
	Result string `json:"result,omitempty"`

	// Polling round the observation was made in (0 is the initial record).
	Round int `json:"round"`

	// Final is set on the last event of a wait. Outcome is then one of
	// success, failure or indeterminate; Error is set if the wait failed.
	Final   bool   `json:"final"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`

	Timestamp string `json:"timestamp"`
}

// RunStatus values recorded in the wait history.
const (
	RunStatusWaiting  = "waiting"
	RunStatusFinished = "finished"
	RunStatusErrored  = "errored"
)

// TopicPipelineStatus carries PipelineEvent messages.
const TopicPipelineStatus = "bb.pipelines.status"

// Run is one trigger-and-wait (or wait-only) invocation, as recorded in the
// history store.
type Run struct {
	RunID       string    `json:"run_id"`
	Workspace   string    `json:"workspace"`
	Repo        string    `json:"repo"`
	Branch      string    `json:"branch"`
	Pipeline    string    `json:"pipeline,omitempty"` // custom pipeline name; empty for wait-only runs
	PipelineID  string    `json:"pipeline_id"`
	BuildNumber int       `json:"build_number"`
	BuildURL    string    `json:"build_url"`
	Status      string    `json:"status"` // waiting, finished, errored
	Outcome     string    `json:"outcome,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
