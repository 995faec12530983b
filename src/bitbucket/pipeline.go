package bitbucket

import (
	"encoding/json"
	"fmt"
	"time"
)

// Pipeline state, result and stage names reported by Bitbucket.
const (
	StatePending    = "PENDING"
	StateInProgress = "IN_PROGRESS"
	StateCompleted  = "COMPLETED"

	ResultSuccessful = "SUCCESSFUL"
	ResultFailed     = "FAILED"

	StagePaused = "PAUSED"

	RefTypeBranch = "branch"
)

// Named is the {"name": ...} object Bitbucket uses for results and stages.
type Named struct {
	Name string `json:"name"`
}

// State is the nested state of a pipeline. Result and Stage are nil unless
// Bitbucket supplied them.
type State struct {
	Name   string `json:"name"`
	Result *Named `json:"result,omitempty"`
	Stage  *Named `json:"stage,omitempty"`
}

// Target is the ref a pipeline was triggered against.
type Target struct {
	Type    string `json:"type,omitempty"`
	RefType string `json:"ref_type"`
	RefName string `json:"ref_name"`
}

// Pipeline is a snapshot of one build at the time it was fetched. It is a
// value: polling again produces a new Pipeline.
type Pipeline struct {
	UUID      *string    `json:"uuid,omitempty"`
	Number    *int       `json:"build_number,omitempty"`
	State     State      `json:"state"`
	Target    Target     `json:"target"`
	CreatedOn *time.Time `json:"created_on,omitempty"`
}

// pipelineDocument mirrors Pipeline with a pointer State so decoding can
// tell an absent state from an empty one.
type pipelineDocument struct {
	UUID      *string    `json:"uuid"`
	Number    *int       `json:"build_number"`
	State     *State     `json:"state"`
	Target    Target     `json:"target"`
	CreatedOn *time.Time `json:"created_on"`
}

// UnmarshalJSON rejects documents without a state.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var doc pipelineDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.State == nil {
		return fmt.Errorf("%w: state", ErrMissingField)
	}
	*p = Pipeline{
		UUID:      doc.UUID,
		Number:    doc.Number,
		State:     *doc.State,
		Target:    doc.Target,
		CreatedOn: doc.CreatedOn,
	}
	return nil
}

// ID returns the pipeline uuid used to re-fetch it.
func (p Pipeline) ID() (string, error) {
	if p.UUID == nil {
		return "", fmt.Errorf("%w: uuid", ErrMissingField)
	}
	return *p.UUID, nil
}

// BuildNumber returns the human-facing build number.
func (p Pipeline) BuildNumber() (int, error) {
	if p.Number == nil {
		return 0, fmt.Errorf("%w: build_number", ErrMissingField)
	}
	return *p.Number, nil
}

// TargetBranch returns the branch the pipeline ran on. Tag or commit
// targets have no branch.
func (p Pipeline) TargetBranch() (string, bool) {
	if p.Target.RefType != RefTypeBranch {
		return "", false
	}
	return p.Target.RefName, true
}

// ResultName returns state.result.name, or "" when no result is present.
func (p Pipeline) ResultName() string {
	if p.State.Result == nil {
		return ""
	}
	return p.State.Result.Name
}

// StageName returns state.stage.name, or "" when no stage is present.
func (p Pipeline) StageName() string {
	if p.State.Stage == nil {
		return ""
	}
	return p.State.Stage.Name
}

func (p Pipeline) active() bool {
	if p.State.Name != StateInProgress && p.State.Name != StatePending {
		return false
	}
	return p.State.Result == nil
}

// Running reports whether Bitbucket is still making progress on the pipeline.
func (p Pipeline) Running() bool {
	return p.active() && p.StageName() != StagePaused
}

// Paused reports whether the pipeline is waiting on a manual step.
func (p Pipeline) Paused() bool {
	return p.active() && p.StageName() == StagePaused
}

// Outcome maps the pipeline's result to a tri-state outcome. It is only
// meaningful once Running is false.
func (p Pipeline) Outcome() Outcome {
	if p.State.Result == nil {
		return OutcomeIndeterminate
	}
	if p.State.Result.Name == ResultSuccessful {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// Describe renders the state for log lines, e.g. "IN_PROGRESS/RUNNING" or
// "COMPLETED (FAILED)".
func (p Pipeline) Describe() string {
	s := p.State.Name
	if stage := p.StageName(); stage != "" {
		s += "/" + stage
	}
	if result := p.ResultName(); result != "" {
		s += " (" + result + ")"
	}
	return s
}

// Outcome is the result of waiting on a pipeline.
type Outcome int

const (
	// OutcomeIndeterminate means polling stopped without a result, usually
	// because the pipeline is paused on a manual step.
	OutcomeIndeterminate Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "indeterminate"
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "success":
		return OutcomeSuccess, nil
	case "failure":
		return OutcomeFailure, nil
	case "indeterminate":
		return OutcomeIndeterminate, nil
	}
	return OutcomeIndeterminate, fmt.Errorf("unknown outcome %q", s)
}
