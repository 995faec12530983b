// Package mcp exposes pipeline start, lookup and wait as MCP tools.
package mcp

import (
	"bbpipe/src/bitbucket"
	"bbpipe/src/contracts"
)

// PipelineInfo is the tool view of a pipeline record.
type PipelineInfo struct {
	ID          string `json:"id"`
	BuildNumber int    `json:"build_number"`
	Branch      string `json:"branch,omitempty"`
	BuildURL    string `json:"build_url,omitempty"`
	State       string `json:"state"`
	Stage       string `json:"stage,omitempty"`
	Result      string `json:"result,omitempty"`
	Running     bool   `json:"running"`
	Paused      bool   `json:"paused"`
	// Outcome is only set once the pipeline has stopped running.
	Outcome string `json:"outcome,omitempty"`

	// LastEvent is the most recent event this server observed while
	// waiting on the pipeline.
	LastEvent *contracts.PipelineEvent `json:"last_event,omitempty"`
}

// WaitInfo is returned by tools that wait.
type WaitInfo struct {
	RunID       string `json:"run_id,omitempty"`
	BuildNumber int    `json:"build_number"`
	BuildURL    string `json:"build_url"`
	Outcome     string `json:"outcome,omitempty"`
	Error       string `json:"error,omitempty"`
	// Background is true when the wait continues after the tool returned.
	Background bool `json:"background,omitempty"`
}

func toPipelineInfo(p bitbucket.Pipeline, buildURL string) PipelineInfo {
	id, _ := p.ID()
	n, _ := p.BuildNumber()
	branch, _ := p.TargetBranch()

	info := PipelineInfo{
		ID:          id,
		BuildNumber: n,
		Branch:      branch,
		BuildURL:    buildURL,
		State:       p.State.Name,
		Stage:       p.StageName(),
		Result:      p.ResultName(),
		Running:     p.Running(),
		Paused:      p.Paused(),
	}
	if !info.Running {
		info.Outcome = p.Outcome().String()
	}
	return info
}
