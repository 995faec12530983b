package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"bbpipe/src/bitbucket"
	"bbpipe/src/contracts"
	"bbpipe/src/logger"
	"bbpipe/src/pipeline"
	"bbpipe/src/store"
)

const (
	pendingState = `{"name":"PENDING"}`
	runningState = `{"name":"IN_PROGRESS","stage":{"name":"RUNNING"}}`
	successState = `{"name":"COMPLETED","result":{"name":"SUCCESSFUL"}}`
	failedState  = `{"name":"COMPLETED","result":{"name":"FAILED"}}`
)

func pipelineJSON(id string, number int, branch, state string) string {
	return fmt.Sprintf(`{"uuid":%q,"build_number":%d,"state":%s,"target":{"ref_type":"branch","ref_name":%q}}`,
		id, number, state, branch)
}

// fakeRepo serves acme/widgets. Fetching {p} walks through states, repeating
// the last one.
type fakeRepo struct {
	mu     sync.Mutex
	states []string
	polls  int
	recent []string
}

func (f *fakeRepo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/repositories/acme/widgets/pipelines/":
		fmt.Fprint(w, pipelineJSON("{p}", 5, "main", pendingState))
	case r.Method == http.MethodGet && r.URL.Path == "/repositories/acme/widgets/pipelines/":
		fmt.Fprintf(w, `{"values":[%s]}`, strings.Join(f.recent, ","))
	case r.Method == http.MethodGet && r.URL.Path == "/repositories/acme/widgets/pipelines/{p}":
		f.mu.Lock()
		i := min(f.polls, len(f.states)-1)
		f.polls++
		f.mu.Unlock()
		fmt.Fprint(w, pipelineJSON("{p}", 5, "main", f.states[i]))
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"message":"not found"}}`)
	}
}

func newTestServer(t *testing.T, repo *fakeRepo) (*Server, *store.InMemoryStore) {
	t.Helper()
	httpServer := httptest.NewServer(repo)
	t.Cleanup(httpServer.Close)

	client := bitbucket.NewClient("acme", "widgets", "alice", "app-pass", bitbucket.WithBaseURL(httpServer.URL))
	st := store.NewInMemoryStore()
	runner := pipeline.NewRunner(client, st, nil, logger.NewSilentLogger())
	runner.SleepTime = 0

	s := NewServer(runner, logger.NewSilentLogger())
	t.Cleanup(s.Close)
	return s, st
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", result.Content[0])
	}
	return text.Text
}

func decodeResult[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	if result.IsError {
		t.Fatalf("tool returned error: %s", resultText(t, result))
	}
	var v T
	if err := json.Unmarshal([]byte(resultText(t, result)), &v); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return v
}

func TestHandleStartPipeline_MissingParams(t *testing.T) {
	s, _ := newTestServer(t, &fakeRepo{states: []string{successState}})

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "no branch", args: map[string]any{"pipeline": "deploy"}, want: "branch"},
		{name: "no pipeline", args: map[string]any{"branch": "main"}, want: "pipeline"},
		{name: "bad variables", args: map[string]any{"branch": "main", "pipeline": "deploy", "variables": "ENV=prod"}, want: "variables"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleStartPipeline(context.Background(), callRequest("start_pipeline", tt.args))
			if err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if !result.IsError {
				t.Fatal("expected an error result")
			}
			if !strings.Contains(resultText(t, result), tt.want) {
				t.Errorf("error = %q, want it to mention %s", resultText(t, result), tt.want)
			}
		})
	}
}

func TestHandleStartPipeline_NoWait(t *testing.T) {
	s, st := newTestServer(t, &fakeRepo{states: []string{successState}})

	result, err := s.handleStartPipeline(context.Background(), callRequest("start_pipeline", map[string]any{
		"branch":    "main",
		"pipeline":  "deploy",
		"variables": map[string]any{"ENV": "prod"},
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	info := decodeResult[PipelineInfo](t, result)
	if info.ID != "{p}" || info.BuildNumber != 5 || !info.Running || info.Outcome != "" {
		t.Errorf("PipelineInfo = %+v", info)
	}
	if runs, _ := st.ListRuns(context.Background(), 0); len(runs) != 0 {
		t.Errorf("recorded %d runs without waiting", len(runs))
	}
}

func TestHandleStartPipeline_Wait(t *testing.T) {
	s, st := newTestServer(t, &fakeRepo{states: []string{runningState, failedState}})

	result, err := s.handleStartPipeline(context.Background(), callRequest("start_pipeline", map[string]any{
		"branch":   "main",
		"pipeline": "deploy",
		"wait":     true,
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	info := decodeResult[WaitInfo](t, result)
	if info.Outcome != "failure" || info.BuildNumber != 5 || info.RunID == "" {
		t.Errorf("WaitInfo = %+v", info)
	}

	run, err := st.GetRun(context.Background(), info.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Pipeline != "deploy" || run.Outcome != "failure" {
		t.Errorf("run = %+v", run)
	}
}

func TestHandleLatestPipeline(t *testing.T) {
	s, _ := newTestServer(t, &fakeRepo{recent: []string{
		pipelineJSON("{3}", 3, "develop", pendingState),
		pipelineJSON("{2}", 2, "main", successState),
	}})

	result, err := s.handleLatestPipeline(context.Background(), callRequest("latest_pipeline", map[string]any{"branch": "main"}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	info := decodeResult[PipelineInfo](t, result)
	if info.BuildNumber != 2 || info.Outcome != "success" || info.Branch != "main" {
		t.Errorf("PipelineInfo = %+v", info)
	}

	result, _ = s.handleLatestPipeline(context.Background(), callRequest("latest_pipeline", map[string]any{"branch": "release"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "No recent build") {
		t.Errorf("latest_pipeline(release) = %q, want not-found error", resultText(t, result))
	}
}

func TestHandlePipelineStatus(t *testing.T) {
	s, _ := newTestServer(t, &fakeRepo{states: []string{successState}})

	result, err := s.handlePipelineStatus(context.Background(), callRequest("pipeline_status", map[string]any{"id": "{p}"}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	info := decodeResult[PipelineInfo](t, result)
	if info.Running || info.Outcome != "success" || info.LastEvent != nil {
		t.Errorf("PipelineInfo = %+v", info)
	}

	result, _ = s.handlePipelineStatus(context.Background(), callRequest("pipeline_status", map[string]any{"id": "{missing}"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "Pipeline not found") {
		t.Errorf("pipeline_status({missing}) = %q, want not-found error", resultText(t, result))
	}
}

func TestHandleWaitPipeline(t *testing.T) {
	s, _ := newTestServer(t, &fakeRepo{states: []string{runningState, successState}})

	result, err := s.handleWaitPipeline(context.Background(), callRequest("wait_pipeline", map[string]any{"id": "{p}"}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	info := decodeResult[WaitInfo](t, result)
	if info.Outcome != "success" || info.Background {
		t.Errorf("WaitInfo = %+v", info)
	}

	// The wait left its final event in the cache.
	status, _ := s.handlePipelineStatus(context.Background(), callRequest("pipeline_status", map[string]any{"id": "{p}"}))
	pinfo := decodeResult[PipelineInfo](t, status)
	if pinfo.LastEvent == nil || !pinfo.LastEvent.Final || pinfo.LastEvent.Outcome != "success" {
		t.Errorf("LastEvent = %+v", pinfo.LastEvent)
	}
}

func TestHandleWaitPipeline_WatchdogReportsError(t *testing.T) {
	s, st := newTestServer(t, &fakeRepo{states: []string{runningState}})
	s.runner.WatchdogMax = 2

	result, err := s.handleWaitPipeline(context.Background(), callRequest("wait_pipeline", map[string]any{"id": "{p}"}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	info := decodeResult[WaitInfo](t, result)
	if !strings.Contains(info.Error, "Maximum waiting time exceeded") || info.Outcome != "" {
		t.Errorf("WaitInfo = %+v", info)
	}

	run, err := st.GetRun(context.Background(), info.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != contracts.RunStatusErrored {
		t.Errorf("run status = %s, want errored", run.Status)
	}
}

func TestHandleWaitPipeline_Background(t *testing.T) {
	s, st := newTestServer(t, &fakeRepo{states: []string{runningState, runningState, successState}})

	result, err := s.handleWaitPipeline(context.Background(), callRequest("wait_pipeline", map[string]any{
		"id":         "{p}",
		"background": true,
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	info := decodeResult[WaitInfo](t, result)
	if !info.Background || info.BuildNumber != 5 {
		t.Errorf("WaitInfo = %+v", info)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runs, _ := st.ListRuns(context.Background(), 1)
		if len(runs) == 1 && runs[0].Status == contracts.RunStatusFinished {
			if runs[0].Outcome != "success" {
				t.Errorf("background run outcome = %s, want success", runs[0].Outcome)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("background wait did not finish")
}

func TestHandleListRuns(t *testing.T) {
	s, st := newTestServer(t, &fakeRepo{states: []string{successState}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		st.CreateRun(ctx, contracts.Run{
			RunID:     fmt.Sprintf("run-%d", i),
			StartedAt: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
		})
	}

	result, err := s.handleListRuns(ctx, callRequest("list_runs", map[string]any{"limit": 2}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	runs := decodeResult[[]contracts.Run](t, result)
	if len(runs) != 2 || runs[0].RunID != "run-2" {
		t.Errorf("list_runs = %+v", runs)
	}
}
