package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"bbpipe/src/bitbucket"
	"bbpipe/src/logger"
	"bbpipe/src/pipeline"
	"bbpipe/src/provider"
)

// defaultRunLimit is how many runs list_runs returns when no limit is given.
const defaultRunLimit = 20

// Server is the MCP server for bb.
type Server struct {
	mcpServer *server.MCPServer
	runner    *pipeline.Runner
	cache     *EventCache
	log       logger.Logger

	// ctx outlives individual tool calls; background waits run under it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a new MCP server backed by runner.
func NewServer(runner *pipeline.Runner, log logger.Logger) *Server {
	s := server.NewMCPServer(
		"bb",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		mcpServer: s,
		runner:    runner,
		cache:     NewEventCache(),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	startTool := mcp.NewTool("start_pipeline",
		mcp.WithDescription("Run a custom Bitbucket pipeline on a branch. Set wait to block until the build stops running and report its outcome (success, failure or indeterminate for a paused build)."),
		mcp.WithString("branch",
			mcp.Required(),
			mcp.Description("Branch to run the pipeline on"),
		),
		mcp.WithString("pipeline",
			mcp.Required(),
			mcp.Description("Name of the custom pipeline in bitbucket-pipelines.yml"),
		),
		mcp.WithObject("variables",
			mcp.Description("Pipeline variables; values are converted to strings"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the build to finish (default: false)"),
		),
	)

	latestTool := mcp.NewTool("latest_pipeline",
		mcp.WithDescription("Find the most recent build for a branch among the latest builds of the repository."),
		mcp.WithString("branch",
			mcp.Required(),
			mcp.Description("Branch name"),
		),
	)

	statusTool := mcp.NewTool("pipeline_status",
		mcp.WithDescription("Fetch the current state of a pipeline by uuid, including the last event seen by a wait on this server."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Pipeline uuid, including braces"),
		),
	)

	waitTool := mcp.NewTool("wait_pipeline",
		mcp.WithDescription("Wait for a pipeline to stop running. With background set the call returns immediately; poll pipeline_status or list_runs for the result."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Pipeline uuid, including braces"),
		),
		mcp.WithBoolean("background",
			mcp.Description("Return immediately and keep waiting on the server (default: false)"),
		),
	)

	runsTool := mcp.NewTool("list_runs",
		mcp.WithDescription("List recorded waits, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Max runs to return (default: 20)"),
		),
	)

	s.mcpServer.AddTool(startTool, s.handleStartPipeline)
	s.mcpServer.AddTool(latestTool, s.handleLatestPipeline)
	s.mcpServer.AddTool(statusTool, s.handlePipelineStatus)
	s.mcpServer.AddTool(waitTool, s.handleWaitPipeline)
	s.mcpServer.AddTool(runsTool, s.handleListRuns)
}

// Run serves MCP on stdio until the client disconnects.
func (s *Server) Run() error {
	defer s.Close()
	return server.ServeStdio(s.mcpServer)
}

// Close cancels background waits and waits for them to record their runs.
func (s *Server) Close() {
	if ids := s.cache.Waiting(); len(ids) > 0 {
		s.log.Debug("cancelling waits on %v", ids)
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Server) handleStartPipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	branch := request.GetString("branch", "")
	if branch == "" {
		return mcp.NewToolResultError("branch parameter is required"), nil
	}
	name := request.GetString("pipeline", "")
	if name == "" {
		return mcp.NewToolResultError("pipeline parameter is required"), nil
	}

	var extras map[string]any
	if raw, ok := request.GetArguments()["variables"]; ok && raw != nil {
		vars, ok := raw.(map[string]any)
		if !ok {
			return mcp.NewToolResultError("variables must be an object"), nil
		}
		extras = vars
	}

	p, err := s.runner.Start(ctx, branch, name, extras)
	if err != nil {
		return toolError(err), nil
	}

	if !request.GetBool("wait", false) {
		return jsonResult(s.pipelineInfo(p))
	}

	res, err := s.runner.Wait(ctx, p, pipeline.WaitOptions{Pipeline: name, Events: s.cache})
	return waitResult(res, err)
}

func (s *Server) handleLatestPipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	branch := request.GetString("branch", "")
	if branch == "" {
		return mcp.NewToolResultError("branch parameter is required"), nil
	}

	p, err := s.runner.Latest(ctx, branch)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(s.pipelineInfo(p))
}

func (s *Server) handlePipelineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	p, err := s.runner.Status(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(s.pipelineInfo(p))
}

func (s *Server) handleWaitPipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	p, err := s.runner.Status(ctx, id)
	if err != nil {
		return toolError(err), nil
	}

	if !request.GetBool("background", false) {
		res, err := s.runner.Wait(ctx, p, pipeline.WaitOptions{Events: s.cache})
		return waitResult(res, err)
	}

	n, err := p.BuildNumber()
	if err != nil {
		return toolError(err), nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.runner.Wait(s.ctx, p, pipeline.WaitOptions{Events: s.cache})
		if err != nil {
			s.log.Warn("background wait on build #%d failed: %v", n, err)
			return
		}
		s.log.Debug("background wait on build #%d finished: %s", n, res.Outcome)
	}()

	return jsonResult(WaitInfo{
		BuildNumber: n,
		BuildURL:    s.runner.Client().BuildURL(n),
		Background:  true,
	})
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultRunLimit)

	runs, err := s.runner.History(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	return jsonResult(runs)
}

func (s *Server) pipelineInfo(p bitbucket.Pipeline) PipelineInfo {
	info := toPipelineInfo(p, s.runner.Client().PipelineURL(p))
	if ev, ok := s.cache.Get(info.ID); ok {
		info.LastEvent = &ev
	}
	return info
}

func waitResult(res pipeline.Result, err error) (*mcp.CallToolResult, error) {
	info := WaitInfo{
		RunID:       res.RunID,
		BuildNumber: res.BuildNumber,
		BuildURL:    res.BuildURL,
	}
	if err != nil {
		if res.RunID == "" {
			return toolError(err), nil
		}
		info.Error = provider.WrapError(err).Error()
		return jsonResult(info)
	}
	info.Outcome = res.Outcome.String()
	return jsonResult(info)
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(provider.WrapError(err).Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
