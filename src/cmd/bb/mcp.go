package main

import (
	"github.com/spf13/cobra"

	"bbpipe/src/logger"
	"bbpipe/src/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the pipeline tools over MCP on stdio",
	Long: `Starts an MCP server on stdin/stdout exposing start_pipeline,
latest_pipeline, pipeline_status, wait_pipeline and list_runs for the
repository given by BB_WORKSPACE and BB_REPO.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// stdout carries the protocol; keep logs quiet on stderr.
		runner, backend, err := openRunner(cmd.Context(), cfg, logger.NewSilentLogger())
		if err != nil {
			return err
		}
		defer backend.Close()

		log.Debug("serving MCP for %s/%s", cfg.Workspace, cfg.Repo)
		return mcp.NewServer(runner, log).Run()
	},
}
