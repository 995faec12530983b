package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"bbpipe/src/bitbucket"
	"bbpipe/src/broker"
	"bbpipe/src/config"
	"bbpipe/src/contracts"
	"bbpipe/src/credentials"
	"bbpipe/src/logger"
	"bbpipe/src/pipeline"
	"bbpipe/src/tui"
)

// projectCmd groups the commands that act on one repository.
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Start and wait on pipelines in a repository",
}

var startCmd = &cobra.Command{
	Use:   "start PIPELINE",
	Short: "Run a custom pipeline",
	Long: `Runs the custom pipeline PIPELINE on a branch and, unless --no-wait is
given, waits for it to finish.

Example:
  bb project start deploy --branch main --extras-json '{"ENV":"staging"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the latest build on a branch",
	Args:  cobra.NoArgs,
	RunE:  runWait,
}

var statusCmd = &cobra.Command{
	Use:   "status PIPELINE_UUID",
	Short: "Print the current state of a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded waits, newest first",
	Long: `Lists waits recorded in the history store. Without POSTGRES_DSN history
only lives as long as the process, so this is mostly useful with Postgres.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	branchFlag     string
	noWaitFlag     bool
	extrasJSONFlag string
	tuiFlag        bool
	limitFlag      int
)

func init() {
	pf := projectCmd.PersistentFlags()
	pf.String(config.KeyWorkspace, "", "Bitbucket workspace [env: BB_WORKSPACE]")
	pf.String(config.KeyRepo, "", "repository slug [env: BB_REPO]")
	pf.String(config.KeyUser, "", "Bitbucket username [env: BB_USER]")
	pf.String(config.KeyPassword, "", "Bitbucket app password [env: BB_PASSWORD]")
	for _, key := range []string{config.KeyWorkspace, config.KeyRepo, config.KeyUser, config.KeyPassword} {
		bindFlag(v, projectCmd, key)
	}

	startCmd.Flags().StringVar(&branchFlag, "branch", "", "branch to run on (default: current git branch)")
	startCmd.Flags().BoolVar(&noWaitFlag, "no-wait", false, "return once the pipeline has started")
	startCmd.Flags().StringVar(&extrasJSONFlag, "extras-json", "", "pipeline variables as a JSON object")
	startCmd.Flags().BoolVar(&tuiFlag, "tui", false, "show a live view while waiting")

	waitCmd.Flags().StringVar(&branchFlag, "branch", "", "branch to wait on (default: current git branch)")
	waitCmd.Flags().BoolVar(&tuiFlag, "tui", false, "show a live view while waiting")

	historyCmd.Flags().IntVar(&limitFlag, "limit", 20, "max runs to list (0 for all)")

	projectCmd.AddCommand(startCmd)
	projectCmd.AddCommand(waitCmd)
	projectCmd.AddCommand(statusCmd)
	projectCmd.AddCommand(historyCmd)
}

// loadConfig reads flags and environment, filling missing credentials from
// the keychain.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := fillCredentials(cfg, credentials.NewProfileKeys(cfg.Profile)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openRunner connects the backend and builds a runner logging to runLog.
func openRunner(ctx context.Context, cfg *config.Config, runLog logger.Logger) (*pipeline.Runner, *pipeline.Backend, error) {
	backend, err := pipeline.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("mode=%s", backend.Mode)

	client := bitbucket.NewClient(cfg.Workspace, cfg.Repo, cfg.Username, cfg.Password,
		bitbucket.WithBaseURL(cfg.APIBaseURL))
	runner := pipeline.NewRunner(client, backend.Store, backend.Events(), runLog)
	runner.SleepTime = cfg.SleepTime
	runner.WatchdogMax = cfg.WatchdogMax
	return runner, backend, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	extras, err := parseExtras(extrasJSONFlag)
	if err != nil {
		return err
	}
	branch, err := resolveBranch(branchFlag)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runner, backend, err := openRunner(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	p, err := runner.Start(ctx, branch, name, extras)
	if err != nil {
		return err
	}
	if noWaitFlag {
		return nil
	}
	return wait(ctx, cfg, runner, p, name)
}

func runWait(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	branch, err := resolveBranch(branchFlag)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runner, backend, err := openRunner(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	p, err := runner.Latest(ctx, branch)
	if err != nil {
		return err
	}
	return wait(ctx, cfg, runner, p, "")
}

// wait blocks on p, in the TUI when --tui is set, and maps the outcome to
// the command's error.
func wait(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, p bitbucket.Pipeline, name string) error {
	if tuiFlag {
		return waitWithTUI(ctx, cfg, runner, p, name)
	}
	res, err := runner.Wait(ctx, p, pipeline.WaitOptions{Pipeline: name})
	if err != nil {
		return err
	}
	return outcomeError(res.Outcome)
}

// waitWithTUI runs the wait with a silent logger and renders its events
// through an in-memory broker.
func waitWithTUI(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, p bitbucket.Pipeline, name string) error {
	runner = runner.WithLogger(logger.NewSilentLogger())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mem := broker.NewInMemoryBroker()
	defer mem.Close()
	events, err := mem.Subscribe(ctx, contracts.TopicPipelineStatus, "tui")
	if err != nil {
		return err
	}

	n, _ := p.BuildNumber()
	title := fmt.Sprintf("%s/%s build #%d", cfg.Workspace, cfg.Repo, n)
	prog := tea.NewProgram(tui.NewWatchModel(title, events))

	type waitResult struct {
		res pipeline.Result
		err error
	}
	done := make(chan waitResult, 1)
	go func() {
		res, err := runner.Wait(ctx, p, pipeline.WaitOptions{Pipeline: name, Events: broker.NewPublisher(mem)})
		prog.Send(tui.DoneMsg{Outcome: res.Outcome, Err: err})
		done <- waitResult{res, err}
	}()

	final, err := prog.Run()
	if err != nil {
		cancel()
		<-done
		return fmt.Errorf("TUI error: %w", err)
	}
	if m, ok := final.(tui.WatchModel); ok && m.Aborted() {
		cancel()
	}

	r := <-done
	if r.err != nil {
		return r.err
	}
	return outcomeError(r.res.Outcome)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runner, backend, err := openRunner(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	p, err := runner.Status(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	n, _ := p.BuildNumber()
	branch, _ := p.TargetBranch()
	fmt.Fprintf(out, "Build:   #%d\n", n)
	fmt.Fprintf(out, "Branch:  %s\n", branch)
	fmt.Fprintf(out, "State:   %s\n", p.Describe())
	if !p.Running() {
		fmt.Fprintf(out, "Outcome: %s\n", p.Outcome())
	}
	fmt.Fprintf(out, "URL:     %s\n", runner.Client().PipelineURL(p))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	backend, err := pipeline.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	runs, err := backend.Store.ListRuns(ctx, limitFlag)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), tui.RenderHistory(runs))
	return nil
}
