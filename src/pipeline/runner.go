package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bbpipe/src/bitbucket"
	"bbpipe/src/broker"
	"bbpipe/src/contracts"
	"bbpipe/src/logger"
	"bbpipe/src/sanitize"
	"bbpipe/src/store"
)

// The wait command only looks at the first few pages of recent builds.
const (
	SearchInitialPageSize = 3
	SearchPages           = 3
)

// searchLimit is how many records the first SearchPages pages hold.
const searchLimit = SearchInitialPageSize + (SearchPages-1)*bitbucket.DefaultPageSize

// Runner starts, finds and waits on pipelines in one repository, recording
// every wait in the history store.
type Runner struct {
	client *bitbucket.Client
	store  store.Store
	events bitbucket.EventPublisher
	log    logger.Logger

	SleepTime   time.Duration
	WatchdogMax int
}

// NewRunner creates a Runner. events may be nil.
func NewRunner(client *bitbucket.Client, st store.Store, events bitbucket.EventPublisher, log logger.Logger) *Runner {
	return &Runner{
		client:      client,
		store:       st,
		events:      events,
		log:         log,
		SleepTime:   bitbucket.DefaultSleepTime,
		WatchdogMax: bitbucket.DefaultWatchdogMax,
	}
}

// WithLogger returns a copy of r that logs to log.
func (r *Runner) WithLogger(log logger.Logger) *Runner {
	cp := *r
	cp.log = log
	return &cp
}

// Client returns the underlying Bitbucket client.
func (r *Runner) Client() *bitbucket.Client { return r.client }

// Start runs the custom pipeline name on branch.
func (r *Runner) Start(ctx context.Context, branch, name string, extras map[string]any) (bitbucket.Pipeline, error) {
	r.log.Info("Attempting to run '%s' on branch '%s' with vars=%s", name, branch, sanitize.Variables(extras))

	p, err := r.client.StartPipeline(ctx, branch, name, extras)
	if err != nil {
		return bitbucket.Pipeline{}, fmt.Errorf("failed to start pipeline %q: %w", name, err)
	}

	n, err := p.BuildNumber()
	if err != nil {
		return bitbucket.Pipeline{}, fmt.Errorf("started pipeline has no build number: %w", err)
	}
	r.log.Info("Build #%d started. View build: %s", n, r.client.BuildURL(n))
	return p, nil
}

// Latest finds the most recent build on branch among the first few pages.
func (r *Runner) Latest(ctx context.Context, branch string) (bitbucket.Pipeline, error) {
	it, err := r.client.RecentPipelinesWithInitial(bitbucket.DefaultPageSize, SearchInitialPageSize)
	if err != nil {
		return bitbucket.Pipeline{}, err
	}

	p, err := bitbucket.FindLatest(ctx, r.log, branch, bitbucket.Limit(it, searchLimit))
	if err != nil {
		return bitbucket.Pipeline{}, err
	}

	n, err := p.BuildNumber()
	if err != nil {
		return bitbucket.Pipeline{}, err
	}
	r.log.Info("Waiting on build #%d. View build: %s", n, r.client.BuildURL(n))
	return p, nil
}

// Status fetches one pipeline by uuid.
func (r *Runner) Status(ctx context.Context, id string) (bitbucket.Pipeline, error) {
	return r.client.GetPipeline(ctx, id)
}

// History lists recorded runs, newest first.
func (r *Runner) History(ctx context.Context, limit int) ([]contracts.Run, error) {
	return r.store.ListRuns(ctx, limit)
}

// WaitOptions tunes a single Wait call.
type WaitOptions struct {
	// Pipeline is the custom pipeline name, recorded in history.
	Pipeline string
	// Events receives this wait's events in addition to the runner's
	// publisher.
	Events bitbucket.EventPublisher
}

// Result is what a wait produced.
type Result struct {
	RunID       string
	BuildNumber int
	BuildURL    string
	Outcome     bitbucket.Outcome
}

// Wait polls p to completion, records the run and logs the result.
func (r *Runner) Wait(ctx context.Context, p bitbucket.Pipeline, opts WaitOptions) (Result, error) {
	id, err := p.ID()
	if err != nil {
		return Result{}, err
	}
	n, err := p.BuildNumber()
	if err != nil {
		return Result{}, err
	}
	branch, _ := p.TargetBranch()

	res := Result{
		RunID:       "run-" + uuid.NewString(),
		BuildNumber: n,
		BuildURL:    r.client.BuildURL(n),
		Outcome:     bitbucket.OutcomeIndeterminate,
	}

	run := contracts.Run{
		RunID:       res.RunID,
		Workspace:   r.client.Workspace(),
		Repo:        r.client.Repo(),
		Branch:      branch,
		Pipeline:    opts.Pipeline,
		PipelineID:  id,
		BuildNumber: n,
		BuildURL:    res.BuildURL,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		// History is best effort; the wait itself still runs.
		r.log.Warn("failed to record run: %v", err)
	}

	w := bitbucket.NewWaiter(r.client, r.log)
	w.SleepTime = r.SleepTime
	w.WatchdogMax = r.WatchdogMax
	w.URL = r.client.PipelineURL
	w.Events = r.publisherFor(opts.Events)

	outcome, waitErr := w.Wait(ctx, p)
	res.Outcome = outcome

	errMsg := ""
	if waitErr != nil {
		errMsg = waitErr.Error()
	}
	// The run is completed even when ctx was cancelled.
	if err := r.store.CompleteRun(context.WithoutCancel(ctx), res.RunID, outcome.String(), errMsg); err != nil {
		var notFound store.ErrNotFound
		if !errors.As(err, &notFound) {
			r.log.Warn("failed to complete run %s: %v", res.RunID, err)
		}
	}

	if waitErr != nil {
		return res, waitErr
	}

	r.log.Debug("outcome=%s", outcome)
	switch outcome {
	case bitbucket.OutcomeSuccess:
		r.log.Info("Build #%d complete! View build: %s", n, res.BuildURL)
	case bitbucket.OutcomeFailure:
		r.log.Info("Build #%d incomplete. View build: %s", n, res.BuildURL)
	default:
		r.log.Info("Build #%d stopped without a result (paused or awaiting a manual step). View build: %s", n, res.BuildURL)
	}
	return res, nil
}

func (r *Runner) publisherFor(extra bitbucket.EventPublisher) bitbucket.EventPublisher {
	switch {
	case r.events == nil && extra == nil:
		return nil
	case r.events == nil:
		return extra
	case extra == nil:
		return r.events
	default:
		return broker.Fanout{r.events, extra}
	}
}
