package bitbucket

import (
	"context"
	"fmt"
	"time"

	"bbpipe/src/contracts"
	"bbpipe/src/logger"
)

const (
	// DefaultSleepTime is the pause between polling rounds.
	DefaultSleepTime = 15 * time.Second

	// DefaultWatchdogMax bounds the number of polling rounds.
	DefaultWatchdogMax = 100
)

// PipelineFetcher re-reads a pipeline by id.
type PipelineFetcher interface {
	GetPipeline(ctx context.Context, id string) (Pipeline, error)
}

// EventPublisher receives every state the waiter observes.
type EventPublisher interface {
	PublishPipelineEvent(ctx context.Context, event contracts.PipelineEvent) error
}

// Waiter polls a pipeline until it stops running.
type Waiter struct {
	client PipelineFetcher
	log    logger.Logger

	// SleepTime is the pause before each re-fetch.
	SleepTime time.Duration
	// WatchdogMax is the round count at which a still-running pipeline
	// is given up on.
	WatchdogMax int
	// Events, when set, is sent an event per observed state.
	Events EventPublisher
	// URL renders the build link carried in events.
	URL func(Pipeline) string
	// Sleep pauses between rounds. Defaults to a timer that gives up
	// when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewWaiter creates a Waiter with the default sleep time and watchdog.
func NewWaiter(client PipelineFetcher, log logger.Logger) *Waiter {
	return &Waiter{
		client:      client,
		log:         log,
		SleepTime:   DefaultSleepTime,
		WatchdogMax: DefaultWatchdogMax,
		Sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait polls p until it is no longer running and returns its outcome.
// A paused pipeline, or any finished one without a result, yields
// OutcomeIndeterminate. If p is still running after WatchdogMax rounds Wait
// returns ErrWatchdogExceeded without polling again.
func (w *Waiter) Wait(ctx context.Context, p Pipeline) (Outcome, error) {
	id, err := p.ID()
	if err != nil {
		return OutcomeIndeterminate, err
	}

	sleep := w.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	rounds := 0
	w.observe(ctx, p, rounds)
	for p.Running() {
		rounds++
		if rounds >= w.WatchdogMax {
			w.finish(ctx, p, rounds, OutcomeIndeterminate, ErrWatchdogExceeded)
			return OutcomeIndeterminate, fmt.Errorf("%w after %d rounds", ErrWatchdogExceeded, rounds)
		}

		w.log.Debug("Sleeping for %s...", w.SleepTime)
		if err := sleep(ctx, w.SleepTime); err != nil {
			w.finish(ctx, p, rounds, OutcomeIndeterminate, err)
			return OutcomeIndeterminate, err
		}

		next, err := w.client.GetPipeline(ctx, id)
		if err != nil {
			w.finish(ctx, p, rounds, OutcomeIndeterminate, err)
			return OutcomeIndeterminate, err
		}
		p = next
		w.observe(ctx, p, rounds)
	}

	outcome := p.Outcome()
	w.finish(ctx, p, rounds, outcome, nil)
	return outcome, nil
}

func (w *Waiter) observe(ctx context.Context, p Pipeline, round int) {
	w.log.Debug("state=%s round=%d", p.Describe(), round)
	w.publish(ctx, w.event(p, round))
}

func (w *Waiter) finish(ctx context.Context, p Pipeline, round int, outcome Outcome, err error) {
	ev := w.event(p, round)
	ev.Final = true
	ev.Outcome = outcome.String()
	if err != nil {
		ev.Error = err.Error()
	}
	w.publish(ctx, ev)
}

func (w *Waiter) event(p Pipeline, round int) contracts.PipelineEvent {
	id, _ := p.ID()
	n, _ := p.BuildNumber()
	branch, _ := p.TargetBranch()
	ev := contracts.PipelineEvent{
		PipelineID:  id,
		BuildNumber: n,
		Branch:      branch,
		State:       p.State.Name,
		Stage:       p.StageName(),
		Result:      p.ResultName(),
		Round:       round,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if w.URL != nil {
		ev.BuildURL = w.URL(p)
	}
	return ev
}

// publish never fails the wait; a broken event sink is only logged.
func (w *Waiter) publish(ctx context.Context, ev contracts.PipelineEvent) {
	if w.Events == nil {
		return
	}
	// A cancelled ctx must not drop the final event.
	if err := w.Events.PublishPipelineEvent(context.WithoutCancel(ctx), ev); err != nil {
		w.log.Error("failed to publish pipeline event: %v", err)
	}
}
