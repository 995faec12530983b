package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bbpipe/src/broker"
	"bbpipe/src/config"
	"bbpipe/src/contracts"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print pipeline events published to Redpanda",
	Long: `Follows the bb.pipelines.status topic and prints one line per event
published by waits in other bb processes. Requires REDPANDA_BROKERS.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		if len(cfg.RedpandaBrokers) == 0 {
			return errors.New("REDPANDA_BROKERS is required for events")
		}

		rp, err := broker.NewRedpandaBroker(cfg.RedpandaBrokers, log)
		if err != nil {
			return err
		}
		defer rp.Close()
		if err := rp.Ping(ctx); err != nil {
			return err
		}

		msgs, err := rp.Subscribe(ctx, contracts.TopicPipelineStatus, "bb-events")
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-msgs:
				if !ok {
					return nil
				}
				ev, err := broker.DecodePipelineEvent(msg)
				if err != nil {
					log.Debug("skipping undecodable event: %v", err)
					continue
				}
				fmt.Fprintln(out, formatEvent(ev))
			}
		}
	},
}

// formatEvent renders one event as a log line.
func formatEvent(ev contracts.PipelineEvent) string {
	state := ev.State
	if ev.Stage != "" {
		state += "/" + ev.Stage
	}
	if ev.Result != "" {
		state += " (" + ev.Result + ")"
	}
	line := fmt.Sprintf("%s #%d %s round %d: %s", ev.Timestamp, ev.BuildNumber, ev.Branch, ev.Round, state)
	if ev.Final {
		if ev.Error != "" {
			line += " error: " + ev.Error
		} else {
			line += " => " + ev.Outcome
		}
	}
	return line
}
