package tui

import (
	"fmt"
	"strings"

	"bbpipe/src/bitbucket"
	"bbpipe/src/contracts"
)

type column struct {
	title string
	width int
}

var historyColumns = []column{
	{"STARTED", 16},
	{"BRANCH", 24},
	{"PIPELINE", 18},
	{"BUILD", 7},
	{"STATUS", 9},
	{"OUTCOME", 14},
}

// RenderHistory renders runs as a fixed-width table, one run per line.
func RenderHistory(runs []contracts.Run) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}

	styles := DefaultStyles()
	var b strings.Builder

	header := make([]string, len(historyColumns))
	for i, c := range historyColumns {
		header[i] = fitCell(c.title, c.width, false)
	}
	b.WriteString(styles.TitleStyle().Render(strings.TrimRight(strings.Join(header, " "), " ")))
	b.WriteString("\n")

	for _, run := range runs {
		pipeline := run.Pipeline
		if pipeline == "" {
			pipeline = "-"
		}
		cells := []string{
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Branch,
			pipeline,
			fmt.Sprintf("#%d", run.BuildNumber),
			run.Status,
			outcomeCell(styles, run),
		}
		for i, c := range historyColumns {
			cells[i] = fitCell(cells[i], c.width, true)
		}
		b.WriteString(strings.TrimRight(strings.Join(cells, " "), " "))
		b.WriteString("\n")
	}
	return b.String()
}

func outcomeCell(styles *StyleConfig, run contracts.Run) string {
	if run.Outcome == "" {
		return "-"
	}
	outcome, err := bitbucket.ParseOutcome(run.Outcome)
	if err != nil {
		return run.Outcome
	}
	return styles.OutcomeStyle(outcome).Render(OutcomeSymbol(outcome) + " " + run.Outcome)
}
