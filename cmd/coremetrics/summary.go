package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/coremetrics/internal/report"
	"github.com/panbanda/coremetrics/pkg/pipeline"
)

func summaryCmd() *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "Summarize a collected report",
		ArgsUsage: "<report.json>",
		Description: `Prints the snapshot series of a report with LOC and CCN trends per
sample, and the kinds of recent commits that moved the metrics.

Examples:
  coremetrics summary data/drupal.json
  coremetrics summary -f markdown -o drupal.md data/drupal.json`,
		Flags:  outputFlags(),
		Action: runSummaryCmd,
	}
}

func runSummaryCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one report path, got %d", c.NArg())
	}

	r, err := pipeline.ReadReport(c.Args().First())
	if err != nil {
		return err
	}
	s, err := report.Summarize(r)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	return formatter.Output(s.Renderable())
}
