package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/coremetrics/internal/cache"
	"github.com/panbanda/coremetrics/internal/progress"
	"github.com/panbanda/coremetrics/pkg/config"
	"github.com/panbanda/coremetrics/pkg/pipeline"
)

func collectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "framework",
			Aliases: []string{"f"},
			Value:   "drupal",
			Usage:   "Framework to collect (drupal, typo3, ...) or all",
		},
		&cli.StringFlag{
			Name:  "project-dir",
			Usage: "Directory holding mirrors, output and data (overrides paths.project_dir)",
		},
		&cli.IntFlag{
			Name:  "target-count",
			Usage: "Recent commits with metric changes to keep (overrides history.target_commits)",
		},
		&cli.IntFlag{
			Name:  "recent-days",
			Usage: "Days of history scanned for recent commits (overrides history.recent_days)",
		},
		&cli.IntFlag{
			Name:    "parallel",
			Aliases: []string{"p"},
			Value:   1,
			Usage:   "Frameworks collected concurrently",
		},
		&cli.BoolFlag{
			Name:  "no-cache",
			Usage: "Measure every snapshot even when a cached result exists",
		},
		&cli.BoolFlag{
			Name:  "no-progress",
			Usage: "Disable progress bars",
		},
	}
}

func collectCmd() *cli.Command {
	return &cli.Command{
		Name:   "collect",
		Usage:  "Collect the metric report of one or all frameworks",
		Flags:  collectFlags(),
		Action: runCollectCmd,
	}
}

// collectOptions are the command-line overrides of a collect run.
type collectOptions struct {
	TargetCount int
	RecentDays  int
	Parallel    int
	NoCache     bool
	Progress    bool
}

func (o collectOptions) apply(cfg *config.Config) error {
	if o.TargetCount != 0 {
		if err := validatePositive("target-count", o.TargetCount); err != nil {
			return err
		}
		cfg.History.TargetCommits = o.TargetCount
	}
	if o.RecentDays != 0 {
		if err := validatePositive("recent-days", o.RecentDays); err != nil {
			return err
		}
		cfg.History.RecentDays = o.RecentDays
	}
	return validatePositive("parallel", o.Parallel)
}

func runCollectCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config

	opts := collectOptions{
		TargetCount: c.Int("target-count"),
		RecentDays:  c.Int("recent-days"),
		Parallel:    c.Int("parallel"),
		NoCache:     c.Bool("no-cache"),
		// Bars of concurrent runs would overwrite each other.
		Progress: !c.Bool("no-progress") && !c.Bool("verbose") && c.Int("parallel") == 1,
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}

	ids, err := selectFrameworks(cfg, c.String("framework"))
	if err != nil {
		return err
	}

	logger := newLogger(c)
	if loaded.Source != "" {
		logger.WithField("path", loaded.Source).Debug("Loaded config")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	store, err := cache.New(cfg.Paths.Resolve(cfg.Cache.Dir), time.Duration(cfg.Cache.TTLHours)*time.Hour, cfg.Cache.Enabled && !opts.NoCache)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	pipelineOpts = append(pipelineOpts, pipeline.WithCache(store))
	if opts.Progress {
		open := progress.Factory(c.App.ErrWriter)
		pipelineOpts = append(pipelineOpts, pipeline.WithProgress(func(label string, total int) pipeline.Progress {
			return open(label, total)
		}))
	}

	return collect(ctx, cfg, ids, opts.Parallel, logger, pipelineOpts...)
}

// collect runs the pipeline for every id and writes each report. Every
// framework is attempted; the failures are returned together.
func collect(ctx context.Context, cfg *config.Config, ids []string, parallel int, logger logrus.FieldLogger, opts ...pipeline.Option) error {
	p := pipeline.New(cfg, opts...)

	workers := pool.New().WithMaxGoroutines(parallel).WithContext(ctx)
	for _, id := range ids {
		workers.Go(func(ctx context.Context) error {
			log := logger.WithField("framework", id)
			if err := collectOne(ctx, cfg, p, id, log); err != nil {
				log.WithError(err).Error("Collection failed")
				return fmt.Errorf("%s: %w", id, err)
			}
			return nil
		})
	}
	return workers.Wait()
}

func collectOne(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, id string, log logrus.FieldLogger) error {
	fw, err := cfg.Framework(id)
	if err != nil {
		return err
	}

	start := time.Now()
	log.WithField("repo", fw.RepoURL).Info("Collecting")
	report, err := p.Run(ctx, fw)
	if err != nil {
		return err
	}

	path := cfg.Paths.ReportPath(id)
	if err := pipeline.WriteReport(path, report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	log.WithFields(logrus.Fields{
		"path":      path,
		"snapshots": len(report.Snapshots),
		"commits":   len(report.Commits),
		"elapsed":   time.Since(start).Round(time.Second),
	}).Info("Report written")
	return nil
}
