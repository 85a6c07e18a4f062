// Package pipeline runs the collection of one framework end to end: mirror,
// snapshot series, recent commit deltas, commit counters, report.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/panbanda/coremetrics/internal/cache"
	"github.com/panbanda/coremetrics/internal/logging"
	"github.com/panbanda/coremetrics/internal/vcs"
	"github.com/panbanda/coremetrics/pkg/analyzer/delta"
	"github.com/panbanda/coremetrics/pkg/analyzer/metrics"
	"github.com/panbanda/coremetrics/pkg/analyzer/snapshot"
	"github.com/panbanda/coremetrics/pkg/config"
	"github.com/panbanda/coremetrics/pkg/models"
)

// Repository is everything the pipeline reads from version control.
type Repository interface {
	snapshot.Repository
	delta.Repository
	ListCommitsSince(ctx context.Context, since time.Time) ([]models.CommitRef, error)
	CommitsPerYear(ctx context.Context) ([]models.YearlyCommitCount, error)
	CommitsPerMonth(ctx context.Context) ([]models.MonthlyCommitCount, error)
}

// Measurer runs the analyzer at both scales.
type Measurer interface {
	snapshot.Measurer
	delta.Measurer
}

// RepositoryFunc provides the repository of a framework.
type RepositoryFunc func(ctx context.Context, fw config.Framework) (Repository, error)

// MeasurerFunc provides the analyzer of a framework.
type MeasurerFunc func(fw config.Framework) (Measurer, error)

// Progress is a single progress display.
type Progress interface {
	Set(current int)
	Finish(err error)
}

// ProgressFunc opens a progress display. A negative total means the amount
// of work is unknown.
type ProgressFunc func(label string, total int) Progress

// Pipeline collects reports using one configuration.
type Pipeline struct {
	cfg         *config.Config
	openRepo    RepositoryFunc
	newMeasurer MeasurerFunc
	now         func() time.Time
	logger      logrus.FieldLogger
	cache       *cache.Cache
	progress    ProgressFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRepository replaces the mirror of the configured remote.
func WithRepository(fn RepositoryFunc) Option {
	return func(p *Pipeline) {
		p.openRepo = fn
	}
}

// WithMeasurer replaces the configured analyzer script.
func WithMeasurer(fn MeasurerFunc) Option {
	return func(p *Pipeline) {
		p.newMeasurer = fn
	}
}

// WithClock sets the source of "now".
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithCache enables reuse of snapshot measurements.
func WithCache(c *cache.Cache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithProgress enables progress displays.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// New creates a Pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		now:    time.Now,
		logger: logging.Discard(),
	}
	p.openRepo = p.openMirror
	p.newMeasurer = p.newAdapter
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run collects the report of fw. Setup failures (mirror, analyzer,
// history listing) are returned; failures of individual samples and
// commits are logged and leave them out of the report.
func (p *Pipeline) Run(ctx context.Context, fw config.Framework) (*models.Report, error) {
	log := p.logger.WithFields(logrus.Fields{
		"framework": fw.ID,
		"run_id":    uuid.NewString(),
	})

	anchor, err := fw.Start()
	if err != nil {
		return nil, err
	}

	measurer, err := p.newMeasurer(fw)
	if err != nil {
		return nil, fmt.Errorf("analyzer for %s: %w", fw.ID, err)
	}

	log.WithField("path", p.cfg.Paths.MirrorDir(fw.ID)).Info("Preparing repository")
	spin := p.stage(fw.Name + " mirror")
	spin.spin()
	repo, err := p.openRepo(ctx, fw)
	spin.finish(err)
	if err != nil {
		return nil, fmt.Errorf("repository for %s: %w", fw.ID, err)
	}

	workDir := p.cfg.Paths.WorkDir(fw.ID)
	snapshots, err := p.snapshots(ctx, fw, repo, measurer, anchor, filepath.Join(workDir, "work"), log)
	if err != nil {
		return nil, err
	}

	now := p.now()
	since := now.AddDate(0, 0, -p.cfg.History.RecentDays)
	recent, err := repo.ListCommitsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list recent commits: %w", err)
	}
	log.WithFields(logrus.Fields{
		"candidates": len(recent),
		"target":     p.cfg.History.TargetCommits,
	}).Info("Analyzing recent commits")

	bar := p.stage(fw.Name + " commits")
	computer := delta.New(repo, measurer, fw.Extensions, filepath.Join(workDir, "commit_work"), delta.WithLogger(log))
	commits, err := computer.Scan(ctx, recent, p.cfg.History.TargetCommits, func(current, total int, _ string) {
		bar.update(current, total)
	})
	bar.finish(err)
	if err != nil {
		return nil, err
	}
	log.WithField("commits", len(commits)).Info("Found commits with metric changes")

	perYear, err := repo.CommitsPerYear(ctx)
	if err != nil {
		return nil, fmt.Errorf("count commits per year: %w", err)
	}
	perMonth, err := repo.CommitsPerMonth(ctx)
	if err != nil {
		return nil, fmt.Errorf("count commits per month: %w", err)
	}

	report := &models.Report{
		Framework:      fw.ID,
		Generated:      now,
		CommitsMonthly: perMonth,
		Snapshots:      snapshots,
		Commits:        commits,
		CommitsPerYear: perYear,
	}
	report.Normalize()
	return report, nil
}

func (p *Pipeline) snapshots(ctx context.Context, fw config.Framework, repo Repository, measurer Measurer, anchor time.Time, workDir string, log logrus.FieldLogger) ([]models.Snapshot, error) {
	opts := []snapshot.Option{
		snapshot.WithClock(p.now),
		snapshot.WithInterval(p.cfg.History.IntervalMonths),
		snapshot.WithLogger(log),
	}
	if p.cache != nil && p.cache.Enabled() {
		fingerprint, err := cache.HashFile(p.cfg.Paths.AnalyzerPath(fw))
		if err != nil {
			log.WithError(err).Debug("Snapshot cache disabled: analyzer script not hashable")
		} else {
			opts = append(opts, snapshot.WithCache(p.cache, fingerprint))
		}
	}

	bar := p.stage(fw.Name + " snapshots")
	s := snapshot.New(fw.ID, repo, measurer, anchor, fw.CoreSubdir, workDir, opts...)
	snapshots, err := s.Run(ctx, func(current, total int, _ string) {
		bar.update(current, total)
	})
	bar.finish(err)
	if err != nil {
		return nil, err
	}
	log.WithField("snapshots", len(snapshots)).Info("Snapshot series complete")
	return snapshots, nil
}

func (p *Pipeline) openMirror(ctx context.Context, fw config.Framework) (Repository, error) {
	m, err := vcs.EnsureMirror(ctx, fw.RepoURL, p.cfg.Paths.MirrorDir(fw.ID),
		vcs.WithGitBinary(p.cfg.Git.Binary),
		vcs.WithCommandTimeout(p.cfg.Git.CommandTimeout()),
		vcs.WithArchiveTimeout(p.cfg.Git.ArchiveTimeout()),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Pipeline) newAdapter(fw config.Framework) (Measurer, error) {
	a := metrics.NewAdapter(p.cfg.Paths.AnalyzerPath(fw), fw.Extensions,
		metrics.WithBinary(p.cfg.Analyzer.Binary),
		metrics.WithDeltaProfile(metrics.Profile{
			MemoryLimit: p.cfg.Analyzer.DeltaMemoryLimit,
			Timeout:     p.cfg.Analyzer.DeltaTimeout(),
		}),
		metrics.WithFullProfile(metrics.Profile{
			MemoryLimit: p.cfg.Analyzer.FullMemoryLimit,
			Timeout:     p.cfg.Analyzer.FullTimeout(),
		}),
	)
	if err := a.Check(); err != nil {
		return nil, err
	}
	return a, nil
}

// stage lazily opens a progress display on its first update.
type stage struct {
	open  ProgressFunc
	label string
	bar   Progress
}

func (p *Pipeline) stage(label string) *stage {
	return &stage{open: p.progress, label: label}
}

func (s *stage) spin() {
	if s.open != nil && s.bar == nil {
		s.bar = s.open(s.label, -1)
	}
}

func (s *stage) update(current, total int) {
	if s.open == nil {
		return
	}
	if s.bar == nil {
		s.bar = s.open(s.label, total)
	}
	s.bar.Set(current)
}

func (s *stage) finish(err error) {
	if s.bar != nil {
		s.bar.Finish(err)
	}
}
