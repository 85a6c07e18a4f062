// Package snapshot samples a repository at a fixed cadence and measures the
// full analyzable subtree at each sampled commit.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/panbanda/coremetrics/internal/cache"
	"github.com/panbanda/coremetrics/internal/logging"
	"github.com/panbanda/coremetrics/internal/vcs"
	"github.com/panbanda/coremetrics/pkg/analyzer/metrics"
	"github.com/panbanda/coremetrics/pkg/models"
)

// DefaultIntervalMonths is the semi-annual sampling cadence.
const DefaultIntervalMonths = 6

// Repository is the version-control access a Scheduler needs.
type Repository interface {
	ResolveCommitNearDate(ctx context.Context, date time.Time) (string, error)
	Head(ctx context.Context) (string, error)
	ExportFull(ctx context.Context, hash, dest string) error
}

// Measurer measures a full subtree.
type Measurer interface {
	MeasureFull(ctx context.Context, dir string) (*metrics.Document, error)
}

// Cache stores measured snapshots between runs.
type Cache interface {
	GetWithHash(key, fingerprint string) ([]byte, bool)
	SetWithHash(key, fingerprint string, data []byte) error
}

// ProgressFunc reports progress after each sample.
type ProgressFunc func(current, total int, label string)

// Schedule returns the sampling dates: January 1 of anchor's year, then
// every intervalMonths months, up to and including now.
func Schedule(anchor, now time.Time, intervalMonths int) []time.Time {
	if intervalMonths <= 0 {
		intervalMonths = DefaultIntervalMonths
	}

	var dates []time.Time
	year, month := anchor.Year(), 1
	for {
		d := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, anchor.Location())
		if d.After(now) {
			return dates
		}
		dates = append(dates, d)

		month += intervalMonths
		for month > 12 {
			month -= 12
			year++
		}
	}
}

// Scheduler produces the snapshot series of one framework.
type Scheduler struct {
	framework string
	repo      Repository
	measurer  Measurer
	anchor    time.Time
	subdir    string
	workDir   string

	interval    int
	now         func() time.Time
	cache       Cache
	fingerprint string
	logger      logrus.FieldLogger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the cadence in months.
func WithInterval(months int) Option {
	return func(s *Scheduler) {
		if months > 0 {
			s.interval = months
		}
	}
}

// WithClock sets the source of "now".
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithCache reuses measurements stored under the same analyzer fingerprint.
func WithCache(c Cache, fingerprint string) Option {
	return func(s *Scheduler) {
		s.cache = c
		s.fingerprint = fingerprint
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// New creates a Scheduler. Trees are exported into workDir and measured at
// workDir/subdir; Run removes workDir when it finishes.
func New(framework string, repo Repository, measurer Measurer, anchor time.Time, subdir, workDir string, opts ...Option) *Scheduler {
	s := &Scheduler{
		framework: framework,
		repo:      repo,
		measurer:  measurer,
		anchor:    anchor,
		subdir:    subdir,
		workDir:   workDir,
		interval:  DefaultIntervalMonths,
		now:       time.Now,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run samples every scheduled date and then HEAD, unless the last sample
// already carries the current month's label. Samples that cannot be
// resolved, exported or measured are left out of the series.
func (s *Scheduler) Run(ctx context.Context, onProgress ProgressFunc) ([]models.Snapshot, error) {
	defer func() {
		if err := os.RemoveAll(s.workDir); err != nil {
			s.logger.WithError(err).Warn("Failed to remove snapshot scratch directory")
		}
	}()

	now := s.now()
	dates := Schedule(s.anchor, now, s.interval)
	total := len(dates) + 1
	s.logger.WithField("samples", len(dates)).Info("Analyzing scheduled snapshots")

	snapshots := make([]models.Snapshot, 0, total)
	for i, date := range dates {
		if err := ctx.Err(); err != nil {
			return snapshots, err
		}

		label := date.Format(models.SnapshotLabelLayout)
		commit, err := s.repo.ResolveCommitNearDate(ctx, date)
		switch {
		case errors.Is(err, vcs.ErrNoCommit):
			s.logger.WithField("period", label).Warn("No commit found")
		case err != nil:
			s.logger.WithFields(logrus.Fields{"period": label, "error": err}).Warn("Failed to resolve commit")
		default:
			if snap, ok := s.sample(ctx, label, commit); ok {
				snapshots = append(snapshots, snap)
			}
		}

		if onProgress != nil {
			onProgress(i+1, total, label)
		}
	}

	current := now.Format(models.SnapshotLabelLayout)
	if len(snapshots) == 0 || snapshots[len(snapshots)-1].Date != current {
		head, err := s.repo.Head(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to resolve HEAD")
		} else if snap, ok := s.sample(ctx, current, head); ok {
			snapshots = append(snapshots, snap)
		}
	}
	if onProgress != nil {
		onProgress(total, total, current)
	}

	return snapshots, ctx.Err()
}

func (s *Scheduler) sample(ctx context.Context, label, commit string) (models.Snapshot, bool) {
	short := models.ShortHash(commit, models.SnapshotCommitLength)
	log := s.logger.WithFields(logrus.Fields{"period": label, "commit": short})

	key := cache.Key(s.framework, commit, s.subdir)
	if snap, ok := s.cached(key); ok {
		log.Debug("Using cached snapshot")
		snap.Date = label
		snap.Commit = short
		return snap, true
	}

	log.Info("Analyzing snapshot")
	if err := s.repo.ExportFull(ctx, commit, s.workDir); err != nil {
		log.WithError(err).Warn("Export failed, skipping")
		return models.Snapshot{}, false
	}

	dir := filepath.Join(s.workDir, s.subdir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.WithField("subdir", s.subdir).Warn("Analyzable subdirectory missing, skipping")
		return models.Snapshot{}, false
	}

	doc, err := s.measurer.MeasureFull(ctx, dir)
	if err != nil {
		log.WithError(err).Warn("Analysis failed, skipping")
		return models.Snapshot{}, false
	}

	snap := NewSnapshot(label, commit, doc)
	s.store(key, snap, log)
	return snap, true
}

func (s *Scheduler) cached(key string) (models.Snapshot, bool) {
	if s.cache == nil {
		return models.Snapshot{}, false
	}
	data, ok := s.cache.GetWithHash(key, s.fingerprint)
	if !ok {
		return models.Snapshot{}, false
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, false
	}
	return snap, true
}

func (s *Scheduler) store(key string, snap models.Snapshot, log logrus.FieldLogger) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err == nil {
		err = s.cache.SetWithHash(key, s.fingerprint, data)
	}
	if err != nil {
		log.WithError(err).Debug("Failed to cache snapshot")
	}
}

// NewSnapshot builds a series entry from a measured document.
func NewSnapshot(label, commit string, doc *metrics.Document) models.Snapshot {
	return models.Snapshot{
		Date:             label,
		Commit:           models.ShortHash(commit, models.SnapshotCommitLength),
		Production:       doc.Production.Raw,
		TestLoc:          doc.TestLoc,
		SurfaceArea:      doc.SurfaceArea,
		SurfaceAreaLists: doc.SurfaceAreaLists,
		Antipatterns:     doc.Antipatterns,
		Hotspots:         doc.Hotspots,
	}
}
