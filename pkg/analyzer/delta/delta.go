// Package delta computes per-commit metric movement from sparse exports of
// the files a commit touched.
package delta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/panbanda/coremetrics/internal/logging"
	"github.com/panbanda/coremetrics/internal/vcs"
	"github.com/panbanda/coremetrics/pkg/analyzer/metrics"
	"github.com/panbanda/coremetrics/pkg/models"
)

// Repository is the version-control access a Computer needs.
type Repository interface {
	Parent(ctx context.Context, hash string) (string, error)
	ChangedFiles(ctx context.Context, hash string, extensions []string) ([]string, error)
	ExportSparse(ctx context.Context, hash string, paths []string, dest string) (int, error)
}

// Measurer measures a sparse export.
type Measurer interface {
	Measure(ctx context.Context, dir string) metrics.Result
}

// ProgressFunc reports scan progress after each examined commit.
type ProgressFunc func(current, total int, hash string)

// Computer computes commit deltas inside a scratch directory it owns.
type Computer struct {
	repo       Repository
	measurer   Measurer
	extensions []string
	workDir    string
	logger     logrus.FieldLogger
}

// Option configures a Computer.
type Option func(*Computer)

// WithLogger sets the logger for per-commit warnings.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Computer) {
		c.logger = l
	}
}

// New creates a Computer. Scratch exports go to workDir/parent and
// workDir/commit; Scan removes workDir when it finishes.
func New(repo Repository, measurer Measurer, extensions []string, workDir string, opts ...Option) *Computer {
	c := &Computer{
		repo:       repo,
		measurer:   measurer,
		extensions: extensions,
		workDir:    workDir,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Delta returns the metric movement of hash relative to its first parent.
// ok is false for root commits. A commit touching no source files yields
// zero values without exporting or measuring anything.
func (c *Computer) Delta(ctx context.Context, hash string) (models.DeltaValues, bool, error) {
	parent, err := c.repo.Parent(ctx, hash)
	if errors.Is(err, vcs.ErrNoParent) {
		return models.DeltaValues{}, false, nil
	}
	if err != nil {
		return models.DeltaValues{}, false, err
	}

	paths, err := c.repo.ChangedFiles(ctx, hash, c.extensions)
	if err != nil {
		return models.DeltaValues{}, false, err
	}
	if len(paths) == 0 {
		return models.DeltaValues{}, true, nil
	}

	parentDir := filepath.Join(c.workDir, "parent")
	commitDir := filepath.Join(c.workDir, "commit")
	if _, err := c.repo.ExportSparse(ctx, parent, paths, parentDir); err != nil {
		return models.DeltaValues{}, false, fmt.Errorf("export parent %s: %w", parent, err)
	}
	if _, err := c.repo.ExportSparse(ctx, hash, paths, commitDir); err != nil {
		return models.DeltaValues{}, false, fmt.Errorf("export commit %s: %w", hash, err)
	}

	before := c.measure(ctx, parentDir, parent)
	after := c.measure(ctx, commitDir, hash)
	return Subtract(before, after), true, nil
}

func (c *Computer) measure(ctx context.Context, dir, hash string) metrics.Fragment {
	res := c.measurer.Measure(ctx, dir)
	if res.Status == metrics.StatusUnavailable {
		c.logger.WithFields(logrus.Fields{
			"commit": models.ShortHash(hash, models.DeltaHashLength),
			"error":  res.Err,
		}).Debug("Measurement unavailable, counting as zero")
	}
	return res.Fragment
}

// Subtract returns after minus before, with maintainability debt inverted
// so that a positive value is an improvement.
func Subtract(before, after metrics.Fragment) models.DeltaValues {
	return models.DeltaValues{
		Loc:          after.Loc - before.Loc,
		Ccn:          after.CcnSum - before.CcnSum,
		Mi:           before.MiDebtSum - after.MiDebtSum,
		Antipatterns: after.Antipatterns - before.Antipatterns,
	}
}

// Scan walks commits in order and collects deltas for those with metric
// movement, stopping once target entries are found. Per-commit failures are
// logged and skipped. The scratch directory is removed before returning.
func (c *Computer) Scan(ctx context.Context, commits []models.CommitRef, target int, onProgress ProgressFunc) ([]models.CommitDelta, error) {
	defer func() {
		if err := os.RemoveAll(c.workDir); err != nil {
			c.logger.WithError(err).Warn("Failed to remove commit scratch directory")
		}
	}()

	results := make([]models.CommitDelta, 0, min(target, len(commits)))
	for i, commit := range commits {
		if len(results) >= target {
			break
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		values, ok, err := c.Delta(ctx, commit.Hash)
		if onProgress != nil {
			onProgress(i+1, len(commits), commit.ShortHash)
		}
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"commit": models.ShortHash(commit.Hash, models.DeltaHashLength),
				"error":  err,
			}).Warn("Skipping commit")
			continue
		}
		if !ok || !values.HasMetricChanges() {
			continue
		}
		results = append(results, models.NewCommitDelta(commit, values))
	}
	return results, nil
}
