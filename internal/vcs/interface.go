// Package vcs provides access to a mirrored git repository: history
// queries, tree diffs, and materialization of historical states.
package vcs

import (
	"context"
	"time"

	"github.com/panbanda/coremetrics/pkg/models"
)

// Repository is the version-control surface used by the collection pipeline.
type Repository interface {
	// Path returns the directory of the repository.
	Path() string
	// Head returns the hash of the current HEAD commit.
	Head(ctx context.Context) (string, error)
	// ResolveCommitNearDate returns the newest commit reachable from HEAD
	// whose date is at or before the end of the given day.
	ResolveCommitNearDate(ctx context.Context, date time.Time) (string, error)
	// ListCommitsSince returns commits newer than since, newest first.
	ListCommitsSince(ctx context.Context, since time.Time) ([]models.CommitRef, error)
	// CommitsPerYear counts all commits reachable from HEAD by authored year.
	CommitsPerYear(ctx context.Context) ([]models.YearlyCommitCount, error)
	// CommitsPerMonth counts all commits reachable from HEAD by authored month and category.
	CommitsPerMonth(ctx context.Context) ([]models.MonthlyCommitCount, error)
	// Parent returns the first parent of a commit.
	Parent(ctx context.Context, hash string) (string, error)
	// ChangedFiles lists the paths a commit touched, filtered by suffix.
	ChangedFiles(ctx context.Context, hash string, extensions []string) ([]string, error)
	// ExportFull writes the complete tree of a commit into dest.
	ExportFull(ctx context.Context, hash, dest string) error
	// ExportSparse writes only the given paths of a commit into dest.
	ExportSparse(ctx context.Context, hash string, paths []string, dest string) (int, error)
}

var _ Repository = (*Mirror)(nil)
