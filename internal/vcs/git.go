package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/panbanda/coremetrics/internal/proc"
)

const (
	// DefaultCommandTimeout bounds clone, fetch and log commands.
	DefaultCommandTimeout = 10 * time.Minute
	// DefaultArchiveTimeout bounds a full-tree export.
	DefaultArchiveTimeout = 5 * time.Minute
)

var (
	// ErrNoCommit is returned when no commit exists at or before a date.
	ErrNoCommit = errors.New("no commit at or before date")
	// ErrNoParent is returned for root commits.
	ErrNoParent = errors.New("commit has no parent")
)

// CommandError is a failed git invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Mirror is a local (usually bare) copy of a framework repository.
// History and archive queries shell out to git; tree and blob access
// goes through go-git.
type Mirror struct {
	path           string
	gitBinary      string
	commandTimeout time.Duration
	archiveTimeout time.Duration

	openOnce sync.Once
	repo     *git.Repository
	openErr  error
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithGitBinary sets the git executable.
func WithGitBinary(binary string) Option {
	return func(m *Mirror) {
		if binary != "" {
			m.gitBinary = binary
		}
	}
}

// WithCommandTimeout sets the timeout for clone, fetch and log commands.
func WithCommandTimeout(d time.Duration) Option {
	return func(m *Mirror) {
		if d > 0 {
			m.commandTimeout = d
		}
	}
}

// WithArchiveTimeout sets the timeout for ExportFull.
func WithArchiveTimeout(d time.Duration) Option {
	return func(m *Mirror) {
		if d > 0 {
			m.archiveTimeout = d
		}
	}
}

func newMirror(path string, opts ...Option) *Mirror {
	m := &Mirror{
		path:           path,
		gitBinary:      "git",
		commandTimeout: DefaultCommandTimeout,
		archiveTimeout: DefaultArchiveTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureMirror creates a bare clone of url at path, or refreshes an
// existing one so that its HEAD branch points at the remote HEAD.
func EnsureMirror(ctx context.Context, url, path string, opts ...Option) (*Mirror, error) {
	m := newMirror(path, opts...)

	_, err := os.Stat(path)
	switch {
	case err == nil:
		if err := m.refresh(ctx); err != nil {
			return nil, fmt.Errorf("refresh mirror %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if _, err := m.runIn(ctx, "", m.commandTimeout, "clone", "--bare", url, path); err != nil {
			return nil, fmt.Errorf("clone %s: %w", url, err)
		}
	default:
		return nil, err
	}

	if _, err := m.open(); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenMirror opens an existing repository without touching the network.
func OpenMirror(path string, opts ...Option) (*Mirror, error) {
	m := newMirror(path, opts...)
	if _, err := m.open(); err != nil {
		return nil, err
	}
	return m, nil
}

// refresh fetches the remote and moves the HEAD branch to the fetched tip.
func (m *Mirror) refresh(ctx context.Context) error {
	if _, err := m.run(ctx, m.commandTimeout, "fetch", "origin", "--tags"); err != nil {
		return err
	}
	ref, err := m.run(ctx, m.commandTimeout, "symbolic-ref", "HEAD")
	if err != nil {
		return err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	_, err = m.run(ctx, m.commandTimeout, "update-ref", ref, "FETCH_HEAD")
	return err
}

// Path returns the mirror directory.
func (m *Mirror) Path() string {
	return m.path
}

// Head returns the hash of HEAD.
func (m *Mirror) Head(ctx context.Context) (string, error) {
	out, err := m.run(ctx, m.commandTimeout, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (m *Mirror) open() (*git.Repository, error) {
	m.openOnce.Do(func() {
		m.repo, m.openErr = git.PlainOpen(m.path)
		if m.openErr != nil {
			m.openErr = fmt.Errorf("open repository %s: %w", m.path, m.openErr)
		}
	})
	return m.repo, m.openErr
}

// run executes git inside the mirror directory.
func (m *Mirror) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	return m.runIn(ctx, m.path, timeout, args...)
}

func (m *Mirror) runIn(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := proc.CommandContext(ctx, m.gitBinary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.String(), nil
}
