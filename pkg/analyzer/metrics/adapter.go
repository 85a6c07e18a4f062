// Package metrics runs the external static analyzer against a materialized
// tree and turns its output into typed measurements.
package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/panbanda/coremetrics/internal/proc"
	"github.com/panbanda/coremetrics/internal/vcs"
)

var (
	// ErrNoSources is returned when a directory holds no analyzable files.
	ErrNoSources = errors.New("no source files to analyze")
	// ErrAnalyzerFailed is returned when the analyzer exits non-zero or times out.
	ErrAnalyzerFailed = errors.New("analyzer failed")
)

// stderrSnippet bounds how much analyzer stderr is kept in errors.
const stderrSnippet = 200

// Profile is a memory ceiling and timeout for one class of invocation.
type Profile struct {
	MemoryLimit string
	Timeout     time.Duration
}

var (
	// DeltaProfile is used for sparse change sets.
	DeltaProfile = Profile{MemoryLimit: "512M", Timeout: 60 * time.Second}
	// FullProfile is used for full-subtree snapshots.
	FullProfile = Profile{MemoryLimit: "2G", Timeout: 600 * time.Second}
)

// Status says whether a measurement produced data.
type Status int

const (
	// StatusMeasured means the analyzer ran and its output was valid.
	StatusMeasured Status = iota
	// StatusEmpty means there was nothing to analyze.
	StatusEmpty
	// StatusUnavailable means the analyzer failed, timed out, or produced bad output.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusMeasured:
		return "measured"
	case StatusEmpty:
		return "empty"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Fragment is the subset of a document that commit deltas are computed from.
type Fragment struct {
	Loc          int
	CcnSum       float64
	MiDebtSum    float64
	Antipatterns int // normalized count
}

// Result is the outcome of a delta-scale measurement. Fragment is zero
// unless Status is StatusMeasured; Err is set only for StatusUnavailable.
type Result struct {
	Status   Status
	Fragment Fragment
	Err      error
}

// Adapter invokes one analyzer script.
type Adapter struct {
	script     string
	binary     string
	extensions []string
	delta      Profile
	full       Profile
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBinary sets the interpreter. An empty binary executes the script directly.
func WithBinary(binary string) Option {
	return func(a *Adapter) {
		a.binary = binary
	}
}

// WithDeltaProfile overrides the profile used by Measure.
func WithDeltaProfile(p Profile) Option {
	return func(a *Adapter) {
		a.delta = p
	}
}

// WithFullProfile overrides the profile used by MeasureFull.
func WithFullProfile(p Profile) Option {
	return func(a *Adapter) {
		a.full = p
	}
}

// NewAdapter creates an adapter for script. Files whose names end in one of
// extensions count as analyzable sources.
func NewAdapter(script string, extensions []string, opts ...Option) *Adapter {
	a := &Adapter{
		script:     script,
		binary:     "php",
		extensions: extensions,
		delta:      DeltaProfile,
		full:       FullProfile,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Check verifies that the script exists and the interpreter is on PATH.
func (a *Adapter) Check() error {
	if _, err := os.Stat(a.script); err != nil {
		return fmt.Errorf("analyzer script: %w", err)
	}
	if a.binary != "" {
		if _, err := exec.LookPath(a.binary); err != nil {
			return fmt.Errorf("analyzer interpreter: %w", err)
		}
	}
	return nil
}

// Measure analyzes a sparse export. Failures never escape as errors; they
// are reported through the Result status.
func (a *Adapter) Measure(ctx context.Context, dir string) Result {
	doc, err := a.analyze(ctx, dir, a.delta)
	switch {
	case errors.Is(err, ErrNoSources):
		return Result{Status: StatusEmpty}
	case err != nil:
		return Result{Status: StatusUnavailable, Err: err}
	}
	return Result{Status: StatusMeasured, Fragment: doc.Fragment()}
}

// MeasureFull analyzes a full subtree and returns the complete document.
func (a *Adapter) MeasureFull(ctx context.Context, dir string) (*Document, error) {
	return a.analyze(ctx, dir, a.full)
}

func (a *Adapter) analyze(ctx context.Context, dir string, p Profile) (*Document, error) {
	ok, err := HasSources(dir, a.extensions)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSources
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := a.command(ctx, dir, p)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w after %s", ErrAnalyzerFailed, ctx.Err(), p.Timeout)
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrAnalyzerFailed, err, snippet(stderr.String()))
	}

	return ParseDocument(stdout.Bytes())
}

func (a *Adapter) command(ctx context.Context, dir string, p Profile) *exec.Cmd {
	if a.binary == "" {
		return proc.CommandContext(ctx, a.script, dir)
	}
	args := make([]string, 0, 4)
	if p.MemoryLimit != "" {
		args = append(args, "-d", "memory_limit="+p.MemoryLimit)
	}
	args = append(args, a.script, dir)
	return proc.CommandContext(ctx, a.binary, args...)
}

// HasSources reports whether dir contains at least one file with one of
// extensions. A missing directory has none.
func HasSources(dir string, extensions []string) (bool, error) {
	found := false
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && vcs.HasExtension(d.Name(), extensions) {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found, err
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > stderrSnippet {
		return string(r[:stderrSnippet])
	}
	return s
}
