package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/coremetrics/internal/cache"
	"github.com/panbanda/coremetrics/internal/testutil"
	"github.com/panbanda/coremetrics/internal/vcs"
	"github.com/panbanda/coremetrics/pkg/analyzer/metrics"
)

func labels(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format("2006-01")
	}
	return out
}

func TestSchedule(t *testing.T) {
	tests := []struct {
		name     string
		anchor   time.Time
		now      time.Time
		interval int
		want     []string
	}{
		{
			name:     "semi-annual",
			anchor:   time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC),
			now:      time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			interval: 6,
			want:     []string{"2021-01", "2021-07", "2022-01", "2022-07", "2023-01", "2023-07", "2024-01"},
		},
		{
			name:     "now on a sample date is included",
			anchor:   time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC),
			now:      time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC),
			interval: 6,
			want:     []string{"2011-01", "2011-07", "2012-01"},
		},
		{
			name:     "month rollover",
			anchor:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			now:      time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
			interval: 5,
			want:     []string{"2020-01", "2020-06", "2020-11", "2021-04"},
		},
		{
			name:     "anchor in the future",
			anchor:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
			now:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			interval: 6,
			want:     []string{},
		},
		{
			name:     "non-positive interval falls back",
			anchor:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			now:      time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			interval: 0,
			want:     []string{"2023-01", "2023-07"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, labels(Schedule(tt.anchor, tt.now, tt.interval)))
		})
	}
}

// fakeRepo resolves commits from a table keyed by the sample's month label.
type fakeRepo struct {
	commits  map[string]string
	head     string
	headErr  error
	noSubdir map[string]bool
	exports  []string
}

func (r *fakeRepo) ResolveCommitNearDate(_ context.Context, date time.Time) (string, error) {
	c, ok := r.commits[date.Format("2006-01")]
	if !ok {
		return "", vcs.ErrNoCommit
	}
	return c, nil
}

func (r *fakeRepo) Head(context.Context) (string, error) {
	return r.head, r.headErr
}

func (r *fakeRepo) ExportFull(_ context.Context, hash, dest string) error {
	r.exports = append(r.exports, hash)
	if hash == "broken" {
		return errors.New("archive failed")
	}
	if err := vcs.ResetDir(dest); err != nil {
		return err
	}
	if r.noSubdir[hash] {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(dest, "core"), 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, "core", "a.php"), []byte("<?php"), 0644)
}

type fakeMeasurer struct {
	calls int
	fail  bool
}

func (m *fakeMeasurer) MeasureFull(context.Context, string) (*metrics.Document, error) {
	m.calls++
	if m.fail {
		return nil, metrics.ErrAnalyzerFailed
	}
	return &metrics.Document{
		Production:       metrics.Production{Loc: 100, Raw: json.RawMessage(`{"loc":100}`)},
		TestLoc:          20,
		SurfaceArea:      json.RawMessage(`{}`),
		SurfaceAreaLists: json.RawMessage(`{}`),
		Antipatterns:     json.RawMessage(`{}`),
		Hotspots:         json.RawMessage(`[]`),
	}, nil
}

func clock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 9, 0, 0, 0, time.UTC) }
}

func TestRun_SkipsCurrentWhenLastSampleHasSameLabel(t *testing.T) {
	repo := &fakeRepo{
		commits: map[string]string{
			"2023-01": "aaaaaaaaaaaa",
			"2023-07": "bbbbbbbbbbbb",
			"2024-01": "cccccccccccc",
		},
		head: "dddddddddddd",
	}
	work := filepath.Join(t.TempDir(), "drupal")
	s := New("drupal", repo, &fakeMeasurer{}, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "core", work,
		WithClock(clock(2024, 1, 10)))

	var progress []int
	got, err := s.Run(context.Background(), func(current, total int, _ string) {
		assert.Equal(t, 4, total)
		progress = append(progress, current)
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "2024-01", got[2].Date)
	assert.Equal(t, "cccccccc", got[2].Commit)
	assert.NotContains(t, repo.exports, "dddddddddddd")
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
	assert.False(t, testutil.DirExists(work), "scratch directory is removed")
}

func TestRun_AppendsCurrent(t *testing.T) {
	repo := &fakeRepo{
		commits: map[string]string{"2023-01": "aaaaaaaaaaaa", "2023-07": "bbbbbbbbbbbb"},
		head:    "dddddddddddd",
	}
	s := New("drupal", repo, &fakeMeasurer{}, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "core", t.TempDir(),
		WithClock(clock(2023, 10, 2)))

	got, err := s.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "2023-10", got[2].Date)
	assert.Equal(t, "dddddddd", got[2].Commit)
	assert.Equal(t, 20.0, got[2].TestLoc)
	assert.JSONEq(t, `{"loc":100}`, string(got[2].Production))
}

func TestRun_SkipsSamplesThatCannotBeMeasured(t *testing.T) {
	repo := &fakeRepo{
		commits: map[string]string{
			// 2021-01 has no commit
			"2021-07": "broken",
			"2022-01": "nocore000000",
			"2022-07": "goodgoodgood",
		},
		head:     "headheadhead",
		noSubdir: map[string]bool{"nocore000000": true},
	}
	s := New("typo3", repo, &fakeMeasurer{}, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), "core", t.TempDir(),
		WithClock(clock(2022, 9, 1)))

	got, err := s.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "2022-07", got[0].Date)
	assert.Equal(t, "goodgood", got[0].Commit)
	assert.Equal(t, "2022-09", got[1].Date)
}

func TestRun_AnalyzerFailure(t *testing.T) {
	repo := &fakeRepo{commits: map[string]string{"2023-01": "aaaaaaaaaaaa"}, head: "bbbbbbbbbbbb"}
	s := New("drupal", repo, &fakeMeasurer{fail: true}, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "core", t.TempDir(),
		WithClock(clock(2023, 3, 1)))

	got, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRun_HeadFailure(t *testing.T) {
	repo := &fakeRepo{commits: map[string]string{}, headErr: errors.New("bad HEAD")}
	s := New("drupal", repo, &fakeMeasurer{}, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "core", t.TempDir(),
		WithClock(clock(2023, 3, 1)))

	got, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRun_Canceled(t *testing.T) {
	repo := &fakeRepo{commits: map[string]string{"2023-01": "aaaaaaaaaaaa"}, head: "bbbbbbbbbbbb"}
	measurer := &fakeMeasurer{}
	s := New("drupal", repo, measurer, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "core", t.TempDir(),
		WithClock(clock(2023, 3, 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, measurer.calls)
}

func TestRun_CacheAvoidsReanalysis(t *testing.T) {
	c, err := cache.New(filepath.Join(t.TempDir(), "cache"), 0, true)
	require.NoError(t, err)

	repo := &fakeRepo{
		commits: map[string]string{"2023-01": "aaaaaaaaaaaa", "2023-07": "aaaaaaaaaaaa"},
		head:    "aaaaaaaaaaaa",
	}
	measurer := &fakeMeasurer{}
	run := func() int {
		s := New("drupal", repo, measurer, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "core", t.TempDir(),
			WithClock(clock(2023, 9, 1)), WithCache(c, "script-v1"))
		got, err := s.Run(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"2023-01", "2023-07", "2023-09"}, []string{got[0].Date, got[1].Date, got[2].Date})
		return measurer.calls
	}

	assert.Equal(t, 1, run(), "the same commit is measured once")
	assert.Equal(t, 1, run(), "a second run is served from the cache")

	s := New("drupal", repo, measurer, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "core", t.TempDir(),
		WithClock(clock(2023, 2, 1)), WithCache(c, "script-v2"))
	_, err = s.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, measurer.calls, "a new analyzer fingerprint misses")
}

func TestNewSnapshot(t *testing.T) {
	doc, err := metrics.ParseDocument([]byte(`{"production":{"loc":5},"testLoc":2,"hotspots":[1]}`))
	require.NoError(t, err)

	snap := NewSnapshot("2020-07", "0123456789abcdef", doc)
	assert.Equal(t, "2020-07", snap.Date)
	assert.Equal(t, "01234567", snap.Commit)
	assert.Equal(t, 2.0, snap.TestLoc)
	assert.JSONEq(t, `{"loc":5}`, string(snap.Production))
	assert.JSONEq(t, `[1]`, string(snap.Hotspots))
}
