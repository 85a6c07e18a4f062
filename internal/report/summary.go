// Package report summarizes collected reports for people: the snapshot
// series with its trends, and what kind of recent commits moved the metrics.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/panbanda/coremetrics/internal/output"
	"github.com/panbanda/coremetrics/pkg/models"
	"github.com/panbanda/coremetrics/pkg/stats"
)

// SnapshotRow is the headline production figures of one snapshot.
type SnapshotRow struct {
	Date      string  `json:"date"`
	Commit    string  `json:"commit"`
	Loc       int     `json:"loc"`
	CcnSum    float64 `json:"ccnSum"`
	MiDebtSum float64 `json:"miDebtSum"`
	TestLoc   float64 `json:"testLoc"`
}

// Summary condenses a report.
type Summary struct {
	Framework    string                   `json:"framework"`
	Generated    time.Time                `json:"generated"`
	Snapshots    []SnapshotRow            `json:"snapshots"`
	LocTrend     stats.Trend              `json:"locTrend"`
	CcnTrend     stats.Trend              `json:"ccnTrend"`
	CommitTypes  map[models.Category]int  `json:"commitTypes"`
	CcnDeltaP90  float64                  `json:"ccnDeltaP90"`
	TotalCommits int                      `json:"totalCommits"`
	BusiestYear  models.YearlyCommitCount `json:"busiestYear"`
}

var categoryOrder = []models.Category{
	models.CategoryBug,
	models.CategoryFeature,
	models.CategoryMaintenance,
	models.CategoryUnknown,
}

// Summarize computes the summary of r.
func Summarize(r *models.Report) (*Summary, error) {
	s := &Summary{
		Framework:   r.Framework,
		Generated:   r.Generated,
		Snapshots:   make([]SnapshotRow, 0, len(r.Snapshots)),
		CommitTypes: make(map[models.Category]int, len(categoryOrder)),
	}

	locs := make([]float64, 0, len(r.Snapshots))
	ccns := make([]float64, 0, len(r.Snapshots))
	for _, snap := range r.Snapshots {
		var prod struct {
			Loc       int     `json:"loc"`
			CcnSum    float64 `json:"ccnSum"`
			MiDebtSum float64 `json:"miDebtSum"`
		}
		if len(snap.Production) > 0 {
			if err := json.Unmarshal(snap.Production, &prod); err != nil {
				return nil, fmt.Errorf("snapshot %s: %w", snap.Date, err)
			}
		}
		s.Snapshots = append(s.Snapshots, SnapshotRow{
			Date:      snap.Date,
			Commit:    snap.Commit,
			Loc:       prod.Loc,
			CcnSum:    prod.CcnSum,
			MiDebtSum: prod.MiDebtSum,
			TestLoc:   snap.TestLoc,
		})
		locs = append(locs, float64(prod.Loc))
		ccns = append(ccns, prod.CcnSum)
	}
	s.LocTrend = stats.ComputeTrend(locs)
	s.CcnTrend = stats.ComputeTrend(ccns)

	moves := make([]float64, 0, len(r.Commits))
	for _, c := range r.Commits {
		s.CommitTypes[c.Type]++
		moves = append(moves, math.Abs(c.CcnDelta))
	}
	sort.Float64s(moves)
	s.CcnDeltaP90 = stats.Percentile(moves, 90)

	for _, y := range r.CommitsPerYear {
		s.TotalCommits += y.Commits
		if y.Commits > s.BusiestYear.Commits {
			s.BusiestYear = y
		}
	}
	return s, nil
}

// Renderable lays the summary out for an output.Formatter.
func (s *Summary) Renderable() output.Renderable {
	var overview strings.Builder
	fmt.Fprintf(&overview, "Generated: %s (%s)\n", s.Generated.Format(time.DateOnly), humanize.Time(s.Generated))
	fmt.Fprintf(&overview, "Commits: %s", humanize.Comma(int64(s.TotalCommits)))
	if s.BusiestYear.Commits > 0 {
		fmt.Fprintf(&overview, ", busiest year %d (%s)", s.BusiestYear.Year, humanize.Comma(int64(s.BusiestYear.Commits)))
	}
	overview.WriteString("\n")
	if len(s.Snapshots) >= 2 {
		fmt.Fprintf(&overview, "LOC trend: %+.0f per sample (r²=%.2f)\n", s.LocTrend.Slope, s.LocTrend.RSquared)
		fmt.Fprintf(&overview, "CCN trend: %+.1f per sample (r²=%.2f)\n", s.CcnTrend.Slope, s.CcnTrend.RSquared)
	}

	snapRows := make([][]string, len(s.Snapshots))
	for i, row := range s.Snapshots {
		snapRows[i] = []string{
			row.Date,
			row.Commit,
			humanize.Comma(int64(row.Loc)),
			humanize.CommafWithDigits(row.CcnSum, 1),
			humanize.CommafWithDigits(row.MiDebtSum, 1),
			humanize.Comma(int64(row.TestLoc)),
		}
	}

	total := 0
	typeRows := make([][]string, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		n := s.CommitTypes[c]
		total += n
		typeRows = append(typeRows, []string{c.String(), humanize.Comma(int64(n))})
	}

	return &output.Report{
		Title: s.Framework + " metrics",
		Sections: []output.Renderable{
			&output.Section{Title: "Overview", Content: strings.TrimRight(overview.String(), "\n")},
			output.NewTable("Snapshots",
				[]string{"Period", "Commit", "LOC", "CCN", "MI debt", "Test LOC"},
				snapRows, nil, nil),
			output.NewTable("Recent commits with metric changes",
				[]string{"Type", "Commits"},
				typeRows,
				[]string{"Total", humanize.Comma(int64(total))}, nil),
		},
		Data: s,
	}
}
