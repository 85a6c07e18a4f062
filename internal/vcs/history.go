package vcs

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/panbanda/coremetrics/pkg/analyzer/classify"
	"github.com/panbanda/coremetrics/pkg/models"
)

// commitLogFormat starts each record with a record separator and keeps the
// header fields NUL-delimited so subjects may contain any printable text.
const commitLogFormat = "--format=%x1e%H%x00%cI%x00%s"

var (
	insertionsRe = regexp.MustCompile(`(\d+) insertion`)
	deletionsRe  = regexp.MustCompile(`(\d+) deletion`)
)

// ResolveCommitNearDate returns the newest commit on HEAD committed no later
// than 23:59:59 of date. ErrNoCommit is returned when history starts later.
func (m *Mirror) ResolveCommitNearDate(ctx context.Context, date time.Time) (string, error) {
	before := "--before=" + date.Format("2006-01-02") + "T23:59:59"
	out, err := m.run(ctx, m.commandTimeout, "rev-list", "-1", before, "HEAD")
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(out)
	if hash == "" {
		return "", ErrNoCommit
	}
	return hash, nil
}

// ListCommitsSince returns the commits on HEAD committed after since, sorted
// newest first. Lines is the shortstat insertions plus deletions, or 0 when
// git prints no shortstat (merges and empty commits).
func (m *Mirror) ListCommitsSince(ctx context.Context, since time.Time) ([]models.CommitRef, error) {
	out, err := m.run(ctx, m.commandTimeout,
		"log", "--since="+since.Format(time.RFC3339), "--shortstat", commitLogFormat, "HEAD")
	if err != nil {
		return nil, err
	}
	return parseCommitLog(out), nil
}

// parseCommitLog parses `git log --shortstat` output written with commitLogFormat.
func parseCommitLog(out string) []models.CommitRef {
	var commits []models.CommitRef
	for _, record := range strings.Split(out, "\x1e") {
		if strings.TrimSpace(record) == "" {
			continue
		}
		header, body, _ := strings.Cut(record, "\n")
		fields := strings.SplitN(header, "\x00", 3)
		if len(fields) != 3 {
			continue
		}
		date, err := time.Parse(time.RFC3339, fields[1])
		if err != nil {
			continue
		}
		subject := fields[2]
		commits = append(commits, models.CommitRef{
			Hash:      fields[0],
			ShortHash: models.ShortHash(fields[0], models.DeltaHashLength),
			Date:      date,
			Subject:   subject,
			Category:  classify.Classify(subject),
			Lines:     parseShortstat(body),
		})
	}

	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].Date.After(commits[j].Date)
	})
	return commits
}

// parseShortstat sums insertions and deletions from a shortstat block.
func parseShortstat(block string) int {
	for _, line := range strings.Split(block, "\n") {
		if !strings.Contains(line, "changed") {
			continue
		}
		total := 0
		if m := insertionsRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			total += n
		}
		if m := deletionsRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			total += n
		}
		return total
	}
	return 0
}

// CommitsPerYear counts commits on HEAD by author year, ascending.
func (m *Mirror) CommitsPerYear(ctx context.Context) ([]models.YearlyCommitCount, error) {
	out, err := m.run(ctx, m.commandTimeout, "log", "--date=format:%Y", "--format=%ad", "HEAD")
	if err != nil {
		return nil, err
	}
	return parseYearCounts(out), nil
}

func parseYearCounts(out string) []models.YearlyCommitCount {
	counts := make(map[int]int)
	for _, line := range strings.Split(out, "\n") {
		year, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			continue
		}
		counts[year]++
	}

	result := make([]models.YearlyCommitCount, 0, len(counts))
	for year, n := range counts {
		result = append(result, models.YearlyCommitCount{Year: year, Commits: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Year < result[j].Year })
	return result
}

// CommitsPerMonth counts commits on HEAD by author month and category, ascending.
func (m *Mirror) CommitsPerMonth(ctx context.Context) ([]models.MonthlyCommitCount, error) {
	out, err := m.run(ctx, m.commandTimeout, "log", "--date=format:%Y-%m", "--format=%ad%x00%s", "HEAD")
	if err != nil {
		return nil, err
	}
	return parseMonthCounts(out), nil
}

func parseMonthCounts(out string) []models.MonthlyCommitCount {
	buckets := make(map[string]*models.MonthlyCommitCount)
	for _, line := range strings.Split(out, "\n") {
		month, subject, ok := strings.Cut(line, "\x00")
		if !ok {
			continue
		}
		month = strings.TrimSpace(month)
		b, exists := buckets[month]
		if !exists {
			b = &models.MonthlyCommitCount{Date: month}
			buckets[month] = b
		}
		b.Add(classify.Classify(subject))
	}

	result := make([]models.MonthlyCommitCount, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}
