package models

import "time"

// Category classifies a commit by the intent expressed in its subject line.
type Category string

const (
	CategoryBug         Category = "Bug"
	CategoryFeature     Category = "Feature"
	CategoryMaintenance Category = "Maintenance"
	CategoryUnknown     Category = "Unknown"
)

// String implements fmt.Stringer.
func (c Category) String() string { return string(c) }

// CommitRef identifies a commit together with the metadata read from the log.
type CommitRef struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"short_hash"`
	Date      time.Time `json:"date"`
	Subject   string    `json:"subject"`
	Category  Category  `json:"category"`
	Lines     int       `json:"lines"` // insertions + deletions
}

// DeltaValues holds the signed metric movement between a commit and its parent.
type DeltaValues struct {
	Loc          int
	Ccn          float64
	Mi           float64 // positive = maintainability improved
	Antipatterns int
}

// HasMetricChanges reports whether any quality metric moved.
// Line count alone does not count as movement.
func (d DeltaValues) HasMetricChanges() bool {
	return d.Ccn != 0 || d.Mi != 0 || d.Antipatterns != 0
}

// CommitDelta is one entry in the recent-commit series of a report.
type CommitDelta struct {
	Hash              string   `json:"hash"`
	Date              string   `json:"date"`
	Type              Category `json:"type"`
	Message           string   `json:"message"`
	LocDelta          int      `json:"locDelta"`
	CcnDelta          float64  `json:"ccnDelta"`
	MiDelta           float64  `json:"miDelta"`
	AntipatternsDelta int      `json:"antipatternsDelta"`
}

// Commit date and message shapes used in the recent-commit series.
const (
	DeltaDateLayout  = "Jan 02, 2006"
	DeltaHashLength  = 11
	DeltaMessageRune = 80
)

// NewCommitDelta builds a report entry from a commit and its computed values.
func NewCommitDelta(c CommitRef, v DeltaValues) CommitDelta {
	return CommitDelta{
		Hash:              ShortHash(c.Hash, DeltaHashLength),
		Date:              c.Date.Format(DeltaDateLayout),
		Type:              c.Category,
		Message:           TruncateRunes(c.Subject, DeltaMessageRune),
		LocDelta:          v.Loc,
		CcnDelta:          v.Ccn,
		MiDelta:           v.Mi,
		AntipatternsDelta: v.Antipatterns,
	}
}

// ShortHash returns at most n leading characters of hash.
func ShortHash(hash string, n int) string {
	if len(hash) <= n {
		return hash
	}
	return hash[:n]
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// MonthlyCommitCount is the commit histogram bucket for one calendar month.
type MonthlyCommitCount struct {
	Date        string `json:"date"` // YYYY-MM
	Total       int    `json:"total"`
	Features    int    `json:"features"`
	Bugs        int    `json:"bugs"`
	Maintenance int    `json:"maintenance"`
	Unknown     int    `json:"unknown"`
}

// Add counts one commit of the given category.
func (m *MonthlyCommitCount) Add(c Category) {
	m.Total++
	switch c {
	case CategoryBug:
		m.Bugs++
	case CategoryFeature:
		m.Features++
	case CategoryMaintenance:
		m.Maintenance++
	default:
		m.Unknown++
	}
}

// YearlyCommitCount is the number of commits authored in one year.
type YearlyCommitCount struct {
	Year    int `json:"year"`
	Commits int `json:"commits"`
}
