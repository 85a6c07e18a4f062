package models

import (
	"encoding/json"
	"time"
)

// SnapshotLabelLayout formats the period label of a snapshot.
const SnapshotLabelLayout = "2006-01"

// SnapshotCommitLength is the number of hash characters kept per snapshot.
const SnapshotCommitLength = 8

// Snapshot is one full-tree measurement at a resolved commit.
// The analyzer-owned fields are passed through verbatim.
type Snapshot struct {
	Date             string          `json:"date"`
	Commit           string          `json:"commit"`
	Production       json.RawMessage `json:"production"`
	TestLoc          float64         `json:"testLoc"`
	SurfaceArea      json.RawMessage `json:"surfaceArea"`
	SurfaceAreaLists json.RawMessage `json:"surfaceAreaLists"`
	Antipatterns     json.RawMessage `json:"antipatterns"`
	Hotspots         json.RawMessage `json:"hotspots"`
}

// Report is the root document written once per framework.
type Report struct {
	Framework      string               `json:"framework"`
	Generated      time.Time            `json:"generated"`
	CommitsMonthly []MonthlyCommitCount `json:"commitsMonthly"`
	Snapshots      []Snapshot           `json:"snapshots"`
	Commits        []CommitDelta        `json:"commits"`
	CommitsPerYear []YearlyCommitCount  `json:"commitsPerYear"`
}

// Normalize replaces nil series with empty ones so they encode as [].
func (r *Report) Normalize() {
	if r.CommitsMonthly == nil {
		r.CommitsMonthly = []MonthlyCommitCount{}
	}
	if r.Snapshots == nil {
		r.Snapshots = []Snapshot{}
	}
	if r.Commits == nil {
		r.Commits = []CommitDelta{}
	}
	if r.CommitsPerYear == nil {
		r.CommitsPerYear = []YearlyCommitCount{}
	}
}
