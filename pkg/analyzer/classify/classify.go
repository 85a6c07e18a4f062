// Package classify maps commit subjects to change categories.
package classify

import (
	"strings"

	"github.com/panbanda/coremetrics/pkg/models"
)

type prefixGroup struct {
	category models.Category
	prefixes []string
}

// groups are tested in order; the first matching prefix wins.
var groups = []prefixGroup{
	{models.CategoryBug, []string{"fix:", "bug:", "[bugfix]", "[!!!][bugfix]"}},
	{models.CategoryFeature, []string{"feat:", "[feature]", "[!!!][feature]"}},
	{models.CategoryMaintenance, []string{
		"task:", "docs:", "ci:", "test:", "perf:", "chore:", "refactor:", "[task]", "[docs]",
	}},
}

// Classify returns the category of a commit subject line. Matching is
// case-insensitive and ignores surrounding whitespace.
func Classify(subject string) models.Category {
	s := strings.ToLower(strings.TrimSpace(subject))
	for _, g := range groups {
		for _, p := range g.prefixes {
			if strings.HasPrefix(s, p) {
				return g.category
			}
		}
	}
	return models.CategoryUnknown
}
