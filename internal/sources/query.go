package sources

import (
	"strings"
	"time"

	"github.com/domage/github-trend-analyzer/internal/models"
)

// CreatedAfter renders the created:>DATE qualifier value; the zero time means no filter
func CreatedAfter(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return ">" + t.Format(models.DateLayout)
}

// Predicate builds a search query string for term scoped to kind and a created qualifier
// value such as ">2020-01-01" or "2020-01-01..2020-03-31".
func Predicate(term string, kind models.SearchKind, created string) string {
	parts := []string{strings.TrimSpace(term)}

	switch kind {
	case models.KindPullRequests:
		parts = append(parts, "is:pr")
	case models.KindIssues:
		parts = append(parts, "is:issue")
	}

	if created != "" {
		parts = append(parts, "created:"+created)
	}

	return strings.Join(parts, " ")
}
