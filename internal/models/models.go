package models

import (
	"fmt"
	"strings"
	"time"
)

// Repository is a scored search result returned by the upstream API
type Repository struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerLogin string    `json:"owner_login"`
	URL        string    `json:"url"`
	StarCount  int       `json:"star_count"`
	ForkCount  int       `json:"fork_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// FullName returns owner/name
func (r Repository) FullName() string {
	return r.OwnerLogin + "/" + r.Name
}

// ScoreField selects which repository counter is used as the score
type ScoreField string

const (
	FieldStars ScoreField = "stars"
	FieldForks ScoreField = "forks"
)

// Score returns the value of field for the repository
func (r Repository) Score(field ScoreField) int {
	if field == FieldForks {
		return r.ForkCount
	}
	return r.StarCount
}

// ParseScoreField accepts "stars"/"forks" (and the singular forms)
func ParseScoreField(s string) (ScoreField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stars", "star":
		return FieldStars, nil
	case "forks", "fork":
		return FieldForks, nil
	}
	return "", fmt.Errorf("unknown score field %q", s)
}

// HIndexResult is the outcome of one ranked fetch
type HIndexResult struct {
	Value                int          `json:"value"`
	Field                ScoreField   `json:"field"`
	ContributingItems    []Repository `json:"contributing_items"` // descending by Field
	TotalMatchedUpstream int          `json:"total_matched_upstream"`
	TotalFetched         int          `json:"total_fetched"`
	PagesFetched         int          `json:"pages_fetched"`
	StopReason           string       `json:"stop_reason"`
	Transport            string       `json:"transport"`
}

// Granularity is the calendar bucket size used to segment a range of years
type Granularity string

const (
	GranularityYear    Granularity = "year"
	GranularityQuarter Granularity = "quarter"
	GranularityMonth   Granularity = "month"
)

// TimeWindow is inclusive on both ends at day granularity
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// CreatedRange renders the window as a search qualifier value, e.g. 2021-01-01..2021-03-31
func (w TimeWindow) CreatedRange() string {
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}

// DateLayout is the day format used in search predicates
const DateLayout = "2006-01-02"

// SearchKind is the item type a count or search is scoped to
type SearchKind string

const (
	KindRepositories SearchKind = "repositories"
	KindPullRequests SearchKind = "pull_requests"
	KindIssues       SearchKind = "issues"
	KindDiscussions  SearchKind = "discussions"
)

// Metric selects which counts a trend request collects per window
type Metric string

const (
	MetricRepositories Metric = "repositories"
	MetricPullRequests Metric = "pull_requests"
	MetricIssues       Metric = "issues"
	MetricAll          Metric = "all"
)

// ParseMetric validates a metric name
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricRepositories, MetricPullRequests, MetricIssues, MetricAll:
		return m, nil
	case "":
		return MetricRepositories, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Kinds lists the counts collected for the metric. Repository counts are always collected.
func (m Metric) Kinds() []SearchKind {
	switch m {
	case MetricPullRequests:
		return []SearchKind{KindRepositories, KindPullRequests}
	case MetricIssues:
		return []SearchKind{KindRepositories, KindIssues}
	case MetricAll:
		return []SearchKind{KindRepositories, KindPullRequests, KindIssues}
	}
	return []SearchKind{KindRepositories}
}

// TrendPoint holds the counts of one term for one window
type TrendPoint struct {
	Window           TimeWindow `json:"window"`
	PeriodLabel      string     `json:"period_label"`
	RepositoryCount  int        `json:"repository_count"`
	PullRequestCount *int       `json:"pull_request_count,omitempty"`
	IssueCount       *int       `json:"issue_count,omitempty"`
}

// TermTrend is either the chronological points of a term or the error that stopped it
type TermTrend struct {
	Term   string       `json:"term"`
	Points []TrendPoint `json:"points,omitempty"`
	Error  string       `json:"error,omitempty"`
	Err    error        `json:"-"`
}

// TrendSeries maps a search term to its chronological points
type TrendSeries map[string][]TrendPoint

// SeriesOf drops failed terms from a trend comparison
func SeriesOf(results map[string]TermTrend) TrendSeries {
	series := make(TrendSeries, len(results))
	for term, result := range results {
		if result.Err != nil {
			continue
		}
		series[term] = result.Points
	}
	return series
}

// ComparativeResult combines the star and fork indices of one term with its totals
type ComparativeResult struct {
	Term             string        `json:"term"`
	CreatedAfter     string        `json:"created_after,omitempty"`
	StarHIndex       *HIndexResult `json:"star_h_index"`
	ForkHIndex       *HIndexResult `json:"fork_h_index"`
	TotalRepos       *int          `json:"total_repos"`       // nil when unavailable
	TotalPRs         *int          `json:"total_prs"`         // nil when unavailable
	TotalDiscussions *int          `json:"total_discussions"` // requires a credential
	TopStarred       []Repository  `json:"top_starred"`
	TopForked        []Repository  `json:"top_forked"`
	UniqueRepos      int           `json:"unique_repos"`
}

// ComparisonEntry is one ranked row of a report; Result is nil when Error is set
type ComparisonEntry struct {
	Rank   int                `json:"rank,omitempty"`
	Term   string             `json:"term"`
	Result *ComparativeResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// ComparisonReport ranks several terms by their star H-Index
type ComparisonReport struct {
	GeneratedAt  time.Time         `json:"generated_at"`
	CreatedAfter string            `json:"created_after,omitempty"`
	Transport    string            `json:"transport"`
	Entries      []ComparisonEntry `json:"entries"`
}

// Digest is the scheduled summary delivered by the notification channels
type Digest struct {
	ID          string               `json:"id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Report      *ComparisonReport    `json:"report"`
	Granularity Granularity          `json:"granularity,omitempty"`
	Trends      map[string]TermTrend `json:"trends,omitempty"`
	Terms       []string             `json:"terms"`
}
