package ranking

import (
	"context"
	"fmt"

	"github.com/domage/github-trend-analyzer/internal/hindex"
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/observability"
	"github.com/domage/github-trend-analyzer/internal/sources"
	"github.com/sirupsen/logrus"
)

// Thresholds of the REST early-termination heuristic. Changing any of them changes
// the reported index for large result sets.
const (
	RESTPageSize = 100
	RESTMaxPages = 10

	restStableMinItems = 200
	restStableMinPages = 2
)

// RESTStrategy pages through the offset-paginated search endpoint
type RESTStrategy struct {
	searcher   sources.RESTSearcher
	credential string
	metrics    *observability.Metrics
}

var _ Strategy = (*RESTStrategy)(nil)

// NewRESTStrategy creates a REST strategy. credential may be empty.
func NewRESTStrategy(searcher sources.RESTSearcher, credential string, metrics *observability.Metrics) *RESTStrategy {
	return &RESTStrategy{searcher: searcher, credential: credential, metrics: metrics}
}

func (s *RESTStrategy) Name() string {
	return s.searcher.GetName()
}

// FetchRanked requests up to RESTMaxPages pages sorted descending by q.Field and
// recomputes the index after every page.
func (s *RESTStrategy) FetchRanked(ctx context.Context, q Query) (*models.HIndexResult, error) {
	predicate := q.Predicate()
	log := logrus.WithFields(logrus.Fields{"term": q.Term, "field": q.Field, "transport": s.Name()})

	var items, sorted []models.Repository
	total, h, prevH, pages := 0, 0, 0, 0
	reason := StopPageCap

	for page := 1; page <= RESTMaxPages; page++ {
		resp, err := s.searcher.SearchRepositories(ctx, s.credential, sources.SearchRequest{
			Query:   predicate,
			Sort:    sortKey(q.Field),
			Order:   "desc",
			Page:    page,
			PerPage: RESTPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching page %d for %q: %w", page, q.Term, err)
		}
		pages = page
		if page == 1 {
			total = resp.TotalCount
		}

		items = append(items, resp.Items...)
		sorted = hindex.SortByField(items, q.Field)
		h = hindex.ComputeSorted(sorted, q.Field)
		log.Debugf("Page %d: %d items accumulated, h-index %d", page, len(items), h)

		if len(resp.Items) < RESTPageSize || len(items) >= total {
			reason = StopExhausted
			break
		}
		if stop, why := restShouldStop(sorted, q.Field, h, prevH, page, total); stop {
			reason = why
			break
		}
		prevH = h
	}

	log.Infof("Ranked fetch stopped (%s) after %d pages: h-index %d over %d items", reason, pages, h, len(items))
	s.metrics.ObserveRankedFetch(s.Name(), string(q.Field), pages, reason)

	return newResult(sorted, q.Field, h, total, pages, reason, s.Name()), nil
}

// restShouldStop applies the two early-stop rules after a full page.
// sorted holds every item accumulated so far, descending by field.
func restShouldStop(sorted []models.Repository, field models.ScoreField, h, prevH, fullPages, total int) (bool, string) {
	n := len(sorted)

	if n >= restStableMinItems && fullPages >= restStableMinPages && h <= prevH {
		return true, StopStabilized
	}

	if h > 0 && n >= 2*h && sorted[h-1].Score(field) == h && (n >= total || n >= 3*h) {
		return true, StopBoundary
	}

	return false, ""
}

// Count returns the upstream match count of query for kind
func (s *RESTStrategy) Count(ctx context.Context, kind models.SearchKind, query string) (int, error) {
	return s.searcher.CountMatches(ctx, s.credential, kind, query)
}

func newResult(sorted []models.Repository, field models.ScoreField, h, total, pages int, reason, transport string) *models.HIndexResult {
	if total < len(sorted) {
		total = len(sorted)
	}
	if sorted == nil {
		sorted = []models.Repository{}
	}
	return &models.HIndexResult{
		Value:                h,
		Field:                field,
		ContributingItems:    sorted,
		TotalMatchedUpstream: total,
		TotalFetched:         len(sorted),
		PagesFetched:         pages,
		StopReason:           reason,
		Transport:            transport,
	}
}
