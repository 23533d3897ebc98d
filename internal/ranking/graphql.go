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

// Thresholds of the GraphQL early-termination heuristic. Pages here cost more than
// REST pages, so the item cap is tighter.
const (
	GraphQLPageSize = 100
	GraphQLMaxItems = 500

	graphQLMinItems     = 100
	graphQLMarginFactor = 3
)

// GraphQLStrategy follows search cursors on the GraphQL API
type GraphQLStrategy struct {
	searcher   sources.GraphQLSearcher
	credential string
	metrics    *observability.Metrics
}

var _ Strategy = (*GraphQLStrategy)(nil)

// NewGraphQLStrategy creates a GraphQL strategy for credential
func NewGraphQLStrategy(searcher sources.GraphQLSearcher, credential string, metrics *observability.Metrics) *GraphQLStrategy {
	return &GraphQLStrategy{searcher: searcher, credential: credential, metrics: metrics}
}

func (s *GraphQLStrategy) Name() string {
	return s.searcher.GetName()
}

// FetchRanked follows cursors until the margin past the index is large enough, the item
// cap is reached, or there are no more pages.
func (s *GraphQLStrategy) FetchRanked(ctx context.Context, q Query) (*models.HIndexResult, error) {
	predicate := fmt.Sprintf("%s sort:%s-desc", q.Predicate(), sortKey(q.Field))
	log := logrus.WithFields(logrus.Fields{"term": q.Term, "field": q.Field, "transport": s.Name()})

	var items, sorted []models.Repository
	var cursor string
	total, h, pages := 0, 0, 0
	var reason string

	for {
		first := GraphQLPageSize
		if remaining := GraphQLMaxItems - len(items); remaining < first {
			first = remaining
		}

		resp, err := s.searcher.SearchRepositories(ctx, s.credential, sources.CursorRequest{
			Query: predicate,
			First: first,
			After: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching page %d for %q: %w", pages+1, q.Term, err)
		}
		pages++
		total = resp.TotalCount

		page := resp.Items
		if len(page) > first {
			page = page[:first]
		}
		items = append(items, page...)
		sorted = hindex.SortByField(items, q.Field)
		h = hindex.ComputeSorted(sorted, q.Field)
		log.Debugf("Page %d: %d items accumulated, h-index %d", pages, len(items), h)

		if len(items) >= graphQLMarginFactor*h && len(items) >= graphQLMinItems {
			reason = StopMargin
			break
		}
		if len(items) >= GraphQLMaxItems {
			reason = StopItemCap
			break
		}
		if !resp.HasNextPage || resp.EndCursor == "" || len(page) == 0 {
			reason = StopNoNextPage
			break
		}
		cursor = resp.EndCursor
	}

	log.Infof("Ranked fetch stopped (%s) after %d pages: h-index %d over %d items", reason, pages, h, len(items))
	s.metrics.ObserveRankedFetch(s.Name(), string(q.Field), pages, reason)

	return newResult(sorted, q.Field, h, total, pages, reason, s.Name()), nil
}

// Count sends a single-alias count query
func (s *GraphQLStrategy) Count(ctx context.Context, kind models.SearchKind, query string) (int, error) {
	counts, err := s.searcher.BatchCounts(ctx, s.credential, []sources.CountQuery{
		{Alias: "total", Kind: kind, Query: query},
	})
	if err != nil {
		return 0, err
	}
	return counts["total"], nil
}
