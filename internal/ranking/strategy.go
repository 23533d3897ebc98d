// Package ranking fetches repositories ordered by a score field and estimates their
// H-Index without downloading the whole result set.
//
// Two strategies exist. The REST strategy pages through the offset-paginated search
// endpoint and is used when no credential is available. The GraphQL strategy follows
// cursors and is used whenever a credential is present. Both stop early once the
// index looks stable, so the returned value is a lower-bound estimate for large sets.
package ranking

import (
	"context"
	"time"

	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/observability"
	"github.com/domage/github-trend-analyzer/internal/sources"
)

// Stop reasons reported in HIndexResult.StopReason
const (
	StopExhausted  = "exhausted"  // upstream returned a short or empty page
	StopPageCap    = "page_cap"   // REST page limit reached
	StopItemCap    = "item_cap"   // GraphQL item limit reached
	StopStabilized = "stabilized" // index stopped growing
	StopBoundary   = "boundary"   // boundary item barely qualifies with enough margin
	StopMargin     = "margin"     // enough items past the index
	StopNoNextPage = "no_next_page"
)

// Query describes one ranked fetch
type Query struct {
	Term         string
	CreatedAfter time.Time
	Field        models.ScoreField
}

// Predicate renders the search predicate shared by both strategies
func (q Query) Predicate() string {
	return sources.Predicate(q.Term, models.KindRepositories, sources.CreatedAfter(q.CreatedAfter))
}

// Strategy fetches ranked repositories and counts matches through one transport
type Strategy interface {
	Name() string
	FetchRanked(ctx context.Context, q Query) (*models.HIndexResult, error)
	Count(ctx context.Context, kind models.SearchKind, query string) (int, error)
}

// Selector picks a Strategy for a credential
type Selector struct {
	rest    sources.RESTSearcher
	graphql sources.GraphQLSearcher
	metrics *observability.Metrics
}

// NewSelector creates a Selector over both transports
func NewSelector(rest sources.RESTSearcher, graphql sources.GraphQLSearcher, metrics *observability.Metrics) *Selector {
	return &Selector{rest: rest, graphql: graphql, metrics: metrics}
}

// Select returns the GraphQL strategy when a credential is present, otherwise REST
func (s *Selector) Select(credential string) Strategy {
	if credential != "" {
		return NewGraphQLStrategy(s.graphql, credential, s.metrics)
	}
	return NewRESTStrategy(s.rest, credential, s.metrics)
}

// GraphQL returns the credentialed strategy regardless of selection rules
func (s *Selector) GraphQL(credential string) (Strategy, error) {
	if credential == "" {
		return nil, models.NewCredentialRequired("GraphQL search")
	}
	return NewGraphQLStrategy(s.graphql, credential, s.metrics), nil
}

// Searcher exposes the GraphQL transport for batched count queries
func (s *Selector) Searcher() sources.GraphQLSearcher {
	return s.graphql
}

func sortKey(field models.ScoreField) string {
	if field == models.FieldForks {
		return "forks"
	}
	return "stars"
}
