package sources

import (
	"context"

	"github.com/domage/github-trend-analyzer/internal/models"
)

// SearchRequest is one page of an offset-paginated repository search
type SearchRequest struct {
	Query   string
	Sort    string // "stars" or "forks"
	Order   string // "desc" or "asc"
	Page    int    // 1-based
	PerPage int    // at most 100
}

// SearchPage is the result of a SearchRequest. TotalCount is the upstream match count.
type SearchPage struct {
	Items      []models.Repository
	TotalCount int
}

// CursorRequest is one page of a cursor-paginated repository search
type CursorRequest struct {
	Query string
	First int
	After string
}

// CursorPage is the result of a CursorRequest
type CursorPage struct {
	Items       []models.Repository
	TotalCount  int
	HasNextPage bool
	EndCursor   string
}

// CountQuery is one aliased count-only sub-query of a batch
type CountQuery struct {
	Alias string
	Kind  models.SearchKind
	Query string
}

// RESTSearcher is the offset-paginated search transport. The credential may be empty.
type RESTSearcher interface {
	GetName() string
	SearchRepositories(ctx context.Context, credential string, req SearchRequest) (*SearchPage, error)
	CountMatches(ctx context.Context, credential string, kind models.SearchKind, query string) (int, error)
}

// GraphQLSearcher is the cursor-paginated, batching transport. It requires a credential.
type GraphQLSearcher interface {
	GetName() string
	SearchRepositories(ctx context.Context, credential string, req CursorRequest) (*CursorPage, error)
	BatchCounts(ctx context.Context, credential string, queries []CountQuery) (map[string]int, error)
}
