package ranking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scored builds n repositories whose stars and forks are both score(i)
func scored(n int, score func(i int) int) []models.Repository {
	items := make([]models.Repository, n)
	for i := range items {
		s := score(i)
		if s < 0 {
			s = 0
		}
		items[i] = models.Repository{
			ID:         fmt.Sprintf("R_%d", i),
			Name:       fmt.Sprintf("repo-%d", i),
			OwnerLogin: "owner",
			StarCount:  s,
			ForkCount:  s,
		}
	}
	return items
}

type fakeREST struct {
	items    []models.Repository
	total    int
	failPage int
	counts   map[models.SearchKind]int
	requests []sources.SearchRequest
}

func (f *fakeREST) GetName() string { return "rest" }

func (f *fakeREST) SearchRepositories(_ context.Context, _ string, req sources.SearchRequest) (*sources.SearchPage, error) {
	f.requests = append(f.requests, req)
	if req.Page == f.failPage {
		return nil, &models.UpstreamError{Transport: "rest", StatusCode: 502, Message: "bad gateway"}
	}
	start := min((req.Page-1)*req.PerPage, len(f.items))
	end := min(start+req.PerPage, len(f.items))
	return &sources.SearchPage{Items: f.items[start:end], TotalCount: f.total}, nil
}

func (f *fakeREST) CountMatches(_ context.Context, _ string, kind models.SearchKind, _ string) (int, error) {
	count, ok := f.counts[kind]
	if !ok {
		return 0, &models.UpstreamError{Transport: "rest", StatusCode: 422, Message: "validation failed"}
	}
	return count, nil
}

type fakeGraphQL struct {
	items      []models.Repository
	total      int
	maxPerPage int
	requests   []sources.CursorRequest
	batches    [][]sources.CountQuery
}

func (f *fakeGraphQL) GetName() string { return "graphql" }

func (f *fakeGraphQL) SearchRepositories(_ context.Context, _ string, req sources.CursorRequest) (*sources.CursorPage, error) {
	f.requests = append(f.requests, req)
	start := 0
	if req.After != "" {
		start, _ = strconv.Atoi(req.After)
	}
	size := req.First
	if f.maxPerPage > 0 && size > f.maxPerPage {
		size = f.maxPerPage
	}
	start = min(start, len(f.items))
	end := min(start+size, len(f.items))
	return &sources.CursorPage{
		Items:       f.items[start:end],
		TotalCount:  f.total,
		HasNextPage: end < len(f.items),
		EndCursor:   strconv.Itoa(end),
	}, nil
}

func (f *fakeGraphQL) BatchCounts(_ context.Context, _ string, queries []sources.CountQuery) (map[string]int, error) {
	f.batches = append(f.batches, queries)
	counts := make(map[string]int, len(queries))
	for _, q := range queries {
		counts[q.Alias] = len(q.Query)
	}
	return counts, nil
}

func TestRESTStrategy_FetchRanked(t *testing.T) {
	tests := []struct {
		name       string
		items      []models.Repository
		total      int
		wantH      int
		wantPages  int
		wantReason string
		wantTotal  int
	}{
		{
			name:       "single short page",
			items:      scored(50, func(i int) int { return 50 - i }),
			total:      50,
			wantH:      25,
			wantPages:  1,
			wantReason: StopExhausted,
			wantTotal:  50,
		},
		{
			name:       "empty result",
			items:      nil,
			total:      0,
			wantH:      0,
			wantPages:  1,
			wantReason: StopExhausted,
			wantTotal:  0,
		},
		{
			name:       "full page covering the reported total",
			items:      scored(100, func(i int) int { return 1000 }),
			total:      100,
			wantH:      100,
			wantPages:  1,
			wantReason: StopExhausted,
			wantTotal:  100,
		},
		{
			name:       "reported total lower than fetched is clamped",
			items:      scored(60, func(i int) int { return 3 }),
			total:      10,
			wantH:      3,
			wantPages:  1,
			wantReason: StopExhausted,
			wantTotal:  60,
		},
		{
			name:       "index stops growing on the second page",
			items:      scored(5000, func(i int) int { return 150 - i }),
			total:      5000,
			wantH:      75,
			wantPages:  2,
			wantReason: StopStabilized,
			wantTotal:  5000,
		},
		{
			name:       "boundary item barely qualifies",
			items:      scored(5000, func(i int) int { return 59 - i }),
			total:      5000,
			wantH:      30,
			wantPages:  1,
			wantReason: StopBoundary,
			wantTotal:  5000,
		},
		{
			name:       "popular term hits the page cap",
			items:      scored(5000, func(i int) int { return 100000 }),
			total:      5000,
			wantH:      1000,
			wantPages:  RESTMaxPages,
			wantReason: StopPageCap,
			wantTotal:  5000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeREST{items: tt.items, total: tt.total}
			strategy := NewRESTStrategy(fake, "", nil)

			result, err := strategy.FetchRanked(context.Background(), Query{Term: "kubernetes", Field: models.FieldStars})
			require.NoError(t, err)

			assert.Equal(t, tt.wantH, result.Value)
			assert.Equal(t, tt.wantPages, result.PagesFetched)
			assert.Equal(t, tt.wantReason, result.StopReason)
			assert.Equal(t, tt.wantTotal, result.TotalMatchedUpstream)
			assert.Equal(t, "rest", result.Transport)
			assert.Len(t, result.ContributingItems, result.TotalFetched)
			assert.GreaterOrEqual(t, result.TotalMatchedUpstream, result.TotalFetched)
			assert.LessOrEqual(t, len(fake.requests), RESTMaxPages)
			assert.NotNil(t, result.ContributingItems)

			for i := 1; i < len(result.ContributingItems); i++ {
				assert.GreaterOrEqual(t, result.ContributingItems[i-1].StarCount, result.ContributingItems[i].StarCount)
			}
		})
	}
}

func TestRESTStrategy_RequestParameters(t *testing.T) {
	fake := &fakeREST{items: scored(10, func(i int) int { return i }), total: 10}
	strategy := NewRESTStrategy(fake, "", nil)

	_, err := strategy.FetchRanked(context.Background(), Query{
		Term:         "rust",
		CreatedAfter: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Field:        models.FieldForks,
	})
	require.NoError(t, err)
	require.Len(t, fake.requests, 1)

	req := fake.requests[0]
	assert.Equal(t, "rust created:>2023-01-01", req.Query)
	assert.Equal(t, "forks", req.Sort)
	assert.Equal(t, "desc", req.Order)
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, RESTPageSize, req.PerPage)
}

func TestRESTStrategy_UpstreamFailure(t *testing.T) {
	fake := &fakeREST{items: scored(5000, func(i int) int { return 100000 }), total: 5000, failPage: 2}
	strategy := NewRESTStrategy(fake, "", nil)

	result, err := strategy.FetchRanked(context.Background(), Query{Term: "go", Field: models.FieldStars})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstream))
	assert.Contains(t, err.Error(), "page 2")
}

func TestRESTStrategy_Count(t *testing.T) {
	fake := &fakeREST{counts: map[models.SearchKind]int{models.KindPullRequests: 42}}
	strategy := NewRESTStrategy(fake, "", nil)

	count, err := strategy.Count(context.Background(), models.KindPullRequests, "go is:pr")
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	_, err = strategy.Count(context.Background(), models.KindIssues, "go is:issue")
	assert.True(t, errors.Is(err, models.ErrUpstream))
}

func TestRestShouldStop(t *testing.T) {
	tests := []struct {
		name       string
		sorted     []models.Repository
		h, prevH   int
		pages      int
		total      int
		wantStop   bool
		wantReason string
	}{
		{
			name:     "first page never stabilizes",
			sorted:   scored(100, func(i int) int { return 1000 }),
			h:        100,
			prevH:    100,
			pages:    1,
			total:    5000,
			wantStop: false,
		},
		{
			name:       "no growth after two pages",
			sorted:     scored(200, func(i int) int { return 150 - i }),
			h:          75,
			prevH:      75,
			pages:      2,
			total:      5000,
			wantStop:   true,
			wantReason: StopStabilized,
		},
		{
			name:     "growth keeps fetching",
			sorted:   scored(200, func(i int) int { return 1000 }),
			h:        200,
			prevH:    100,
			pages:    2,
			total:    5000,
			wantStop: false,
		},
		{
			name:     "boundary without enough margin",
			sorted:   scored(100, func(i int) int { return 79 - i }),
			h:        40,
			prevH:    0,
			pages:    1,
			total:    5000,
			wantStop: false,
		},
		{
			name:       "boundary with whole set fetched",
			sorted:     scored(100, func(i int) int { return 79 - i }),
			h:          40,
			prevH:      0,
			pages:      1,
			total:      100,
			wantStop:   true,
			wantReason: StopBoundary,
		},
		{
			name:     "zero index never triggers boundary",
			sorted:   scored(100, func(i int) int { return 0 }),
			h:        0,
			prevH:    0,
			pages:    1,
			total:    5000,
			wantStop: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stop, reason := restShouldStop(tt.sorted, models.FieldStars, tt.h, tt.prevH, tt.pages, tt.total)
			assert.Equal(t, tt.wantStop, stop)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestGraphQLStrategy_FetchRanked(t *testing.T) {
	tests := []struct {
		name       string
		items      []models.Repository
		maxPerPage int
		wantH      int
		wantPages  int
		wantReason string
		wantItems  int
	}{
		{
			name:       "unpopular term stops after one page",
			items:      scored(3000, func(i int) int { return 0 }),
			wantH:      0,
			wantPages:  1,
			wantReason: StopMargin,
			wantItems:  100,
		},
		{
			name:       "small result set runs out of pages",
			items:      scored(30, func(i int) int { return 1000 }),
			wantH:      30,
			wantPages:  1,
			wantReason: StopNoNextPage,
			wantItems:  30,
		},
		{
			name:       "margin reached on a later page",
			items:      scored(3000, func(i int) int { return 100 - i }),
			wantH:      50,
			wantPages:  2,
			wantReason: StopMargin,
			wantItems:  200,
		},
		{
			name:       "popular term hits the item cap",
			items:      scored(5000, func(i int) int { return 100000 }),
			wantH:      GraphQLMaxItems,
			wantPages:  5,
			wantReason: StopItemCap,
			wantItems:  GraphQLMaxItems,
		},
		{
			name:       "short pages shrink the final request",
			items:      scored(5000, func(i int) int { return 100000 }),
			maxPerPage: 70,
			wantH:      GraphQLMaxItems,
			wantPages:  8,
			wantReason: StopItemCap,
			wantItems:  GraphQLMaxItems,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeGraphQL{items: tt.items, total: len(tt.items), maxPerPage: tt.maxPerPage}
			strategy := NewGraphQLStrategy(fake, "token", nil)

			result, err := strategy.FetchRanked(context.Background(), Query{Term: "kubernetes", Field: models.FieldStars})
			require.NoError(t, err)

			assert.Equal(t, tt.wantH, result.Value)
			assert.Equal(t, tt.wantPages, result.PagesFetched)
			assert.Equal(t, tt.wantReason, result.StopReason)
			assert.Equal(t, tt.wantItems, result.TotalFetched)
			assert.LessOrEqual(t, result.TotalFetched, GraphQLMaxItems)
			assert.Equal(t, "graphql", result.Transport)

			for _, req := range fake.requests {
				assert.LessOrEqual(t, req.First, GraphQLPageSize)
				assert.Greater(t, req.First, 0)
			}
		})
	}
}

func TestGraphQLStrategy_FinalRequestSize(t *testing.T) {
	fake := &fakeGraphQL{items: scored(5000, func(i int) int { return 100000 }), total: 5000, maxPerPage: 70}
	strategy := NewGraphQLStrategy(fake, "token", nil)

	_, err := strategy.FetchRanked(context.Background(), Query{Term: "go", Field: models.FieldStars})
	require.NoError(t, err)

	last := fake.requests[len(fake.requests)-1]
	assert.Equal(t, 10, last.First)
	assert.Equal(t, "490", last.After)
}

func TestGraphQLStrategy_SortQualifier(t *testing.T) {
	fake := &fakeGraphQL{items: scored(5, func(i int) int { return i })}
	strategy := NewGraphQLStrategy(fake, "token", nil)

	_, err := strategy.FetchRanked(context.Background(), Query{
		Term:         "zig",
		CreatedAfter: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Field:        models.FieldForks,
	})
	require.NoError(t, err)
	require.Len(t, fake.requests, 1)
	assert.Equal(t, "zig created:>2024-06-01 sort:forks-desc", fake.requests[0].Query)
	assert.Empty(t, fake.requests[0].After)
}

func TestGraphQLStrategy_Count(t *testing.T) {
	fake := &fakeGraphQL{}
	strategy := NewGraphQLStrategy(fake, "token", nil)

	count, err := strategy.Count(context.Background(), models.KindDiscussions, "helm")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	require.Len(t, fake.batches, 1)
	require.Len(t, fake.batches[0], 1)
	assert.Equal(t, models.KindDiscussions, fake.batches[0][0].Kind)
}

func TestSelector(t *testing.T) {
	selector := NewSelector(&fakeREST{}, &fakeGraphQL{}, nil)

	assert.Equal(t, "rest", selector.Select("").Name())
	assert.Equal(t, "graphql", selector.Select("ghp_token").Name())

	_, err := selector.GraphQL("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPrecondition))

	strategy, err := selector.GraphQL("ghp_token")
	require.NoError(t, err)
	assert.Equal(t, "graphql", strategy.Name())
}
