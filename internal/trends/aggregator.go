// Package trends builds per-window count series for several search terms.
package trends

import (
	"context"
	"fmt"
	"time"

	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/observability"
	"github.com/domage/github-trend-analyzer/internal/sources"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBatchSize = 24
	MaxBatchSize     = 100
)

// Config controls batching and caching of window counts
type Config struct {
	BatchSize int
	CacheSize int // 0 disables the cache
	CacheTTL  time.Duration
}

// Aggregator compares terms across time windows through the GraphQL transport
type Aggregator struct {
	searcher  sources.GraphQLSearcher
	batchSize int
	cache     *expirable.LRU[string, int]
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewAggregator creates an aggregator over searcher
func NewAggregator(searcher sources.GraphQLSearcher, cfg Config, metrics *observability.Metrics) *Aggregator {
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = DefaultBatchSize
	}

	a := &Aggregator{
		searcher:  searcher,
		batchSize: batchSize,
		metrics:   metrics,
		now:       time.Now,
	}
	if cfg.CacheSize > 0 {
		a.cache = expirable.NewLRU[string, int](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return a
}

// CompareTerms collects the counts selected by metric for every term and window.
// Terms are resolved one after another; a failing term records its error in its slot
// and the remaining terms still run. A missing credential fails before any request.
func (a *Aggregator) CompareTerms(ctx context.Context, terms []string, windows []models.TimeWindow, metric models.Metric, credential string) (map[string]models.TermTrend, error) {
	if credential == "" {
		return nil, models.NewCredentialRequired("trend comparison")
	}

	results := make(map[string]models.TermTrend, len(terms))
	for _, term := range terms {
		if _, done := results[term]; done {
			continue
		}

		points, err := a.termTrend(ctx, term, windows, metric, credential)
		if err != nil {
			logrus.WithField("term", term).Errorf("Trend comparison failed: %v", err)
			a.metrics.IncTrendTermFailure()
			results[term] = models.TermTrend{Term: term, Error: err.Error(), Err: err}
			continue
		}

		logrus.WithField("term", term).Debugf("Collected %d trend points", len(points))
		results[term] = models.TermTrend{Term: term, Points: points}
	}

	return results, nil
}

func (a *Aggregator) termTrend(ctx context.Context, term string, windows []models.TimeWindow, metric models.Metric, credential string) ([]models.TrendPoint, error) {
	kinds := metric.Kinds()
	counts := make(map[string]int, len(windows)*len(kinds))
	var pending []sources.CountQuery

	for i, w := range windows {
		for _, kind := range kinds {
			q := sources.CountQuery{
				Alias: alias(i, kind),
				Kind:  kind,
				Query: sources.Predicate(term, kind, w.CreatedRange()),
			}
			if count, ok := a.cached(q); ok {
				counts[q.Alias] = count
				continue
			}
			pending = append(pending, q)
		}
	}

	for start := 0; start < len(pending); start += a.batchSize {
		batch := pending[start:min(start+a.batchSize, len(pending))]
		result, err := a.searcher.BatchCounts(ctx, credential, batch)
		if err != nil {
			return nil, fmt.Errorf("counting windows for %q: %w", term, err)
		}
		for _, q := range batch {
			counts[q.Alias] = result[q.Alias]
		}
	}

	today := a.now().UTC().Format(models.DateLayout)
	points := make([]models.TrendPoint, 0, len(windows))
	for i, w := range windows {
		point := models.TrendPoint{
			Window:          w,
			PeriodLabel:     w.Label,
			RepositoryCount: counts[alias(i, models.KindRepositories)],
		}
		for _, kind := range kinds {
			value := counts[alias(i, kind)]
			switch kind {
			case models.KindPullRequests:
				point.PullRequestCount = &value
			case models.KindIssues:
				point.IssueCount = &value
			}
		}
		points = append(points, point)

		// only completed periods are stable enough to cache
		if w.End.Format(models.DateLayout) < today {
			for _, kind := range kinds {
				a.store(kind, sources.Predicate(term, kind, w.CreatedRange()), counts[alias(i, kind)])
			}
		}
	}

	return points, nil
}

func (a *Aggregator) cached(q sources.CountQuery) (int, bool) {
	if a.cache == nil {
		return 0, false
	}
	count, ok := a.cache.Get(cacheKey(q.Kind, q.Query))
	a.metrics.ObserveCacheLookup(ok)
	return count, ok
}

func (a *Aggregator) store(kind models.SearchKind, query string, count int) {
	if a.cache == nil {
		return
	}
	a.cache.Add(cacheKey(kind, query), count)
}

func alias(window int, kind models.SearchKind) string {
	return fmt.Sprintf("w%d_%s", window, kind)
}

func cacheKey(kind models.SearchKind, query string) string {
	return string(kind) + "|" + query
}
