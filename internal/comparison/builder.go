// Package comparison builds the per-term star and fork H-Index comparison and the
// ranked multi-term report.
package comparison

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/domage/github-trend-analyzer/internal/hindex"
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/observability"
	"github.com/domage/github-trend-analyzer/internal/ranking"
	"github.com/domage/github-trend-analyzer/internal/sources"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TopN is the length of the top-starred and top-forked lists
const TopN = 10

// Selector picks the fetch strategy for a credential
type Selector interface {
	Select(credential string) ranking.Strategy
}

// Builder assembles ComparativeResults
type Builder struct {
	selector Selector
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewBuilder creates a Builder
func NewBuilder(selector Selector, metrics *observability.Metrics) *Builder {
	return &Builder{selector: selector, metrics: metrics, now: time.Now}
}

// BuildComparison runs the star-sorted and fork-sorted ranked fetches and the aggregate
// counts for term concurrently. A failed ranked fetch fails the whole comparison; a failed
// count is reported as unavailable. Discussions are only counted with a credential.
func (b *Builder) BuildComparison(ctx context.Context, term string, createdAfter time.Time, credential string) (*models.ComparativeResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("term is required")
	}

	strategy := b.selector.Select(credential)
	created := sources.CreatedAfter(createdAfter)

	var stars, forks *models.HIndexResult
	var repos, prs, discussions *int

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result, err := strategy.FetchRanked(gctx, ranking.Query{Term: term, CreatedAfter: createdAfter, Field: models.FieldStars})
		if err != nil {
			return fmt.Errorf("star ranking: %w", err)
		}
		stars = result
		return nil
	})

	g.Go(func() error {
		result, err := strategy.FetchRanked(gctx, ranking.Query{Term: term, CreatedAfter: createdAfter, Field: models.FieldForks})
		if err != nil {
			return fmt.Errorf("fork ranking: %w", err)
		}
		forks = result
		return nil
	})

	g.Go(func() error {
		repos = b.count(gctx, strategy, term, models.KindRepositories, created)
		return nil
	})

	g.Go(func() error {
		prs = b.count(gctx, strategy, term, models.KindPullRequests, created)
		return nil
	})

	if credential != "" {
		g.Go(func() error {
			discussions = b.count(gctx, strategy, term, models.KindDiscussions, created)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("comparison for %q: %w", term, err)
	}

	merged := hindex.Merge(stars.ContributingItems, forks.ContributingItems)

	result := &models.ComparativeResult{
		Term:             term,
		StarHIndex:       stars,
		ForkHIndex:       forks,
		TotalRepos:       repos,
		TotalPRs:         prs,
		TotalDiscussions: discussions,
		TopStarred:       hindex.Top(merged, models.FieldStars, TopN),
		TopForked:        hindex.Top(merged, models.FieldForks, TopN),
		UniqueRepos:      len(merged),
	}
	if !createdAfter.IsZero() {
		result.CreatedAfter = createdAfter.Format(models.DateLayout)
	}

	logrus.WithFields(logrus.Fields{
		"term":      term,
		"transport": strategy.Name(),
	}).Infof("Comparison built: star h-index %d, fork h-index %d, %d unique repositories", stars.Value, forks.Value, len(merged))

	return result, nil
}

// count degrades any failure to nil
func (b *Builder) count(ctx context.Context, strategy ranking.Strategy, term string, kind models.SearchKind, created string) *int {
	value, err := strategy.Count(ctx, kind, sources.Predicate(term, kind, created))
	if err != nil {
		logrus.WithFields(logrus.Fields{"term": term, "kind": kind}).Warnf("Count unavailable: %v", err)
		b.metrics.IncCountDegradation(string(kind))
		return nil
	}
	return &value
}

// BuildReport compares terms one after another and ranks the successful ones by star
// H-Index, then fork H-Index. Failed terms keep their error and are listed last.
func (b *Builder) BuildReport(ctx context.Context, terms []string, createdAfter time.Time, credential string) (*models.ComparisonReport, error) {
	if len(terms) == 0 {
		return nil, errors.New("at least one term is required")
	}

	report := &models.ComparisonReport{
		GeneratedAt: b.now().UTC(),
		Transport:   b.selector.Select(credential).Name(),
	}
	if !createdAfter.IsZero() {
		report.CreatedAfter = createdAfter.Format(models.DateLayout)
	}

	var ranked, failed []models.ComparisonEntry
	for _, term := range terms {
		result, err := b.BuildComparison(ctx, term, createdAfter, credential)
		if err != nil {
			logrus.WithField("term", term).Errorf("Comparison failed: %v", err)
			failed = append(failed, models.ComparisonEntry{Term: term, Error: err.Error()})
			continue
		}
		ranked = append(ranked, models.ComparisonEntry{Term: result.Term, Result: result})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, c := ranked[i].Result, ranked[j].Result
		if a.StarHIndex.Value != c.StarHIndex.Value {
			return a.StarHIndex.Value > c.StarHIndex.Value
		}
		if a.ForkHIndex.Value != c.ForkHIndex.Value {
			return a.ForkHIndex.Value > c.ForkHIndex.Value
		}
		return ranked[i].Term < ranked[j].Term
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	report.Entries = append(ranked, failed...)
	return report, nil
}
