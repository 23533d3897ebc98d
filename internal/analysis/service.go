// Package analysis wires the fetch strategies, the comparison builder and the trend
// aggregator into the operations exposed by the API, the CLI and the scheduler.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/domage/github-trend-analyzer/internal/comparison"
	"github.com/domage/github-trend-analyzer/internal/config"
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/notifications"
	"github.com/domage/github-trend-analyzer/internal/observability"
	"github.com/domage/github-trend-analyzer/internal/ranking"
	"github.com/domage/github-trend-analyzer/internal/sources"
	"github.com/domage/github-trend-analyzer/internal/trends"
	"github.com/domage/github-trend-analyzer/internal/windows"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service runs comparisons, trend requests and digests
type Service struct {
	config              *config.Config
	selector            *ranking.Selector
	builder             *comparison.Builder
	aggregator          *trends.Aggregator
	notificationService notifications.NotificationInterface
	stats               *Stats
	mu                  sync.RWMutex
	now                 func() time.Time
}

// Stats holds run statistics
type Stats struct {
	HIndexRequests     int       `json:"hindex_requests"`
	Comparisons        int       `json:"comparisons"`
	TrendRequests      int       `json:"trend_requests"`
	FailedTerms        int       `json:"failed_terms"`
	Digests            int       `json:"digests"`
	DigestErrors       int       `json:"digest_errors"`
	LastDigest         time.Time `json:"last_digest"`
	LastDigestID       string    `json:"last_digest_id,omitempty"`
	LastDigestDuration string    `json:"last_digest_duration,omitempty"`
}

// TrendQuery describes one trend comparison request
type TrendQuery struct {
	Terms       []string
	StartYear   int
	EndYear     int
	Granularity models.Granularity
	Metric      models.Metric
}

// NewService creates a new analysis service
func NewService(cfg *config.Config, rest sources.RESTSearcher, graphql sources.GraphQLSearcher, notificationService notifications.NotificationInterface, metrics *observability.Metrics) *Service {
	selector := ranking.NewSelector(rest, graphql, metrics)

	return &Service{
		config:   cfg,
		selector: selector,
		builder:  comparison.NewBuilder(selector, metrics),
		aggregator: trends.NewAggregator(graphql, trends.Config{
			BatchSize: cfg.GraphQLBatchSize,
			CacheSize: cfg.CountCacheSize,
			CacheTTL:  cfg.CountCacheTTL,
		}, metrics),
		notificationService: notificationService,
		stats:               &Stats{},
		now:                 time.Now,
	}
}

// Credential returns override when set, otherwise the configured token
func (s *Service) Credential(override string) string {
	if override != "" {
		return override
	}
	return s.config.GitHubToken
}

// HIndex runs one ranked fetch for term
func (s *Service) HIndex(ctx context.Context, term string, createdAfter time.Time, field models.ScoreField, credential string) (*models.HIndexResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("term is required")
	}

	strategy := s.selector.Select(s.Credential(credential))
	result, err := strategy.FetchRanked(ctx, ranking.Query{Term: term, CreatedAfter: createdAfter, Field: field})

	s.mu.Lock()
	s.stats.HIndexRequests++
	s.mu.Unlock()

	return result, err
}

// Compare builds the ranked comparison report for terms
func (s *Service) Compare(ctx context.Context, terms []string, createdAfter time.Time, credential string) (*models.ComparisonReport, error) {
	report, err := s.builder.BuildReport(ctx, terms, createdAfter, s.Credential(credential))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.stats.Comparisons++
	for _, entry := range report.Entries {
		if entry.Error != "" {
			s.stats.FailedTerms++
		}
	}
	s.mu.Unlock()

	return report, nil
}

// Trends compares q.Terms over the completed windows of the requested range.
// Results follow request order with duplicates removed.
func (s *Service) Trends(ctx context.Context, q TrendQuery, credential string) ([]models.TermTrend, error) {
	credential = s.Credential(credential)
	if credential == "" {
		return nil, models.NewCredentialRequired("trend comparison")
	}

	ws, err := windows.GenerateAt(s.now(), q.StartYear, q.EndYear, q.Granularity)
	if err != nil {
		return nil, err
	}

	results, err := s.aggregator.CompareTerms(ctx, q.Terms, ws, q.Metric, credential)
	if err != nil {
		return nil, err
	}

	ordered := make([]models.TermTrend, 0, len(results))
	seen := make(map[string]bool, len(results))
	failed := 0
	for _, term := range q.Terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		ordered = append(ordered, results[term])
		if results[term].Err != nil {
			failed++
		}
	}

	s.mu.Lock()
	s.stats.TrendRequests++
	s.stats.FailedTerms += failed
	s.mu.Unlock()

	return ordered, nil
}

// Windows returns the completed windows of a range of years
func (s *Service) Windows(startYear, endYear int, granularity models.Granularity) ([]models.TimeWindow, error) {
	return windows.GenerateAt(s.now(), startYear, endYear, granularity)
}

// RunDigest compares the watched terms, adds their trends when a token is configured,
// and sends the digest to the notification channels.
func (s *Service) RunDigest(ctx context.Context) error {
	start := time.Now()
	logrus.Info("Starting digest run")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	digest, err := s.buildDigest(ctx)
	if err == nil {
		err = s.notificationService.SendDigest(digest)
	}

	s.mu.Lock()
	s.stats.Digests++
	if err != nil {
		s.stats.DigestErrors++
	} else {
		s.stats.LastDigest = digest.GeneratedAt
		s.stats.LastDigestID = digest.ID
		s.stats.LastDigestDuration = time.Since(start).String()
	}
	s.mu.Unlock()

	if err != nil {
		logrus.Errorf("Digest run failed: %v", err)
		return err
	}

	logrus.Infof("Digest run completed in %v", time.Since(start))
	return nil
}

func (s *Service) buildDigest(ctx context.Context) (*models.Digest, error) {
	terms := s.config.WatchTerms
	if len(terms) == 0 {
		return nil, fmt.Errorf("no watch terms configured")
	}

	report, err := s.Compare(ctx, terms, s.config.DigestCreatedAfter, "")
	if err != nil {
		return nil, fmt.Errorf("failed to build comparison: %w", err)
	}

	digest := &models.Digest{
		ID:          uuid.New().String(),
		GeneratedAt: s.now().UTC(),
		Report:      report,
		Terms:       terms,
	}

	if s.config.GitHubToken == "" {
		logrus.Info("No GITHUB_TOKEN configured, skipping trends in digest")
		return digest, nil
	}

	results, err := s.Trends(ctx, TrendQuery{
		Terms:       terms,
		StartYear:   s.config.TrendStartYear,
		EndYear:     s.now().Year(),
		Granularity: s.config.TrendGranularity,
		Metric:      s.config.TrendMetric,
	}, "")
	if err != nil {
		return nil, fmt.Errorf("failed to build trends: %w", err)
	}

	digest.Granularity = s.config.TrendGranularity
	digest.Trends = make(map[string]models.TermTrend, len(results))
	for _, result := range results {
		digest.Trends[result.Term] = result
	}

	return digest, nil
}

// GetStats returns current run statistics as JSON
func (s *Service) GetStats() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.stats, "", "  ")
	return string(data)
}
