// Package cli implements the trendctl command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/domage/github-trend-analyzer/internal/analysis"
	"github.com/domage/github-trend-analyzer/internal/config"
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/notifications"
	"github.com/domage/github-trend-analyzer/internal/sources"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Analyzer is the part of the analysis service the commands use
type Analyzer interface {
	HIndex(ctx context.Context, term string, createdAfter time.Time, field models.ScoreField, credential string) (*models.HIndexResult, error)
	Compare(ctx context.Context, terms []string, createdAfter time.Time, credential string) (*models.ComparisonReport, error)
	Trends(ctx context.Context, q analysis.TrendQuery, credential string) ([]models.TermTrend, error)
	Windows(startYear, endYear int, granularity models.Granularity) ([]models.TimeWindow, error)
}

// Factory builds the analyzer once configuration is loaded
type Factory func(cfg *config.Config) (Analyzer, error)

type options struct {
	token      string
	jsonOutput bool
	verbose    bool

	factory  Factory
	analyzer Analyzer
	now      func() time.Time
}

// NewRootCommand assembles trendctl
func NewRootCommand(factory Factory) *cobra.Command {
	opts := &options{factory: factory, now: time.Now}

	root := &cobra.Command{
		Use:   "trendctl",
		Short: "Measure and compare GitHub search terms",
		Long: `trendctl estimates the H-Index of GitHub repository searches,
compares terms against each other and tracks their activity over time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.token, "token", "", "GitHub token (defaults to GITHUB_TOKEN)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print JSON instead of tables")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newHIndexCommand(opts),
		newCompareCommand(opts),
		newTrendsCommand(opts),
		newWindowsCommand(opts),
	)

	return root
}

// Execute runs trendctl with the default analyzer
func Execute() int {
	if err := NewRootCommand(NewAnalyzer).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewAnalyzer wires the analysis service to the GitHub transports
func NewAnalyzer(cfg *config.Config) (Analyzer, error) {
	limiter := sources.NewRateLimiter(cfg.SearchRateLimit, cfg.SearchBurst)
	rest := sources.NewGitHubREST(sources.ClientConfig{
		BaseURL:   cfg.GitHubAPIURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
		Limiter:   limiter,
	})
	graphql := sources.NewGitHubGraphQL(sources.ClientConfig{
		BaseURL:   cfg.GitHubGraphQLURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
		Limiter:   limiter,
	})

	return analysis.NewService(cfg, rest, graphql, notifications.NewService(cfg), nil), nil
}

func (o *options) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.WarnLevel)
	if o.verbose || cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	o.analyzer, err = o.factory(cfg)
	return err
}

func (o *options) writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// parseDate accepts an empty value as "no lower bound"
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", value)
	}
	return t, nil
}

func formatCount(value *int) string {
	if value == nil {
		return "n/a"
	}
	return strconv.Itoa(*value)
}
