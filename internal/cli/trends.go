package cli

import (
	"fmt"
	"strconv"

	"github.com/domage/github-trend-analyzer/internal/analysis"
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/windows"
	"github.com/spf13/cobra"
)

func newTrendsCommand(opts *options) *cobra.Command {
	var (
		from        int
		to          int
		granularity string
		metric      string
	)

	cmd := &cobra.Command{
		Use:   "trends TERM...",
		Short: "Count matches per completed calendar window",
		Example: `  trendctl trends kubernetes nomad --from 2020
  trendctl trends rust --from 2022 --to 2024 -g month --metric all`,
		Args: cobra.RangeArgs(1, maxTerms),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := windows.ParseGranularity(granularity)
			if err != nil {
				return err
			}
			m, err := models.ParseMetric(metric)
			if err != nil {
				return err
			}
			if to == 0 {
				to = opts.now().Year()
			}

			results, err := opts.analyzer.Trends(cmd.Context(), analysis.TrendQuery{
				Terms:       args,
				StartYear:   from,
				EndYear:     to,
				Granularity: g,
				Metric:      m,
			}, opts.token)
			if err != nil {
				return err
			}
			if err := allTrendsFailed(results); err != nil {
				return err
			}

			if opts.jsonOutput {
				return opts.writeJSON(cmd.OutOrStdout(), results)
			}
			return renderTrends(cmd, results, m)
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "First year of the range")
	cmd.Flags().IntVar(&to, "to", 0, "Last year of the range (defaults to the current year)")
	cmd.Flags().StringVarP(&granularity, "granularity", "g", string(models.GranularityQuarter), "Window size: year, quarter or month")
	cmd.Flags().StringVar(&metric, "metric", string(models.MetricRepositories), "Counts: repositories, pull_requests, issues or all")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func renderTrends(cmd *cobra.Command, results []models.TermTrend, metric models.Metric) error {
	kinds := metric.Kinds()
	header := []string{"Term", "Period"}
	for _, kind := range kinds {
		header = append(header, kindColumn(kind))
	}

	table := NewTable(cmd.OutOrStdout(), header)
	for _, result := range results {
		if result.Error != "" {
			continue
		}
		for _, point := range result.Points {
			row := []string{result.Term, point.PeriodLabel}
			for _, kind := range kinds {
				switch kind {
				case models.KindRepositories:
					row = append(row, strconv.Itoa(point.RepositoryCount))
				case models.KindPullRequests:
					row = append(row, formatCount(point.PullRequestCount))
				case models.KindIssues:
					row = append(row, formatCount(point.IssueCount))
				}
			}
			table.AddRow(row...)
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, result := range results {
		if result.Error != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", result.Term, result.Error)
		}
	}
	return nil
}

// allTrendsFailed returns an error when no term produced points.
// A single failed term surfaces its own error.
func allTrendsFailed(results []models.TermTrend) error {
	if len(results) == 0 {
		return nil
	}
	for _, result := range results {
		if result.Error == "" {
			return nil
		}
	}

	if len(results) == 1 {
		result := results[0]
		if result.Err != nil {
			return fmt.Errorf("%s: %w", result.Term, result.Err)
		}
		return fmt.Errorf("%s: %s", result.Term, result.Error)
	}
	return fmt.Errorf("all %d terms failed", len(results))
}

func kindColumn(kind models.SearchKind) string {
	switch kind {
	case models.KindPullRequests:
		return "PRs"
	case models.KindIssues:
		return "Issues"
	}
	return "Repositories"
}
