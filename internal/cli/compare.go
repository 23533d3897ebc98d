package cli

import (
	"fmt"
	"strconv"

	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/spf13/cobra"
)

const maxTerms = 10

func newCompareCommand(opts *options) *cobra.Command {
	var createdAfter string

	cmd := &cobra.Command{
		Use:     "compare TERM...",
		Short:   "Rank terms by star and fork H-Index",
		Example: `  trendctl compare kubernetes nomad "docker swarm"`,
		Args:    cobra.RangeArgs(1, maxTerms),
		RunE: func(cmd *cobra.Command, args []string) error {
			after, err := parseDate(createdAfter)
			if err != nil {
				return err
			}

			report, err := opts.analyzer.Compare(cmd.Context(), args, after, opts.token)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return opts.writeJSON(cmd.OutOrStdout(), report)
			}
			return renderReport(cmd, report)
		},
	}

	cmd.Flags().StringVar(&createdAfter, "created-after", "", "Only repositories created after this date (YYYY-MM-DD)")

	return cmd
}

func renderReport(cmd *cobra.Command, report *models.ComparisonReport) error {
	table := NewTable(cmd.OutOrStdout(), []string{"Rank", "Term", "Star H", "Fork H", "Repos", "PRs", "Discussions", "Unique"})

	var failed []models.ComparisonEntry
	for _, entry := range report.Entries {
		if entry.Result == nil {
			failed = append(failed, entry)
			continue
		}
		r := entry.Result
		table.AddRow(
			strconv.Itoa(entry.Rank),
			entry.Term,
			strconv.Itoa(r.StarHIndex.Value),
			strconv.Itoa(r.ForkHIndex.Value),
			formatCount(r.TotalRepos),
			formatCount(r.TotalPRs),
			formatCount(r.TotalDiscussions),
			strconv.Itoa(r.UniqueRepos),
		)
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, entry := range failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", entry.Term, entry.Error)
	}
	return nil
}
