package cli

import (
	"fmt"
	"strconv"

	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/spf13/cobra"
)

const topItems = 10

func newHIndexCommand(opts *options) *cobra.Command {
	var (
		field        string
		createdAfter string
	)

	cmd := &cobra.Command{
		Use:   "hindex TERM",
		Short: "Estimate the H-Index of a repository search",
		Example: `  trendctl hindex kubernetes
  trendctl hindex rust --field forks --created-after 2023-01-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scoreField, err := models.ParseScoreField(field)
			if err != nil {
				return err
			}
			after, err := parseDate(createdAfter)
			if err != nil {
				return err
			}

			result, err := opts.analyzer.HIndex(cmd.Context(), args[0], after, scoreField, opts.token)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return opts.writeJSON(cmd.OutOrStdout(), result)
			}
			return renderHIndex(cmd, result)
		},
	}

	cmd.Flags().StringVar(&field, "field", string(models.FieldStars), "Score field: stars or forks")
	cmd.Flags().StringVar(&createdAfter, "created-after", "", "Only repositories created after this date (YYYY-MM-DD)")

	return cmd
}

func renderHIndex(cmd *cobra.Command, result *models.HIndexResult) error {
	w := cmd.OutOrStdout()

	summary := NewTable(w, []string{"Field", "H-Index", "Fetched", "Matched", "Pages", "Stop", "Transport"})
	summary.AddRow(
		string(result.Field),
		strconv.Itoa(result.Value),
		strconv.Itoa(result.TotalFetched),
		strconv.Itoa(result.TotalMatchedUpstream),
		strconv.Itoa(result.PagesFetched),
		result.StopReason,
		result.Transport,
	)
	if err := summary.Render(); err != nil {
		return err
	}

	if len(result.ContributingItems) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	items := result.ContributingItems
	if len(items) > topItems {
		items = items[:topItems]
	}

	top := NewTable(w, []string{"#", "Repository", "Stars", "Forks"})
	for i, repo := range items {
		top.AddRow(strconv.Itoa(i+1), repo.FullName(), strconv.Itoa(repo.StarCount), strconv.Itoa(repo.ForkCount))
	}
	return top.Render()
}
