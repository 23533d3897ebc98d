package cli

import (
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/windows"
	"github.com/spf13/cobra"
)

func newWindowsCommand(opts *options) *cobra.Command {
	var (
		from        int
		to          int
		granularity string
	)

	cmd := &cobra.Command{
		Use:     "windows",
		Short:   "List the completed calendar windows of a range of years",
		Example: `  trendctl windows --from 2023 -g month`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := windows.ParseGranularity(granularity)
			if err != nil {
				return err
			}
			if to == 0 {
				to = opts.now().Year()
			}

			ws, err := opts.analyzer.Windows(from, to, g)
			if err != nil {
				return err
			}
			if ws == nil {
				ws = []models.TimeWindow{}
			}

			if opts.jsonOutput {
				return opts.writeJSON(cmd.OutOrStdout(), ws)
			}

			table := NewTable(cmd.OutOrStdout(), []string{"Label", "Start", "End"})
			for _, w := range ws {
				table.AddRow(w.Label, w.Start.Format(models.DateLayout), w.End.Format(models.DateLayout))
			}
			return table.Render()
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "First year of the range")
	cmd.Flags().IntVar(&to, "to", 0, "Last year of the range (defaults to the current year)")
	cmd.Flags().StringVarP(&granularity, "granularity", "g", string(models.GranularityQuarter), "Window size: year, quarter or month")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}
