package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/moment-meter/internal/engine"
)

func init() {
	rootCmd.AddCommand(newCohortsCmd())
}

func newCohortsCmd() *cobra.Command {
	var (
		start   string
		end     string
		groupBy string
		periods int
	)

	cmd := &cobra.Command{
		Use:   "cohorts",
		Short: "Show cohort retention",
		Long: `Group users by the week or month they were active in, then show what
share of each cohort came back in each following period.

Example:
  mm cohorts --start 2024-01-01 --end 2024-03-31 --group-by month`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := engine.ParseGroupBy(groupBy)
			if err != nil {
				return err
			}
			from, err := parseDate(start)
			if err != nil {
				return err
			}
			to, err := parseEndDate(end)
			if err != nil {
				return err
			}
			if periods < 1 || periods > engine.RetentionPeriods {
				return fmt.Errorf("periods must be between 1 and %d", engine.RetentionPeriods)
			}

			return withEngine(func(e *engine.Engine) error {
				cohorts, err := e.CohortAnalysis(from, to, g)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(cohorts) == 0 {
					fmt.Fprintln(out, "No activity in that range.")
					return nil
				}

				// Print table header
				header := fmt.Sprintf("%-10s  %6s", "COHORT", "USERS")
				for p := 1; p <= periods; p++ {
					header += fmt.Sprintf("  %5s", fmt.Sprintf("+%d", p))
				}
				fmt.Fprintln(out, header)
				fmt.Fprintln(out, strings.Repeat("─", len([]rune(header))))

				for _, c := range cohorts {
					line := fmt.Sprintf("%-10s  %6d", c.Key, c.Size)
					for _, r := range c.Retention[:periods] {
						line += fmt.Sprintf("  %4.0f%%", r.Retention)
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first date to assign cohorts from")
	cmd.Flags().StringVar(&end, "end", "", "last date to assign cohorts from")
	cmd.Flags().StringVar(&groupBy, "group-by", "week", "cohort length (week or month)")
	cmd.Flags().IntVar(&periods, "periods", 6, "retention periods to show")

	return cmd
}
