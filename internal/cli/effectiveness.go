package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/moment-meter/internal/engine"
)

var effectivenessCmd = &cobra.Command{
	Use:     "effectiveness <moment>",
	Aliases: []string{"results"},
	Short:   "Show effectiveness statistics for a moment",
	Long:    `Show counts, rates, revenue and retention for a single moment.`,
	Args:    cobra.ExactArgs(1),
	RunE:    runEffectiveness,
}

func init() {
	rootCmd.AddCommand(effectivenessCmd)
}

func runEffectiveness(cmd *cobra.Command, args []string) error {
	return withEngine(func(e *engine.Engine) error {
		stats := e.Effectiveness(args[0])
		out := cmd.OutOrStdout()

		if stats.TotalInteractions == 0 && stats.TotalConversions == 0 && stats.TotalBounces == 0 {
			fmt.Fprintf(out, "No data for moment '%s' yet.\n", args[0])
			return nil
		}

		fmt.Fprintf(out, "MOMENT: %s\n", stats.MomentID)
		fmt.Fprintf(out, "USERS: %s\n", formatNumber(stats.UniqueUsers))
		fmt.Fprintln(out)

		fmt.Fprintln(out, "VIEWS    CLICKS   DISMISSALS  CONVERSIONS  BOUNCES")
		fmt.Fprintln(out, strings.Repeat("─", 52))
		fmt.Fprintf(out, "%-7d  %-7d  %-10d  %-11d  %d\n",
			stats.TotalViews, stats.TotalClicks, stats.TotalDismissals, stats.TotalConversions, stats.TotalBounces)
		fmt.Fprintln(out)

		fmt.Fprintf(out, "Click-through rate:  %s\n", formatPercent(stats.ClickThroughRate))
		fmt.Fprintf(out, "Conversion rate:     %s\n", formatPercent(stats.ConversionRate))
		fmt.Fprintf(out, "Bounce rate:         %s\n", formatPercent(stats.BounceRate))
		fmt.Fprintf(out, "Avg engagement:      %.2f\n", stats.AverageEngagementTime)
		fmt.Fprintf(out, "Revenue:             %.2f\n", stats.RevenueAttribution)
		fmt.Fprintln(out)

		r := stats.UserRetention
		fmt.Fprintf(out, "Retention (%d users): day 1 %s, day 7 %s, day 30 %s\n",
			r.Users, formatPercent(r.Day1), formatPercent(r.Day7), formatPercent(r.Day30))
		return nil
	})
}
