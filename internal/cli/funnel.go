package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/moment-meter/internal/engine"
)

func init() {
	rootCmd.AddCommand(newFunnelCmd())
}

func newFunnelCmd() *cobra.Command {
	var (
		steps string
		start string
		end   string
	)

	cmd := &cobra.Command{
		Use:   "funnel <id>",
		Short: "Analyze a conversion funnel",
		Long: `Analyze a funnel step by step. Interactions belong to a step through
their "step" metadata. Each step only counts users who reached the step
before it.

Without --steps, the stored definition for the funnel id is used.

Examples:
  mm funnel checkout --steps "cart,shipping,payment"
  mm funnel checkout --start 2024-01-01 --end 2024-01-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			funnelID := args[0]

			from, err := parseDate(start)
			if err != nil {
				return err
			}
			to, err := parseEndDate(end)
			if err != nil {
				return err
			}

			return withEngine(func(e *engine.Engine) error {
				stepList := splitList(steps)
				if len(stepList) == 0 {
					def, ok := e.FunnelDefinition(funnelID)
					if !ok {
						return fmt.Errorf("funnel '%s' not defined. Pass --steps to define it", funnelID)
					}
					stepList = def.Steps
				}

				result := e.AnalyzeFunnel(funnelID, stepList, from, to)

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "STEP\tELIGIBLE\tCONVERTED\tDROPOFF\tRATE\tAVG TIME\tTOP DROPOFF REASON")
				for _, s := range result {
					reason := "-"
					if len(s.DropoffReasons) > 0 && s.DropoffUsers > 0 {
						r := s.DropoffReasons[0]
						reason = fmt.Sprintf("%s (%d)", r.Reason, r.Users)
					}
					fmt.Fprintf(w, "%d. %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						s.Index+1,
						s.Name,
						formatNumber(s.EligibleUsers),
						formatNumber(s.ConvertedUsers),
						formatNumber(s.DropoffUsers),
						formatPercent(s.ConversionRate),
						s.AverageTimeInStep,
						reason,
					)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&steps, "steps", "", "comma-separated step names")
	cmd.Flags().StringVar(&start, "start", "", "only count interactions from this date")
	cmd.Flags().StringVar(&end, "end", "", "only count interactions up to this date")

	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
