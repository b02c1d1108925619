package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/moment-meter/internal/engine"
)

func init() {
	rootCmd.AddCommand(newJourneyCmd(), newPersonalizationCmd())
}

func newJourneyCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "journey <user>",
		Short: "Show a user's interactions in time order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *engine.Engine) error {
				journey := e.UserJourney(args[0], session)
				if len(journey) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No interactions for user '%s'.\n", args[0])
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tSESSION\tMOMENT\tTYPE\tSTEP")
				for _, i := range journey {
					step := i.Metadata.Step
					if step == "" {
						step = "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						i.Timestamp.UTC().Format(time.DateTime), i.SessionID, i.MomentID, i.Type, step)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "only show this session")
	return cmd
}

func newPersonalizationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personalization <user>",
		Short: "Compare personalized and generic conversion for a user",
		Long: `Compare how often a user converts after personalized versus generic
interactions. A conversion counts for both groups when the user saw the
moment both ways.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *engine.Engine) error {
				r := e.PersonalizationEffectiveness(args[0])
				out := cmd.OutOrStdout()

				fmt.Fprintf(out, "USER: %s\n\n", r.UserID)
				fmt.Fprintf(out, "Personalized: %d interactions, %d conversions (%s)\n",
					r.PersonalizedCount, r.PersonalizedConversion, formatPercent(r.PersonalizedRate))
				fmt.Fprintf(out, "Generic:      %d interactions, %d conversions (%s)\n",
					r.GenericCount, r.GenericConversion, formatPercent(r.GenericRate))
				if r.GenericRate == 0 {
					fmt.Fprintln(out, "Lift:         n/a (no generic conversions)")
				} else {
					fmt.Fprintf(out, "Lift:         %+.1f%%\n", r.Lift)
				}
				return nil
			})
		},
	}
}
