package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/moment-meter/internal/store"
)

var momentsCmd = &cobra.Command{
	Use:   "moments",
	Short: "List all moments",
	Long:  `List every moment in the database with its interaction and outcome counts.`,
	RunE:  runMoments,
}

func init() {
	rootCmd.AddCommand(momentsCmd)
}

func runMoments(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		counts, err := s.MomentCounts(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list moments: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(counts) == 0 {
			fmt.Fprintln(out, "No moments yet.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Send interactions to the server or load a file:")
			fmt.Fprintln(out, "  mm ingest events.json")
			return nil
		}

		// Print table
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MOMENT\tINTERACTIONS\tOUTCOMES")
		for _, c := range counts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.MomentID, formatNumber(c.Interactions), formatNumber(c.Outcomes))
		}
		return w.Flush()
	})
}
