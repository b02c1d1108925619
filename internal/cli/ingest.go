package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/moment-meter/internal/ingest"
	"github.com/gkobilansky/moment-meter/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.json>",
	Short: "Load events from a JSON file",
	Long: `Load interactions and outcomes into the database from a JSON array of
envelopes, the same format the Kafka consumer reads and 'mm export' writes:

  [{"kind":"interaction","interaction":{...}}, {"kind":"outcome","outcome":{...}}]

Use "-" to read from stdin. The whole file is rejected if any record is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	envs, err := ingest.DecodeBatch(data)
	if err != nil {
		return err
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		var interactions, outcomes int
		for _, env := range envs {
			switch env.Kind {
			case ingest.KindInteraction:
				if _, err := s.SaveInteraction(ctx, *env.Interaction); err != nil {
					return err
				}
				interactions++
			case ingest.KindOutcome:
				if _, err := s.SaveOutcome(ctx, *env.Outcome); err != nil {
					return err
				}
				outcomes++
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d interactions and %d outcomes\n", interactions, outcomes)
		return nil
	})
}
