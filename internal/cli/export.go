package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/moment-meter/internal/events"
	"github.com/gkobilansky/moment-meter/internal/ingest"
	"github.com/gkobilansky/moment-meter/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export [moment]",
	Short: "Export raw event data",
	Long: `Export raw interactions and outcomes in CSV or JSON format.
Without a moment, every record is exported.

JSON output is an envelope array that 'mm ingest' reads back.

Examples:
  mm export hero --format csv > hero.csv
  mm export --format json > backup.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	var moment string
	if len(args) == 1 {
		moment = args[0]
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		interactions, err := s.ListInteractions(ctx)
		if err != nil {
			return fmt.Errorf("failed to get interactions: %w", err)
		}
		outcomes, err := s.ListOutcomes(ctx)
		if err != nil {
			return fmt.Errorf("failed to get outcomes: %w", err)
		}

		envs := toEnvelopes(interactions, outcomes, moment)
		if moment != "" && len(envs) == 0 {
			return fmt.Errorf("moment '%s' not found", moment)
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), envs)
		}
		return exportJSON(cmd.OutOrStdout(), envs)
	})
}

func toEnvelopes(interactions []events.Interaction, outcomes []events.Outcome, moment string) []ingest.Envelope {
	var envs []ingest.Envelope
	for i := range interactions {
		if moment == "" || interactions[i].MomentID == moment {
			envs = append(envs, ingest.Envelope{Kind: ingest.KindInteraction, Interaction: &interactions[i]})
		}
	}
	for i := range outcomes {
		if moment == "" || outcomes[i].MomentID == moment {
			envs = append(envs, ingest.Envelope{Kind: ingest.KindOutcome, Outcome: &outcomes[i]})
		}
	}
	return envs
}

func exportCSV(out io.Writer, envs []ingest.Envelope) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	// Write header
	if err := w.Write([]string{"timestamp", "kind", "moment_id", "user_id", "session_id", "type", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, env := range envs {
		var row []string
		switch env.Kind {
		case ingest.KindInteraction:
			i := env.Interaction
			value := ""
			if i.Value != nil {
				value = strconv.FormatFloat(*i.Value, 'f', -1, 64)
			}
			row = []string{i.Timestamp.Format(time.RFC3339), string(env.Kind), i.MomentID, i.UserID, i.SessionID, string(i.Type), value}
		case ingest.KindOutcome:
			o := env.Outcome
			row = []string{o.Timestamp.Format(time.RFC3339), string(env.Kind), o.MomentID, o.UserID, "", string(o.Type), strconv.FormatFloat(o.Value, 'f', -1, 64)}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

func exportJSON(out io.Writer, envs []ingest.Envelope) error {
	if envs == nil {
		envs = []ingest.Envelope{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(envs)
}
