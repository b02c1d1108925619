package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/moment-meter/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "abtest",
		Short: "Set up and analyze A/B tests between two moments",
	}
	cmd.AddCommand(newABTestCreateCmd(), newABTestAnalyzeCmd(), newABTestListCmd())
	rootCmd.AddCommand(cmd)
}

func newABTestCreateCmd() *cobra.Command {
	var (
		momentA string
		momentB string
		split   float64
	)

	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create an A/B test",
		Long: `Create a two-variant test comparing moment A against moment B.
A random id is generated when none is given. Without --a and --b you
pick the moments interactively.

The traffic split is recorded with the test; routing users is up to you.

Examples:
  mm abtest create hero-copy --a hero-v1 --b hero-v2
  mm abtest create --a hero-v1 --b hero-v2 --split 0.2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			testID := uuid.NewString()
			if len(args) == 1 {
				testID = args[0]
			}

			return withEngine(func(e *engine.Engine) error {
				if momentA == "" || momentB == "" {
					var err error
					momentA, momentB, err = promptMoments(e.Moments(), momentA, momentB)
					if err != nil {
						return err
					}
					if !cmd.Flags().Changed("split") {
						if split, err = promptSplit(); err != nil {
							return err
						}
					}
				}
				if momentA == momentB {
					return fmt.Errorf("moment A and moment B must differ")
				}
				if split < 0 || split > 1 {
					return fmt.Errorf("split must be between 0 and 1")
				}

				t := e.SetupTest(testID, momentA, momentB, split)

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created test '%s':\n", t.ID)
				fmt.Fprintf(out, "  A: %s\n", t.VariantA.MomentID)
				fmt.Fprintf(out, "  B: %s\n", t.VariantB.MomentID)
				fmt.Fprintf(out, "  Split: %.0f%% / %.0f%%\n", t.TrafficSplit*100, (1-t.TrafficSplit)*100)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&momentA, "a", "", "moment id for variant A")
	cmd.Flags().StringVar(&momentB, "b", "", "moment id for variant B")
	cmd.Flags().Float64Var(&split, "split", 0.5, "share of traffic for variant A (0-1)")

	return cmd
}

func promptMoments(moments []string, a, b string) (string, string, error) {
	if len(moments) < 2 {
		return "", "", fmt.Errorf("need at least 2 moments with data to pick from. Pass --a and --b")
	}

	pick := func(label string) (string, error) {
		prompt := promptui.Select{
			Label: label,
			Items: moments,
			Size:  10,
		}
		_, choice, err := prompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) {
			return "", fmt.Errorf("cancelled")
		}
		return choice, err
	}

	var err error
	if a == "" {
		if a, err = pick("Moment for variant A"); err != nil {
			return "", "", err
		}
	}
	if b == "" {
		if b, err = pick("Moment for variant B"); err != nil {
			return "", "", err
		}
	}
	return a, b, nil
}

func promptSplit() (float64, error) {
	prompt := promptui.Prompt{
		Label:   "Traffic share for A (0-1)",
		Default: "0.5",
		Validate: func(input string) error {
			v, err := strconv.ParseFloat(input, 64)
			if err != nil || v < 0 || v > 1 {
				return fmt.Errorf("enter a number between 0 and 1")
			}
			return nil
		},
	}

	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return 0, fmt.Errorf("cancelled")
		}
		return 0, err
	}
	return strconv.ParseFloat(result, 64)
}

func newABTestAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <id>",
		Short: "Analyze an A/B test and report the winner",
		Long: `Recompute both variants from current data and decide a winner.
A winner is only declared at 95% significance or above.

Example:
  mm abtest analyze hero-copy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *engine.Engine) error {
				t, err := e.AnalyzeTest(args[0])
				if errors.Is(err, engine.ErrTestNotFound) {
					return fmt.Errorf("test '%s' not found", args[0])
				}
				if err != nil {
					return fmt.Errorf("failed to analyze test: %w", err)
				}

				printTestResult(cmd, t)
				return nil
			})
		},
	}
}

func printTestResult(cmd *cobra.Command, t engine.ABTest) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "TEST: %s\n", t.ID)
	fmt.Fprintf(out, "STATE: %s (v%d)\n", t.State, t.Version)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "VARIANT  MOMENT            SAMPLE   CLICKS   CONVERSIONS  RATE      95% CI")
	fmt.Fprintln(out, strings.Repeat("─", 80))

	for _, row := range []struct {
		label string
		v     engine.Variant
	}{{"A", t.VariantA}, {"B", t.VariantB}} {
		indicator := ""
		if string(t.Winner) == row.label {
			indicator = " ← WINNER"
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", row.v.ConversionCI.Lower, row.v.ConversionCI.Upper)
		if row.v.Stats.TotalClicks == 0 {
			ciStr = "N/A"
		}

		// Truncate name if too long
		name := row.v.MomentID
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		fmt.Fprintf(out, "%-7s  %-16s  %-7d  %-7d  %-11d  %-8s  %s%s\n",
			row.label,
			name,
			row.v.SampleSize,
			row.v.Stats.TotalClicks,
			row.v.Stats.TotalConversions,
			formatPercent(row.v.Stats.ConversionRate),
			ciStr,
			indicator,
		)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "z = %.3f, p = %.4f\n", t.ZScore, t.PValue)

	// Print significance message
	sig := t.Significance * 100
	switch {
	case t.Winner != engine.WinnerInconclusive:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident variant %s is the winner\n", sig, t.Winner)
	case sig >= 90:
		fmt.Fprintf(out, "Statistical significance: %.1f%% (not yet significant)\n", sig)
	default:
		fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
	}
}

func newABTestListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all A/B tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *engine.Engine) error {
				tests := e.Tests()
				if len(tests) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tests yet. Create one with: mm abtest create --a <moment> --b <moment>")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tA\tB\tSTATE\tSIGNIFICANCE\tWINNER\tCREATED")
				for _, t := range tests {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f%%\t%s\t%s\n",
						t.ID,
						t.VariantA.MomentID,
						t.VariantB.MomentID,
						strings.ToUpper(string(t.State)),
						t.Significance*100,
						t.Winner,
						t.CreatedAt.Format("2006-01-02"),
					)
				}
				return w.Flush()
			})
		},
	}
}
