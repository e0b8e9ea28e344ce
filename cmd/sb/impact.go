package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/impact"
)

func newImpactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "impact",
		Short: "Business impact commands",
	}

	cmd.AddCommand(newImpactReportCmd())
	return cmd
}

func newImpactReportCmd() *cobra.Command {
	var (
		configPath string
		window     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a business impact report",
		Long:  "Scores the trailing message window and aggregates per-category and per-agent impact with revenue projections.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, _, err := openStore(configPath)
			if err != nil {
				return err
			}

			quant, err := impact.New(cfg.Impact, classify.New())
			if err != nil {
				return err
			}

			msgs, err := st.Window(window)
			if err != nil {
				return err
			}

			r := quant.Report(msgs, window)
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Impact report (%.1fh window, %d messages)\n\n", r.WindowHours, r.MessageCount)
			fmt.Fprintf(out, "Total:              %.0f\n", r.Total)
			fmt.Fprintf(out, "Daily rate:         %.0f\n", r.DailyRate)
			fmt.Fprintf(out, "Monthly projection: %.0f\n", r.MonthlyProjection)
			fmt.Fprintf(out, "Annual projection:  %.0f\n", r.AnnualProjection)
			fmt.Fprintf(out, "Target attainment:  %.1f%%\n", r.TargetAttainment*100)
			fmt.Fprintf(out, "ROI:                %.2f\n", r.ROI)

			if len(r.ByCategory) > 0 {
				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CATEGORY\tIMPACT")
				for _, cat := range sortedKeys(r.ByCategory) {
					fmt.Fprintf(w, "%s\t%.0f\n", cat, r.ByCategory[cat])
				}
				w.Flush()
			}

			if len(r.ByAgent) > 0 {
				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "AGENT\tIMPACT")
				for _, agent := range sortedKeys(r.ByAgent) {
					fmt.Fprintf(w, "%s\t%.0f\n", agent, r.ByAgent[agent])
				}
				w.Flush()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "trailing window to score")
	return cmd
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
