package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/detect"
	"github.com/davisfield/switchboard/internal/impact"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a coordination status snapshot",
		Long:  "Runs a one-off scan of the trailing message window: store health, coordination health score, open blockers and breakdown risk.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string) error {
	cfg, st, dir, err := openStore(configPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	health := st.HealthCheck()
	fmt.Fprintf(out, "Store:      %s (%s)\n", health.Status, health.Detail)
	if health.Status != "ok" {
		return nil
	}

	cls := classify.New()
	window := time.Duration(cfg.Detector.WindowMinutes) * time.Minute

	det, err := detect.New(cfg.Detector, dir, cls, nil)
	if err != nil {
		return err
	}
	pred, err := detect.NewPredictor(st, dir.Coordinator(), cfg.Predictor, window, nil)
	if err != nil {
		return err
	}
	quant, err := impact.New(cfg.Impact, cls)
	if err != nil {
		return err
	}

	msgs, err := st.Window(window)
	if err != nil {
		return err
	}

	score := det.Health(msgs)
	fmt.Fprintf(out, "Window:     %s (%d messages)\n", window, len(msgs))
	fmt.Fprintf(out, "Health:     %.1f (comm %.1f, exec %.1f, stability %.1f, emergency %.1f)\n",
		score.Composite, score.Communication, score.Execution, score.Stability, score.EmergencyReadiness)

	risk := pred.Assess(msgs)
	fmt.Fprintf(out, "Risk:       %.2f breakdown probability\n", risk.Probability)

	report := quant.Report(msgs, window)
	fmt.Fprintf(out, "Impact:     %.0f in window (daily rate %.0f)\n", report.Total, report.DailyRate)

	matches := det.Scan(msgs)
	if len(matches) == 0 {
		fmt.Fprintln(out, "Blockers:   none")
		return nil
	}
	fmt.Fprintf(out, "Blockers:   %d\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(out, "  [%s] %s (%d evidence)\n", m.Severity, m.Pattern, len(m.Evidence))
	}
	return nil
}
