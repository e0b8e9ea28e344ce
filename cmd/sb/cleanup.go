package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var (
		configPath string
		days       int
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old messages from the store",
		Long:  "Deletes messages older than the retention window. Escalations and configured severities are always kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, _, err := openStore(configPath)
			if err != nil {
				return err
			}

			if days == 0 {
				days = cfg.Retention.Days
			}

			removed, err := st.Cleanup(days, cfg.Retention.ExcludeSeverities)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d messages older than %d days\n", removed, days)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().IntVar(&days, "days", 0, "retention age in days (default from config)")
	return cmd
}
