package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Switchboard message store",
		Long:  "Connects to the configured store and migrates the messages table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s (%d agents)\n", configPath, len(cfg.Agents))

	gormDB, err := db.Connect(cfg.Store)
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	if cfg.Store.Driver == "sqlite" {
		fmt.Fprintf(out, "Connected to sqlite store at %s\n", cfg.Store.Path)
	} else {
		fmt.Fprintf(out, "Connected to %s at %s:%d/%s\n", cfg.Store.Driver, cfg.Store.Host, cfg.Store.Port, cfg.Store.Database)
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nSwitchboard store initialized successfully.")
	return nil
}
