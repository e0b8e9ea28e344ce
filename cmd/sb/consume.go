package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davisfield/switchboard/internal/consumer"
	"github.com/davisfield/switchboard/internal/models"
	"github.com/davisfield/switchboard/internal/recovery"
)

func newConsumeCmd() *cobra.Command {
	var (
		configPath string
		agent      string
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Run an agent's polling consumer",
		Long: `Runs the cooperative polling loop for one agent: fetches messages
since the cursor, prints each one, acknowledges it and advances. Handler
failures are reported to the error recovery engine. Use --once for a single
poll instead of a loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsume(cmd, configPath, agent, once)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name to consume as (required)")
	cmd.Flags().BoolVar(&once, "once", false, "run one poll cycle and exit")
	cmd.MarkFlagRequired("agent")
	return cmd
}

func runConsume(cmd *cobra.Command, configPath, agent string, once bool) error {
	out := cmd.OutOrStdout()

	cfg, st, dir, err := openStore(configPath)
	if err != nil {
		return err
	}
	if !dir.IsRegistered(agent) {
		return fmt.Errorf("unregistered agent %q", agent)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cons, err := consumer.New(agent, st, consumer.Config{
		PollInterval:      time.Duration(cfg.Consumer.PollIntervalSeconds) * time.Second,
		ReceiveLimit:      cfg.Consumer.ReceiveLimit,
		ProcessedSetBound: cfg.Consumer.ProcessedSetBound,
	}, logger)
	if err != nil {
		return err
	}

	rec, err := recovery.New(st, dir.Coordinator(), logger)
	if err != nil {
		return err
	}
	cons.SetFailureReporter(rec)

	cons.HandleDefault(func(msg models.Message) error {
		fmt.Fprintf(out, "[%d] %s %s: %s\n", msg.ID, msg.Sender, msg.Type, msg.Payload)
		return nil
	})

	if once {
		return cons.Poll()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	fmt.Fprintf(out, "Consuming as %s (poll every %ds)...\n", agent, cfg.Consumer.PollIntervalSeconds)
	return cons.Run(ctx)
}
