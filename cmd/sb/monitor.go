package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/detect"
	"github.com/davisfield/switchboard/internal/impact"
	"github.com/davisfield/switchboard/internal/knowledge"
	"github.com/davisfield/switchboard/internal/monitor"
	"github.com/davisfield/switchboard/internal/notify"
	"github.com/davisfield/switchboard/internal/notify/discord"
	"github.com/davisfield/switchboard/internal/notify/slack"
	"github.com/davisfield/switchboard/internal/recovery"
	"github.com/davisfield/switchboard/internal/status"
)

const defaultPollInterval = 30 * time.Second

func newMonitorCmd() *cobra.Command {
	var (
		configPath   string
		pollInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start the coordination monitor daemon",
		Long: `Starts the monitor loop: scans the message window for blocker
patterns, runs error recovery, assesses breakdown risk, indexes knowledge
and quantifies business impact. Also serves the status HTTP API and fans
escalations out to configured chat platforms.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, configPath, pollInterval)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", defaultPollInterval, "interval between scan cycles")
	return cmd
}

func runMonitor(cmd *cobra.Command, configPath string, pollInterval time.Duration) error {
	out := cmd.OutOrStdout()

	cfg, st, dir, err := openStore(configPath)
	if err != nil {
		return err
	}

	coordinator := dir.Coordinator()
	if coordinator == "" {
		return fmt.Errorf("no coordinator agent configured")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cls := classify.New()
	window := time.Duration(cfg.Detector.WindowMinutes) * time.Minute

	det, err := detect.New(cfg.Detector, dir, cls, logger)
	if err != nil {
		return err
	}
	rec, err := recovery.New(st, coordinator, logger)
	if err != nil {
		return err
	}
	pred, err := detect.NewPredictor(st, coordinator, cfg.Predictor, window, logger)
	if err != nil {
		return err
	}
	idx, err := knowledge.New(cfg.Knowledge, st, dir, cls, logger)
	if err != nil {
		return err
	}
	quant, err := impact.New(cfg.Impact, cls)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Chat fan-out: %d adapter(s) configured\n", notifier.Adapters())

	mon, err := monitor.New(monitor.Opts{
		Store:        st,
		Detector:     det,
		Recovery:     rec,
		Predictor:    pred,
		Indexer:      idx,
		Quantifier:   quant,
		Notifier:     notifier,
		Window:       window,
		PollInterval: pollInterval,
		Retention:    cfg.Retention,
		Log:          logger,
	})
	if err != nil {
		return err
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

	// Hot-reload agent profiles on config edits.
	go func() {
		if err := dir.Watch(ctx, configPath, logger); err != nil {
			log.Printf("directory watch error: %v", err)
		}
	}()

	if cfg.Status.Port > 0 {
		go func() {
			err := status.Start(ctx, status.StartOpts{
				Store:    st,
				Provider: mon,
				Port:     cfg.Status.Port,
				Out:      out,
			})
			if err != nil {
				log.Printf("status server error: %v", err)
			}
		}()
	}

	fmt.Fprintf(out, "Monitor starting (window %s, poll every %s)...\n", window, pollInterval)
	return mon.Run(ctx)
}

// buildNotifier wires chat adapters for every platform with credentials in
// the config. No credentials means an empty notifier and no fan-out.
func buildNotifier(cfg config.NotifyConfig, logger *zap.Logger) (*notify.Notifier, error) {
	var adapters []notify.Adapter

	if cfg.Slack.BotToken != "" {
		a, err := slack.New(slack.AdapterOpts{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if cfg.Discord.BotToken != "" {
		a, err := discord.New(discord.AdapterOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	return notify.New(adapters, logger), nil
}
