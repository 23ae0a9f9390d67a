package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosight/slidetrack/internal/clock"
	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/persistence"
	"github.com/gosight/slidetrack/internal/replay"
	"github.com/gosight/slidetrack/internal/syncclient"
	"github.com/gosight/slidetrack/internal/tracker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "slidetrack",
		Short:         "Slide engagement tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.Path("config/tracker.yaml"), "tracker config file")

	root.AddCommand(newReplayCmd(&configPath))
	root.AddCommand(newHistoryCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.TrackerConfig, error) {
	cfg, err := config.LoadTracker(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Log.ZerologLevel())
	return cfg, nil
}

func newReplayCmd(configPath *string) *cobra.Command {
	var scriptPath, customerID string
	var realtime, offline bool

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a scripted viewing session through the tracker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			script, err := replay.Load(scriptPath)
			if err != nil {
				return err
			}
			switch {
			case customerID != "":
				cfg.CustomerID = customerID
			case script.CustomerID != "":
				cfg.CustomerID = script.CustomerID
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := persistence.Open(ctx, cfg.Persistence, cfg.TabID)
			if err != nil {
				return err
			}
			defer store.Close()

			var sender syncclient.Client = syncclient.Discard{}
			if !offline {
				if sender, err = syncclient.New(cfg.Collector); err != nil {
					return err
				}
			}
			defer sender.Close()

			opts := tracker.Options{
				CustomerID:       cfg.CustomerID,
				IdleTimeout:      cfg.IdleTimeout,
				SendTimeout:      cfg.Collector.Timeout,
				FinalSendTimeout: cfg.Collector.FinalSendTimeout,
				Device: model.DeviceInfo{
					UserAgent:    cfg.Device.UserAgent,
					ScreenWidth:  cfg.Device.ScreenWidth,
					ScreenHeight: cfg.Device.ScreenHeight,
					IsMobile:     cfg.Device.IsMobile,
				},
			}

			var final model.Snapshot
			if realtime {
				final, err = replay.Realtime(ctx, script, tracker.New(opts, store, sender))
			} else {
				fake := clock.NewFake(time.Now())
				opts.Clock = fake
				final, err = replay.Virtual(ctx, script, tracker.New(opts, store, sender), fake)
			}
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), final)
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "replay script (YAML)")
	cmd.Flags().StringVar(&customerID, "customer", "", "customer id, overrides config and script")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "replay on the wall clock instead of a virtual clock")
	cmd.Flags().BoolVar(&offline, "offline", false, "do not deliver snapshots to the collector")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func newHistoryCmd(configPath *string) *cobra.Command {
	var customerID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print finished sessions recorded for a customer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if customerID == "" {
				customerID = cfg.CustomerID
			}
			if customerID == "" {
				return fmt.Errorf("--customer is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			store, err := persistence.Open(ctx, cfg.Persistence, cfg.TabID)
			if err != nil {
				return err
			}
			defer store.Close()

			history, err := store.History(ctx, customerID)
			if errors.Is(err, persistence.ErrNotFound) {
				history = []model.Snapshot{}
			} else if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), history)
		},
	}

	cmd.Flags().StringVar(&customerID, "customer", "", "customer id")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
