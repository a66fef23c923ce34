package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbagrid/bbagrid/internal/poll"
	"github.com/bbagrid/bbagrid/internal/resilience"
	"github.com/bbagrid/bbagrid/internal/tracker"
)

var (
	trackOffline bool
	trackFast    bool
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Follow a GPS source and report fixes to the API",
	Long: "Reads fixes from gpsd (or a replay file), prints the block summary whenever the block changes, " +
		"reports each fix to the bbagrid API and sleeps for the recommended interval. Fixes that cannot " +
		"be delivered are spooled to a local SQLite file and flushed once the API is reachable again.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyTrackFlags(cmd)
		tc := cfg.Tracker
		mode := poll.ModeForeground
		if tc.Mode != "" {
			m, err := poll.ParseMode(tc.Mode)
			if err != nil {
				return err
			}
			mode = m
		}

		svc, err := newLocator()
		if err != nil {
			return err
		}

		var source tracker.Source
		if tc.ReplayFile != "" {
			replay, err := tracker.LoadReplay(tc.ReplayFile)
			if err != nil {
				return err
			}
			logger.Info().Str("file", tc.ReplayFile).Int("fixes", replay.Len()).Msg("replaying fixes")
			source = replay
		} else {
			addr := tc.GPSDAddr
			if addr == "" {
				addr = tracker.DefaultGPSDAddr
			}
			source = tracker.NewGPSDSource(ctx, addr, logger)
		}
		defer source.Close()

		agentCfg := tracker.AgentConfig{
			Source:        source,
			Locator:       svc,
			Mode:          mode,
			Out:           cmd.OutOrStdout(),
			FlushInterval: tc.FlushInterval,
			Logger:        logger,
		}

		if trackFast {
			agentCfg.Wait = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
		}

		if !trackOffline {
			if tc.DeviceID == "" {
				return errors.New("tracker.device_id is required unless --offline is set")
			}

			clientCfg := resilience.DefaultClientConfig("bbagrid-api")
			if tc.RequestTimeout > 0 {
				clientCfg.Timeout = tc.RequestTimeout
			}
			clientCfg.MaxRetries = tc.MaxRetries
			// A tracker reports every few seconds at most; ratio-based
			// tripping would take minutes to notice an outage.
			clientCfg.CircuitBreaker.ReadyToTrip = resilience.ConsecutiveFailures(3)
			clientCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(logger)
			clientCfg.OnRetry = func(err error, wait time.Duration) {
				logger.Debug().Err(err).Dur("wait", wait).Msg("retrying fix report")
			}

			reporter, err := tracker.NewHTTPReporter(tracker.HTTPReporterConfig{
				BaseURL:  tc.APIURL,
				DeviceID: tc.DeviceID,
				Token:    tc.Token,
				Client:   resilience.NewClient(clientCfg),
			})
			if err != nil {
				return err
			}
			agentCfg.Reporter = reporter

			if tc.SpoolPath != "" {
				spool, err := tracker.OpenSpool(ctx, tc.SpoolPath, tc.SpoolMax)
				if err != nil {
					return err
				}
				defer spool.Close()
				agentCfg.Spool = spool
			}
		}

		agent, err := tracker.NewAgent(agentCfg)
		if err != nil {
			return err
		}

		runErr := agent.Run(ctx)

		s := agent.Stats()
		fmt.Fprintf(cmd.ErrOrStderr(),
			"fixes %d, delivered %d, skipped %d, spooled %d, flushed %d, rejected %d, dropped %d\n",
			s.Fixes, s.Delivered, s.Skipped, s.Spooled, s.Flushed, s.Rejected, s.Dropped)
		return runErr
	},
}

func init() {
	f := trackCmd.Flags()
	f.String("api", "", "bbagrid API base URL")
	f.String("device", "", "device id registered with the API")
	f.String("token", "", "device access token")
	f.String("mode", "", "poll mode (FOREGROUND or BACKGROUND)")
	f.String("gpsd", "", "gpsd address host:port")
	f.String("replay", "", "replay fixes from a YAML file instead of gpsd")
	f.String("spool", "", "SQLite file for undelivered fixes")
	f.BoolVar(&trackOffline, "offline", false, "only print summaries, never contact the API")
	f.BoolVar(&trackFast, "fast", false, "do not sleep between fixes (useful with --replay)")
}

// applyTrackFlags copies explicitly set track flags over the loaded config.
func applyTrackFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	set := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	set("api", &cfg.Tracker.APIURL)
	set("device", &cfg.Tracker.DeviceID)
	set("token", &cfg.Tracker.Token)
	set("mode", &cfg.Tracker.Mode)
	set("gpsd", &cfg.Tracker.GPSDAddr)
	set("replay", &cfg.Tracker.ReplayFile)
	set("spool", &cfg.Tracker.SpoolPath)
}
