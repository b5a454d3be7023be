package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/livecapture/livecapture/internal/config"
	"github.com/livecapture/livecapture/internal/mediainfo"
	"github.com/livecapture/livecapture/internal/recorder"
	"github.com/livecapture/livecapture/internal/server"
	"github.com/livecapture/livecapture/internal/service"
)

var (
	urls    []string
	users   []string
	roomIDs []string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one or more live broadcasts",
	Long: `Record live broadcasts identified by URL, username or room id. Every
target is recorded concurrently into its own file.

In manual mode a target that is not live fails right away. In automatic
mode targets are polled until they go live, and polled again after each
broadcast ends. Press Ctrl+C to stop, recordings in progress are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRecordFlags(cmd, cfg); err != nil {
			return err
		}
		if err := applyResolutionFlags(cmd, cfg, configPath(), mediainfo.Available()); err != nil {
			return err
		}

		targets := collectTargets()
		if len(targets) == 0 {
			return fmt.Errorf("%w: use --url, --user or --room-id", recorder.ErrNoTargets)
		}

		svc, err := service.New(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Handle interruption
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case <-sigChan:
				slog.Info("Stopping recording...")
				cancel()
			case <-ctx.Done():
			}
		}()

		statusAddr, _ := cmd.Flags().GetString("status-addr")
		if statusAddr != "" {
			srv := server.New(svc.Orchestrator(), cfg, statusAddr)
			go func() {
				if err := srv.Start(); err != nil {
					slog.Error("Status server failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
				defer done()
				srv.Shutdown(shutdownCtx)
			}()
		}

		if err := svc.Run(ctx, targets); err != nil {
			if errors.Is(err, recorder.ErrNoTargets) {
				return err
			}
			return fmt.Errorf("recording failed: %w", err)
		}
		return nil
	},
}

func init() {
	addRecordFlags(recordCmd)
}

func addRecordFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&urls, "url", nil, "broadcast URL, e.g. https://www.tiktok.com/@user/live (repeatable)")
	cmd.Flags().StringArrayVarP(&users, "user", "u", nil, "username to record (repeatable)")
	cmd.Flags().StringArrayVar(&roomIDs, "room-id", nil, "room id to record (repeatable)")
	cmd.Flags().StringP("mode", "m", "", "recording mode: manual or automatic (overrides config)")
	cmd.Flags().Int("interval", 0, "automatic mode polling interval in minutes (overrides config)")
	cmd.Flags().IntP("duration", "d", -1, "stop each recording after this many seconds, 0 = unlimited (overrides config)")
	cmd.Flags().String("proxy", "", "http(s):// or socks5:// proxy (overrides config)")
	cmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
	cmd.Flags().Bool("upload", false, "upload finished recordings to Telegram")
	cmd.Flags().Bool("no-remux", false, "keep raw _flv files, skip ffmpeg")
	cmd.Flags().String("status-addr", "", "serve recording status on this address, e.g. :8080")
	cmd.Flags().String("enable-resolution-restart", "", "restart recordings when the resolution changes, saved for the --user or --room-id targets (user|room)")
	cmd.Flags().String("disable-resolution-restart", "", "stop restarting recordings on resolution change for the --user or --room-id targets (user|room)")
	cmd.Flags().Int("resolution-check-interval", 0, "seconds between resolution checks, saved for the given targets or as default")
}

// applyRecordFlags layers command line overrides over the profile.
func applyRecordFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		c.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("interval") {
		c.AutomaticInterval, _ = flags.GetInt("interval")
	}
	if flags.Changed("duration") {
		c.Duration, _ = flags.GetInt("duration")
	}
	if flags.Changed("proxy") {
		c.Proxy, _ = flags.GetString("proxy")
	}
	if flags.Changed("output") {
		c.Output.Directory, _ = flags.GetString("output")
	}
	if flags.Changed("upload") {
		c.Upload.Enabled, _ = flags.GetBool("upload")
	}
	if noRemux, _ := flags.GetBool("no-remux"); noRemux {
		c.PostProcess.Remux = false
	}
	return c.Validate()
}

func collectTargets() []recorder.Target {
	var targets []recorder.Target
	for _, u := range urls {
		targets = append(targets, recorder.URLTarget(u))
	}
	for _, u := range users {
		targets = append(targets, recorder.UserTarget(u))
	}
	for _, r := range roomIDs {
		targets = append(targets, recorder.RoomTarget(r))
	}
	return targets
}

// applyResolutionFlags saves resolution restart settings for the given
// targets and applies them to the current run. Without ffprobe the flags
// are ignored.
func applyResolutionFlags(cmd *cobra.Command, c *config.Config, configFile string, ffprobe bool) error {
	flags := cmd.Flags()
	enable, _ := flags.GetString("enable-resolution-restart")
	disable, _ := flags.GetString("disable-resolution-restart")
	interval, _ := flags.GetInt("resolution-check-interval")
	intervalSet := flags.Changed("resolution-check-interval")
	if enable == "" && disable == "" && !intervalSet {
		return nil
	}
	if !ffprobe {
		slog.Warn("ffprobe is not available, resolution change detection features disabled")
		slog.Warn("Install ffmpeg to enable resolution change detection")
		return nil
	}

	for _, setting := range []struct {
		flag    string
		restart bool
	}{{enable, true}, {disable, false}} {
		if setting.flag == "" {
			continue
		}
		kind, err := config.ParseTargetKind(setting.flag)
		if err != nil {
			return err
		}
		ids := roomIDs
		if kind == config.TargetUser {
			ids = users
		}
		if len(ids) == 0 {
			slog.Warn("Cannot set resolution restart without targets", "kind", kind)
			continue
		}
		restart := setting.restart
		for _, id := range ids {
			if err := config.SetTargetSetting(configFile, kind, id, "restart_on_resolution_change", restart); err != nil {
				return err
			}
			c.SetTargetOverride(kind, id, &restart, 0)
		}
	}

	if !intervalSet {
		return nil
	}
	if interval < 1 {
		return fmt.Errorf("resolution check interval must be at least 1 second, got: %d", interval)
	}
	kind, ids := config.TargetUser, users
	if len(ids) == 0 {
		kind, ids = config.TargetRoom, roomIDs
	}
	if len(ids) == 0 {
		if err := config.SetDefaultResolutionInterval(configFile, interval); err != nil {
			return err
		}
		c.Resolution.CheckInterval = interval
		return nil
	}
	for _, id := range ids {
		if err := config.SetTargetSetting(configFile, kind, id, "resolution_check_interval", interval); err != nil {
			return err
		}
		c.SetTargetOverride(kind, id, nil, interval)
	}
	return nil
}
