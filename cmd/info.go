package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/livecapture/livecapture/internal/config"
	"github.com/livecapture/livecapture/internal/service"
)

var infoCmd = &cobra.Command{
	Use:   "info <username>",
	Short: "Show resolved configuration and file paths for a user",
	Long:  `Display the resolved configuration with inheritance indicators and the file paths a recording of the given user would use. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimPrefix(args[0], "@")

		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		paths := svc.RecordingPaths(username, time.Now(), "", false)

		// Display file paths
		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("output_raw: %s\n", paths.Raw)
		fmt.Printf("output_final: %s\n", paths.Final)

		// Display resolved configuration with inheritance indicators
		in := cfg.Inheritance
		fmt.Printf("\n=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Profile)

		fmt.Printf("\n[Recording]\n")
		fmt.Printf("mode: %s %s\n", cfg.Mode, getInheritanceIndicator(in.Recording.Mode))
		fmt.Printf("automatic_interval: %dm %s\n", cfg.AutomaticInterval, getInheritanceIndicator(in.Recording.AutomaticInterval))
		duration := "unlimited"
		if cfg.Duration > 0 {
			duration = (time.Duration(cfg.Duration) * time.Second).String()
		}
		fmt.Printf("duration: %s %s\n", duration, getInheritanceIndicator(in.Recording.Duration))
		fmt.Printf("proxy: %s %s\n", valueOrNone(config.MaskedProxy(cfg.Proxy)), getInheritanceIndicator(in.Recording.Proxy))

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(in.Output.Directory))
		fmt.Printf("extension: %s %s\n", cfg.Output.Extension, getInheritanceIndicator(in.Output.Extension))

		fmt.Printf("\n[Post-processing]\n")
		fmt.Printf("remux: %t %s\n", cfg.PostProcess.Remux, getInheritanceIndicator(in.PostProcess.Remux))
		fmt.Printf("on_stop: %t %s\n", cfg.PostProcess.OnStop, getInheritanceIndicator(in.PostProcess.OnStop))
		fmt.Printf("ffmpeg_binary: %s %s\n", cfg.PostProcess.FFmpegBinary, getInheritanceIndicator(in.PostProcess.FFmpegBinary))

		fmt.Printf("\n[Upload]\n")
		fmt.Printf("enabled: %t %s\n", cfg.Upload.Enabled, getInheritanceIndicator(in.Upload.Enabled))
		fmt.Printf("telegram_chat_id: %s %s\n", valueOrNone(cfg.Upload.Telegram.ChatID), getInheritanceIndicator(in.Upload.Telegram))

		fmt.Printf("\n[Resolution]\n")
		fmt.Printf("restart_on_change: %t %s\n", cfg.Resolution.RestartOnChange, getInheritanceIndicator(in.Resolution.RestartOnChange))
		fmt.Printf("check_interval: %ds %s\n", cfg.Resolution.CheckInterval, getInheritanceIndicator(in.Resolution.CheckInterval))
		if o := cfg.Users[strings.ToLower(username)]; o != nil {
			if o.RestartOnResolutionChange != nil {
				fmt.Printf("restart_on_resolution_change: %t [user]\n", *o.RestartOnResolutionChange)
			}
			if o.ResolutionCheckInterval > 0 {
				fmt.Printf("resolution_check_interval: %ds [user]\n", o.ResolutionCheckInterval)
			}
		}

		return nil
	},
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	case "default":
		return "[default]"
	default:
		return "[unknown]"
	}
}
