package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/livecapture/livecapture/internal/config"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	logFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "livecapture [username...]",
	Short: "Record live broadcasts to local files",
	Long: `LiveCapture records one or more live broadcasts concurrently to local
FLV-in-MP4 files, optionally remuxing them with ffmpeg and uploading the
result to Telegram.

When usernames are provided, it acts as 'livecapture record --user <name>...'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel, logFile)

		// Secrets may come from a .env file next to the binary
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Could not load .env file", "error", err)
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "profile", cfg.Profile, "output", cfg.Output.Directory)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// If usernames are provided, delegate to record command
		if len(args) > 0 {
			users = append(users, args...)
			return recordCmd.RunE(cmd, nil)
		}
		// Otherwise show help
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/livecapture.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated at 100MB")

	addRecordFlags(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(remuxCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int, file string) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, opts)))
}
