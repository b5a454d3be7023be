package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"

	"github.com/livecapture/livecapture/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage LiveCapture configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		// Never print secrets
		if shown.Upload.Telegram.BotToken != "" {
			shown.Upload.Telegram.BotToken = "***"
		}
		shown.Proxy = config.MaskedProxy(shown.Proxy)
		if len(shown.Cookies) > 0 {
			masked := make(map[string]string, len(shown.Cookies))
			for k := range shown.Cookies {
				masked[k] = "***"
			}
			shown.Cookies = masked
		}

		out, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <profile>",
	Short: "Set the active configuration profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UpdateActiveConfig(configPath(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Active profile set to %s\n", args[0])
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "nano"
		}

		path := configPath()
		fmt.Printf("Opening %s with %s...\n", path, editor)

		c := exec.Command(editor, path)
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		return c.Run()
	},
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configUseCmd)
	configCmd.AddCommand(configEditCmd)
}
