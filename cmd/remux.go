package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livecapture/livecapture/internal/postprocess"
	"github.com/livecapture/livecapture/internal/service"
)

var remuxCmd = &cobra.Command{
	Use:   "remux <file_flv.ext>...",
	Short: "Remux raw recordings left by an interrupted run",
	Long: `Copy the streams of raw *_flv.<ext> recordings into a proper container
with ffmpeg, the same way finished recordings are processed. The raw file is
removed once ffmpeg succeeded. With --upload the result is sent to Telegram.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		upload, _ := cmd.Flags().GetBool("upload")
		cfg.PostProcess.Remux = true
		cfg.Upload.Enabled = cfg.Upload.Enabled || upload
		if err := cfg.Validate(); err != nil {
			return err
		}

		pipeline := service.NewPostProcessor(cfg)
		failed := 0
		for _, path := range args {
			fmt.Printf("Remuxing %s\n", path)
			if err := pipeline.Process(context.Background(), path); err != nil {
				fmt.Printf("  failed: %v\n", err)
				failed++
				continue
			}
			fmt.Printf("  saved to %s\n", postprocess.RemuxedPath(path))
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		fmt.Println("Remux completed successfully")
		return nil
	},
}

func init() {
	remuxCmd.Flags().Bool("upload", false, "upload the remuxed files to Telegram")
}
