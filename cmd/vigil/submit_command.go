package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var originalName string

	cmd := &cobra.Command{
		Use:   "submit <path>",
		Short: "Submit a video file for moderation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}

			if err := checkSubmittableExtension(ctx, info.Name()); err != nil {
				return err
			}

			name := strings.TrimSpace(originalName)
			if name == "" {
				name = info.Name()
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(absPath, name)
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("empty response from daemon")
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Registered video %s (%s)\n", resp.Video.ID, resp.Video.OriginalName)
				fmt.Fprintf(stdout, "Queued execution #%d\n", resp.Execution.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&originalName, "name", "", "Original upload name to record (defaults to the file name)")
	return cmd
}

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <video-id>",
		Short: "Queue a fresh pipeline run for a known video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := strings.TrimSpace(args[0])
			if videoID == "" {
				return errors.New("video id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reprocess(videoID)
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("empty response from daemon")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued execution #%d for video %s\n", resp.Execution.ID, resp.Execution.VideoID)
				return nil
			})
		},
	}
}

// checkSubmittableExtension rejects extensions outside the configured
// allowed formats before any IPC call is made.
func checkSubmittableExtension(ctx *commandContext, name string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return fmt.Errorf("file %q has no extension", name)
	}
	cfg := ctx.configValue()
	if cfg == nil || len(cfg.Validation.AllowedFormats) == 0 {
		return nil
	}
	for _, format := range cfg.Validation.AllowedFormats {
		if strings.EqualFold(format, ext) {
			return nil
		}
	}
	return fmt.Errorf("unsupported file extension %q (allowed: %s)", ext, strings.Join(cfg.Validation.AllowedFormats, ", "))
}
