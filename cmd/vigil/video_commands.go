package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newVideosCommand(ctx *commandContext) *cobra.Command {
	videosCmd := &cobra.Command{
		Use:   "videos",
		Short: "Inspect registered videos and their pipeline state",
	}

	videosCmd.AddCommand(newVideosListCommand(ctx))
	videosCmd.AddCommand(newVideosShowCommand(ctx))

	return videosCmd
}

func newVideosListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoList(listStatuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Videos)
				}
				if len(resp.Videos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No videos registered")
					return nil
				}
				rows := make([][]string, 0, len(resp.Videos))
				for _, video := range resp.Videos {
					rows = append(rows, []string{
						video.ID,
						truncate(video.OriginalName, 40),
						video.Status,
						video.Format,
						formatSeconds(video.DurationSeconds),
						formatTime(video.UploadedAt),
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Status", "Format", "Duration", "Uploaded"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by video status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newVideosShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show one video and its pipeline execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := strings.TrimSpace(args[0])
			if videoID == "" {
				return errors.New("video id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ExecutionShow(videoID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				renderVideoDetail(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of formatted text")
	return cmd
}

func renderVideoDetail(cmd *cobra.Command, resp *ipc.ExecutionShowResponse) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Video", colorize) {
		fmt.Fprintln(stdout, line)
	}
	video := resp.Video
	printDetail(stdout, "ID", video.ID)
	printDetail(stdout, "Name", video.OriginalName)
	printDetail(stdout, "Source", video.SourcePath)
	printDetail(stdout, "Size", formatBytes(video.SizeBytes))
	printDetail(stdout, "Duration", formatSeconds(video.DurationSeconds))
	printDetail(stdout, "Format", video.Format)
	printDetail(stdout, "Status", video.Status)
	if video.StatusMessage != "" {
		printDetail(stdout, "Status message", video.StatusMessage)
	}
	printDetail(stdout, "Uploaded", formatTime(video.UploadedAt))
	printDetail(stdout, "Processed", formatTimePtr(video.ProcessedAt))

	if resp.Execution == nil {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "No pipeline execution recorded")
		return
	}

	exec := resp.Execution
	fmt.Fprintln(stdout)
	for _, line := range renderSectionHeader("Execution", colorize) {
		fmt.Fprintln(stdout, line)
	}
	printDetail(stdout, "ID", strconv.FormatInt(exec.ID, 10))
	printDetail(stdout, "Status", exec.Status)
	printDetail(stdout, "Current stage", exec.CurrentStage)
	printDetail(stdout, "Last completed", exec.LastCompletedStage)
	printDetail(stdout, "Progress", fmt.Sprintf("%d%%", exec.Progress))
	printDetail(stdout, "Retries", strconv.Itoa(exec.RetryCount))
	printDetail(stdout, "Started", formatTimePtr(exec.StartedAt))
	printDetail(stdout, "Completed", formatTimePtr(exec.CompletedAt))
	printDetail(stdout, "Processing time", formatSeconds(exec.ProcessingSeconds))
	printDetail(stdout, "API calls", strconv.Itoa(exec.APICallCount))
	if exec.CostEstimate > 0 {
		printDetail(stdout, "Cost estimate", fmt.Sprintf("$%.4f", exec.CostEstimate))
	}

	if len(exec.ErrorTrace) == 0 {
		return
	}
	fmt.Fprintln(stdout)
	for _, line := range renderSectionHeader("Error Trace", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, entry := range exec.ErrorTrace {
		fmt.Fprintf(stdout, "  %s  %-16s %s\n", formatTime(entry.Timestamp), entry.Stage, entry.Message)
	}
}
