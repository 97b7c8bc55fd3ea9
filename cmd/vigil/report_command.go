package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report <video-id>",
		Short: "Compile the moderation report for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := strings.TrimSpace(args[0])
			if videoID == "" {
				return errors.New("video id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Report(videoID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Report)
				}
				renderReport(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of formatted text")
	return cmd
}

func renderReport(cmd *cobra.Command, resp *ipc.ReportResponse) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	report := resp.Report

	for _, line := range renderSectionHeader("Moderation Report", colorize) {
		fmt.Fprintln(stdout, line)
	}
	printDetail(stdout, "Video", report.VideoID)
	printDetail(stdout, "Generated", formatTime(report.GeneratedAt))
	printDetail(stdout, "Total triggers", strconv.Itoa(report.TotalTriggers))
	printDetail(stdout, "Pending triggers", strconv.Itoa(report.PendingTriggers))

	if len(report.CountsBySource) > 0 {
		sources := make([]string, 0, len(report.CountsBySource))
		for source := range report.CountsBySource {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		rows := make([][]string, 0, len(sources))
		for _, source := range sources {
			rows = append(rows, []string{source, strconv.Itoa(report.CountsBySource[source])})
		}
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Triggers by Source", colorize) {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout, renderTable([]string{"Source", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	fmt.Fprintln(stdout)
	for _, line := range renderSectionHeader("Risks", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if len(report.Risks) == 0 {
		fmt.Fprintln(stdout, "No risks recorded")
		return
	}
	rows := make([][]string, 0, len(report.Risks))
	for _, risk := range report.Risks {
		rows = append(rows, []string{
			strconv.FormatInt(risk.TriggerID, 10),
			formatOffset(risk.Timestamp),
			risk.Source,
			risk.RiskName,
			risk.RiskLevel,
			formatConfidence(risk.Confidence),
			truncate(risk.Description, 48),
		})
	}
	table := renderTable(
		[]string{"Trigger", "Timestamp", "Source", "Risk", "Level", "Confidence", "Description"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
	fmt.Fprintln(stdout, table)
}
