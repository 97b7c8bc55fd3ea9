package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newTriggersCommand(ctx *commandContext) *cobra.Command {
	triggersCmd := &cobra.Command{
		Use:   "triggers",
		Short: "Inspect and decide review triggers",
	}

	triggersCmd.AddCommand(newTriggersListCommand(ctx))
	triggersCmd.AddCommand(newTriggersDecideCommand(ctx))

	return triggersCmd
}

func newTriggersListCommand(ctx *commandContext) *cobra.Command {
	var pendingOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <video-id>",
		Short: "List a video's review triggers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := strings.TrimSpace(args[0])
			if videoID == "" {
				return errors.New("video id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TriggerList(videoID, pendingOnly)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Triggers)
				}
				if len(resp.Triggers) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No triggers recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Triggers))
				for _, trigger := range resp.Triggers {
					rows = append(rows, []string{
						strconv.FormatInt(trigger.ID, 10),
						formatOffset(trigger.TimestampOffset),
						trigger.Source,
						formatConfidence(trigger.Confidence),
						trigger.Status,
						trigger.DecisionLabel,
						trigger.DecidedBy,
					})
				}
				table := renderTable(
					[]string{"ID", "Timestamp", "Source", "Confidence", "Status", "Decision", "Decided By"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Show only undecided triggers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newTriggersDecideCommand(ctx *commandContext) *cobra.Command {
	var worker string
	var taskID int64
	var label string
	var note string

	cmd := &cobra.Command{
		Use:   "decide <trigger-id>",
		Short: "Record a review decision on a trigger",
		Long: `Record a review decision on a trigger.

The decision is written under the worker's active lease, so the worker must
hold the task covering the trigger's video. Valid labels are ok, ok_false,
reklama_brand, mat_speech, nsfw_18, and violence_18.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			triggerID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid trigger id %q", args[0])
			}
			if strings.TrimSpace(worker) == "" {
				return errors.New("--worker is required")
			}
			if taskID <= 0 {
				return errors.New("--task is required")
			}
			if strings.TrimSpace(label) == "" {
				return errors.New("--label is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TriggerDecide(ipc.TriggerDecideRequest{
					Worker:    strings.TrimSpace(worker),
					TaskID:    taskID,
					TriggerID: triggerID,
					Label:     strings.TrimSpace(label),
					Note:      strings.TrimSpace(note),
				})
				if err != nil {
					return err
				}
				trigger := resp.Trigger
				fmt.Fprintf(cmd.OutOrStdout(), "Trigger #%d marked %s by %s\n", trigger.ID, trigger.DecisionLabel, trigger.DecidedBy)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&worker, "worker", "w", "", "Worker recording the decision")
	cmd.Flags().Int64VarP(&taskID, "task", "t", 0, "Task id the worker holds")
	cmd.Flags().StringVarP(&label, "label", "l", "", "Decision label")
	cmd.Flags().StringVar(&note, "note", "", "Optional reviewer note")
	return cmd
}
