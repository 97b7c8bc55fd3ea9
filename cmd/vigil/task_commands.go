package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Work the human review queue",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))
	tasksCmd.AddCommand(newTasksAuditCommand(ctx))
	tasksCmd.AddCommand(newTasksClaimCommand(ctx))
	tasksCmd.AddCommand(newTasksHeartbeatCommand(ctx))
	tasksCmd.AddCommand(newTasksCompleteCommand(ctx))
	tasksCmd.AddCommand(newTasksReleaseCommand(ctx))
	tasksCmd.AddCommand(newTasksResumeCommand(ctx))
	tasksCmd.AddCommand(newTasksForceReleaseCommand(ctx))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List verification tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskList(listStatuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Tasks)
				}
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Review queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Tasks))
				for _, task := range resp.Tasks {
					rows = append(rows, []string{
						strconv.FormatInt(task.ID, 10),
						task.VideoID,
						task.Status,
						strconv.Itoa(task.Priority),
						task.LeaseHolder,
						formatTimePtr(task.LeaseExpiresAt),
						formatTime(task.CreatedAt),
					})
				}
				table := renderTable(
					[]string{"ID", "Video", "Status", "Priority", "Holder", "Lease Expires", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by task status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	var videoID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show one task and its audit trail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.TaskShowRequest{VideoID: strings.TrimSpace(videoID)}
			if len(args) == 1 {
				id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
				if err != nil {
					return fmt.Errorf("invalid task id %q", args[0])
				}
				req.ID = id
			}
			if req.ID == 0 && req.VideoID == "" {
				return errors.New("a task id argument or --video is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskShow(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				renderTaskDetail(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&videoID, "video", "", "Look the task up by video id instead")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of formatted text")
	return cmd
}

func renderTaskDetail(cmd *cobra.Command, resp *ipc.TaskShowResponse) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Task", colorize) {
		fmt.Fprintln(stdout, line)
	}
	task := resp.Task
	printDetail(stdout, "ID", strconv.FormatInt(task.ID, 10))
	printDetail(stdout, "Video", task.VideoID)
	printDetail(stdout, "Status", task.Status)
	printDetail(stdout, "Priority", strconv.Itoa(task.Priority))
	printDetail(stdout, "Assignee", task.Assignee)
	printDetail(stdout, "Lease holder", task.LeaseHolder)
	printDetail(stdout, "Lease expires", formatTimePtr(task.LeaseExpiresAt))
	printDetail(stdout, "Last heartbeat", formatTimePtr(task.LastHeartbeat))
	printDetail(stdout, "Assigned", formatTimePtr(task.AssignedAt))
	printDetail(stdout, "Completed", formatTimePtr(task.CompletedAt))
	if task.DecisionSummary != "" {
		printDetail(stdout, "Decision summary", task.DecisionSummary)
	}
	printDetail(stdout, "Review time", formatSeconds(task.TotalProcessingSeconds))
	printDetail(stdout, "Created", formatTime(task.CreatedAt))

	fmt.Fprintln(stdout)
	for _, line := range renderSectionHeader("Audit Trail", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if len(resp.Actions) == 0 {
		fmt.Fprintln(stdout, "No actions recorded")
		return
	}
	rows := make([][]string, 0, len(resp.Actions))
	for _, action := range resp.Actions {
		trigger := "-"
		if action.TriggerID != nil {
			trigger = strconv.FormatInt(*action.TriggerID, 10)
		}
		rows = append(rows, []string{
			formatTime(action.CreatedAt),
			action.Actor,
			action.Action,
			trigger,
		})
	}
	table := renderTable(
		[]string{"Time", "Actor", "Action", "Trigger"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
	fmt.Fprintln(stdout, table)
}

func newTasksAuditCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the newest audit entries across all tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskAudit(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Actions)
				}
				if len(resp.Actions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No actions recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Actions))
				for _, action := range resp.Actions {
					trigger := "-"
					if action.TriggerID != nil {
						trigger = strconv.FormatInt(*action.TriggerID, 10)
					}
					rows = append(rows, []string{
						formatTime(action.CreatedAt),
						strconv.FormatInt(action.TaskID, 10),
						action.Actor,
						action.Action,
						trigger,
					})
				}
				table := renderTable(
					[]string{"Time", "Task", "Actor", "Action", "Trigger"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newTasksClaimCommand(ctx *commandContext) *cobra.Command {
	var worker string

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Lease the next pending task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(worker) == "" {
				return errors.New("--worker is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskClaim(strings.TrimSpace(worker))
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Claimed || resp.Task == nil {
					fmt.Fprintln(stdout, "No pending tasks available")
					return nil
				}
				task := resp.Task
				fmt.Fprintf(stdout, "Claimed task #%d for video %s\n", task.ID, task.VideoID)
				fmt.Fprintf(stdout, "Lease expires %s\n", formatTimePtr(task.LeaseExpiresAt))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&worker, "worker", "w", "", "Worker claiming the task")
	return cmd
}

func newTasksHeartbeatCommand(ctx *commandContext) *cobra.Command {
	var worker string

	cmd := &cobra.Command{
		Use:   "heartbeat <task-id>",
		Short: "Renew a held lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, worker, err := taskWorkerArgs(args[0], worker)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskHeartbeat(worker, taskID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Lease for task #%d renewed until %s\n", resp.Task.ID, formatTimePtr(resp.Task.LeaseExpiresAt))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&worker, "worker", "w", "", "Worker holding the lease")
	return cmd
}

func newTasksCompleteCommand(ctx *commandContext) *cobra.Command {
	var worker string
	var summary string

	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a held task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, worker, err := taskWorkerArgs(args[0], worker)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskComplete(worker, taskID, strings.TrimSpace(summary))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task #%d completed\n", resp.Task.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&worker, "worker", "w", "", "Worker holding the lease")
	cmd.Flags().StringVar(&summary, "summary", "", "Decision summary to record")
	return cmd
}

func newTasksReleaseCommand(ctx *commandContext) *cobra.Command {
	var worker string

	cmd := &cobra.Command{
		Use:   "release <task-id>",
		Short: "Return a held task to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, worker, err := taskWorkerArgs(args[0], worker)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskRelease(worker, taskID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task #%d returned to the queue\n", resp.Task.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&worker, "worker", "w", "", "Worker holding the lease")
	return cmd
}

func newTasksResumeCommand(ctx *commandContext) *cobra.Command {
	var worker string

	cmd := &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Re-establish an expired lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, worker, err := taskWorkerArgs(args[0], worker)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskResume(worker, taskID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Lease for task #%d re-established until %s\n", resp.Task.ID, formatTimePtr(resp.Task.LeaseExpiresAt))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&worker, "worker", "w", "", "Worker resuming the task")
	return cmd
}

func newTasksForceReleaseCommand(ctx *commandContext) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "force-release <task-id>",
		Short: "Return any in-progress task to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			if strings.TrimSpace(actor) == "" {
				return errors.New("--actor is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskForceRelease(strings.TrimSpace(actor), taskID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task #%d force-released\n", resp.Task.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Administrator recording the release")
	return cmd
}

func taskWorkerArgs(idArg, worker string) (int64, string, error) {
	taskID, err := strconv.ParseInt(strings.TrimSpace(idArg), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid task id %q", idArg)
	}
	worker = strings.TrimSpace(worker)
	if worker == "" {
		return 0, "", errors.New("--worker is required")
	}
	return taskID, worker, nil
}
