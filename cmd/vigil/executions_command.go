package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newExecutionsCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List pipeline executions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ExecutionList(listStatuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Executions)
				}
				if len(resp.Executions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No executions recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Executions))
				for _, exec := range resp.Executions {
					stage := exec.CurrentStage
					if stage == "" {
						stage = "-"
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", exec.ID),
						exec.VideoID,
						exec.Status,
						stage,
						fmt.Sprintf("%d%%", exec.Progress),
						fmt.Sprintf("%d", exec.RetryCount),
						formatTimePtr(exec.StartedAt),
					})
				}
				table := renderTable(
					[]string{"ID", "Video", "Status", "Stage", "Progress", "Retries", "Started"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by execution status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
