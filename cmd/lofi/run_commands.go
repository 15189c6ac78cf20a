package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lofi/internal/api"
	"lofi/internal/runstore"
)

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	var req api.TriggerRequest
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a new pipeline run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := c.Trigger(cmd.Context(), req)
			if err != nil {
				return ctx.explain(err)
			}
			if !wait {
				return ctx.emit(cmd, resp, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Run %s %s\n", resp.RunID, resp.Status)
					return nil
				})
			}

			run, err := c.WaitForRun(cmd.Context(), resp.RunID, interval)
			if err != nil {
				return ctx.explain(err)
			}
			if err := ctx.emit(cmd, run, func() error {
				fmt.Fprintln(cmd.OutOrStdout(), renderRun(run))
				return nil
			}); err != nil {
				return err
			}
			if run.Status != string(runstore.StatusSucceeded) {
				return fmt.Errorf("run %s %s", run.ID, run.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "Image prompt (defaults to the configured prompt)")
	cmd.Flags().StringVar(&req.Title, "title", "", "Video title")
	cmd.Flags().StringVar(&req.Description, "description", "", "Video description")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "Video tag (repeatable)")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "Seed for image and playlist selection")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval used with --wait")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the status of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			run, err := c.Run(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return ctx.explain(err)
			}
			return ctx.emit(cmd, run, func() error {
				fmt.Fprintln(cmd.OutOrStdout(), renderRun(run))
				return nil
			})
		},
	}
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			runs, err := c.Runs(cmd.Context(), limit)
			if err != nil {
				return ctx.explain(err)
			}
			return ctx.emit(cmd, api.RunListResponse{Runs: runs}, func() error {
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.ID, run.Status, run.CurrentStage, run.CallerKey, run.CreatedAt, run.Error,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{col("Run"), col("Status"), col("Stage"), col("Caller"), col("Created"), capped("Error", 48)},
					rows,
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	return cmd
}

func renderRun(run api.Run) string {
	pairs := [][2]string{
		{"Run", run.ID},
		{"Status", run.Status},
		{"Stage", run.CurrentStage},
		{"Caller", run.CallerKey},
		{"Created", run.CreatedAt},
		{"Started", run.StartedAt},
		{"Finished", run.FinishedAt},
		{"Heartbeat", run.HeartbeatAt},
	}
	if run.Error != "" {
		pairs = append(pairs, [2]string{"Error", run.Error})
	}
	if len(run.Params) > 0 && string(run.Params) != "{}" {
		pairs = append(pairs, [2]string{"Params", string(run.Params)})
	}
	return renderKeyValues(pairs)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
