package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidflow/internal/api"
	"vidflow/internal/pipeline"
	"vidflow/internal/store"
)

func newExecutionsCommand(ctx *commandContext) *cobra.Command {
	execCmd := &cobra.Command{
		Use:     "executions",
		Aliases: []string{"exec"},
		Short:   "Inspect archived pipeline executions",
	}
	execCmd.AddCommand(newExecutionsListCommand(ctx))
	execCmd.AddCommand(newExecutionsShowCommand(ctx))
	return execCmd
}

func newExecutionsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, status := range statuses {
				if _, err := pipeline.ParseStatus(strings.TrimSpace(status)); err != nil {
					return err
				}
			}
			execs, err := listExecutions(cmd, ctx, statuses, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, execs)
			}
			if len(execs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No executions found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderExecutionTable(execs))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (running, succeeded, failed, timed_out)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of executions")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newExecutionsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one execution with its stage results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := getExecution(cmd, ctx, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if exec == nil {
				return fmt.Errorf("execution %s not found", args[0])
			}
			return printExecution(cmd, *exec, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

// listExecutions asks the daemon first and reads the archive directly when
// it is not reachable.
func listExecutions(cmd *cobra.Command, ctx *commandContext, statuses []string, limit int) ([]api.Execution, error) {
	execs, err := ctx.apiClient().ListExecutions(cmd.Context(), statuses, limit)
	if err == nil {
		return execs, nil
	}
	if !daemonUnreachable(err) {
		return nil, err
	}
	var parsed []pipeline.Status
	for _, status := range statuses {
		value, err := pipeline.ParseStatus(strings.TrimSpace(status))
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, value)
	}
	var out []api.Execution
	err = ctx.withStore(func(st *store.Store, names []string) error {
		records, err := st.ListExecutions(cmd.Context(), limit, parsed...)
		if err != nil {
			return err
		}
		out = api.FromExecutions(records, names)
		return nil
	})
	return out, err
}

func getExecution(cmd *cobra.Command, ctx *commandContext, id string) (*api.Execution, error) {
	exec, err := ctx.apiClient().GetExecution(cmd.Context(), id)
	if err == nil {
		return exec, nil
	}
	if !daemonUnreachable(err) {
		return nil, err
	}
	var out *api.Execution
	err = ctx.withStore(func(st *store.Store, names []string) error {
		record, err := st.GetExecution(cmd.Context(), id)
		if err != nil || record == nil {
			return err
		}
		dto := api.FromExecution(*record, names)
		out = &dto
		return nil
	})
	return out, err
}

func (c *commandContext) withStore(fn func(*store.Store, []string) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	return errors.Join(fn(st, cfg.StageNames()), st.Close())
}

func renderExecutionTable(execs []api.Execution) string {
	rows := make([][]string, 0, len(execs))
	for _, exec := range execs {
		rows = append(rows, []string{
			exec.ID,
			displayStatus(exec.Status),
			dashIfEmpty(exec.CurrentStage),
			strconv.Itoa(len(exec.Stages)),
			dashIfEmpty(exec.StartedAt),
			formatMillis(exec.DurationMS),
			dashIfEmpty(truncate(exec.Error, 50)),
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Stage", "Done", "Started", "Duration", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	)
}

func printExecution(cmd *cobra.Command, exec api.Execution, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(cmd, exec)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Execution %s\n", exec.ID)
	fmt.Fprintf(out, "  Status:   %s\n", displayStatus(exec.Status))
	if exec.CurrentStage != "" {
		fmt.Fprintf(out, "  Stage:    %s\n", exec.CurrentStage)
	}
	fmt.Fprintf(out, "  Started:  %s\n", dashIfEmpty(exec.StartedAt))
	fmt.Fprintf(out, "  Finished: %s\n", dashIfEmpty(exec.FinishedAt))
	fmt.Fprintf(out, "  Duration: %s\n", formatMillis(exec.DurationMS))
	if exec.Error != "" {
		fmt.Fprintf(out, "  Error:    %s\n", exec.Error)
	}
	if len(exec.Output) > 0 {
		fmt.Fprintf(out, "  Output:   %s\n", truncate(string(exec.Output), 200))
	}
	if len(exec.Stages) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(exec.Stages))
	for _, result := range exec.Stages {
		outcome := "ok"
		switch {
		case result.Abandoned:
			outcome = "abandoned"
		case result.Error != "":
			outcome = "failed"
		}
		rows = append(rows, []string{
			strconv.Itoa(result.Index + 1),
			result.Name,
			outcome,
			formatMillis(result.DurationMS),
			dashIfEmpty(truncate(result.Error, 60)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Stage", "Outcome", "Duration", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	if ms < 1000 {
		return strconv.FormatInt(ms, 10) + "ms"
	}
	return strconv.FormatFloat(float64(ms)/1000, 'f', 1, 64) + "s"
}
