package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidflow/internal/api"
	"vidflow/internal/router"
)

func newRouteCommand(ctx *commandContext) *cobra.Command {
	var eventPath string
	var submit bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Evaluate an upload event against the trigger rule",
		Long: "Evaluate an upload event against the trigger rule without starting anything.\n" +
			"With --submit the event is posted to the running daemon instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, eventPath)
			if err != nil {
				return err
			}
			if submit {
				return submitUpload(cmd, ctx, data, jsonOutput)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			events, err := router.ParseEvent(data)
			if err != nil {
				return err
			}
			r := router.New(router.RuleFromConfig(cfg.Trigger), nil)
			decisions := make([]router.Decision, 0, len(events))
			for _, ev := range events {
				decisions = append(decisions, r.Evaluate(ev))
			}
			if jsonOutput {
				return writeJSON(cmd, api.FromDecisions(decisions).Decisions)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDecisions(api.FromDecisions(decisions).Decisions))
			return nil
		},
	}

	cmd.Flags().StringVarP(&eventPath, "event", "e", "", "Upload event JSON file (- for stdin)")
	cmd.Flags().BoolVar(&submit, "submit", false, "Post the event to the running daemon")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func submitUpload(cmd *cobra.Command, ctx *commandContext, data []byte, jsonOutput bool) error {
	client := ctx.apiClient()
	resp, err := client.SubmitUpload(cmd.Context(), data)
	if err != nil {
		return wrapDaemonError(err, client.BaseURL())
	}
	if jsonOutput {
		return writeJSON(cmd, resp)
	}
	if len(resp.ExecutionIDs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No execution started; the event did not match the trigger rule")
		return nil
	}
	for _, id := range resp.ExecutionIDs {
		fmt.Fprintf(cmd.OutOrStdout(), "Started execution %s\n", id)
	}
	return nil
}

func renderDecisions(decisions []api.RouteDecision) string {
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		rows = append(rows, []string{
			dashIfEmpty(d.Bucket),
			dashIfEmpty(truncate(d.Key, 60)),
			yesNo(d.Matched),
			d.Reason,
		})
	}
	return renderTable(
		[]string{"Bucket", "Key", "Match", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
	)
}
