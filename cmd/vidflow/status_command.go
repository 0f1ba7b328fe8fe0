package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"vidflow/internal/api"
	"vidflow/internal/app"
	"vidflow/internal/appsync"
	"vidflow/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and dependency checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var lines []string
			lines = append(lines, renderSectionHeader("Daemon", colorize)...)
			client := ctx.apiClient()
			status, statusErr := client.Status(cmd.Context())
			lines = append(lines, daemonLines(status, statusErr, client.BaseURL(), colorize)...)

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			results := preflight.RunAll(cmd.Context(), cfg)
			results = append(results, preflight.CheckStages(cmd.Context(), app.StageHandlers(cfg))...)
			results = append(results, preflight.CheckNtfyFromConfig(cfg))
			if !offline {
				results = append(results,
					preflight.CheckAppSync(cmd.Context(), appsync.NewFromConfig(cfg)),
					preflight.CheckAMQPFromConfig(cmd.Context(), cfg),
					preflight.CheckJetStreamFromConfig(cmd.Context(), cfg),
				)
			}
			optional := map[string]bool{"RabbitMQ": true, "NATS JetStream": true}
			lines = append(lines, checkLines(results, optional, colorize)...)

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if failed := preflight.Failed(results); len(failed) > 0 {
				for _, result := range failed {
					if !optional[result.Name] {
						return fmt.Errorf("%d dependency check(s) failed", len(failed))
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that contact AppSync or the brokers")
	return cmd
}

func daemonLines(status *api.DaemonStatus, err error, address string, colorize bool) []string {
	if err != nil {
		message := "Not reachable at " + dashIfEmpty(address)
		if !daemonUnreachable(err) {
			message = err.Error()
		}
		return []string{renderStatusLine("vidflowd", statusWarn, message, colorize)}
	}

	state, kind := "Stopped", statusWarn
	if status.Running {
		state, kind = fmt.Sprintf("Running (pid %d)", status.PID), statusOK
	}
	lines := []string{
		renderStatusLine("vidflowd", kind, state, colorize),
		renderStatusLine("API", statusInfo, dashIfEmpty(status.APIBind), colorize),
		renderStatusLine("Archive", statusInfo, status.StorePath, colorize),
	}

	intake, intakeKind := "Accepting", statusOK
	if !status.Pipeline.Accepting {
		intake, intakeKind = "Closed", statusWarn
	}
	lines = append(lines,
		renderStatusLine("Pipeline", intakeKind, fmt.Sprintf("%s, %d in flight, timeout %s", intake, status.Pipeline.InFlight, status.Pipeline.Timeout), colorize),
		renderStatusLine("Stages", statusInfo, strings.Join(status.Pipeline.Stages, " -> "), colorize),
	)
	if counts := formatCounts(status.Archived); counts != "" {
		lines = append(lines, renderStatusLine("Archived", statusInfo, counts, colorize))
	}
	if status.Pipeline.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, truncate(status.Pipeline.LastError, 80), colorize))
	}
	for _, t := range status.Transports {
		kind := statusInfo
		switch {
		case t.Enabled && t.Detail == "connected":
			kind = statusOK
		case t.Enabled:
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(t.Name, kind, t.Detail, colorize))
	}
	letterKind := statusOK
	if status.DeadLetters > 0 {
		letterKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Dead letters", letterKind, fmt.Sprintf("%d", status.DeadLetters), colorize))
	return lines
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", displayStatus(key), counts[key]))
	}
	return strings.Join(parts, ", ")
}
