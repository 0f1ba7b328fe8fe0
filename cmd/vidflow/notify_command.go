package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidflow/internal/api"
	"vidflow/internal/app"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var batchPath string
	var submit bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Process a change-record batch",
		Long: "Apply the notification policy to a change-record batch and call the\n" +
			"downstream API for each record. With --submit the batch is posted to the\n" +
			"running daemon instead of being processed locally.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, batchPath)
			if err != nil {
				return err
			}

			var resp api.ChangeBatchResponse
			if submit {
				client := ctx.apiClient()
				submitted, err := client.SubmitChanges(cmd.Context(), data)
				if err != nil {
					return wrapDaemonError(err, client.BaseURL())
				}
				resp = *submitted
			} else {
				err = ctx.withApp(cmd, func(a *app.App) error {
					result, err := a.Notifier.HandleRaw(cmd.Context(), data)
					if err != nil {
						return err
					}
					resp = api.FromBatchResult(result)
					return nil
				})
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				if err := writeJSON(cmd, resp); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderBatch(resp))
				fmt.Fprintf(out, "%d record(s), %d with failures\n", len(resp.Records), resp.Failures)
			}
			if resp.Failures > 0 {
				return fmt.Errorf("%d record(s) had failed downstream calls", resp.Failures)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&batchPath, "file", "f", "", "Change-record batch JSON file (- for stdin)")
	cmd.Flags().BoolVar(&submit, "submit", false, "Post the batch to the running daemon")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func renderBatch(resp api.ChangeBatchResponse) string {
	rows := make([][]string, 0, len(resp.Records))
	for _, rec := range resp.Records {
		notification := "suppressed"
		if rec.Notification != nil {
			notification = callSummary(*rec.Notification)
		}
		rows = append(rows, []string{
			dashIfEmpty(rec.RecordID),
			dashIfEmpty(rec.EventName),
			rec.Action,
			dashIfEmpty(rec.VideoID),
			callSummary(rec.Video),
			notification,
		})
	}
	return renderTable(
		[]string{"Record", "Event", "Action", "Video", "createVideo", "Notification"},
		rows,
		nil,
	)
}

func callSummary(call api.CallResult) string {
	if call.Error != "" {
		return "error: " + truncate(call.Error, 50)
	}
	return "ok " + dashIfEmpty(call.ID)
}
