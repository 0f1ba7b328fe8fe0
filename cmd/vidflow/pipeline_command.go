package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidflow/internal/api"
	"vidflow/internal/app"
	"vidflow/internal/pipeline"
	"vidflow/internal/stage"
)

const waitPollInterval = 500 * time.Millisecond

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the stage pipeline directly",
	}
	pipelineCmd.AddCommand(newPipelineRunCommand(ctx))
	return pipelineCmd
}

func newPipelineRunCommand(ctx *commandContext) *cobra.Command {
	var inputValue string
	var inputFile string
	var wait bool
	var dryRun bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an execution on a JSON input",
		Long: "Start an execution on the running daemon, bypassing the trigger rule.\n" +
			"--dry-run runs locally with pass-through stages that echo their input,\n" +
			"which exercises the envelope handling without calling any stage endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := pipelineInput(cmd, inputValue, inputFile)
			if err != nil {
				return err
			}
			if dryRun {
				return runDryPipeline(cmd, ctx, input, jsonOutput)
			}

			client := ctx.apiClient()
			id, err := client.StartExecution(cmd.Context(), input)
			if err != nil {
				return wrapDaemonError(err, client.BaseURL())
			}
			if !wait {
				if jsonOutput {
					return writeJSON(cmd, api.StartExecutionResponse{ExecutionID: id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started execution %s\n", id)
				return nil
			}
			exec, err := waitForExecution(cmd, client, id)
			if err != nil {
				return err
			}
			return printExecution(cmd, *exec, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&inputValue, "input", "i", "", "Execution input as a JSON document")
	cmd.Flags().StringVarP(&inputFile, "input-file", "f", "", "Read execution input from a file (- for stdin)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the execution to finish and print it")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run locally with pass-through stages")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func pipelineInput(cmd *cobra.Command, value, file string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if (value == "") == (strings.TrimSpace(file) == "") {
		return nil, errors.New("exactly one of --input or --input-file is required")
	}
	data := []byte(value)
	if value == "" {
		var err error
		if data, err = readInput(cmd, file); err != nil {
			return nil, err
		}
	}
	if !stage.Payload(data).Valid() {
		return nil, errors.New("execution input must be a JSON document")
	}
	return data, nil
}

func runDryPipeline(cmd *cobra.Command, ctx *commandContext, input []byte, jsonOutput bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	var exec pipeline.Execution
	err = ctx.withApp(cmd, func(a *app.App) error {
		exec, _ = a.Orchestrator.Execute(cmd.Context(), stage.Payload(input))
		if exec.ID == "" {
			return errors.New("dry run did not start")
		}
		return nil
	}, app.WithHandlers(app.PassthroughHandlers(cfg)...))
	if err != nil {
		return err
	}
	return printExecution(cmd, api.FromExecution(exec, cfg.StageNames()), jsonOutput)
}

func waitForExecution(cmd *cobra.Command, client *api.Client, id string) (*api.Execution, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		exec, err := client.GetExecution(cmd.Context(), id)
		if err != nil {
			return nil, wrapDaemonError(err, client.BaseURL())
		}
		if exec != nil && pipeline.Status(exec.Status).Terminal() {
			return exec, nil
		}
		select {
		case <-cmd.Context().Done():
			return nil, cmd.Context().Err()
		case <-ticker.C:
		}
	}
}
