package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidflow/internal/api"
	"vidflow/internal/appsync"
	"vidflow/internal/cdc"
	"vidflow/internal/delivery"
	"vidflow/internal/store"
)

func newDeadLettersCommand(ctx *commandContext) *cobra.Command {
	dlCmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dlq"},
		Short:   "Inspect and replay dead-lettered downstream calls",
	}
	dlCmd.AddCommand(newDeadLettersListCommand(ctx))
	dlCmd.AddCommand(newDeadLettersReplayCommand(ctx))
	return dlCmd
}

func newDeadLettersListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters stored in the local archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			var letters []api.DeadLetter
			err := ctx.withStore(func(st *store.Store, _ []string) error {
				stored, err := st.ListDeadLetters(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, letter := range stored {
					letters = append(letters, api.FromLetter(letter))
				}
				return nil
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				if letters == nil {
					letters = []api.DeadLetter{}
				}
				return writeJSON(cmd, letters)
			}
			if len(letters) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No dead letters")
				return nil
			}
			rows := make([][]string, 0, len(letters))
			for _, letter := range letters {
				rows = append(rows, []string{
					letter.ID,
					letter.Operation,
					dashIfEmpty(letter.RecordID),
					strconv.Itoa(letter.Attempts),
					dashIfEmpty(letter.CreatedAt),
					truncate(letter.Error, 60),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Operation", "Record", "Attempts", "Created", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of letters")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newDeadLettersReplayCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "replay [id...]",
		Short: "Resend dead letters to the downstream API and remove the ones that succeed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass letter ids or --all")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client := appsync.NewFromConfig(cfg)
			var failed int
			err = ctx.withStore(func(st *store.Store, _ []string) error {
				letters, err := selectLetters(cmd.Context(), st, args, all)
				if err != nil {
					return err
				}
				if len(letters) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No dead letters to replay")
					return nil
				}
				for _, letter := range letters {
					if !replayLetter(cmd, st, client, letter) {
						failed++
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d dead letter(s) could not be replayed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Replay every stored letter")
	return cmd
}

func selectLetters(ctx context.Context, st *store.Store, ids []string, all bool) ([]delivery.Letter, error) {
	if all {
		return st.ListDeadLetters(ctx, 0)
	}
	letters := make([]delivery.Letter, 0, len(ids))
	for _, id := range ids {
		letter, err := st.GetDeadLetter(ctx, strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		if letter == nil {
			return nil, fmt.Errorf("dead letter %s not found", id)
		}
		letters = append(letters, *letter)
	}
	return letters, nil
}

func replayLetter(cmd *cobra.Command, st *store.Store, downstream cdc.Downstream, letter delivery.Letter) bool {
	out := cmd.OutOrStdout()
	id, err := appsync.Replay(cmd.Context(), downstream, letter)
	if err != nil {
		fmt.Fprintf(out, "%s: %s failed: %v\n", letter.ID, letter.Operation, err)
		return false
	}
	if _, err := st.DeleteDeadLetter(cmd.Context(), letter.ID); err != nil {
		fmt.Fprintf(out, "%s: replayed as %s but could not be removed: %v\n", letter.ID, id, err)
		return false
	}
	fmt.Fprintf(out, "%s: %s replayed as %s\n", letter.ID, letter.Operation, dashIfEmpty(id))
	return true
}
