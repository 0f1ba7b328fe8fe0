package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidflow/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test ntfy alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "ntfy topic not configured; set notifications.ntfy_topic")
				return nil
			}
			svc := notifications.NewService(cfg)
			if err := svc.Publish(cmd.Context(), notifications.EventTest, notifications.Payload{"message": message}); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "vidflow test notification", "Message body")
	return cmd
}
