package appsync

import (
	"context"
	"encoding/json"
	"fmt"

	"vidflow/internal/cdc"
	"vidflow/internal/delivery"
	"vidflow/internal/services"
)

// Replay resends a dead-lettered call and returns the downstream id.
func Replay(ctx context.Context, downstream cdc.Downstream, letter delivery.Letter) (string, error) {
	switch letter.Operation {
	case cdc.OperationCreateVideo:
		var input cdc.VideoInput
		if err := json.Unmarshal(letter.Input, &input); err != nil {
			return "", services.Wrap(services.ErrValidation, "appsync", "replay", fmt.Sprintf("decode letter %s", letter.ID), err)
		}
		return downstream.CreateVideo(ctx, input)
	case cdc.OperationCreateVideoNotification:
		var input cdc.NotificationInput
		if err := json.Unmarshal(letter.Input, &input); err != nil {
			return "", services.Wrap(services.ErrValidation, "appsync", "replay", fmt.Sprintf("decode letter %s", letter.ID), err)
		}
		return downstream.CreateVideoNotification(ctx, input)
	default:
		return "", services.Wrap(services.ErrValidation, "appsync", "replay", fmt.Sprintf("unsupported operation %q", letter.Operation), nil)
	}
}
