package notifications

import (
	"context"
	"log/slog"

	"vidflow/internal/delivery"
	"vidflow/internal/logging"
	"vidflow/internal/pipeline"
)

// ExecutionAlerts returns a pipeline observer that publishes FAILED and
// TIMED_OUT executions. names are the stage names used to label the failing
// stage.
func ExecutionAlerts(svc Service, names []string) pipeline.Observer {
	return pipeline.ObserverFunc(func(ctx context.Context, exec pipeline.Execution) error {
		var event Event
		switch exec.Status {
		case pipeline.StatusFailed:
			event = EventExecutionFailed
		case pipeline.StatusTimedOut:
			event = EventExecutionTimedOut
		default:
			return nil
		}
		payload := Payload{
			"executionID": exec.ID,
			"stage":       exec.StageName(names),
			"error":       exec.Error,
		}
		var input struct {
			Key string `json:"key"`
		}
		if err := exec.Input.Decode(&input); err == nil {
			payload["key"] = input.Key
		}
		return svc.Publish(context.WithoutCancel(ctx), event, payload)
	})
}

// DeadLetterAlerts returns a delivery.NewDeadLetter listener publishing each
// stored letter. Publish failures are logged.
func DeadLetterAlerts(svc Service, logger *slog.Logger) func(context.Context, delivery.Letter) {
	logger = logging.NewComponentLogger(logger, "notifications")
	return func(ctx context.Context, letter delivery.Letter) {
		err := svc.Publish(context.WithoutCancel(ctx), EventDeadLetter, Payload{
			"operation": letter.Operation,
			"attempts":  letter.Attempts,
			"recordID":  letter.RecordID,
			"error":     letter.Error,
		})
		if err != nil {
			logging.WarnWithContext(logger, "dead letter alert failed", "notification_failed",
				logging.String("letter_id", letter.ID),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.Error(err),
			)
		}
	}
}
