package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/pairbond/go-push-service/internal/templates"
	"github.com/pairbond/go-push-service/pkg/push"
)

// Fanout is the engine surface the processor needs.
type Fanout interface {
	SendToUser(ctx context.Context, userID string, p push.Payload) (push.FanoutSummary, error)
}

// NewProcessor creates the logic that turns one validated request into one
// fan-out run.
func NewProcessor(engine Fanout, logger *slog.Logger) messagepipeline.StreamProcessor[push.Request] {
	return func(ctx context.Context, original messagepipeline.Message, request *push.Request) error {
		procLogger := logger.With(
			"user_id", request.UserID,
			"pubsub_msg_id", original.ID,
		)

		payload, err := templates.Resolve(*request)
		if err != nil {
			// A bad template reference can never succeed on retry. Log and
			// ack so the subscription does not loop on it.
			if errors.Is(err, templates.ErrUnknownTemplate) || errors.Is(err, templates.ErrBadTemplateArgs) {
				procLogger.Error("Dropping request with unusable template", "err", err)
				return nil
			}
			procLogger.Error("Dropping request with invalid payload", "err", err)
			return nil
		}

		summary, err := engine.SendToUser(ctx, request.UserID, payload)
		if err != nil {
			// Registry failure: retryable.
			procLogger.Error("Fan-out failed", "err", err)
			return err
		}

		procLogger.Info("Fan-out dispatched",
			"attempted", summary.Attempted,
			"sent", summary.Sent,
			"failed", summary.Failed,
		)
		return nil
	}
}
