// Package pipeline contains the message processing components for the
// asynchronous Pub/Sub ingress. Backend jobs (anniversary crons, partner
// activity events) enqueue send requests here instead of calling the HTTP API.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/pairbond/go-push-service/pkg/push"
)

// PushRequestTransformer safely unmarshals and validates a raw message
// payload into a structured push.Request.
//
// A malformed message returns an error with skip=true so the
// StreamingService can handle the Nack/DLQ logic instead of looping on a
// poison pill.
func PushRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*push.Request, bool, error) {
	var req push.Request

	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal push request from message %s: %w", msg.ID, err)
	}

	if err := req.Validate(); err != nil {
		return nil, true, fmt.Errorf("invalid push request in message %s: %w", msg.ID, err)
	}

	return &req, false, nil
}
