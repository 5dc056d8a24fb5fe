// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/pairbond/go-push-service/pkg/push"
)

const defaultSound = "default"

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string // The App Bundle ID (e.g. app.pairbond.ios)
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs requests.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file.
	P8KeyContent string
	// Production selects the production APNs host; false targets the sandbox.
	Production bool
}

// NewDispatcher creates a configured APNs dispatcher.
// It parses the P8 key immediately to fail fast on startup if credentials are
// bad. Bearer tokens are ES256 JWTs signed per request batch by the apns2
// token source, with kid from KeyID and iss/iat from TeamID and the clock.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Production {
		client.Production()
	} else {
		client.Development()
	}

	return &Dispatcher{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSDispatcher"),
	}, nil
}

// Send delivers one payload to one APNs device token. The aps block carries
// alert title/body, sound and badge; mutable-content is set when an image is
// attached so the client extension can fetch it, and the image URL plus the
// routing data ride alongside aps as custom keys.
func (d *Dispatcher) Send(ctx context.Context, deviceToken string, p push.Payload) push.DispatchResult {
	sound := p.Sound
	if sound == "" {
		sound = defaultSound
	}

	builder := payload.NewPayload().
		AlertTitle(p.Title).
		AlertBody(p.Body).
		Sound(sound)

	if p.Badge != nil {
		builder.Badge(*p.Badge)
	}
	if p.ImageURL != "" {
		builder.MutableContent()
		builder.Custom("imageUrl", p.ImageURL)
	}
	for k, v := range p.Data {
		builder.Custom(k, v)
	}

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       d.topic,
		Payload:     builder,
		Priority:    apns2.PriorityHigh,
		PushType:    apns2.PushTypeAlert,
	}

	res, err := d.client.PushWithContext(ctx, notification)
	if err != nil {
		d.logger.Error("APNs transport failed", "token_preview", push.TokenPreview(deviceToken), "err", err)
		return push.DispatchResult{Success: false, Error: err.Error()}
	}

	if !res.Sent() {
		reason := res.Reason
		if reason == "" {
			reason = fmt.Sprintf("apns rejected with status %d", res.StatusCode)
		}
		d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		return push.DispatchResult{Success: false, Error: reason}
	}

	return push.DispatchResult{Success: true, MessageID: res.ApnsID}
}
