// Package fcm sends notifications to Android devices through Firebase Cloud
// Messaging.
package fcm

import (
	"context"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/pairbond/go-push-service/pkg/push"
)

const defaultSound = "default"

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

// NewDispatcher accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// Send delivers one payload to one FCM registration token. The SDK performs
// the authenticated POST against the FCM v1 messages:send endpoint for the
// configured project; the returned message name becomes the vendor message
// id. Vendor rejections and transport failures both collapse into a failed
// DispatchResult so a single bad recipient can never abort a fan-out.
func (d *Dispatcher) Send(ctx context.Context, token string, p push.Payload) push.DispatchResult {
	sound := p.Sound
	if sound == "" {
		sound = defaultSound
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title:    p.Title,
			Body:     p.Body,
			ImageURL: p.ImageURL,
		},
		Data: p.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:             sound,
				NotificationCount: p.Badge,
			},
		},
	}

	messageID, err := d.client.Send(ctx, msg)
	if err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err) {
			d.logger.Warn("FCM rejected token", "token_preview", push.TokenPreview(token), "err", err)
		} else {
			d.logger.Error("FCM transport failed", "token_preview", push.TokenPreview(token), "err", err)
		}
		return push.DispatchResult{Success: false, Error: err.Error()}
	}

	return push.DispatchResult{Success: true, MessageID: messageID}
}
