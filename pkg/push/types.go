// Package push contains the public domain types and interfaces for the
// push delivery engine.
package push

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Platform identifies which vendor protocol a device token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ErrInvalidPlatform is returned when a caller supplies a platform value
// outside the closed ios/android set.
var ErrInvalidPlatform = errors.New("invalid platform")

// ParsePlatform validates a raw platform string from an API request.
func ParsePlatform(raw string) (Platform, error) {
	switch Platform(raw) {
	case PlatformIOS, PlatformAndroid:
		return Platform(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPlatform, raw)
	}
}

// DeviceToken is one registered delivery address. The raw Token string is
// unique across the whole registry: re-registration under a different user
// reassigns ownership rather than creating a second record.
type DeviceToken struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Token        string    `json:"token"`
	Platform     Platform  `json:"platform"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Preview returns a short, non-reversible identifier for the token, safe to
// expose in API responses and logs.
func (t DeviceToken) Preview() string {
	return TokenPreview(t.Token)
}

// TokenPreview hashes a raw token and keeps a short prefix. The raw value
// must never leave the service once registered.
func TokenPreview(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:12]
}

// ErrInvalidPayload is returned when a payload is missing a required field.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is the vendor-neutral notification content. Title and Body are
// required; everything else is optional and dispatchers must tolerate the
// zero values.
//
// Data values are strings because FCM's data block only carries strings;
// both platforms converge on that shape.
type Payload struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	ImageURL string            `json:"image_url,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
	Sound    string            `json:"sound,omitempty"`
}

// Validate enforces the required-field invariant.
func (p Payload) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidPayload)
	}
	if p.Body == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidPayload)
	}
	return nil
}

// TemplateRef names a catalog template together with its named arguments.
// Args are decoded strictly per template, so a missing or unknown argument
// is a validation error rather than a silently empty field.
type TemplateRef struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Request is one logical "send a notification to this user" instruction,
// carried over HTTP or the Pub/Sub ingress. Exactly one of Template and
// Payload must be set.
type Request struct {
	UserID   string       `json:"user_id"`
	Template *TemplateRef `json:"template,omitempty"`
	Payload  *Payload     `json:"payload,omitempty"`
}

// Validate checks the structural invariants; template names and argument
// shapes are checked later by the catalog.
func (r Request) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidPayload)
	}
	if (r.Template == nil) == (r.Payload == nil) {
		return fmt.Errorf("%w: exactly one of template and payload must be set", ErrInvalidPayload)
	}
	return nil
}

// DispatchResult is the per-token outcome of one vendor call. Dispatchers
// never propagate errors past this shape: vendor rejections and transport
// failures both land in Error.
type DispatchResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FanoutSummary aggregates one fan-out run over a single user's devices.
type FanoutSummary struct {
	Attempted int      `json:"attempted"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Failures  []string `json:"failures,omitempty"`
}

// BroadcastSummary aggregates one broadcast run over the whole registry.
type BroadcastSummary struct {
	TotalDevices int      `json:"total_devices"`
	Sent         int      `json:"sent"`
	Failed       int      `json:"failed"`
	Failures     []string `json:"failures,omitempty"`
}
