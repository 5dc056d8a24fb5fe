package push

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidToken is returned when a raw token fails the platform's shape
// check. Validation always happens before any storage write or network call.
var ErrInvalidToken = errors.New("invalid device token")

var (
	// FCM registration tokens are long base64url strings.
	fcmTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{100,}$`)
	// APNs device tokens are 32 bytes, hex encoded.
	apnsTokenPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// ValidateToken checks the raw token shape for the given platform.
func ValidateToken(platform Platform, raw string) error {
	switch platform {
	case PlatformAndroid:
		if !fcmTokenPattern.MatchString(raw) {
			return fmt.Errorf("%w: fcm tokens are base64url strings of at least 100 characters", ErrInvalidToken)
		}
	case PlatformIOS:
		if !apnsTokenPattern.MatchString(raw) {
			return fmt.Errorf("%w: apns tokens are exactly 64 hex characters", ErrInvalidToken)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}
	return nil
}
