package push

import "context"

// Dispatcher sends one rendered payload to one device token over one vendor
// protocol (APNs or FCM). Implementations convert vendor rejections and
// transport failures into failed DispatchResults instead of returning errors,
// so a bad recipient can never abort a fan-out.
type Dispatcher interface {
	Send(ctx context.Context, token string, p Payload) DispatchResult
}

// TokenRegistry owns device token registration, lookup and removal.
type TokenRegistry interface {
	// Register validates the token shape for the platform and upserts it.
	// If the raw token already exists the record's owner is reassigned to
	// userID and the existing id is returned; otherwise a new record is
	// created. Returns the token id.
	Register(ctx context.Context, userID, rawToken string, platform Platform) (string, error)

	// TokensForUser returns all tokens owned by the user, most-recent first.
	// A user with no devices yields an empty slice, not an error.
	TokensForUser(ctx context.Context, userID string) ([]DeviceToken, error)

	// AllTokens returns the full registry snapshot, most-recent first.
	// Used only by broadcast.
	AllTokens(ctx context.Context) ([]DeviceToken, error)

	// Unregister deletes the record matching rawToken and returns how many
	// rows were removed (0 or 1). When ownerUserID is non-empty the delete
	// is additionally scoped to that owner, so one account cannot remove
	// another account's device. A missing token is not an error.
	Unregister(ctx context.Context, rawToken, ownerUserID string) (int, error)
}
