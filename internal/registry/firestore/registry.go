// Package firestore is the canonical TokenRegistry backend.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pairbond/go-push-service/pkg/push"
)

const collectionName = "device_tokens"

// Registry implements push.TokenRegistry on Google Cloud Firestore.
//
// The collection is flat and keyed by sha256(raw token): the token string is
// unique across the whole registry, so the document id enforces the upsert
// invariant without any cross-record locking.
type Registry struct {
	client *firestore.Client
}

func NewRegistry(client *firestore.Client) *Registry {
	return &Registry{client: client}
}

// tokenRecord is the internal DB representation.
type tokenRecord struct {
	ID           string    `firestore:"id"`
	UserID       string    `firestore:"user_id"`
	Token        string    `firestore:"token"`
	Platform     string    `firestore:"platform"`
	RegisteredAt time.Time `firestore:"registered_at"`
}

func (rec tokenRecord) toDomain() push.DeviceToken {
	return push.DeviceToken{
		ID:           rec.ID,
		UserID:       rec.UserID,
		Token:        rec.Token,
		Platform:     push.Platform(rec.Platform),
		RegisteredAt: rec.RegisteredAt,
	}
}

func (r *Registry) Register(ctx context.Context, userID, rawToken string, platform push.Platform) (string, error) {
	if err := push.ValidateToken(platform, rawToken); err != nil {
		return "", err
	}

	docRef := r.tokenRef(rawToken)

	snap, err := docRef.Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return "", fmt.Errorf("firestore lookup failed: %w", err)
	}

	if err == nil {
		// Upsert: the device moved to another account. Ownership changes,
		// the id and original registration time stay.
		var existing tokenRecord
		if decodeErr := snap.DataTo(&existing); decodeErr != nil {
			return "", fmt.Errorf("corrupt token record: %w", decodeErr)
		}
		if existing.UserID != userID {
			if _, updateErr := docRef.Update(ctx, []firestore.Update{
				{Path: "user_id", Value: userID},
			}); updateErr != nil {
				return "", fmt.Errorf("failed to reassign token owner: %w", updateErr)
			}
		}
		return existing.ID, nil
	}

	record := tokenRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		Token:        rawToken,
		Platform:     string(platform),
		RegisteredAt: time.Now(),
	}
	if _, err := docRef.Set(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return record.ID, nil
}

func (r *Registry) TokensForUser(ctx context.Context, userID string) ([]push.DeviceToken, error) {
	query := r.collection().
		Where("user_id", "==", userID).
		OrderBy("registered_at", firestore.Desc)
	return collectTokens(query.Documents(ctx))
}

func (r *Registry) AllTokens(ctx context.Context) ([]push.DeviceToken, error) {
	query := r.collection().OrderBy("registered_at", firestore.Desc)
	return collectTokens(query.Documents(ctx))
}

func (r *Registry) Unregister(ctx context.Context, rawToken, ownerUserID string) (int, error) {
	docRef := r.tokenRef(rawToken)

	snap, err := docRef.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("firestore lookup failed: %w", err)
	}

	if ownerUserID != "" {
		var rec tokenRecord
		if decodeErr := snap.DataTo(&rec); decodeErr != nil {
			return 0, fmt.Errorf("corrupt token record: %w", decodeErr)
		}
		if rec.UserID != ownerUserID {
			return 0, nil
		}
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete token: %w", err)
	}
	return 1, nil
}

// --- Helpers ---

func (r *Registry) collection() *firestore.CollectionRef {
	return r.client.Collection(collectionName)
}

func (r *Registry) tokenRef(rawToken string) *firestore.DocumentRef {
	return r.collection().Doc(hashToken(rawToken))
}

func collectTokens(iter *firestore.DocumentIterator) ([]push.DeviceToken, error) {
	defer iter.Stop()

	tokens := make([]push.DeviceToken, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var rec tokenRecord
		if err := doc.DataTo(&rec); err != nil {
			// Skip corrupt rows rather than failing the whole read.
			continue
		}
		tokens = append(tokens, rec.toDomain())
	}
	return tokens, nil
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
