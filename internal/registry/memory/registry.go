// Package memory provides an in-process TokenRegistry, used by tests and by
// local runs that have no Firestore credentials.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pairbond/go-push-service/pkg/push"
)

type record struct {
	token push.DeviceToken
	seq   uint64 // insertion order, breaks RegisteredAt ties
}

// Registry keeps tokens in a map keyed by the raw token string, which gives
// the registry-wide uniqueness invariant for free.
type Registry struct {
	mu      sync.RWMutex
	tokens  map[string]record
	nextSeq uint64
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		tokens: make(map[string]record),
		now:    time.Now,
	}
}

func (r *Registry) Register(_ context.Context, userID, rawToken string, platform push.Platform) (string, error) {
	if err := push.ValidateToken(platform, rawToken); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tokens[rawToken]; ok {
		// Upsert: the device switched accounts. Reassign ownership, keep
		// the id and the original registration time.
		existing.token.UserID = userID
		r.tokens[rawToken] = existing
		return existing.token.ID, nil
	}

	r.nextSeq++
	rec := record{
		token: push.DeviceToken{
			ID:           uuid.NewString(),
			UserID:       userID,
			Token:        rawToken,
			Platform:     platform,
			RegisteredAt: r.now(),
		},
		seq: r.nextSeq,
	}
	r.tokens[rawToken] = rec
	return rec.token.ID, nil
}

func (r *Registry) TokensForUser(_ context.Context, userID string) ([]push.DeviceToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []record
	for _, rec := range r.tokens {
		if rec.token.UserID == userID {
			matched = append(matched, rec)
		}
	}
	return sortedTokens(matched), nil
}

func (r *Registry) AllTokens(_ context.Context) ([]push.DeviceToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]record, 0, len(r.tokens))
	for _, rec := range r.tokens {
		all = append(all, rec)
	}
	return sortedTokens(all), nil
}

func (r *Registry) Unregister(_ context.Context, rawToken, ownerUserID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tokens[rawToken]
	if !ok {
		return 0, nil
	}
	if ownerUserID != "" && rec.token.UserID != ownerUserID {
		return 0, nil
	}
	delete(r.tokens, rawToken)
	return 1, nil
}

// sortedTokens orders most-recent first.
func sortedTokens(records []record) []push.DeviceToken {
	sort.Slice(records, func(i, j int) bool {
		if records[i].token.RegisteredAt.Equal(records[j].token.RegisteredAt) {
			return records[i].seq > records[j].seq
		}
		return records[i].token.RegisteredAt.After(records[j].token.RegisteredAt)
	})

	tokens := make([]push.DeviceToken, 0, len(records))
	for _, rec := range records {
		tokens = append(tokens, rec.token)
	}
	return tokens
}
