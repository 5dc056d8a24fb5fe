package cache_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pairbond/go-push-service/internal/registry/cache"
	"github.com/pairbond/go-push-service/pkg/push"
)

// --- Mocks ---

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Register(ctx context.Context, userID, rawToken string, platform push.Platform) (string, error) {
	args := m.Called(ctx, userID, rawToken, platform)
	return args.String(0), args.Error(1)
}
func (m *MockRegistry) TokensForUser(ctx context.Context, userID string) ([]push.DeviceToken, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]push.DeviceToken), args.Error(1)
}
func (m *MockRegistry) AllTokens(ctx context.Context) ([]push.DeviceToken, error) {
	args := m.Called(ctx)
	return args.Get(0).([]push.DeviceToken), args.Error(1)
}
func (m *MockRegistry) Unregister(ctx context.Context, rawToken, ownerUserID string) (int, error) {
	args := m.Called(ctx, rawToken, ownerUserID)
	return args.Int(0), args.Error(1)
}

var iosToken = strings.Repeat("ab12", 16)

func TestCachedRegistry_ReadAside(t *testing.T) {
	ctx := context.Background()
	cacheKey := "push:tokens:u1"
	tokens := []push.DeviceToken{{ID: "id-1", UserID: "u1", Token: iosToken, Platform: push.PlatformIOS}}

	t.Run("miss falls through and populates", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRegistry)
		registry := cache.NewCachedRegistry(mockDB, mockCache, time.Hour)

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(errors.New("redis: nil"))
		mockDB.On("TokensForUser", ctx, "u1").Return(tokens, nil)
		mockCache.On("Set", ctx, cacheKey, tokens, time.Hour).Return(nil)

		got, err := registry.TokensForUser(ctx, "u1")

		require.NoError(t, err)
		assert.Equal(t, tokens, got)
		mockCache.AssertExpectations(t)
		mockDB.AssertExpectations(t)
	})

	t.Run("hit skips the real registry", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRegistry)
		registry := cache.NewCachedRegistry(mockDB, mockCache, time.Hour)

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(nil)

		_, err := registry.TokensForUser(ctx, "u1")

		require.NoError(t, err)
		mockDB.AssertNotCalled(t, "TokensForUser", mock.Anything, mock.Anything)
	})

	t.Run("set failure is swallowed", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRegistry)
		registry := cache.NewCachedRegistry(mockDB, mockCache, time.Hour)

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(errors.New("redis: nil"))
		mockDB.On("TokensForUser", ctx, "u1").Return(tokens, nil)
		mockCache.On("Set", ctx, cacheKey, tokens, time.Hour).Return(errors.New("redis down"))

		got, err := registry.TokensForUser(ctx, "u1")

		require.NoError(t, err)
		assert.Equal(t, tokens, got)
	})
}

func TestCachedRegistry_ImmediateInvalidation(t *testing.T) {
	ctx := context.Background()

	t.Run("register invalidates the new owner's list", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRegistry)
		registry := cache.NewCachedRegistry(mockDB, mockCache, time.Hour)

		mockDB.On("Register", ctx, "u1", iosToken, push.PlatformIOS).Return("id-1", nil)
		mockCache.On("Del", ctx, "push:tokens:u1").Return(nil)

		id, err := registry.Register(ctx, "u1", iosToken, push.PlatformIOS)

		require.NoError(t, err)
		assert.Equal(t, "id-1", id)
		mockCache.AssertExpectations(t)
	})

	t.Run("scoped unregister invalidates immediately", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRegistry)
		registry := cache.NewCachedRegistry(mockDB, mockCache, time.Hour)

		mockDB.On("Unregister", ctx, iosToken, "u1").Return(1, nil)
		mockCache.On("Del", ctx, "push:tokens:u1").Return(nil)

		deleted, err := registry.Unregister(ctx, iosToken, "u1")

		require.NoError(t, err)
		assert.Equal(t, 1, deleted)
		mockCache.AssertExpectations(t)
	})

	t.Run("failed register does not touch the cache", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRegistry)
		registry := cache.NewCachedRegistry(mockDB, mockCache, time.Hour)

		mockDB.On("Register", ctx, "u1", "bad", push.PlatformIOS).Return("", push.ErrInvalidToken)

		_, err := registry.Register(ctx, "u1", "bad", push.PlatformIOS)

		assert.ErrorIs(t, err, push.ErrInvalidToken)
		mockCache.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
	})
}

func TestCachedRegistry_AllTokensPassesThrough(t *testing.T) {
	ctx := context.Background()
	mockCache := new(MockCache)
	mockDB := new(MockRegistry)
	registry := cache.NewCachedRegistry(mockDB, mockCache, time.Hour)

	snapshot := []push.DeviceToken{{ID: "id-1"}, {ID: "id-2"}}
	mockDB.On("AllTokens", ctx).Return(snapshot, nil)

	got, err := registry.AllTokens(ctx)

	require.NoError(t, err)
	assert.Equal(t, snapshot, got)
	mockCache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}
