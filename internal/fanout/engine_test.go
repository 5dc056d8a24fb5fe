package fanout_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairbond/go-push-service/internal/fanout"
	"github.com/pairbond/go-push-service/internal/registry/memory"
	"github.com/pairbond/go-push-service/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDispatcher records how it was called and tracks peak concurrency.
type fakeDispatcher struct {
	mu        sync.Mutex
	calls     int
	inFlight  atomic.Int64
	peak      atomic.Int64
	delay     time.Duration
	failEvery int // every Nth call fails; 0 means always succeed
}

func (f *fakeDispatcher) Send(ctx context.Context, token string, p push.Payload) push.DispatchResult {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		observed := f.peak.Load()
		if current <= observed || f.peak.CompareAndSwap(observed, current) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return push.DispatchResult{Success: false, Error: ctx.Err().Error()}
		}
	}

	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.failEvery > 0 && n%f.failEvery == 0 {
		return push.DispatchResult{Success: false, Error: "vendor said no"}
	}
	return push.DispatchResult{Success: true, MessageID: fmt.Sprintf("msg-%d", n)}
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func iosToken(i int) string {
	return fmt.Sprintf("%064x", i)
}

func androidToken(i int) string {
	return fmt.Sprintf("%s%08d", strings.Repeat("a1B2-c3_", 20), i)
}

func seedRegistry(t *testing.T, reg *memory.Registry, userID string, ios, android int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < ios; i++ {
		_, err := reg.Register(ctx, userID, iosToken(i+1), push.PlatformIOS)
		require.NoError(t, err)
	}
	for i := 0; i < android; i++ {
		_, err := reg.Register(ctx, userID, androidToken(i+1), push.PlatformAndroid)
		require.NoError(t, err)
	}
}

var payload = push.Payload{Title: "Hello", Body: "World"}

func TestSendToUser(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("zero devices is a zero-attempt summary, not an error", func(t *testing.T) {
		engine := fanout.NewEngine(fanout.Config{}, memory.NewRegistry(), nil, logger)

		summary, err := engine.SendToUser(ctx, "web-only-user", payload)

		require.NoError(t, err)
		assert.Equal(t, push.FanoutSummary{}, summary)
	})

	t.Run("all configured platforms succeed", func(t *testing.T) {
		reg := memory.NewRegistry()
		seedRegistry(t, reg, "u1", 2, 3)
		apns := &fakeDispatcher{}
		fcm := &fakeDispatcher{}
		engine := fanout.NewEngine(fanout.Config{}, reg, map[push.Platform]push.Dispatcher{
			push.PlatformIOS:     apns,
			push.PlatformAndroid: fcm,
		}, logger)

		summary, err := engine.SendToUser(ctx, "u1", payload)

		require.NoError(t, err)
		assert.Equal(t, 5, summary.Attempted)
		assert.Equal(t, 5, summary.Sent)
		assert.Equal(t, 0, summary.Failed)
		assert.Equal(t, 2, apns.callCount())
		assert.Equal(t, 3, fcm.callCount())
	})

	t.Run("missing platform credentials become per-token failures", func(t *testing.T) {
		reg := memory.NewRegistry()
		seedRegistry(t, reg, "u1", 1, 1)
		fcm := &fakeDispatcher{}
		// No APNs dispatcher configured.
		engine := fanout.NewEngine(fanout.Config{}, reg, map[push.Platform]push.Dispatcher{
			push.PlatformAndroid: fcm,
		}, logger)

		summary, err := engine.SendToUser(ctx, "u1", payload)

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Attempted)
		assert.Equal(t, 1, summary.Sent)
		assert.Equal(t, 1, summary.Failed)
		require.Len(t, summary.Failures, 1)
		assert.Contains(t, summary.Failures[0], "not configured")
		assert.Contains(t, summary.Failures[0], "ios")
	})

	t.Run("a failing subset does not fail the rest", func(t *testing.T) {
		reg := memory.NewRegistry()
		seedRegistry(t, reg, "u1", 0, 4)
		fcm := &fakeDispatcher{failEvery: 2}
		engine := fanout.NewEngine(fanout.Config{}, reg, map[push.Platform]push.Dispatcher{
			push.PlatformAndroid: fcm,
		}, logger)

		summary, err := engine.SendToUser(ctx, "u1", payload)

		require.NoError(t, err)
		assert.Equal(t, 4, summary.Attempted)
		assert.Equal(t, 2, summary.Sent)
		assert.Equal(t, 2, summary.Failed)
		assert.Len(t, summary.Failures, 2)
	})

	t.Run("rejects payload without a body", func(t *testing.T) {
		engine := fanout.NewEngine(fanout.Config{}, memory.NewRegistry(), nil, logger)
		_, err := engine.SendToUser(ctx, "u1", push.Payload{Title: "no body"})
		assert.ErrorIs(t, err, push.ErrInvalidPayload)
	})
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("empty registry yields zero summary", func(t *testing.T) {
		engine := fanout.NewEngine(fanout.Config{}, memory.NewRegistry(), nil, logger)

		summary, err := engine.Broadcast(ctx, payload)

		require.NoError(t, err)
		assert.Equal(t, push.BroadcastSummary{}, summary)
	})

	t.Run("250 devices across batches of 100", func(t *testing.T) {
		reg := memory.NewRegistry()
		for i := 0; i < 250; i++ {
			_, err := reg.Register(ctx, fmt.Sprintf("user-%d", i%50), androidToken(i+1), push.PlatformAndroid)
			require.NoError(t, err)
		}
		fcm := &fakeDispatcher{delay: time.Millisecond}
		engine := fanout.NewEngine(fanout.Config{BatchSize: 100}, reg, map[push.Platform]push.Dispatcher{
			push.PlatformAndroid: fcm,
		}, logger)

		summary, err := engine.Broadcast(ctx, payload)

		require.NoError(t, err)
		assert.Equal(t, 250, summary.TotalDevices)
		assert.Equal(t, 250, summary.Sent)
		assert.Equal(t, 0, summary.Failed)
		assert.Equal(t, 250, fcm.callCount())
		assert.LessOrEqual(t, fcm.peak.Load(), int64(100), "concurrency must stay within one batch")
	})

	t.Run("running totals accumulate across batches", func(t *testing.T) {
		reg := memory.NewRegistry()
		for i := 0; i < 10; i++ {
			_, err := reg.Register(ctx, "u1", androidToken(i+1), push.PlatformAndroid)
			require.NoError(t, err)
		}
		fcm := &fakeDispatcher{failEvery: 5}
		engine := fanout.NewEngine(fanout.Config{BatchSize: 3}, reg, map[push.Platform]push.Dispatcher{
			push.PlatformAndroid: fcm,
		}, logger)

		summary, err := engine.Broadcast(ctx, payload)

		require.NoError(t, err)
		assert.Equal(t, 10, summary.TotalDevices)
		assert.Equal(t, 8, summary.Sent)
		assert.Equal(t, 2, summary.Failed)
	})
}
