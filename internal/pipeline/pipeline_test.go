package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pairbond/go-push-service/internal/pipeline"
	"github.com/pairbond/go-push-service/pkg/push"
)

type MockFanout struct {
	mock.Mock
}

func (m *MockFanout) SendToUser(ctx context.Context, userID string, p push.Payload) (push.FanoutSummary, error) {
	args := m.Called(ctx, userID, p)
	return args.Get(0).(push.FanoutSummary), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func msg(id, payload string) *messagepipeline.Message {
	return &messagepipeline.Message{
		MessageData: messagepipeline.MessageData{ID: id, Payload: []byte(payload)},
	}
}

func TestPushRequestTransformer(t *testing.T) {
	ctx := context.Background()

	t.Run("valid request passes through", func(t *testing.T) {
		req, skip, err := pipeline.PushRequestTransformer(ctx, msg("m1",
			`{"user_id":"u1","template":{"name":"daily_prompt","args":{"prompt":"hi"}}}`))

		require.NoError(t, err)
		assert.False(t, skip)
		require.NotNil(t, req)
		assert.Equal(t, "u1", req.UserID)
		assert.Equal(t, "daily_prompt", req.Template.Name)
	})

	t.Run("malformed json is skipped", func(t *testing.T) {
		req, skip, err := pipeline.PushRequestTransformer(ctx, msg("m2", `{not json`))

		require.Error(t, err)
		assert.True(t, skip)
		assert.Nil(t, req)
	})

	t.Run("missing user id is skipped", func(t *testing.T) {
		_, skip, err := pipeline.PushRequestTransformer(ctx, msg("m3",
			`{"payload":{"title":"t","body":"b"}}`))

		require.Error(t, err)
		assert.True(t, skip)
	})

	t.Run("both template and payload is skipped", func(t *testing.T) {
		_, skip, err := pipeline.PushRequestTransformer(ctx, msg("m4",
			`{"user_id":"u1","template":{"name":"daily_prompt"},"payload":{"title":"t","body":"b"}}`))

		require.Error(t, err)
		assert.True(t, skip)
	})
}

func TestProcessor(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("dispatches a resolved request", func(t *testing.T) {
		engine := new(MockFanout)
		processor := pipeline.NewProcessor(engine, logger)

		engine.On("SendToUser", ctx, "u1", mock.MatchedBy(func(p push.Payload) bool {
			return p.Body == "hi"
		})).Return(push.FanoutSummary{Attempted: 1, Sent: 1}, nil)

		req := &push.Request{
			UserID:   "u1",
			Template: &push.TemplateRef{Name: "daily_prompt", Args: []byte(`{"prompt":"hi"}`)},
		}
		err := processor(ctx, *msg("m1", ""), req)

		require.NoError(t, err)
		engine.AssertExpectations(t)
	})

	t.Run("unknown template is acked, not retried", func(t *testing.T) {
		engine := new(MockFanout)
		processor := pipeline.NewProcessor(engine, logger)

		req := &push.Request{UserID: "u1", Template: &push.TemplateRef{Name: "nope"}}
		err := processor(ctx, *msg("m2", ""), req)

		require.NoError(t, err)
		engine.AssertNotCalled(t, "SendToUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("registry failure propagates for retry", func(t *testing.T) {
		engine := new(MockFanout)
		processor := pipeline.NewProcessor(engine, logger)

		engine.On("SendToUser", ctx, "u1", mock.Anything).
			Return(push.FanoutSummary{}, errors.New("firestore unavailable"))

		req := &push.Request{UserID: "u1", Payload: &push.Payload{Title: "t", Body: "b"}}
		err := processor(ctx, *msg("m3", ""), req)

		require.Error(t, err)
	})
}
