// Package fanout sends one rendered payload to many devices: every device a
// user owns, or every device in the registry.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pairbond/go-push-service/pkg/push"
)

const (
	// DefaultBatchSize caps concurrent outbound dispatches during a
	// broadcast; batches are sequential with respect to each other.
	DefaultBatchSize = 100

	// DefaultDispatchTimeout bounds a single vendor round trip so one
	// hanging recipient cannot stall a whole batch.
	DefaultDispatchTimeout = 10 * time.Second
)

// Config tunes the engine. Zero values fall back to the defaults above.
type Config struct {
	BatchSize       int
	DispatchTimeout time.Duration
}

// Engine routes each token to the dispatcher for its platform. Platforms
// missing from the table produce synthetic "not configured" failures; they
// never abort the run.
type Engine struct {
	registry        push.TokenRegistry
	dispatchers     map[push.Platform]push.Dispatcher
	batchSize       int
	dispatchTimeout time.Duration
	logger          *slog.Logger
}

// NewEngine assembles an engine over a registry and a dispatcher lookup
// table. Only configured platforms appear in the table.
func NewEngine(
	cfg Config,
	registry push.TokenRegistry,
	dispatchers map[push.Platform]push.Dispatcher,
	logger *slog.Logger,
) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	return &Engine{
		registry:        registry,
		dispatchers:     dispatchers,
		batchSize:       cfg.BatchSize,
		dispatchTimeout: cfg.DispatchTimeout,
		logger:          logger.With("component", "FanoutEngine"),
	}
}

// SendToUser fans the payload out to every device the user has registered.
// All dispatches run concurrently; results are tallied, not ordered. A user
// with no devices is a normal zero-attempt outcome, not an error.
func (e *Engine) SendToUser(ctx context.Context, userID string, p push.Payload) (push.FanoutSummary, error) {
	if err := p.Validate(); err != nil {
		return push.FanoutSummary{}, err
	}

	tokens, err := e.registry.TokensForUser(ctx, userID)
	if err != nil {
		return push.FanoutSummary{}, fmt.Errorf("failed to resolve tokens for user %s: %w", userID, err)
	}
	if len(tokens) == 0 {
		e.logger.Info("No devices registered for user; nothing to send.", "user_id", userID)
		return push.FanoutSummary{}, nil
	}

	results := e.dispatchBatch(ctx, tokens, p)

	summary := push.FanoutSummary{Attempted: len(tokens)}
	for _, res := range results {
		if res.Success {
			summary.Sent++
		} else {
			summary.Failed++
			summary.Failures = append(summary.Failures, res.Error)
		}
	}

	e.logger.Info("Fan-out complete",
		"user_id", userID,
		"attempted", summary.Attempted,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)
	return summary, nil
}

// Broadcast sends the payload to every registered device. The token list is
// partitioned into fixed-size batches processed sequentially; dispatches
// within a batch run concurrently, so peak outbound concurrency is the batch
// size no matter how large the registry grows.
func (e *Engine) Broadcast(ctx context.Context, p push.Payload) (push.BroadcastSummary, error) {
	if err := p.Validate(); err != nil {
		return push.BroadcastSummary{}, err
	}

	tokens, err := e.registry.AllTokens(ctx)
	if err != nil {
		return push.BroadcastSummary{}, fmt.Errorf("failed to load registry snapshot: %w", err)
	}

	summary := push.BroadcastSummary{TotalDevices: len(tokens)}
	if len(tokens) == 0 {
		return summary, nil
	}

	batches := 0
	for start := 0; start < len(tokens); start += e.batchSize {
		end := min(start+e.batchSize, len(tokens))
		batches++

		for _, res := range e.dispatchBatch(ctx, tokens[start:end], p) {
			if res.Success {
				summary.Sent++
			} else {
				summary.Failed++
				summary.Failures = append(summary.Failures, res.Error)
			}
		}
	}

	e.logger.Info("Broadcast complete",
		"total_devices", summary.TotalDevices,
		"batches", batches,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)
	return summary, nil
}

// dispatchBatch runs one concurrent wave of dispatches and collects the
// per-token results. Completion order is irrelevant; the caller tallies.
func (e *Engine) dispatchBatch(ctx context.Context, tokens []push.DeviceToken, p push.Payload) []push.DispatchResult {
	workers := pool.NewWithResults[push.DispatchResult]()
	workers.WithMaxGoroutines(e.batchSize)

	for _, t := range tokens {
		workers.Go(func() push.DispatchResult {
			return e.dispatchOne(ctx, t, p)
		})
	}
	return workers.Wait()
}

func (e *Engine) dispatchOne(ctx context.Context, t push.DeviceToken, p push.Payload) push.DispatchResult {
	dispatcher, ok := e.dispatchers[t.Platform]
	if !ok {
		return push.DispatchResult{
			Success: false,
			Error:   fmt.Sprintf("%s: not configured", t.Platform),
		}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()
	return dispatcher.Send(dispatchCtx, t.Token, p)
}
