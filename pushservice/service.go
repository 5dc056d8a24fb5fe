// Package pushservice assembles the push delivery engine into a runnable
// microservice: HTTP API for the app's CRUD layer plus the Pub/Sub ingress
// for backend jobs.
package pushservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/pairbond/go-push-service/internal/api"
	"github.com/pairbond/go-push-service/internal/fanout"
	"github.com/pairbond/go-push-service/internal/pipeline"
	"github.com/pairbond/go-push-service/pkg/push"
	"github.com/pairbond/go-push-service/pushservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[push.Request]
	logger          *slog.Logger
}

// New assembles the service.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	dispatchers map[push.Platform]push.Dispatcher,
	registry push.TokenRegistry,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Fan-out engine
	engine := fanout.NewEngine(fanout.Config{
		BatchSize:       cfg.Broadcast.BatchSize,
		DispatchTimeout: cfg.DispatchTimeout,
	}, registry, dispatchers, logger)

	// 3. Pipeline (async ingress)
	processor := pipeline.NewProcessor(engine, logger)

	streamingService, err := messagepipeline.NewStreamingService[push.Request](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.PushRequestTransformer,
		processor,
		slog.New(slog.DiscardHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API
	pushAPI := api.NewPushAPI(registry, engine, cfg.Broadcast.AdminSecret, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	// 1. Device token lifecycle
	handle("POST /api/v1/tokens", pushAPI.RegisterToken)
	handle("GET /api/v1/tokens", pushAPI.ListTokens)
	handle("DELETE /api/v1/tokens", pushAPI.UnregisterToken)

	// 2. Delivery
	handle("POST /api/v1/send", pushAPI.SendToUser)
	// Broadcast additionally checks the admin secret inside the handler.
	handle("POST /api/v1/broadcast", pushAPI.Broadcast)

	// 3. Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Just returns 200 OK with CORS headers handled by middleware
	})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
