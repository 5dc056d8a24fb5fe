// Package api exposes the push engine to the surrounding app over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/pairbond/go-push-service/internal/templates"
	"github.com/pairbond/go-push-service/pkg/push"
)

// Sender is the engine surface the API needs; the fan-out engine satisfies it.
type Sender interface {
	SendToUser(ctx context.Context, userID string, p push.Payload) (push.FanoutSummary, error)
	Broadcast(ctx context.Context, p push.Payload) (push.BroadcastSummary, error)
}

type PushAPI struct {
	Registry    push.TokenRegistry
	Engine      Sender
	AdminSecret string
	Logger      *slog.Logger
}

func NewPushAPI(registry push.TokenRegistry, engine Sender, adminSecret string, logger *slog.Logger) *PushAPI {
	return &PushAPI{
		Registry:    registry,
		Engine:      engine,
		AdminSecret: adminSecret,
		Logger:      logger,
	}
}

// --- Token registration ---

type RegisterTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type RegisterTokenResponse struct {
	TokenID  string `json:"token_id"`
	Platform string `json:"platform"`
}

func (api *PushAPI) RegisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	platform, err := push.ParsePlatform(req.Platform)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "unsupported platform")
		return
	}

	tokenID, err := api.Registry.Register(ctx, userID, req.Token, platform)
	if err != nil {
		if errors.Is(err, push.ErrInvalidToken) {
			response.WriteJSONError(w, http.StatusBadRequest, "malformed device token")
			return
		}
		api.Logger.Error("failed to register token", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	writeJSON(w, http.StatusOK, RegisterTokenResponse{TokenID: tokenID, Platform: string(platform)})
}

// --- Token listing ---

type DeviceSummary struct {
	Platform     string    `json:"platform"`
	RegisteredAt time.Time `json:"registered_at"`
	TokenPreview string    `json:"token_preview"`
}

type ListTokensResponse struct {
	DeviceCount int             `json:"device_count"`
	Devices     []DeviceSummary `json:"devices"`
}

// ListTokens never returns raw token values; only the short hash preview.
func (api *PushAPI) ListTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tokens, err := api.Registry.TokensForUser(ctx, userID)
	if err != nil {
		api.Logger.Error("failed to list tokens", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	resp := ListTokensResponse{
		DeviceCount: len(tokens),
		Devices:     make([]DeviceSummary, 0, len(tokens)),
	}
	for _, t := range tokens {
		resp.Devices = append(resp.Devices, DeviceSummary{
			Platform:     string(t.Platform),
			RegisteredAt: t.RegisteredAt,
			TokenPreview: t.Preview(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Token removal ---

type UnregisterTokenRequest struct {
	Token string `json:"token"`
}

type UnregisterTokenResponse struct {
	Deleted int `json:"deleted"`
}

// UnregisterToken is always scoped to the authenticated caller, so one
// account cannot remove another account's device. Deleting a token that does
// not exist reports zero rows, not an error.
func (api *PushAPI) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UnregisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	deleted, err := api.Registry.Unregister(ctx, req.Token, userID)
	if err != nil {
		api.Logger.Error("failed to unregister token", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	writeJSON(w, http.StatusOK, UnregisterTokenResponse{Deleted: deleted})
}

// --- Sending ---

type SendResponse struct {
	Sent     int      `json:"sent"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

func (api *PushAPI) SendToUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req push.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	payload, err := templates.Resolve(req)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := api.Engine.SendToUser(ctx, req.UserID, payload)
	if err != nil {
		api.Logger.Error("fan-out failed", "user_id", req.UserID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	writeJSON(w, http.StatusOK, SendResponse{
		Sent:     summary.Sent,
		Failed:   summary.Failed,
		Failures: summary.Failures,
	})
}

// --- Broadcast ---

// AdminSecretHeader authenticates broadcast callers; broadcast reaches every
// registered device and is never exposed to ordinary users.
const AdminSecretHeader = "X-Admin-Secret"

type BroadcastRequest struct {
	Template *push.TemplateRef `json:"template,omitempty"`
	Payload  *push.Payload     `json:"payload,omitempty"`
}

type BroadcastResponse struct {
	TotalDevices int `json:"total_devices"`
	Sent         int `json:"sent"`
	Failed       int `json:"failed"`
}

func (api *PushAPI) Broadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Authenticate before doing any work at all.
	if !api.isAdmin(r) {
		response.WriteJSONError(w, http.StatusForbidden, "admin secret required")
		return
	}

	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	// Broadcast has no target user; reuse the template/payload convergence
	// with a placeholder id for the structural check.
	payload, err := templates.Resolve(push.Request{UserID: "broadcast", Template: req.Template, Payload: req.Payload})
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := api.Engine.Broadcast(ctx, payload)
	if err != nil {
		api.Logger.Error("broadcast failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	writeJSON(w, http.StatusOK, BroadcastResponse{
		TotalDevices: summary.TotalDevices,
		Sent:         summary.Sent,
		Failed:       summary.Failed,
	})
}

func (api *PushAPI) isAdmin(r *http.Request) bool {
	if api.AdminSecret == "" {
		return false
	}
	supplied := r.Header.Get(AdminSecretHeader)
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(api.AdminSecret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
