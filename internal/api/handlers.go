package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"roomgate/internal/admission"
	"roomgate/internal/limiter"
	"roomgate/internal/models"
	"roomgate/internal/storage"
	"roomgate/internal/version"
	"time"

	"github.com/gorilla/mux"
)

// Dispatch actions.
const (
	ActionCheckRoomCreation = "check-room-creation"
	ActionCheckConnection   = "check-connection"
	ActionCheckAPIRate      = "check-api-rate"
	ActionCheckCallDuration = "check-call-duration"
	ActionCleanupOldRooms   = "cleanup-old-rooms"
	ActionMarkRoomEmpty     = "mark-room-empty"
	ActionMarkRoomActive    = "mark-room-active"
	ActionEndCall           = "end-call"
	ActionResetRateLimit    = "reset-rate-limit"
)

// maxBodyBytes bounds the JSON bodies of the write operations.
const maxBodyBytes = 4 << 10

// Handlers contains HTTP handlers for the coordinator API
type Handlers struct {
	registry  *limiter.Registry
	storage   storage.Storage
	resolver  *admission.IdentityResolver
	apiKeys   []models.APIKey
	startTime time.Time
}

// NewHandlers creates a new handlers instance. backend is only used for
// health reporting; all limiter state goes through registry.
func NewHandlers(registry *limiter.Registry, backend storage.Storage, resolver *admission.IdentityResolver, apiKeys []models.APIKey) *Handlers {
	return &Handlers{
		registry:  registry,
		storage:   backend,
		resolver:  resolver,
		apiKeys:   apiKeys,
		startTime: time.Now(),
	}
}

// Dispatch routes one limiter operation to the store of the addressed domain.
// The action is checked before the domain so that junk paths never reach the
// registry.
// ANY /v1/limiter/{domain}/{action}
func (h *Handlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := vars["action"]

	switch action {
	case ActionCheckRoomCreation, ActionCheckConnection, ActionCheckAPIRate,
		ActionCheckCallDuration, ActionCleanupOldRooms,
		ActionMarkRoomEmpty, ActionMarkRoomActive, ActionEndCall:
	case ActionResetRateLimit:
		// The authenticated POST route takes precedence; anything reaching
		// here used the wrong method.
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, models.ErrorCodeMethodNotAllowed, "Method not allowed")
		return
	default:
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeUnknownAction, "Unknown action")
		return
	}

	store, err := h.registry.Store(vars["domain"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	switch action {
	case ActionCheckRoomCreation:
		h.checkPolicy(w, r, store, models.KindRoomCreation)
	case ActionCheckConnection:
		h.checkPolicy(w, r, store, models.KindConnections)
	case ActionCheckAPIRate:
		h.checkPolicy(w, r, store, models.KindAPI)
	case ActionCheckCallDuration:
		result, err := store.CheckCallDuration(r.Context(), r.URL.Query().Get("roomId"))
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSONResponse(w, http.StatusOK, result)
	case ActionCleanupOldRooms:
		result, err := store.CleanupOldRooms(r.Context())
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSONResponse(w, http.StatusOK, result)
	case ActionMarkRoomEmpty:
		h.roomUpdate(w, r, store.MarkRoomEmpty)
	case ActionMarkRoomActive:
		h.roomUpdate(w, r, store.MarkRoomActive)
	case ActionEndCall:
		h.roomUpdate(w, r, store.EndCall)
	}
}

func (h *Handlers) checkPolicy(w http.ResponseWriter, r *http.Request, store *limiter.Store, kind models.KeyKind) {
	identity, err := h.resolver.Resolve(r)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Caller identity required")
		return
	}

	result, err := store.CheckPolicy(r.Context(), kind, identity)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, result)
}

// roomUpdate handles the write operations, which need POST and a roomId body.
func (h *Handlers) roomUpdate(w http.ResponseWriter, r *http.Request, update func(ctx context.Context, roomID string) error) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, models.ErrorCodeMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.RoomRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.RoomID == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Room ID required")
		return
	}

	if err := update(r.Context(), req.RoomID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, statusResponse{Status: "OK"})
}

// ResetRateLimit deletes one limiter key. Requires an admin API key.
// POST /v1/limiter/{domain}/reset-rate-limit
func (h *Handlers) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	store, err := h.registry.Store(mux.Vars(r)["domain"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	var req models.ResetRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	key, err := models.ParseKey(req.Key)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, err.Error())
		return
	}

	if err := store.ResetRateLimit(r.Context(), key); err != nil {
		h.writeServiceError(w, err)
		return
	}

	slog.Info("Limiter key reset",
		"domain", store.Name(),
		"key", key.String(),
		"api_key", apiKeyName(r))

	h.writeJSONResponse(w, http.StatusOK, statusResponse{Status: "OK"})
}

// ListDomains lists the allowed domains this coordinator has served so far.
// GET /v1/limiter/domains
func (h *Handlers) ListDomains(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, domainsResponse{Domains: h.registry.Domains()})
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	info := version.GetInfo()
	response := &models.HealthCheckResponse{
		Status:     models.StatusHealthy,
		Timestamp:  time.Now(),
		Version:    info.Version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Components: make(map[string]models.ComponentHealth),
	}

	statusCode := http.StatusOK
	storageHealth := models.ComponentHealth{
		Status:    models.StatusHealthy,
		Message:   "Storage is operational",
		Timestamp: time.Now(),
	}
	if err := h.storage.Ping(r.Context()); err != nil {
		slog.Warn("Storage health check failed", "error", err)
		storageHealth.Status = models.StatusUnhealthy
		storageHealth.Message = "Storage is unreachable"
		response.Status = models.StatusUnhealthy
		statusCode = http.StatusServiceUnavailable
	}
	response.Components["storage"] = storageHealth

	h.writeJSONResponse(w, statusCode, response)
}

type statusResponse struct {
	Status string `json:"status"`
}

type domainsResponse struct {
	Domains []string `json:"domains"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already out; nothing left to tell the client.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = w.Header().Get(requestIDHeader)
	h.writeJSONResponse(w, statusCode, errorResp)
}

// writeServiceError maps limiter errors onto their HTTP status. Anything
// unrecognised is a 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *limiter.ServiceError
	if errors.As(err, &svcErr) {
		if svcErr.StatusCode >= http.StatusInternalServerError {
			slog.Error("Limiter operation failed", "error", err)
		}
		h.writeErrorResponse(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}

	slog.Error("Unexpected limiter error", "error", err)
	h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
}
