// Package api serves the shortlink provider's verification callback. It is a
// separate binary from the bot so the public HTTP surface can be exposed
// without exposing anything else.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"recorderbot/internal/verify"
)

// Completer finishes a verification given only the token the shortlink
// provider echoes back.
type Completer interface {
	CompleteByToken(ctx context.Context, token string) (verify.Completion, bool, error)
}

// Broadcaster announces a successful verification. Failures are the
// implementation's problem; verification never depends on the announcement.
type Broadcaster interface {
	BroadcastVerified(displayName string)
}

type Handler struct {
	completer   Completer
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewHandler(completer Completer, broadcaster Broadcaster, logger *zap.Logger) *Handler {
	return &Handler{
		completer:   completer,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Router builds the callback service with the trace/logging/recovery chain.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(TraceID, Logging(h.logger), Recovery(h.logger))

	r.HandleFunc("/verify_callback", h.VerifyCallback).Methods(http.MethodPost)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	return r
}

type verifyCallbackRequest struct {
	Token string `json:"token"`
}

func (h *Handler) VerifyCallback(w http.ResponseWriter, r *http.Request) {
	traceID := GetTraceID(r.Context())

	var req verifyCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		h.respondError(w, traceID, http.StatusBadRequest, "Missing token.")
		return
	}

	completion, ok, err := h.completer.CompleteByToken(r.Context(), req.Token)
	if err != nil {
		h.logger.Error("verification completion failed",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		h.respondError(w, traceID, http.StatusInternalServerError, "Verification failed.")
		return
	}
	if !ok {
		h.respondError(w, traceID, http.StatusBadRequest, "Invalid token.")
		return
	}

	h.logger.Info("verification completed",
		zap.String("trace_id", traceID),
		zap.Int64("user_id", completion.UserID),
	)

	if h.broadcaster != nil {
		go h.broadcaster.BroadcastVerified(completion.DisplayName)
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) respondError(w http.ResponseWriter, traceID string, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"status":   "error",
		"message":  message,
		"trace_id": traceID,
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
