// Package http exposes a dialog controller as a webhook endpoint. Channels
// (messengers, voice gateways, test harnesses) POST parsed messages and get
// the ordered, watermarked responses back in the same round trip.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/domain"
)

// Dialog is the controller surface the server needs.
type Dialog interface {
	HandleMessage(ctx context.Context, msg *domain.Message, userID, conversationID string, turnData map[string]any) (*dialog.TurnContext, error)
}

// Server handles webhook traffic for one dialog controller.
type Server struct {
	dialog  Dialog
	logger  *slog.Logger
	metrics http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts a handler on GET /metrics, typically
// promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewHandler builds the webhook router.
func NewHandler(d Dialog, opts ...Option) http.Handler {
	s := &Server{
		dialog: d,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/messages", s.handleMessage)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// MessageRequest is the webhook payload for one turn.
type MessageRequest struct {
	UserID         string          `json:"user_id"`
	ConversationID string          `json:"conversation_id"`
	Message        *domain.Message `json:"message"`
	Data           map[string]any  `json:"data,omitempty"`
}

// MessageResponse carries the turn's ordered responses back to the channel.
type MessageResponse struct {
	Responses []domain.Response `json:"responses"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("message: invalid request body", "error", err)
		return
	}
	if body.UserID == "" || body.Message == nil {
		http.Error(w, "user_id and message are required", http.StatusBadRequest)
		return
	}
	if body.Message.ID == "" {
		// Without a delivery ID there is no lock identity and no watermark.
		http.Error(w, "message.id is required", http.StatusBadRequest)
		return
	}

	turn, err := s.dialog.HandleMessage(r.Context(), body.Message, body.UserID, body.ConversationID, body.Data)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownNode) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			s.logger.Error("message: flow wiring error", "error", err, "user_id", body.UserID)
			return
		}
		http.Error(w, "turn failed", http.StatusInternalServerError)
		s.logger.Error("message: turn failed", "error", err, "user_id", body.UserID)
		return
	}

	resp := MessageResponse{Responses: turn.Responses()}
	if resp.Responses == nil {
		resp.Responses = []domain.Response{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("message: response encode failed", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
