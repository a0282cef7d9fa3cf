package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"talkwise.app/circles/internal/core"
	"talkwise.app/circles/internal/notify"
	"talkwise.app/circles/internal/store"
)

type APIHandler struct {
	store     store.MessageStore
	broker    *notify.Broker
	generator core.Generator
	logger    *zap.Logger
	coordOpts []core.Option
	upgrader  websocket.Upgrader
}

func NewAPIHandler(s store.MessageStore, broker *notify.Broker, gen core.Generator, logger *zap.Logger, allowedOrigin string, opts ...core.Option) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		store:     s,
		broker:    broker,
		generator: gen,
		logger:    logger,
		coordOpts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigin),
		},
	}
}

// newCoordinator builds a coordinator for one client. REST requests use a
// short-lived one; WebSocket sessions keep theirs for the connection lifetime.
func (h *APIHandler) newCoordinator() *core.Coordinator {
	return core.NewCoordinator(h.store, h.broker, h.generator, h.logger, h.coordOpts...)
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *APIHandler) writeCoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: core.Kind(err), Retryable: core.Retryable(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrEmptyFeed), errors.Is(err, core.ErrAlreadyGenerating):
		return http.StatusConflict
	case errors.Is(err, core.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type FeedResponse struct {
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetFeedHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.newCoordinator().LoadFeed(r.Context())
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FeedResponse{Messages: messages})
}

type PostMessageRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error(), Kind: "validation"})
		return
	}

	msg, err := h.newCoordinator().SubmitMessage(r.Context(), req.Author, req.Body)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Legacy JSON surface kept for older web clients: {name, message} payloads.

type LegacyMessage struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func toLegacy(msg store.Message) LegacyMessage {
	return LegacyMessage{
		ID:        msg.ID,
		Name:      msg.Author,
		Message:   msg.Body,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type LegacyPostRequest struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type LegacyPostResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    LegacyMessage `json:"data"`
}

type LegacyListResponse struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Data    []LegacyMessage `json:"data"`
}

func (h *APIHandler) HelloHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello from backend!"})
}

func (h *APIHandler) LegacyPostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req LegacyPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Name and message are required"})
		return
	}

	msg, err := h.newCoordinator().SubmitMessage(r.Context(), req.Name, req.Message)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Name and message are required"})
			return
		}
		h.logger.Error("legacy message insert failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, LegacyPostResponse{
		Success: true,
		Message: "Message added successfully",
		Data:    toLegacy(*msg),
	})
}

func (h *APIHandler) LegacyListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.store.ListMessages(r.Context())
	if err != nil {
		h.logger.Error("legacy message list failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	// The legacy surface lists oldest first.
	data := make([]LegacyMessage, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		data = append(data, toLegacy(messages[i]))
	}
	writeJSON(w, http.StatusOK, LegacyListResponse{Success: true, Count: len(data), Data: data})
}
