// internal/handler/reply_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
	"github.com/unclebandit/dripline/internal/queue"
)

// ReplyHandler receives inbound reply webhooks. Replies are handled inline
// unless the caller asks for ?async=true, in which case they are published
// to the inbound replies topic.
type ReplyHandler struct {
	Replies  queue.ReplyHandler
	Queue    queue.Queue
	Validate *validator.Validate
	Logger   *zap.Logger
}

func NewReplyHandler(replies queue.ReplyHandler, q queue.Queue, logger *zap.Logger) *ReplyHandler {
	return &ReplyHandler{
		Replies:  replies,
		Queue:    q,
		Validate: validator.New(),
		Logger:   logger,
	}
}

func (h *ReplyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/workspaces/{workspaceID}/replies", h.ReceiveReply)
}

func (h *ReplyHandler) ReceiveReply(w http.ResponseWriter, r *http.Request) {
	ws, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		http.Error(w, "invalid workspace id", http.StatusBadRequest)
		return
	}

	var reply model.InboundReply
	if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	reply.WorkspaceID = ws
	if err := h.Validate.Struct(&reply); err != nil {
		http.Error(w, "address is required", http.StatusBadRequest)
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async && h.Queue != nil {
		if err := queue.PublishJSON(r.Context(), h.Queue, queue.TopicInboundReplies, reply); err != nil {
			h.Logger.Error("reply not queued", zap.Error(err))
			http.Error(w, "failed to queue reply", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}

	processed, err := h.Replies.HandleReply(r.Context(), reply)
	switch {
	case errors.Is(err, appErrors.ErrNotFound):
		writeJSON(w, http.StatusOK, map[string]any{"processed": false, "reason": err.Error()})
	case err != nil:
		h.Logger.Error("reply handling failed", zap.String("workspace_id", ws.String()), zap.Error(err))
		http.Error(w, "failed to handle reply", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"processed": processed})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
