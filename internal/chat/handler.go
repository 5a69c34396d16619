package chat

import (
	"net/http"
	"strconv"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/apperr"
	myMiddleware "github.com/ShashwatSecure/WIBE-CHAT/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func requesterID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	return id, ok
}

// GetHistory GET /api/messages?senderId=&receiverId=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	senderID, err1 := strconv.ParseInt(r.URL.Query().Get("senderId"), 10, 64)
	receiverID, err2 := strconv.ParseInt(r.URL.Query().Get("receiverId"), 10, 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid user id format", http.StatusBadRequest)
		return
	}

	msgs, err := h.engine.History(r.Context(), senderID, receiverID)
	if err != nil {
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"messages": msgs})
}

// GetConversations GET /api/messages/conversations
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	previews, err := h.engine.Previews(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if previews == nil {
		previews = []ConversationPreview{}
	}
	json.NewEncoder(w).Encode(previews)
}

// DeleteMessage DELETE /api/messages/{messageId}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid message id format", http.StatusBadRequest)
		return
	}

	if err := h.engine.DeleteMessage(r.Context(), messageID, userID); err != nil {
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"msg": "message deleted"})
}

// DeleteMany DELETE /api/messages
func (h *Handler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		MessageIDs []int64 `json:"messageIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.DeleteMany(r.Context(), req.MessageIDs, userID); err != nil {
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"msg": "messages deleted"})
}

// MarkAsSeen POST /api/messages/mark-as-seen
func (h *Handler) MarkAsSeen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID   int64 `json:"senderId"`
		ReceiverID int64 `json:"receiverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.MarkSeen(r.Context(), req.SenderID, req.ReceiverID); err != nil {
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"msg": "messages marked as seen"})
}

// Unblur POST /api/messages/unblur
func (h *Handler) Unblur(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		MessageID int64 `json:"messageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.Unblur(r.Context(), req.MessageID, userID); err != nil {
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"msg": "message unblurred"})
}
