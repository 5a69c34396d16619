package broadcast

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/apperr"
	myMiddleware "github.com/ShashwatSecure/WIBE-CHAT/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

type Handler struct {
	store      Store
	dispatcher *Dispatcher
	emitter    Emitter
}

func NewHandler(store Store, dispatcher *Dispatcher, emitter Emitter) *Handler {
	return &Handler{store: store, dispatcher: dispatcher, emitter: emitter}
}

func requesterID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	return id, ok
}

// Send POST /api/broadcast/send
// Creates a scheduled broadcast; one that is already due is dispatched
// immediately through the same claim path the ticker uses.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	senderID, ok := requesterID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Recipients     []int64   `json:"recipients"`
		Content        string    `json:"message"`
		AttachmentURLs []string  `json:"attachmentUrls"`
		ScheduledAt    time.Time `json:"scheduledAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" && len(req.AttachmentURLs) == 0 {
		http.Error(w, "message content is required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	b := &ScheduledBroadcast{
		SenderID:       senderID,
		Recipients:     req.Recipients,
		Content:        req.Content,
		AttachmentURLs: req.AttachmentURLs,
		ScheduledAt:    scheduledAt,
	}
	if err := h.store.CreateScheduled(r.Context(), b); err != nil {
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	if !scheduledAt.After(now) {
		if err := h.dispatcher.DispatchOne(r.Context(), b.ID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		b.Sent = true
	} else {
		h.emitter.EmitToUser(r.Context(), senderID, EventBroadcastScheduled, b)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(b)
}

// ListScheduled GET /api/broadcast/scheduled/{userId}
func (h *Handler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id format", http.StatusBadRequest)
		return
	}

	pending, err := h.store.ListPendingByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if pending == nil {
		pending = []*ScheduledBroadcast{}
	}
	json.NewEncoder(w).Encode(pending)
}

// Cancel DELETE /api/broadcast/scheduled/{broadcastId}
// The conditional delete races safely against a dispatch tick: either the
// cancel wins and no messages exist, or the claim won and the delete is a
// no-op answered with a conflict.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requesterID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	broadcastID, err := strconv.ParseInt(chi.URLParam(r, "broadcastId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid broadcast id format", http.StatusBadRequest)
		return
	}

	deleted, err := h.store.DeleteIfPending(r.Context(), broadcastID, ownerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "broadcast not pending or not yours", http.StatusConflict)
		return
	}

	h.emitter.EmitToUser(r.Context(), ownerID, EventBroadcastCancelled, broadcastID)
	json.NewEncoder(w).Encode(map[string]string{"msg": "broadcast cancelled"})
}

// CreateGroup POST /api/broadcast/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requesterID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "group name is required", http.StatusBadRequest)
		return
	}

	g := &BroadcastGroup{Name: req.Name, OwnerID: ownerID}
	if err := h.store.CreateGroup(r.Context(), g); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.emitter.EmitToUser(r.Context(), ownerID, EventGroupCreated, g)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(g)
}

// ListGroups GET /api/broadcast/groups/{userId}
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id format", http.StatusBadRequest)
		return
	}

	groups, err := h.store.ListGroupsByOwner(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []*BroadcastGroup{}
	}
	json.NewEncoder(w).Encode(groups)
}

// DeleteGroup DELETE /api/broadcast/groups/{groupId}
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requesterID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid group id format", http.StatusBadRequest)
		return
	}

	deleted, err := h.store.DeleteGroup(r.Context(), groupID, ownerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "group not found", http.StatusNotFound)
		return
	}

	h.emitter.EmitToUser(r.Context(), ownerID, EventGroupDeleted, groupID)
	json.NewEncoder(w).Encode(map[string]string{"msg": "broadcast group deleted"})
}
