package user

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/apperr"
	myMiddleware "github.com/ShashwatSecure/WIBE-CHAT/internal/middleware"
	"github.com/goccy/go-json"
)

// Emitter is the slice of the socket hub the user feature needs.
type Emitter interface {
	EmitToUser(ctx context.Context, userID int64, event string, data interface{})
}

// Block status changes are pushed so open conversations update immediately.
const EventBlockStatusUpdate = "blockStatusUpdate"

type Handler struct {
	Service *Service
	emitter Emitter
}

func NewHandler(s *Service, emitter Emitter) *Handler {
	return &Handler{Service: s, emitter: emitter}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(res)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	users, err := h.Service.SearchUsers(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []User{}
	}
	json.NewEncoder(w).Encode(users)
}

func (h *Handler) ToggleBlock(w http.ResponseWriter, r *http.Request) {
	blockerID, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		BlockedID int64 `json:"blocked_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := h.Service.ToggleBlock(r.Context(), blockerID, req.BlockedID)
	if err != nil {
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	h.emitter.EmitToUser(r.Context(), status.User1ID, EventBlockStatusUpdate, status)
	h.emitter.EmitToUser(r.Context(), status.User2ID, EventBlockStatusUpdate, status)

	json.NewEncoder(w).Encode(status)
}

func (h *Handler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	counts, err := h.Service.UnreadCounts(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// JSON object keys are strings
	out := make(map[string]int, len(counts))
	for peer, n := range counts {
		out[strconv.FormatInt(peer, 10)] = n
	}
	json.NewEncoder(w).Encode(out)
}
