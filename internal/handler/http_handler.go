package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/harborchat/relay/internal/domain"
	"github.com/harborchat/relay/internal/relay"
)

// HTTPHandler exposes read-only views of relay state. Every read is
// linearized through the relay's event loop, so responses are always
// consistent with in-flight websocket traffic.
type HTTPHandler struct {
	relay *relay.Relay
}

func NewHTTPHandler(r *relay.Relay) *HTTPHandler {
	return &HTTPHandler{relay: r}
}

// HistoryResponse is the API response for room history queries.
type HistoryResponse struct {
	Room     string           `json:"room"`
	Messages []domain.Message `json:"messages"`
}

// GetUsers handles GET /api/v1/users
func (h *HTTPHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.relay.Users(r.Context())
	if err != nil {
		http.Error(w, "failed to get user list", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

// GetRooms handles GET /api/v1/rooms
func (h *HTTPHandler) GetRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.relay.Rooms(r.Context())
	if err != nil {
		http.Error(w, "failed to get room list", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rooms)
}

// GetRoomHistory handles GET /api/v1/rooms/{roomId}/history?limit=n
func (h *HTTPHandler) GetRoomHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["roomId"]

	if roomID == "" {
		http.Error(w, "roomId is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	messages, err := h.relay.History(r.Context(), roomID, limit)
	if err != nil {
		http.Error(w, "failed to get room history", http.StatusInternalServerError)
		return
	}

	response := HistoryResponse{Room: roomID, Messages: messages}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HealthCheck handles GET /health
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
