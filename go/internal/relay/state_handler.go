package relay

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/timerboard/go/internal/timers"
	"github.com/rs/zerolog/log"
)

// TimerStateResponse is a timer together with its reconciled remaining time
type TimerStateResponse struct {
	ID              string         `json:"id"`
	DisplayNumber   string         `json:"displayNumber"`
	Section         timers.Section `json:"section"`
	TimeLeftSeconds int            `json:"timeLeftSeconds"`
}

// StateHandler serves a read-only view of the board over HTTP
type StateHandler struct {
	registry timers.Registry
}

// NewStateHandler creates a new state handler
func NewStateHandler(registry timers.Registry) *StateHandler {
	return &StateHandler{registry: registry}
}

// HandleGetTimers handles GET /api/timers
func (h *StateHandler) HandleGetTimers(w http.ResponseWriter, r *http.Request) {
	snapshot := h.registry.Snapshot()
	board := make([]TimerStateResponse, 0, len(snapshot))
	for _, timer := range snapshot {
		remaining, ok := h.registry.ReadRemaining(timer.ID)
		if !ok {
			// deleted since the snapshot was taken
			continue
		}
		board = append(board, TimerStateResponse{
			ID:              timer.ID,
			DisplayNumber:   timer.DisplayNumber,
			Section:         timer.Section,
			TimeLeftSeconds: remaining,
		})
	}
	writeJSON(w, http.StatusOK, board)
}

// HandleGetTimer handles GET /api/timers/{id}
func (h *StateHandler) HandleGetTimer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	timer, found := h.registry.Get(id)
	remaining, ok := h.registry.ReadRemaining(id)
	if !found || !ok {
		http.Error(w, "timer not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, TimerStateResponse{
		ID:              timer.ID,
		DisplayNumber:   timer.DisplayNumber,
		Section:         timer.Section,
		TimeLeftSeconds: remaining,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
