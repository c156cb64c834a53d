package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
)

const (
	boardLimit = 10
	mapLimit   = 100
)

// EventsHandler serves the recognition event board and map.
type EventsHandler struct {
	events database.EventRepository
	log    zerolog.Logger
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(events database.EventRepository, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{events: events, log: log}
}

type eventResponse struct {
	ID         int64     `json:"id"`
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	Surname    string    `json:"surname"`
	Flagged    bool      `json:"flagged"`
	OccurredAt time.Time `json:"occurred_at"`
	Latitude   *float64  `json:"lat,omitempty"`
	Longitude  *float64  `json:"lon,omitempty"`
}

func toEventResponses(events []database.EventWithIdentity) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:         e.ID,
			IdentityID: e.IdentityID,
			Name:       e.Name,
			Surname:    e.Surname,
			Flagged:    e.Flagged,
			OccurredAt: e.OccurredAt,
			Latitude:   e.Latitude,
			Longitude:  e.Longitude,
		})
	}
	return out
}

// Recent returns the latest recognitions for the public board.
func (h *EventsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.Recent(r.Context(), nil, boardLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("listing recent events failed")
		respondError(w, http.StatusServiceUnavailable, "event store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, toEventResponses(events))
}

// Map returns the latest recognitions with coordinates for map display.
func (h *EventsHandler) Map(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.Recent(r.Context(), nil, mapLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("listing map events failed")
		respondError(w, http.StatusServiceUnavailable, "event store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, toEventResponses(events))
}
