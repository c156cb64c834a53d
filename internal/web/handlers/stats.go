package handlers

import (
	"math"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
)

// StatsHandler serves the admin dashboard statistics.
type StatsHandler struct {
	identities database.IdentityRepository
	events     database.EventRepository
	log        zerolog.Logger
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(identities database.IdentityRepository, events database.EventRepository, log zerolog.Logger) *StatsHandler {
	return &StatsHandler{identities: identities, events: events, log: log}
}

type topIdentity struct {
	IdentityID string `json:"identity_id"`
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	Count      int    `json:"count"`
}

type statsResponse struct {
	Identities        int            `json:"identities"`
	Recognitions      int            `json:"recognitions"`
	FlaggedDetected   int            `json:"flagged_detected"`
	FlaggedPercentage float64        `json:"flagged_percentage"`
	TopRecognized     []topIdentity  `json:"top_recognized"`
	LastRecognition   *eventResponse `json:"last_recognition,omitempty"`
}

// Get returns dashboard totals, the top recognized identities, the share of
// flagged identities seen and the most recent recognition.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityCount, err := h.identities.Count(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}
	eventCount, err := h.events.Count(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}
	flagged, err := h.events.CountFlaggedIdentities(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}
	top, err := h.events.TopIdentities(ctx, 3)
	if err != nil {
		h.fail(w, err)
		return
	}
	latest, err := h.events.Recent(ctx, nil, 1)
	if err != nil {
		h.fail(w, err)
		return
	}

	resp := statsResponse{
		Identities:      identityCount,
		Recognitions:    eventCount,
		FlaggedDetected: flagged,
		TopRecognized:   make([]topIdentity, 0, len(top)),
	}
	if identityCount > 0 {
		resp.FlaggedPercentage = roundPercent(float64(flagged) / float64(identityCount) * 100)
	}
	for _, t := range top {
		resp.TopRecognized = append(resp.TopRecognized, topIdentity{
			IdentityID: t.IdentityID,
			Name:       t.Name,
			Surname:    t.Surname,
			Count:      t.Count,
		})
	}
	if len(latest) > 0 {
		events := toEventResponses(latest)
		resp.LastRecognition = &events[0]
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *StatsHandler) fail(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("computing stats failed")
	respondError(w, http.StatusServiceUnavailable, "stats unavailable")
}

func roundPercent(v float64) float64 {
	return math.Round(v*100) / 100
}
