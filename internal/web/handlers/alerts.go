package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
)

const alertLimit = 20

// AlertsHandler serves the alert dispatch log.
type AlertsHandler struct {
	alerts database.AlertRepository
	log    zerolog.Logger
}

// NewAlertsHandler creates an alerts handler.
func NewAlertsHandler(alerts database.AlertRepository, log zerolog.Logger) *AlertsHandler {
	return &AlertsHandler{alerts: alerts, log: log}
}

type alertResponse struct {
	ID         int64     `json:"id"`
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	Surname    string    `json:"surname"`
	Score      float64   `json:"score"`
	SentVia    string    `json:"sent_via"`
	OccurredAt time.Time `json:"occurred_at"`
}

// List returns the newest alert log rows.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.alerts.Recent(r.Context(), nil, alertLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("listing alerts failed")
		respondError(w, http.StatusServiceUnavailable, "alert store unavailable")
		return
	}

	out := make([]alertResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, alertResponse{
			ID:         rec.ID,
			IdentityID: rec.IdentityID,
			Name:       rec.Name,
			Surname:    rec.Surname,
			Score:      rec.Score,
			SentVia:    rec.SentVia,
			OccurredAt: rec.OccurredAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
