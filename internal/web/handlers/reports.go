package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
)

const exportLimit = 10000

// ReportsHandler exports recognition and alert data as CSV.
type ReportsHandler struct {
	events database.EventRepository
	alerts database.AlertRepository
	log    zerolog.Logger
}

// NewReportsHandler creates a reports handler.
func NewReportsHandler(events database.EventRepository, alerts database.AlertRepository, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{events: events, alerts: alerts, log: log}
}

// Export writes a CSV report. mode selects the content: "all" (default)
// exports the full event log, "top10" the most recognized identities,
// "today" today's events and alerts.
func (h *ReportsHandler) Export(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "all"
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=report-%s-%s.csv", mode, time.Now().Format("2006-01-02")))

	cw := csv.NewWriter(w)
	defer cw.Flush()

	var err error
	switch mode {
	case "all":
		err = h.exportEvents(r, cw, nil)
	case "today":
		err = h.exportToday(r, cw)
	case "top10":
		err = h.exportTop(r, cw)
	default:
		respondError(w, http.StatusBadRequest, "invalid mode, want all, top10 or today")
		return
	}
	if err != nil {
		// Headers are already sent; all we can do is log.
		h.log.Error().Str("mode", mode).Err(err).Msg("report export failed")
	}
}

func (h *ReportsHandler) exportEvents(r *http.Request, cw *csv.Writer, since *time.Time) error {
	events, err := h.events.Recent(r.Context(), since, exportLimit)
	if err != nil {
		return err
	}

	if err := cw.Write([]string{"occurred_at", "identity_id", "name", "surname", "flagged", "lat", "lon"}); err != nil {
		return err
	}
	for _, e := range events {
		row := []string{
			e.OccurredAt.Format(time.RFC3339),
			e.IdentityID,
			e.Name,
			e.Surname,
			strconv.FormatBool(e.Flagged),
			formatCoord(e.Latitude),
			formatCoord(e.Longitude),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (h *ReportsHandler) exportToday(r *http.Request, cw *csv.Writer) error {
	now := time.Now()
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	if err := h.exportEvents(r, cw, &midnight); err != nil {
		return err
	}

	alerts, err := h.alerts.Recent(r.Context(), &midnight, exportLimit)
	if err != nil {
		return err
	}

	if err := cw.Write(nil); err != nil {
		return err
	}
	if err := cw.Write([]string{"alert_at", "identity_id", "name", "surname", "score", "sent_via"}); err != nil {
		return err
	}
	for _, a := range alerts {
		row := []string{
			a.OccurredAt.Format(time.RFC3339),
			a.IdentityID,
			a.Name,
			a.Surname,
			strconv.FormatFloat(a.Score, 'f', 3, 64),
			a.SentVia,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (h *ReportsHandler) exportTop(r *http.Request, cw *csv.Writer) error {
	top, err := h.events.TopIdentities(r.Context(), 10)
	if err != nil {
		return err
	}

	if err := cw.Write([]string{"identity_id", "name", "surname", "recognitions"}); err != nil {
		return err
	}
	for _, t := range top {
		row := []string{t.IdentityID, t.Name, t.Surname, strconv.Itoa(t.Count)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
