package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
	"github.com/kozaktomas/faceguard/internal/extraction"
	"github.com/kozaktomas/faceguard/internal/recognition"
)

// TrainingHandler serves manual training sample submission.
type TrainingHandler struct {
	engine     *recognition.Engine
	extractor  extraction.Extractor
	identities database.IdentityRepository
	log        zerolog.Logger
}

// NewTrainingHandler creates a training handler.
func NewTrainingHandler(engine *recognition.Engine, extractor extraction.Extractor, identities database.IdentityRepository, log zerolog.Logger) *TrainingHandler {
	return &TrainingHandler{
		engine:     engine,
		extractor:  extractor,
		identities: identities,
		log:        log,
	}
}

// Submit records an operator-confirmed training photo for an identity. The
// photo's embedding enters the identity's training buffer exactly like a
// qualifying match would.
func (h *TrainingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	identityID := r.FormValue("identity_id")
	if identityID == "" {
		respondError(w, http.StatusBadRequest, "missing identity_id")
		return
	}

	identity, err := h.identities.Get(r.Context(), identityID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "identity store unavailable")
		return
	}
	if identity == nil {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	photo, err := readPhoto(r)
	if err != nil || photo == nil {
		respondError(w, http.StatusBadRequest, "missing training photo")
		return
	}

	embedding, err := h.extractor.Extract(r.Context(), photo)
	if err != nil {
		respondExtraction(w, h.log, err)
		return
	}

	if err := h.engine.Train(r.Context(), identityID, embedding, time.Now()); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "malformed training embedding")
		return
	}

	h.log.Info().Str("identity", identityID).Msg("manual training sample recorded")
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
