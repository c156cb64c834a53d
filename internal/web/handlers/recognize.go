package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/extraction"
	"github.com/kozaktomas/faceguard/internal/metrics"
	"github.com/kozaktomas/faceguard/internal/recognition"
	"github.com/kozaktomas/faceguard/internal/web/middleware"
)

// RecognizeHandler serves the recognition endpoint.
type RecognizeHandler struct {
	engine    *recognition.Engine
	extractor extraction.Extractor
	tokens    *middleware.TokenManager
	log       zerolog.Logger
}

// NewRecognizeHandler creates a recognize handler.
func NewRecognizeHandler(engine *recognition.Engine, extractor extraction.Extractor, tokens *middleware.TokenManager, log zerolog.Logger) *RecognizeHandler {
	return &RecognizeHandler{
		engine:    engine,
		extractor: extractor,
		tokens:    tokens,
		log:       log,
	}
}

type recognizeResponse struct {
	Matches []recognition.Match `json:"matches"`
}

// Recognize accepts a multipart image with optional lat/lon form fields,
// extracts the probe embedding and runs it against the identity pool. Every
// qualifying match gets an API token issued for the matched identity.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecognizeDuration.Observe(time.Since(start).Seconds())
	}()

	imageData, geo, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	probe, err := h.extractor.Extract(r.Context(), imageData)
	if err != nil {
		respondExtraction(w, h.log, err)
		return
	}

	matches, err := h.engine.Recognize(r.Context(), probe, time.Now(), geo)
	if err != nil {
		if errors.Is(err, recognition.ErrDimensionMismatch) {
			respondError(w, http.StatusUnprocessableEntity, "malformed probe embedding")
			return
		}
		h.log.Error().Err(err).Msg("recognition failed")
		respondError(w, http.StatusServiceUnavailable, "identity store unavailable")
		return
	}

	for i := range matches {
		matches[i].Token = h.tokens.Issue(matches[i].IdentityID)
	}
	if matches == nil {
		matches = []recognition.Match{}
	}

	respondJSON(w, http.StatusOK, recognizeResponse{Matches: matches})
}

func (h *RecognizeHandler) parseRequest(w http.ResponseWriter, r *http.Request) ([]byte, recognition.Geo, bool) {
	var geo recognition.Geo

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return nil, geo, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing image file")
		return nil, geo, false
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading image file")
		return nil, geo, false
	}

	if lat := r.FormValue("lat"); lat != "" {
		v, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid latitude")
			return nil, geo, false
		}
		geo.Latitude = &v
	}
	if lon := r.FormValue("lon"); lon != "" {
		v, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid longitude")
			return nil, geo, false
		}
		geo.Longitude = &v
	}

	return imageData, geo, true
}
