// Package handlers implements the HTTP API handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/extraction"
	"github.com/kozaktomas/faceguard/internal/recognition"
)

// errInvalidRequestBody is a shared error message for invalid request bodies.
const errInvalidRequestBody = "invalid request body"

// validate is the shared struct validator for request payloads.
var validate = validator.New()

// maxUploadSize bounds multipart photo uploads.
const maxUploadSize = 16 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondExtraction maps extraction errors to HTTP status codes.
func respondExtraction(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, extraction.ErrNoFaceDetected):
		respondError(w, http.StatusUnprocessableEntity, "no face detected")
	case errors.Is(err, extraction.ErrEncodingFailed):
		respondError(w, http.StatusUnprocessableEntity, "face encoding failed")
	case errors.Is(err, recognition.ErrDimensionMismatch):
		log.Error().Err(err).Msg("extractor returned malformed embedding")
		respondError(w, http.StatusBadGateway, "extraction service returned malformed embedding")
	default:
		log.Error().Err(err).Msg("extraction failed")
		respondError(w, http.StatusBadGateway, "extraction service unavailable")
	}
}
