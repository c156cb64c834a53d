package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
	"github.com/kozaktomas/faceguard/internal/web/middleware"
)

// ProfileHandler serves the authenticated identity's own record.
type ProfileHandler struct {
	identities database.IdentityRepository
	log        zerolog.Logger
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(identities database.IdentityRepository, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{identities: identities, log: log}
}

type profileUpdate struct {
	Name    string `json:"name" validate:"required,max=100"`
	Surname string `json:"surname" validate:"max=100"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// Get returns the caller's identity record.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.self(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// Update changes the caller's name, surname and email. Flagging and the
// reference embedding are admin-only and not reachable from here.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.self(w, r)
	if !ok {
		return
	}

	var update profileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := validate.Struct(update); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity.Name = update.Name
	identity.Surname = update.Surname
	identity.Email = update.Email

	if err := h.identities.Update(r.Context(), identity); err != nil {
		h.log.Error().Err(err).Msg("updating profile failed")
		respondError(w, http.StatusInternalServerError, "updating profile failed")
		return
	}

	respondJSON(w, http.StatusOK, toIdentityResponse(identity))
}

func (h *ProfileHandler) self(w http.ResponseWriter, r *http.Request) (*database.Identity, bool) {
	callerID := middleware.GetIdentityFromContext(r.Context())
	identity, err := h.identities.Get(r.Context(), callerID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "identity store unavailable")
		return nil, false
	}
	if identity == nil {
		respondError(w, http.StatusNotFound, "identity not found")
		return nil, false
	}
	return identity, true
}
