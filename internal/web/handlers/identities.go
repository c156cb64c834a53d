package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
	"github.com/kozaktomas/faceguard/internal/extraction"
	"github.com/kozaktomas/faceguard/internal/recognition"
	"github.com/kozaktomas/faceguard/internal/storage"
	"github.com/kozaktomas/faceguard/internal/web/middleware"
)

// IdentitiesHandler serves identity enrollment and management.
type IdentitiesHandler struct {
	identities database.IdentityRepository
	extractor  extraction.Extractor
	photos     *storage.PhotoStore
	index      *database.IdentityIndex
	engine     *recognition.Engine
	adminID    string
	log        zerolog.Logger
}

// NewIdentitiesHandler creates an identities handler.
func NewIdentitiesHandler(identities database.IdentityRepository, extractor extraction.Extractor, photos *storage.PhotoStore, index *database.IdentityIndex, engine *recognition.Engine, adminID string, log zerolog.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{
		identities: identities,
		extractor:  extractor,
		photos:     photos,
		index:      index,
		engine:     engine,
		adminID:    adminID,
		log:        log,
	}
}

// Cosine similarity above which a new enrollment is treated as a likely
// duplicate of an existing identity.
const duplicateSimilarity = 0.97

type identityForm struct {
	Name    string `validate:"required,max=100"`
	Surname string `validate:"max=100"`
	Email   string `validate:"omitempty,email"`
	Flagged bool
}

type identityResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	Email     string    `json:"email"`
	Flagged   bool      `json:"flagged"`
	Trained   bool      `json:"trained"`
	PhotoPath string    `json:"photo_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toIdentityResponse(i *database.Identity) identityResponse {
	return identityResponse{
		ID:        i.ID,
		Name:      i.Name,
		Surname:   i.Surname,
		Email:     i.Email,
		Flagged:   i.Flagged,
		Trained:   i.Trained(),
		PhotoPath: i.PhotoPath,
		CreatedAt: i.CreatedAt,
	}
}

func parseIdentityForm(r *http.Request) (identityForm, error) {
	form := identityForm{
		Name:    r.FormValue("name"),
		Surname: r.FormValue("surname"),
		Email:   r.FormValue("email"),
	}
	if v := r.FormValue("flagged"); v != "" {
		flagged, err := strconv.ParseBool(v)
		if err != nil {
			return form, errors.New("invalid flagged value")
		}
		form.Flagged = flagged
	}
	return form, validate.Struct(form)
}

// readPhoto returns the uploaded photo bytes, or nil when no file part was
// sent.
func readPhoto(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// Create enrolls a new identity from a multipart form with a reference photo.
// The photo's embedding becomes the initial reference embedding.
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	form, err := parseIdentityForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	photo, err := readPhoto(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading photo")
		return
	}
	if photo == nil {
		respondError(w, http.StatusBadRequest, "missing reference photo")
		return
	}

	embedding, err := h.extractor.Extract(r.Context(), photo)
	if err != nil {
		respondExtraction(w, h.log, err)
		return
	}

	// Enrollment that closely resembles an existing identity is usually a
	// duplicate; flag it for the operator but don't block it.
	if neighbors, err := h.index.Search(embedding, 1); err == nil &&
		len(neighbors) > 0 && neighbors[0].Similarity > duplicateSimilarity {
		h.log.Warn().Str("existing", neighbors[0].IdentityID).
			Float64("similarity", neighbors[0].Similarity).
			Msg("enrollment resembles an existing identity")
	}

	photoPath, err := h.photos.Save(photo)
	if err != nil {
		h.log.Error().Err(err).Msg("storing reference photo failed")
		respondError(w, http.StatusInternalServerError, "storing photo failed")
		return
	}

	identity := &database.Identity{
		ID:        uuid.NewString(),
		Name:      form.Name,
		Surname:   form.Surname,
		Email:     form.Email,
		PhotoPath: photoPath,
		Flagged:   form.Flagged,
		Embedding: embedding,
	}
	if err := h.identities.Create(r.Context(), identity); err != nil {
		h.log.Error().Err(err).Msg("creating identity failed")
		respondError(w, http.StatusInternalServerError, "creating identity failed")
		return
	}

	h.index.Upsert(identity.ID, identity.Embedding)
	h.log.Info().Str("identity", identity.ID).Str("name", sanitizeForLog(identity.FullName())).Msg("identity enrolled")
	respondJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

// List returns all identities for the admin, or just the caller's own.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetIdentityFromContext(r.Context())

	if h.adminID != "" && callerID == h.adminID {
		identities, err := h.identities.Snapshot(r.Context())
		if err != nil {
			respondError(w, http.StatusServiceUnavailable, "identity store unavailable")
			return
		}
		out := make([]identityResponse, 0, len(identities))
		for i := range identities {
			out = append(out, toIdentityResponse(&identities[i]))
		}
		respondJSON(w, http.StatusOK, out)
		return
	}

	identity, err := h.identities.Get(r.Context(), callerID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "identity store unavailable")
		return
	}
	if identity == nil {
		respondJSON(w, http.StatusOK, []identityResponse{})
		return
	}
	respondJSON(w, http.StatusOK, []identityResponse{toIdentityResponse(identity)})
}

// Get returns one identity.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.load(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// Update changes an identity's attributes. An optional new photo re-extracts
// and replaces the reference embedding.
func (h *IdentitiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	form, err := parseIdentityForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity.Name = form.Name
	identity.Surname = form.Surname
	identity.Email = form.Email
	identity.Flagged = form.Flagged

	photo, err := readPhoto(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading photo")
		return
	}
	if photo != nil {
		embedding, err := h.extractor.Extract(r.Context(), photo)
		if err != nil {
			respondExtraction(w, h.log, err)
			return
		}

		oldPhoto := identity.PhotoPath
		photoPath, err := h.photos.Save(photo)
		if err != nil {
			h.log.Error().Err(err).Msg("storing reference photo failed")
			respondError(w, http.StatusInternalServerError, "storing photo failed")
			return
		}
		identity.PhotoPath = photoPath

		if err := h.identities.UpdateReferenceEmbedding(r.Context(), identity.ID, embedding); err != nil {
			h.log.Error().Err(err).Msg("updating reference embedding failed")
			respondError(w, http.StatusInternalServerError, "updating identity failed")
			return
		}
		identity.Embedding = embedding
		h.index.Upsert(identity.ID, embedding)

		if oldPhoto != "" {
			if err := h.photos.Remove(oldPhoto); err != nil {
				h.log.Warn().Err(err).Msg("removing replaced photo failed")
			}
		}
	}

	if err := h.identities.Update(r.Context(), identity); err != nil {
		h.log.Error().Err(err).Msg("updating identity failed")
		respondError(w, http.StatusInternalServerError, "updating identity failed")
		return
	}

	respondJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// Delete removes an identity, its photo, its index entry and its in-memory
// training state.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.identities.Delete(r.Context(), identity.ID); err != nil {
		h.log.Error().Err(err).Msg("deleting identity failed")
		respondError(w, http.StatusInternalServerError, "deleting identity failed")
		return
	}

	h.index.Delete(identity.ID)
	h.engine.Forget(identity.ID)
	if identity.PhotoPath != "" {
		if err := h.photos.Remove(identity.PhotoPath); err != nil {
			h.log.Warn().Err(err).Msg("removing identity photo failed")
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type similarResponse struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Similar returns the identities nearest to the given identity's reference
// embedding, from the in-memory index.
func (h *IdentitiesHandler) Similar(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.load(w, r)
	if !ok {
		return
	}
	if !identity.Trained() {
		respondError(w, http.StatusUnprocessableEntity, "identity has no reference embedding")
		return
	}

	neighbors, err := h.index.Search(identity.Embedding, 6)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "identity index unavailable")
		return
	}

	out := make([]similarResponse, 0, len(neighbors))
	for _, n := range neighbors {
		if n.IdentityID == identity.ID {
			continue
		}
		out = append(out, similarResponse{ID: n.IdentityID, Similarity: n.Similarity})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *IdentitiesHandler) load(w http.ResponseWriter, r *http.Request) (*database.Identity, bool) {
	id := chi.URLParam(r, "id")
	identity, err := h.identities.Get(r.Context(), id)
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
