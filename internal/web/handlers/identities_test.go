package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
)

func newIdentitiesHandler(env *testEnv) *IdentitiesHandler {
	return NewIdentitiesHandler(env.identities, env.extractor, env.photos, env.index, env.engine, testAdminID, zerolog.Nop())
}

func TestIdentityCreate(t *testing.T) {
	env := newTestEnv(t)
	handler := newIdentitiesHandler(env)

	fields := map[string]string{
		"name":    "Alice",
		"surname": "Anders",
		"email":   "alice@example.com",
		"flagged": "true",
	}
	body, contentType := multipartBody(t, fields, []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(handler.Create, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp identityResponse
	decodeJSON(t, rec.Body, &resp)
	if resp.ID == "" {
		t.Fatal("expected generated identity ID")
	}
	if resp.Name != "Alice" || resp.Surname != "Anders" {
		t.Errorf("unexpected name: %s %s", resp.Name, resp.Surname)
	}
	if !resp.Flagged {
		t.Error("expected flagged identity")
	}
	if !resp.Trained {
		t.Error("enrollment photo should leave the identity trained")
	}

	stored, err := env.identities.Get(req.Context(), resp.ID)
	if err != nil || stored == nil {
		t.Fatalf("identity not persisted: %v", err)
	}
	if !stored.Trained() {
		t.Error("stored identity has no reference embedding")
	}
	if env.index.Count() != 1 {
		t.Errorf("expected 1 indexed identity, got %d", env.index.Count())
	}
	if _, err := env.photos.Read(stored.PhotoPath); err != nil {
		t.Errorf("reference photo not stored: %v", err)
	}
}

func TestIdentityCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		photo  []byte
	}{
		{"missing name", map[string]string{"surname": "Anders"}, []byte("jpeg")},
		{"invalid email", map[string]string{"name": "Alice", "email": "not-an-email"}, []byte("jpeg")},
		{"invalid flagged", map[string]string{"name": "Alice", "flagged": "maybe"}, []byte("jpeg")},
		{"missing photo", map[string]string{"name": "Alice"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			handler := newIdentitiesHandler(env)

			body, contentType := multipartBody(t, tt.fields, tt.photo)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/identities", body)
			req.Header.Set("Content-Type", contentType)

			rec := doRequest(handler.Create, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestIdentityListAsAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(database.Identity{ID: "alice", Name: "Alice"})
	env.addIdentity(database.Identity{ID: "bob", Name: "Bob"})
	handler := newIdentitiesHandler(env)

	req := asIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil), testAdminID)
	rec := doRequest(handler.List, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []identityResponse
	decodeJSON(t, rec.Body, &resp)
	if len(resp) != 2 {
		t.Errorf("admin should see all identities, got %d", len(resp))
	}
}

func TestIdentityListAsRegularIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(database.Identity{ID: "alice", Name: "Alice"})
	env.addIdentity(database.Identity{ID: "bob", Name: "Bob"})
	handler := newIdentitiesHandler(env)

	req := asIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil), "alice")
	rec := doRequest(handler.List, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []identityResponse
	decodeJSON(t, rec.Body, &resp)
	if len(resp) != 1 || resp[0].ID != "alice" {
		t.Errorf("regular identity should only see itself, got %v", resp)
	}
}

func TestIdentityGetNotFound(t *testing.T) {
	env := newTestEnv(t)
	handler := newIdentitiesHandler(env)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identities/ghost", nil)
	req = withURLParam(req, "id", "ghost")

	rec := doRequest(handler.Get, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestIdentityUpdateAttributes(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(database.Identity{ID: "alice", Name: "Alice", Embedding: constantEmbedding(0.1)})
	handler := newIdentitiesHandler(env)

	fields := map[string]string{"name": "Alicia", "surname": "Anders", "flagged": "true"}
	body, contentType := multipartBody(t, fields, nil)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/identities/alice", body)
	req.Header.Set("Content-Type", contentType)
	req = withURLParam(req, "id", "alice")

	rec := doRequest(handler.Update, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored, _ := env.identities.Get(req.Context(), "alice")
	if stored.Name != "Alicia" || !stored.Flagged {
		t.Errorf("update not persisted: %+v", stored)
	}
	// No photo part, so the reference embedding stays as it was.
	if !stored.Trained() {
		t.Error("update without photo must not drop the reference embedding")
	}
}

func TestIdentityUpdateWithNewPhoto(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(database.Identity{ID: "alice", Name: "Alice", Embedding: constantEmbedding(0.1)})
	env.extractor.embedding = constantEmbedding(0.5)
	handler := newIdentitiesHandler(env)

	fields := map[string]string{"name": "Alice"}
	body, contentType := multipartBody(t, fields, []byte("new-jpeg"))
	req := httptest.NewRequest(http.MethodPut, "/api/v1/identities/alice", body)
	req.Header.Set("Content-Type", contentType)
	req = withURLParam(req, "id", "alice")

	rec := doRequest(handler.Update, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored, _ := env.identities.Get(req.Context(), "alice")
	if stored.Embedding[0] != 0.5 {
		t.Errorf("reference embedding not replaced, got %f", stored.Embedding[0])
	}
	if stored.PhotoPath == "" {
		t.Error("expected new photo path")
	}
}

func TestIdentityDelete(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(database.Identity{ID: "alice", Name: "Alice", Embedding: constantEmbedding(0.1)})
	handler := newIdentitiesHandler(env)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/identities/alice", nil)
	req = withURLParam(req, "id", "alice")

	rec := doRequest(handler.Delete, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	stored, _ := env.identities.Get(req.Context(), "alice")
	if stored != nil {
		t.Error("identity still present after delete")
	}
	if env.index.Count() != 0 {
		t.Errorf("index still holds %d identities", env.index.Count())
	}
}

func TestIdentitySimilarExcludesSelf(t *testing.T) {
	env := newTestEnv(t)
	emb := func(first float32) []float32 {
		e := constantEmbedding(0.1)
		e[0] = first
		return e
	}
	env.addIdentity(database.Identity{ID: "alice", Name: "Alice", Embedding: emb(0.2)})
	env.addIdentity(database.Identity{ID: "bob", Name: "Bob", Embedding: emb(0.25)})
	env.addIdentity(database.Identity{ID: "carol", Name: "Carol", Embedding: emb(0.9)})
	handler := newIdentitiesHandler(env)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identities/alice/similar", nil)
	req = withURLParam(req, "id", "alice")

	rec := doRequest(handler.Similar, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []similarResponse
	decodeJSON(t, rec.Body, &resp)
	if len(resp) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(resp))
	}
	for _, n := range resp {
		if n.ID == "alice" {
			t.Error("neighbors must not include the identity itself")
		}
	}
	if resp[0].ID != "bob" {
		t.Errorf("expected bob as nearest neighbor, got %s", resp[0].ID)
	}
}

func TestIdentitySimilarUntrained(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(database.Identity{ID: "alice", Name: "Alice"})
	handler := newIdentitiesHandler(env)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identities/alice/similar", nil)
	req = withURLParam(req, "id", "alice")

	rec := doRequest(handler.Similar, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}
