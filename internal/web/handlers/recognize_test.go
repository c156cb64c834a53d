package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
	"github.com/kozaktomas/faceguard/internal/extraction"
	"github.com/kozaktomas/faceguard/internal/recognition"
)

func newRecognizeHandler(env *testEnv) *RecognizeHandler {
	return NewRecognizeHandler(env.engine, env.extractor, env.tokens, zerolog.Nop())
}

func TestRecognizeMatchIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(database.Identity{
		ID:        "alice",
		Name:      "Alice",
		Surname:   "Anders",
		Embedding: constantEmbedding(0.1),
	})
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, nil, []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(handler.Recognize, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp recognizeResponse
	decodeJSON(t, rec.Body, &resp)
	if len(resp.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(resp.Matches))
	}
	match := resp.Matches[0]
	if match.IdentityID != "alice" {
		t.Errorf("expected match for alice, got %s", match.IdentityID)
	}
	if match.Score != 1.0 {
		t.Errorf("expected score 1.0 for identical embedding, got %f", match.Score)
	}
	if match.Token == "" {
		t.Fatal("expected a token on the match")
	}
	subject, err := env.tokens.Verify(match.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if subject != "alice" {
		t.Errorf("token subject = %s, want alice", subject)
	}
}

func TestRecognizeNoMatchReturnsEmptySlice(t *testing.T) {
	env := newTestEnv(t)
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, nil, []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(handler.Recognize, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp recognizeResponse
	decodeJSON(t, rec.Body, &resp)
	if resp.Matches == nil || len(resp.Matches) != 0 {
		t.Errorf("expected empty matches array, got %v", resp.Matches)
	}
}

func TestRecognizeMissingFile(t *testing.T) {
	env := newTestEnv(t)
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, map[string]string{"lat": "50.1"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(handler.Recognize, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRecognizeNoFaceDetected(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.err = extraction.ErrNoFaceDetected
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, nil, []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(handler.Recognize, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestRecognizeMalformedProbe(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.embedding = []float32{0.1, 0.2}
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, nil, []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(handler.Recognize, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestRecognizeInvalidLatitude(t *testing.T) {
	env := newTestEnv(t)
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, map[string]string{"lat": "north"}, []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(handler.Recognize, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRecognizeGeoReachesEventLog(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(database.Identity{
		ID:        "alice",
		Name:      "Alice",
		Embedding: constantEmbedding(0.1),
	})
	handler := newRecognizeHandler(env)

	fields := map[string]string{"lat": "50.0755", "lon": "14.4378"}
	body, contentType := multipartBody(t, fields, []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(handler.Recognize, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	events, err := env.events.Recent(req.Context(), nil, 10)
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Latitude == nil || *e.Latitude != 50.0755 {
		t.Errorf("unexpected latitude: %v", e.Latitude)
	}
	if e.Longitude == nil || *e.Longitude != 14.4378 {
		t.Errorf("unexpected longitude: %v", e.Longitude)
	}
}

func TestRecognizeTrainsOnMatch(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(database.Identity{
		ID:        "alice",
		Name:      "Alice",
		Embedding: constantEmbedding(0.1),
	})
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, nil, []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(handler.Recognize, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	samples, err := env.samples.ListByIdentity(req.Context(), "alice")
	if err != nil {
		t.Fatalf("listing samples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 buffered training sample, got %d", len(samples))
	}
	if got := len(samples[0].Embedding); got != recognition.EmbeddingDim {
		t.Errorf("sample embedding has %d values, want %d", got, recognition.EmbeddingDim)
	}
}
