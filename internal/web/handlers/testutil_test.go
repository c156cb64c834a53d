package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
	"github.com/kozaktomas/faceguard/internal/database/mock"
	"github.com/kozaktomas/faceguard/internal/recognition"
	"github.com/kozaktomas/faceguard/internal/storage"
	"github.com/kozaktomas/faceguard/internal/web/middleware"
)

const testAdminID = "admin-id"

// fakeExtractor returns a fixed embedding or error.
type fakeExtractor struct {
	embedding []float32
	err       error
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

type testEnv struct {
	identities *mock.IdentityRepository
	events     *mock.EventRepository
	samples    *mock.SampleRepository
	alerts     *mock.AlertRepository
	index      *database.IdentityIndex
	extractor  *fakeExtractor
	engine     *recognition.Engine
	tokens     *middleware.TokenManager
	photos     *storage.PhotoStore
}

type nopDispatcher struct{}

func (nopDispatcher) Notify(context.Context, recognition.AlertRequest) error { return nil }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	identities := mock.NewIdentityRepository()
	events := mock.NewEventRepository(identities)
	samples := mock.NewSampleRepository()
	alerts := mock.NewAlertRepository()
	index := database.NewIdentityIndex()
	index.Build(nil)

	photos, err := storage.NewPhotoStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating photo store: %v", err)
	}

	engine := recognition.NewEngine(identities, events, samples, nopDispatcher{}, recognition.NewTrainer(), zerolog.Nop())

	return &testEnv{
		identities: identities,
		events:     events,
		samples:    samples,
		alerts:     alerts,
		index:      index,
		extractor:  &fakeExtractor{embedding: constantEmbedding(0.1)},
		engine:     engine,
		tokens:     middleware.NewTokenManager("test-secret"),
		photos:     photos,
	}
}

// addIdentity seeds an identity into the repository and, when it carries an
// embedding, into the index.
func (env *testEnv) addIdentity(identity database.Identity) {
	env.identities.Add(identity)
	if len(identity.Embedding) > 0 {
		env.index.Upsert(identity.ID, identity.Embedding)
	}
}

func constantEmbedding(v float32) []float32 {
	emb := make([]float32, recognition.EmbeddingDim)
	for i := range emb {
		emb[i] = v
	}
	return emb
}

// multipartBody builds a multipart form with the given fields and an
// optional file part.
func multipartBody(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("writing field %s: %v", k, err)
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", "photo.jpg")
		if err != nil {
			t.Fatalf("creating file part: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("writing file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

// asIdentity sets the authenticated identity on the request context.
func asIdentity(r *http.Request, identityID string) *http.Request {
	return r.WithContext(middleware.SetIdentityInContext(r.Context(), identityID))
}

// withURLParam sets a chi route parameter on the request.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeJSON(t *testing.T, body io.Reader, out any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func doRequest(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}
