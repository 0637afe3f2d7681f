package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appMiddleware "github.com/faultmaven/evidence-service/internal/middleware"
	"github.com/faultmaven/evidence-service/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	store := newFakeStore()
	h := NewHandler(NewService(store, local, testConfig()))

	r := chi.NewRouter()
	r.Route("/api/v1/evidence", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireIdentity(""))
			r.Post("/", h.Upload)
			r.Get("/", h.List)
			r.Get("/case/{caseID}", h.ListByCase)
			r.Get("/{evidenceID}", h.Get)
			r.Get("/{evidenceID}/download", h.Download)
			r.Delete("/{evidenceID}", h.Delete)
			r.Post("/{evidenceID}/link", h.Relink)
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func uploadFile(t *testing.T, srv *httptest.Server, filename, caseID string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	if caseID != "" {
		require.NoError(t, w.WriteField("case_id", caseID))
	}
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/evidence/", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-ID", "user-1")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "user-1")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success, "expected success envelope, got error %q", envelope.Error)
	var out T
	require.NoError(t, json.Unmarshal(envelope.Data, &out))
	return out
}

func TestEvidenceLifecycleEndToEnd(t *testing.T) {
	srv, _ := newTestServer(t)
	content := []byte("0123456789") // 10 bytes

	// Upload a.txt into case1.
	resp := uploadFile(t, srv, "a.txt", "case1", content)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	up := decodeData[UploadResponse](t, resp)
	assert.NotEmpty(t, up.EvidenceID)
	assert.Equal(t, "a.txt", up.Filename)
	assert.Equal(t, int64(10), up.FileSize)
	assert.Equal(t, TypeLog, up.Type)

	// Listing case1 returns exactly that item.
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/evidence/?case_id=case1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeData[ListResponse](t, resp)
	require.Len(t, list.Evidence, 1)
	assert.Equal(t, up.EvidenceID, list.Evidence[0].EvidenceID)
	assert.Equal(t, 1, list.Total)

	// Download returns the original bytes with a disposition hint.
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/evidence/"+up.EvidenceID+"/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "a.txt")
	assert.Equal(t, "10", resp.Header.Get("Content-Length"))

	// Delete, then the record is gone.
	resp = doJSON(t, srv, http.MethodDelete, "/api/v1/evidence/"+up.EvidenceID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/evidence/"+up.EvidenceID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodDelete, "/api/v1/evidence/"+up.EvidenceID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadRequiresCaseID(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := uploadFile(t, srv, "a.txt", "", []byte("x"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := uploadFile(t, srv, "tool.exe", "case1", []byte("MZ"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/evidence/?case_id=case1", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListPagination(t *testing.T) {
	srv, store := newTestServer(t)
	caseID := "case1"
	base := time.Date(2025, 1, 7, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Create(context.Background(), &Evidence{
			ID:         fmt.Sprintf("ev-%d", i),
			CaseID:     &caseID,
			Filename:   fmt.Sprintf("f%d.log", i),
			Type:       TypeLog,
			UploadedAt: base.Add(time.Duration(i) * time.Minute),
			UploadedBy: "user-1",
		}))
	}

	var seen []string
	for page := 1; page <= 3; page++ {
		resp := doJSON(t, srv, http.MethodGet,
			fmt.Sprintf("/api/v1/evidence/?case_id=case1&page=%d&page_size=2", page), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decodeData[ListResponse](t, resp)
		assert.Equal(t, 5, list.Total)
		assert.Equal(t, 3, list.TotalPages)
		assert.Equal(t, page, list.Page)
		assert.LessOrEqual(t, len(list.Evidence), 2)
		for _, item := range list.Evidence {
			seen = append(seen, item.EvidenceID)
		}
	}

	// All items accounted for across pages, newest first.
	assert.Equal(t, []string{"ev-4", "ev-3", "ev-2", "ev-1", "ev-0"}, seen)
}

func TestListFiltersByType(t *testing.T) {
	srv, store := newTestServer(t)
	caseID := "case1"
	now := time.Now().UTC()
	require.NoError(t, store.Create(context.Background(), &Evidence{
		ID: "ev-log", CaseID: &caseID, Type: TypeLog, UploadedAt: now,
	}))
	require.NoError(t, store.Create(context.Background(), &Evidence{
		ID: "ev-img", CaseID: &caseID, Type: TypeScreenshot, UploadedAt: now,
	}))

	resp := doJSON(t, srv, http.MethodGet, "/api/v1/evidence/?case_id=case1&evidence_type=screenshot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeData[ListResponse](t, resp)
	require.Len(t, list.Evidence, 1)
	assert.Equal(t, "ev-img", list.Evidence[0].EvidenceID)

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/evidence/?case_id=case1&evidence_type=selfie", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListByCasePathVariant(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := uploadFile(t, srv, "shot.png", "case7", []byte{0x89, 'P', 'N', 'G'})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/evidence/case/case7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeData[ListResponse](t, resp)
	require.Len(t, list.Evidence, 1)
	assert.Equal(t, TypeScreenshot, list.Evidence[0].Type)
}

func TestRelinkEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := uploadFile(t, srv, "report.pdf", "case1", []byte("%PDF-1.4"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	up := decodeData[UploadResponse](t, resp)

	resp = doJSON(t, srv, http.MethodPost, "/api/v1/evidence/"+up.EvidenceID+"/link",
		RelinkRequest{CaseID: "case2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Now listed under case2, no longer under case1.
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/evidence/?case_id=case2", nil)
	list := decodeData[ListResponse](t, resp)
	require.Len(t, list.Evidence, 1)

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/evidence/?case_id=case1", nil)
	list = decodeData[ListResponse](t, resp)
	assert.Empty(t, list.Evidence)

	// And the bytes still download unchanged.
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/evidence/"+up.EvidenceID+"/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, []byte("%PDF-1.4"), got)
}

func TestRelinkMissingEvidence(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/evidence/nope/link", RelinkRequest{CaseID: "case2"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	// No identity header needed for probes.
	resp, err := srv.Client().Get(srv.URL + "/api/v1/evidence/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.StorageAvailable)
	assert.True(t, health.DatabaseAvailable)
}
