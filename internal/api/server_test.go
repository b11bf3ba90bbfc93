package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/david/opportunity-importer/internal/auth"
	"github.com/david/opportunity-importer/internal/db"
	"github.com/david/opportunity-importer/internal/ingest"
	"github.com/david/opportunity-importer/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret   = "test-jwt-secret"
	testAdminSecret = "test-admin-secret"
)

type fakeImporter struct {
	mu       sync.Mutex
	urls     [][]string
	err      error
	release  chan struct{}
	previews int
}

func (f *fakeImporter) Import(_ context.Context, urls []string) (*ingest.ImportResult, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.urls = append(f.urls, urls)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.ImportResult{Outcome: ingest.OutcomeStoredAll, Found: 1, Stored: 1}, nil
}

func (f *fakeImporter) Preview(_ context.Context, urls []string) (*ingest.PreviewResult, error) {
	f.previews++
	return &ingest.PreviewResult{Found: 2, Duplicates: 1}, nil
}

type fakeStaging struct {
	records map[uuid.UUID]models.TempRecord
	params  db.ListParams
}

func (f *fakeStaging) ListTempRecords(_ context.Context, params db.ListParams) (*db.ListResult, error) {
	f.params = params
	out := []models.TempRecord{}
	for _, r := range f.records {
		out = append(out, r)
	}
	return &db.ListResult{Records: out, Total: len(out), Limit: params.Limit, Offset: params.Offset}, nil
}

func (f *fakeStaging) GetTempRecord(_ context.Context, id uuid.UUID) (*models.TempRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &r, nil
}

func (f *fakeStaging) FindSimilar(_ context.Context, id uuid.UUID, _ int) ([]models.TempRecord, error) {
	if _, ok := f.records[id]; !ok {
		return nil, db.ErrNotFound
	}
	return []models.TempRecord{}, nil
}

func (f *fakeStaging) ListImportRuns(context.Context, int) ([]models.ImportRun, error) {
	return []models.ImportRun{{ID: uuid.New(), Status: "completed"}}, nil
}

func newTestServer(t *testing.T, imp *fakeImporter, staging *fakeStaging) *Server {
	t.Helper()
	verifier, err := auth.NewVerifier(testJWTSecret, "", nil)
	require.NoError(t, err)
	admin, err := auth.NewAdminGuard(testAdminSecret, "", nil)
	require.NoError(t, err)
	if staging == nil {
		staging = &fakeStaging{records: map[uuid.UUID]models.TempRecord{}}
	}

	s := NewServer(imp, staging, verifier, admin, nil, nil, Options{MaxImportURLs: 3})
	s.checkURL = func(_ context.Context, raw string) error {
		if strings.Contains(raw, "127.0.0.1") {
			return fmt.Errorf("%w: 127.0.0.1", ingest.ErrBlockedHost)
		}
		return nil
	}
	return s
}

func userToken(t *testing.T) string {
	t.Helper()
	tok, err := auth.IssueToken(testJWTSecret, "", uuid.New(), time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeImporter{}, nil)
	rec := do(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.health = func(context.Context) error { return errors.New("db down") }
	rec = do(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestImport_RequiresToken(t *testing.T) {
	s := newTestServer(t, &fakeImporter{}, nil)
	rec := do(s, http.MethodPost, "/api/v1/imports", `{"urls":["https://a.example"]}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, errorBody(t, rec))
}

func TestImport_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty list", `{"urls":[]}`, http.StatusBadRequest},
		{"missing field", `{}`, http.StatusBadRequest},
		{"not a url", `{"urls":["nope"]}`, http.StatusBadRequest},
		{"too many", `{"urls":["https://a.example","https://b.example","https://c.example","https://d.example"]}`, http.StatusBadRequest},
		{"private host", `{"urls":["http://127.0.0.1/admin"]}`, http.StatusForbidden},
		{"bad json", `{"urls":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := &fakeImporter{}
			s := newTestServer(t, imp, nil)
			rec := do(s, http.MethodPost, "/api/v1/imports", tt.body, map[string]string{"Authorization": userToken(t)})
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, errorBody(t, rec))
			assert.Empty(t, imp.urls)
		})
	}
}

func TestImport_Success(t *testing.T) {
	imp := &fakeImporter{}
	s := newTestServer(t, imp, nil)

	rec := do(s, http.MethodPost, "/api/v1/imports", `{"urls":["https://bids.example/list"]}`, map[string]string{"Authorization": userToken(t)})
	require.Equal(t, http.StatusOK, rec.Code)

	var res ingest.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, ingest.OutcomeStoredAll, res.Outcome)
	assert.Equal(t, [][]string{{"https://bids.example/list"}}, imp.urls)
}

func TestImport_ErrorMapping(t *testing.T) {
	imp := &fakeImporter{err: fmt.Errorf("list staged keys: %w", ingest.ErrStagingUnavailable)}
	s := newTestServer(t, imp, nil)

	rec := do(s, http.MethodPost, "/api/v1/imports", `{"urls":["https://bids.example/list"]}`, map[string]string{"Authorization": userToken(t)})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPreview(t *testing.T) {
	imp := &fakeImporter{}
	s := newTestServer(t, imp, nil)

	rec := do(s, http.MethodPost, "/api/v1/imports/preview", `{"urls":["https://bids.example/list"]}`, map[string]string{"Authorization": userToken(t)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, imp.previews)
	assert.Empty(t, imp.urls)
}

func TestStaging_GetAndList(t *testing.T) {
	id := uuid.New()
	staging := &fakeStaging{records: map[uuid.UUID]models.TempRecord{
		id: {ID: id, ProjectTitle: "Bridge Repair", ClientName: "DOT"},
	}}
	s := newTestServer(t, &fakeImporter{}, staging)
	authz := map[string]string{"Authorization": userToken(t)}

	rec := do(s, http.MethodGet, "/api/v1/staging/"+id.String(), "", authz)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bridge Repair")

	rec = do(s, http.MethodGet, "/api/v1/staging/"+uuid.NewString(), "", authz)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/staging/not-a-uuid", "", authz)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/staging/"+id.String()+"/similar", "", authz)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/staging?q=bridge&limit=10&offset=-4", "", authz)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, db.ListParams{Query: "bridge", Limit: 10, Offset: 0}, staging.params)
}

func TestAdminImport_Job(t *testing.T) {
	imp := &fakeImporter{release: make(chan struct{})}
	s := newTestServer(t, imp, nil)
	admin := map[string]string{"X-Admin-Secret": testAdminSecret}

	rec := do(s, http.MethodPost, "/api/v1/admin/imports", `{"urls":["https://bids.example/list"]}`, admin)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	jobID, _ := started["job_id"].(string)
	require.NotEmpty(t, jobID)

	rec = do(s, http.MethodPost, "/api/v1/admin/imports", `{"urls":["https://bids.example/other"]}`, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(imp.release)
	require.Eventually(t, func() bool {
		rec := do(s, http.MethodGet, "/api/v1/admin/job/"+jobID, "", admin)
		return rec.Code == http.StatusOK && strings.Contains(rec.Body.String(), `"status":"completed"`)
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(s, http.MethodGet, "/api/v1/admin/job/unknown", "", admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_RequiresSecret(t *testing.T) {
	s := newTestServer(t, &fakeImporter{}, nil)

	rec := do(s, http.MethodGet, "/api/v1/admin/import-runs", "", map[string]string{"Authorization": userToken(t)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/admin/import-runs", "", map[string]string{"X-Admin-Secret": testAdminSecret})
	assert.Equal(t, http.StatusOK, rec.Code)
}
