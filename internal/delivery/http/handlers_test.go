package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/backend/internal/config"
	"github.com/litgraph/backend/internal/dedup"
	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/repository/memstore"
	"github.com/litgraph/backend/internal/usecase"
)

type fakeStore struct {
	objects map[string]bool
}

func (f *fakeStore) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://store.local/presigned/" + key, nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	return f.objects[key], nil
}

func (f *fakeStore) Bucket() string { return "literature-pdfs" }

type fixture struct {
	router http.Handler
	lits   *memstore.LiteratureStore
	tasks  *memstore.TaskStore
	store  *fakeStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	lits := memstore.NewLiteratureStore()
	tasks := memstore.NewTaskStore()
	service := usecase.NewLiteratureService(lits, tasks, dedup.NewEngine(lits, tasks, log),
		usecase.GraphLimits{DepthDefault: 1, DepthMax: 3, SeedsMax: 20}, log)
	store := &fakeStore{objects: map[string]bool{}}
	handler := NewHandler(service, tasks, lits, store, config.UploadConfig{
		GrantSecret: "test-secret",
		GrantExpiry: 15 * time.Minute,
		MaxPDFBytes: 1 << 20,
	}, log)
	return &fixture{
		router: NewRouter(handler, config.CORSConfig{AllowedOrigins: []string{"*"}}, nil),
		lits:   lits,
		tasks:  tasks,
		store:  store,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitQueues(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/resolve", `{"doi":"10.1/new"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var result usecase.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, usecase.SubmitQueued, result.Status)
	assert.NotEmpty(t, result.TaskID)
}

func TestSubmitEmptyBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/resolve", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitExistingReturnsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.lits.UpsertLiterature(ctx, &domain.Literature{
		LID: "2020-roe-abc-1234", Metadata: domain.Metadata{Title: "Known"},
	})
	require.NoError(t, err)
	require.NoError(t, f.lits.AddAlias(ctx, "2020-roe-abc-1234", domain.AliasDOI, "10.1/known"))

	rec := f.do(t, http.MethodPost, "/api/v1/resolve", `{"doi":"10.1/known"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result usecase.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, usecase.SubmitExisting, result.Status)
	assert.Equal(t, "2020-roe-abc-1234", result.LID)
}

func TestByIdentifierQueuesWhenUnknown(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/by-identifier", `{"doi":"10.1/new"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var result usecase.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, usecase.SubmitQueued, result.Status)
	assert.NotEmpty(t, result.TaskID)
}

func TestByIdentifierReturnsKnownRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.lits.UpsertLiterature(ctx, &domain.Literature{
		LID: "2020-roe-abc-1234", Metadata: domain.Metadata{Title: "Known"},
	})
	require.NoError(t, err)
	require.NoError(t, f.lits.AddAlias(ctx, "2020-roe-abc-1234", domain.AliasDOI, "10.1/known"))

	rec := f.do(t, http.MethodPost, "/api/v1/by-identifier", `{"doi":"10.1/known"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var lit domain.Literature
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lit))
	assert.Equal(t, "2020-roe-abc-1234", lit.LID)
}

func TestGetLiteratureNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/literatures/unknown-lid", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]domain.ErrorInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.KindNotFound, body["error"].Kind)
}

func TestCancelFinishedTask(t *testing.T) {
	f := newFixture(t)
	task := domain.NewTask("t1", domain.Submission{DOI: "10.1/x"})
	task.ExecutionStatus = domain.TaskCompleted
	require.NoError(t, f.tasks.Save(context.Background(), task))

	rec := f.do(t, http.MethodDelete, "/api/v1/tasks/t1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGraphRequiresSeeds(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/graphs", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGraphReturnsNeighborhood(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, lid := range []string{"a", "b"} {
		_, err := f.lits.UpsertLiterature(ctx, &domain.Literature{
			LID: lid, Metadata: domain.Metadata{Title: "Work " + lid},
		})
		require.NoError(t, err)
	}
	require.NoError(t, f.lits.LinkCites(ctx, "a", "b", 0.9, "test"))

	rec := f.do(t, http.MethodGet, "/api/v1/graphs?lids=a&depth=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view domain.GraphView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 2, view.Meta.NodeCount)
	assert.Equal(t, 1, view.Meta.EdgeCount)
}

func TestUploadGrantRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/uploads", `{"filename":"paper.pdf"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var grant uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grant))
	assert.True(t, strings.HasPrefix(grant.Key, "uploads/"))
	assert.Contains(t, grant.UploadURL, grant.Key)
	require.NotEmpty(t, grant.Grant)

	// Confirming before the object arrives fails.
	rec = f.do(t, http.MethodPost, "/api/v1/uploads/confirm", `{"grant":"`+grant.Grant+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// After the PUT lands, confirmation returns the key.
	f.store.objects[grant.Key] = true
	rec = f.do(t, http.MethodPost, "/api/v1/uploads/confirm", `{"grant":"`+grant.Grant+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var confirmed map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.Equal(t, grant.Key, confirmed["key"])
	assert.Equal(t, "literature-pdfs", confirmed["bucket"])
}

func TestUploadRejectsBadFilenames(t *testing.T) {
	f := newFixture(t)
	for _, filename := range []string{"", "../../etc/passwd.pdf", "doc.exe", "con.pdf", "a/b.pdf"} {
		body, _ := json.Marshal(uploadRequest{Filename: filename})
		rec := f.do(t, http.MethodPost, "/api/v1/uploads", string(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "filename %q must be rejected", filename)
	}
}

func TestUploadRejectsWrongTypeAndSize(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/uploads", `{"filename":"paper.pdf","content_type":"text/html"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/uploads", `{"filename":"paper.pdf","size_bytes":2097152}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadConfirmRejectsForgedGrant(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/uploads/confirm", `{"grant":"not-a-jwt"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamClosesOnTerminalTask(t *testing.T) {
	f := newFixture(t)
	task := domain.NewTask("t1", domain.Submission{DOI: "10.1/x"})
	task.ExecutionStatus = domain.TaskCompleted
	task.LiteratureID = "2020-roe-abc-1234"
	require.NoError(t, f.tasks.Save(context.Background(), task))

	rec := f.do(t, http.MethodGet, "/api/v1/tasks/t1/stream", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: status")
	assert.Contains(t, rec.Body.String(), `"task_id":"t1"`)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}
