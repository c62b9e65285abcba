// Package http is the API surface: submission, task status and streaming,
// literature reads, graph queries, and upload grants.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/config"
	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/usecase"
)

// ObjectStore is what the upload grant flow needs from pkg/objectstore.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Bucket() string
}

type Handler struct {
	service *usecase.LiteratureService
	tasks   domain.TaskRepository
	lits    domain.LiteratureRepository
	store   ObjectStore
	upload  config.UploadConfig
	log     *logrus.Entry
}

func NewHandler(service *usecase.LiteratureService, tasks domain.TaskRepository,
	lits domain.LiteratureRepository, store ObjectStore, upload config.UploadConfig,
	log *logrus.Logger) *Handler {
	return &Handler{
		service: service,
		tasks:   tasks,
		lits:    lits,
		store:   store,
		upload:  upload,
		log:     log.WithField("component", "http"),
	}
}

// Submit accepts one source and returns the task handle, or the existing
// record's location when the source is already known.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, domain.Ef(domain.KindInvalidInput, err, "malformed request body"))
		return
	}
	result, err := h.service.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSubmitResult(w, result)
}

func writeSubmitResult(w http.ResponseWriter, result *usecase.SubmitResult) {
	body := map[string]any{"status": result.Status}
	if result.LID != "" {
		body["literature_id"] = result.LID
		body["resource_url"] = "/api/v1/literatures/" + result.LID
	}
	if result.TaskID != "" {
		body["task_id"] = result.TaskID
		body["status_url"] = "/api/v1/tasks/" + result.TaskID
		body["stream_url"] = "/api/v1/tasks/" + result.TaskID + "/stream"
	}
	status := http.StatusAccepted
	if result.Status == usecase.SubmitExisting {
		status = http.StatusOK
	}
	writeJSON(w, status, body)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelTask(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (h *Handler) GetLiterature(w http.ResponseWriter, r *http.Request) {
	lit, err := h.service.GetLiterature(r.Context(), chi.URLParam(r, "lid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lit)
}

func (h *Handler) GetFulltext(w http.ResponseWriter, r *http.Request) {
	text, err := h.service.GetFulltext(r.Context(), chi.URLParam(r, "lid"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) BatchGet(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Ef(domain.KindInvalidInput, err, "malformed request body"))
		return
	}
	lits, err := h.service.BatchGet(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"literatures": lits})
}

// Graph serves the citation neighborhood of a comma-separated seed list.
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	seedsParam := strings.TrimSpace(r.URL.Query().Get("lids"))
	if seedsParam == "" {
		writeError(w, domain.E(domain.KindInvalidInput, "lids query parameter required"))
		return
	}
	var seeds []string
	for _, s := range strings.Split(seedsParam, ",") {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	depth := 0
	if d := r.URL.Query().Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			writeError(w, domain.E(domain.KindInvalidInput, "depth must be an integer"))
			return
		}
		depth = n
	}
	view, err := h.service.Graph(r.Context(), seeds, depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type byIdentifierRequest struct {
	domain.Submission
	Wait bool `json:"wait,omitempty"`
}

// ByIdentifier is the convenience lookup: resolve the identifier, submitting
// for ingestion when unknown. With wait the request blocks briefly for the
// spawned task to finish.
func (h *Handler) ByIdentifier(w http.ResponseWriter, r *http.Request) {
	var req byIdentifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Ef(domain.KindInvalidInput, err, "malformed request body"))
		return
	}
	wait := time.Duration(0)
	if req.Wait {
		wait = 30 * time.Second
	}
	lit, result, err := h.service.Resolve(r.Context(), req.Submission, wait)
	if err != nil {
		writeError(w, err)
		return
	}
	if lit != nil {
		writeJSON(w, http.StatusOK, lit)
		return
	}
	writeSubmitResult(w, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	info := domain.InfoFrom(err)
	writeJSON(w, statusFor(info.Kind), map[string]any{"error": info})
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput, domain.KindSSRFBlocked:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.KindInvalidPDF, domain.KindUnsupportedSource, domain.KindParseFailure:
		return http.StatusUnprocessableEntity
	case domain.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
