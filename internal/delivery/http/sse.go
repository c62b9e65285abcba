package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/litgraph/backend/internal/domain"
)

const sseKeepAlive = 15 * time.Second

// StreamTask serves the task's live status as server-sent events. The first
// event is the current snapshot; the stream closes after a terminal event.
func (h *Handler) StreamTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := h.service.GetTask(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, domain.E(domain.KindInternal, "response writer does not support streaming"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(kind domain.TaskEventKind, payload *domain.Task) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, data)
		flusher.Flush()
	}

	// Snapshot first so late subscribers see the current state immediately.
	writeEvent(domain.EventStatus, task)
	if task.ExecutionStatus.Terminal() {
		return
	}

	events, unsubscribe, err := h.tasks.SubscribeEvents(r.Context(), taskID)
	if err != nil {
		h.log.WithField("task_id", taskID).WithError(err).Warn("event subscription failed")
		return
	}
	defer unsubscribe()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Payload == nil {
				continue
			}
			writeEvent(ev.Kind, ev.Payload)
			if ev.Payload.ExecutionStatus.Terminal() {
				return
			}
		}
	}
}
