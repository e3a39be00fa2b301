package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/spotdown/internal/app"
	"github.com/cesargomez89/spotdown/internal/catalog"
	"github.com/cesargomez89/spotdown/internal/http/dto"
	"github.com/cesargomez89/spotdown/internal/realtime"
)

const keepAliveInterval = 15 * time.Second

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: dto.ToResponse(errs), Fields: dto.ToMap(errs)})
		return
	}

	task, err := h.Tasks.Submit(r.Context(), req.PlaylistURL)
	if errors.Is(err, catalog.ErrInvalidPlaylistURL) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.Logger.Error("Failed to submit task", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	h.writeJSON(w, http.StatusCreated, dto.NewSubmitTaskResponse(task))
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Tasks.ListTasks(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.Logger.Error("Failed to list tasks", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	details, err := h.Tasks.GetTask(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, app.ErrTaskNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.Logger.Error("Failed to get task", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	h.writeJSON(w, http.StatusOK, details)
}

func (h *Handler) ListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.Tasks.ListTracks(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, app.ErrTaskNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.Logger.Error("Failed to list tracks", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list tracks")
		return
	}
	h.writeJSON(w, http.StatusOK, tracks)
}

func (h *Handler) RecentFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.Tasks.RecentFailures(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.Logger.Error("Failed to list failures", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list failures")
		return
	}
	h.writeJSON(w, http.StatusOK, failures)
}

// StreamEvents sends the current task state, then every broadcast for the
// task as server-sent events. The stream ends once the task is terminal.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok || h.Hub == nil {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := h.Hub.Subscribe(realtime.TaskTopic(id))
	defer unsubscribe()

	details, err := h.Tasks.GetTask(r.Context(), id)
	if errors.Is(err, app.ErrTaskNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.Logger.Error("Failed to get task", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, realtime.NewTaskEvent(details.Task)); err != nil {
		return
	}
	flusher.Flush()
	if details.Task.Status.IsTerminal() {
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if u, ok := ev.Payload.(realtime.TaskUpdate); ok && u.Status.IsTerminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev realtime.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
