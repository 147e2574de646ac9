package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/database"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/models"
)

const (
	defaultTaskLimit = 20
	maxTaskLimit     = 500
)

// TaskList is returned by GET /api/v1/tasks.
type TaskList struct {
	Total int64               `json:"total"`
	Tasks []models.TaskRecord `json:"tasks"`
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, models.HealthStatus{Status: "ok", State: "idle"})
		return
	}
	writeJSON(w, http.StatusOK, s.status.Health())
}

// listTasksHandler handles GET /api/v1/tasks?limit=N, newest first.
func (s *Server) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "task history unavailable")
		return
	}
	limit := defaultTaskLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxTaskLimit)
	}

	ctx := r.Context()
	tasks, err := s.history.ListTasks(ctx, limit)
	if err != nil {
		logutils.Log.WithError(err).WithField("request_id", RequestIDFromContext(ctx)).Error("ListTasks failed")
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	total, err := s.history.CountTasks(ctx)
	if err != nil {
		logutils.Log.WithError(err).WithField("request_id", RequestIDFromContext(ctx)).Warn("CountTasks failed")
		total = int64(len(tasks))
	}
	if tasks == nil {
		tasks = []models.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, TaskList{Total: total, Tasks: tasks})
}

// getTaskHandler handles GET /api/v1/tasks/{taskID}.
func (s *Server) getTaskHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "task history unavailable")
		return
	}
	ctx := r.Context()
	rec, err := s.history.GetTask(ctx, chi.URLParam(r, "taskID"))
	switch {
	case errors.Is(err, database.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case err != nil:
		logutils.Log.WithError(err).WithField("request_id", RequestIDFromContext(ctx)).Error("GetTask failed")
		writeError(w, http.StatusInternalServerError, "failed to load task")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
