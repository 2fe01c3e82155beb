package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/adscript-api/internal/api/shared"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/redact"
	"github.com/phrazzld/adscript-api/internal/service"
)

// TaskIDParam is the chi URL parameter holding the task ID.
const TaskIDParam = "id"

// AdScriptHandler serves the ad script task endpoints.
type AdScriptHandler struct {
	tasks  service.AdScriptService
	logger *slog.Logger
	now    func() time.Time
}

// NewAdScriptHandler creates a new AdScriptHandler.
func NewAdScriptHandler(tasks service.AdScriptService, log *slog.Logger) *AdScriptHandler {
	if tasks == nil {
		panic("tasks cannot be nil") // ALLOW-PANIC
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdScriptHandler{
		tasks:  tasks,
		logger: log.With(slog.String("component", "adscript_handler")),
		now:    time.Now,
	}
}

// Health reports database reachability and per-status task counts.
// GET /api/ad-scripts/health
func (h *AdScriptHandler) Health(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	timestamp := h.now().UTC().Format(time.RFC3339)

	unhealthy := func(err error) {
		log.Error("health check failed", slog.String("error", redact.Error(err)))
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
			Status:    "unhealthy",
			Database:  "disconnected",
			Error:     redact.Error(err),
			Timestamp: timestamp,
		})
	}

	if err := h.tasks.Ping(r.Context()); err != nil {
		unhealthy(err)
		return
	}
	stats, err := h.tasks.Stats(r.Context())
	if err != nil {
		unhealthy(err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Database:   "connected",
		Statistics: &stats,
		Timestamp:  timestamp,
	})
}

// Store creates a task and queues it for dispatch.
// POST /api/ad-scripts
func (h *AdScriptHandler) Store(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.Create(r.Context(), userID, req.ReferenceScript, req.OutcomeDescription)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, TaskEnvelope{Data: NewTaskResource(task)})
}

// Index lists tasks, newest first, with optional status filter and search.
// GET /api/ad-scripts
func (h *AdScriptHandler) Index(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.ListFilter{
		Status:  domain.TaskStatus(strings.TrimSpace(q.Get("status"))),
		Search:  strings.TrimSpace(q.Get("search")),
		Page:    queryInt(r, "page", 1),
		PerPage: queryInt(r, "per_page", service.DefaultPerPage),
	}

	page, err := h.tasks.List(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Data: NewTaskResources(page.Items),
		Meta: PaginationMeta{
			CurrentPage: page.Page,
			PerPage:     page.PerPage,
			Total:       page.Total,
			LastPage:    page.LastPage,
		},
	})
}

// Show returns one task.
// GET /api/ad-scripts/{id}
func (h *AdScriptHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := getPathTaskID(r, TaskIDParam)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskShowResponse{Task: NewTaskResource(task)})
}

// Result records the generated script delivered by the n8n callback.
// POST /api/ad-scripts/{id}/result
func (h *AdScriptHandler) Result(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := getPathTaskID(r, TaskIDParam)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req TaskResultRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.RecordResult(r.Context(), id, req.NewScript, req.Analysis)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update task result")
		return
	}

	log.Info("task result recorded", slog.Int64("task_id", task.ID))
	shared.RespondWithJSON(w, r, http.StatusOK, TaskResultResponse{
		Message: "Task result updated successfully",
		Task:    NewTaskResource(task),
	})
}
