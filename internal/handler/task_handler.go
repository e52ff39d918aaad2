package handler

import (
	"net/http"

	"auth-notify-service/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TaskHandler exposes background task state
type TaskHandler struct {
	responder
	tasks *service.TaskService
}

func NewTaskHandler(tasks *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		responder: responder{logger: logger},
		tasks:     tasks,
	}
}

func (h *TaskHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.With(requireAuth).Get("/tasks/{taskID}", h.Get)
}

// Get returns the recorded state of a task
// @Router /tasks/{taskID} [get]
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.tasks.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get task")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(result, ""))
}
