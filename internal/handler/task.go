package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-manager/internal/model"
	"github.com/BuzzLyutic/todo-manager/internal/service"
	"github.com/BuzzLyutic/todo-manager/pkg/respond"
)

type TaskHandler struct {
	service *service.TaskService
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		logger:  logger,
	}
}

// taskResponse - задача плюс вычисленный на момент ответа признак просрочки
type taskResponse struct {
	model.Task
	Overdue bool `json:"overdue"`
}

func (h *TaskHandler) toResponse(t model.Task) taskResponse {
	return taskResponse{Task: t, Overdue: h.service.IsTaskOverdue(t)}
}

func (h *TaskHandler) toResponses(tasks []model.Task) []taskResponse {
	out := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = h.toResponse(t)
	}
	return out
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("failed to decode json", zap.Error(err))
		respond.Errorf(w, r, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}

	task, err := h.service.CreateTask(r.Context(), req.toInput())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/tasks/"+task.ID)
	respond.JSON(w, r, http.StatusCreated, h.toResponse(task))
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, h.toResponse(task))
}

// List принимает ?status=todo|in_progress|completed|all и ?query=
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := model.TaskFilter{
		Status: r.URL.Query().Get("status"),
		Query:  r.URL.Query().Get("query"),
	}
	if _, ok := filter.StatusConstraint(); ok {
		if _, err := model.ParseStatus(filter.Status); err != nil {
			respond.Error(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	tasks, err := h.service.GetTasks(r.Context(), filter)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, h.toResponses(tasks))
}

func (h *TaskHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.GetOverdueTasks(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, h.toResponses(tasks))
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}

	task, err := h.service.UpdateTask(r.Context(), chi.URLParam(r, "id"), req.toPatch())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, h.toResponse(task))
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}

	task, err := h.service.UpdateTaskStatus(r.Context(), chi.URLParam(r, "id"), model.Status(req.Status))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, h.toResponse(task))
}

// Delete идемпотентен: отсутствующая задача тоже даёт 204
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, stats)
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrValidation):
		respond.Error(w, r, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
