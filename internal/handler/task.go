package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/taskboard/internal/apperror"
	"github.com/sakif/taskboard/internal/model"
	"github.com/sakif/taskboard/internal/respond"
	"github.com/sakif/taskboard/internal/service"
)

// TaskHandler serves /api/{userID}/tasks.
type TaskHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

type taskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

type completeRequest struct {
	Completed *bool `json:"completed"`
}

type taskListResponse struct {
	Tasks []model.Task `json:"tasks"`
}

// HandleList returns the caller's tasks, newest first.
//
// HTTP: GET /api/{userID}/tasks → 200 {"tasks": [...]}
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	tasks, err := h.tasks.List(r.Context(), userID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, taskListResponse{Tasks: tasks})
}

// HandleCreate adds a task.
//
// HTTP: POST /api/{userID}/tasks → 201 task
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), userID, req.Title, req.Description)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, task)
}

// HandleGet returns one task.
//
// HTTP: GET /api/{userID}/tasks/{taskID} → 200 task
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, taskID, err := taskTarget(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	task, err := h.tasks.Get(r.Context(), userID, taskID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, task)
}

// HandleUpdate replaces a task's title and description.
//
// HTTP: PUT /api/{userID}/tasks/{taskID} → 200 task
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, taskID, err := taskTarget(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	task, err := h.tasks.Update(r.Context(), userID, taskID, req.Title, req.Description)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, task)
}

// HandleComplete sets a task's completion flag.
//
// HTTP: PATCH /api/{userID}/tasks/{taskID}/complete {"completed": bool} → 200 task
func (h *TaskHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	userID, taskID, err := taskTarget(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	if req.Completed == nil {
		respond.Error(w, r, apperror.ValidationFailed("completed", "completed is required"))
		return
	}

	task, err := h.tasks.SetCompleted(r.Context(), userID, taskID, *req.Completed)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, task)
}

// HandleDelete removes a task.
//
// HTTP: DELETE /api/{userID}/tasks/{taskID} → 204
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, taskID, err := taskTarget(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.tasks.Delete(r.Context(), userID, taskID); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.NoContent(w)
}

func taskTarget(r *http.Request) (string, int64, error) {
	userID, err := ownerID(r)
	if err != nil {
		return "", 0, err
	}
	taskID, err := taskIDParam(r)
	if err != nil {
		return "", 0, err
	}
	return userID, taskID, nil
}
