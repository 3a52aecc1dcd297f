package api

import (
	"log/slog"
	"net/http"

	"github.com/hyperengineering/caseload/internal/types"
	"github.com/hyperengineering/caseload/internal/validation"
)

// CreateAuthorization handles POST /api/v1/clients/{id}/authorizations
func (h *Handler) CreateAuthorization(w http.ResponseWriter, r *http.Request) {
	var auth types.Authorization
	if !decodeJSON(w, r, &auth) {
		return
	}
	if errs := validation.ValidateAuthorization(auth); len(errs) > 0 {
		WriteProblemWithErrors(w, r, errs)
		return
	}

	clientID := IDFromContext(r.Context(), "id")
	id, err := h.store.CreateAuthorization(r.Context(), clientID, auth)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("authorization created", "client_id", clientID, "id", id)
	writeJSON(w, http.StatusCreated, types.CreatedResponse{ID: id})
}

// UpdateAuthorization handles PUT /api/v1/authorizations/{authID}
func (h *Handler) UpdateAuthorization(w http.ResponseWriter, r *http.Request) {
	var auth types.Authorization
	if !decodeJSON(w, r, &auth) {
		return
	}
	if errs := validation.ValidateAuthorization(auth); len(errs) > 0 {
		WriteProblemWithErrors(w, r, errs)
		return
	}

	auth.ID = IDFromContext(r.Context(), "authID")
	if err := h.store.UpdateAuthorization(r.Context(), auth); err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAuthorization handles DELETE /api/v1/authorizations/{authID}
func (h *Handler) DeleteAuthorization(w http.ResponseWriter, r *http.Request) {
	id := IDFromContext(r.Context(), "authID")
	if err := h.store.DeleteAuthorization(r.Context(), id); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("authorization deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ListTasks handles GET /api/v1/tasks
//
// Query parameters: status (pending or completed), client_id.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.TaskFilter{
		Status:   types.TaskStatus(q.Get("status")),
		ClientID: q.Get("client_id"),
	}
	c := validation.NewCollector("")
	c.Add(validation.ValidateTaskStatus("status", filter.Status))
	if filter.ClientID != "" {
		c.Add(validation.ValidateID("client_id", filter.ClientID))
	}
	if errs := c.Errors(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, errs)
		return
	}

	tasks, err := h.store.ListTasks(r.Context(), filter)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.TaskList{Tasks: tasks})
}

// CreateTask handles POST /api/v1/tasks and POST /api/v1/clients/{id}/tasks.
// On the client route the path decides the owner.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var task types.Task
	if !decodeJSON(w, r, &task) {
		return
	}
	if clientID := IDFromContext(r.Context(), "id"); clientID != "" {
		task.ClientID = clientID
	}
	if errs := validation.ValidateTask(task); len(errs) > 0 {
		WriteProblemWithErrors(w, r, errs)
		return
	}

	id, err := h.store.CreateTask(r.Context(), task)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("task created", "client_id", task.ClientID, "id", id)
	writeJSON(w, http.StatusCreated, types.CreatedResponse{ID: id})
}

// UpdateTask handles PUT /api/v1/tasks/{taskID}
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var task types.Task
	if !decodeJSON(w, r, &task) {
		return
	}
	// A task keeps its owner; a client_id in the body is ignored.
	task.ClientID = ""
	if errs := validation.ValidateTask(task); len(errs) > 0 {
		WriteProblemWithErrors(w, r, errs)
		return
	}

	task.ID = IDFromContext(r.Context(), "taskID")
	if err := h.store.UpdateTask(r.Context(), task); err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteTask handles POST /api/v1/tasks/{taskID}/complete
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id := IDFromContext(r.Context(), "taskID")
	if err := h.store.CompleteTask(r.Context(), id); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("task completed", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTask handles DELETE /api/v1/tasks/{taskID}
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := IDFromContext(r.Context(), "taskID")
	if err := h.store.DeleteTask(r.Context(), id); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("task deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}
