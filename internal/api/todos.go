package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/anti-todo/internal/identity"
	"github.com/ashureev/anti-todo/internal/todo"
	"github.com/go-chi/chi/v5"
)

// TodoHandler serves the board endpoints.
type TodoHandler struct {
	ctrl      *todo.Controller
	providers []string
}

// NewTodoHandler creates a TodoHandler. providers lists the provider names
// reported by /api/config, in chain order.
func NewTodoHandler(ctrl *todo.Controller, providers []string) *TodoHandler {
	return &TodoHandler{ctrl: ctrl, providers: providers}
}

// RegisterRoutes registers the board routes. limit wraps every route that can call a model.
func (h *TodoHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/todos", h.List)
		r.Delete("/todos/{id}", h.Delete)

		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/todos", h.Create)
			r.Post("/todos/{id}/steps", h.GenerateSteps)
			// Completing the last step calls the story model.
			r.Post("/todos/{id}/steps/{index}/toggle", h.ToggleStep)
		})
	})
}

// GetConfig returns the settings the frontend needs.
func (h *TodoHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"min_task_length": h.ctrl.MinTaskLength(),
		"providers":       h.providers,
	})
}

// List returns the device's board.
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	board, err := h.ctrl.List(r.Context(), userID)
	if err != nil {
		writeTodoError(w, err, userID)
		return
	}
	JSON(w, http.StatusOK, board)
}

type createRequest struct {
	Task string `json:"task"`
}

// Create converts the submitted task and appends it to the board.
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.ctrl.Submit(r.Context(), userID, req.Task)
	if err != nil {
		writeTodoError(w, err, userID)
		return
	}
	JSON(w, http.StatusCreated, t)
}

// GenerateSteps attaches steps to a task.
func (h *TodoHandler) GenerateSteps(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	t, err := h.ctrl.GenerateSteps(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeTodoError(w, err, userID)
		return
	}
	JSON(w, http.StatusOK, t)
}

// ToggleStep flips a step's completion.
func (h *TodoHandler) ToggleStep(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		Error(w, http.StatusUnprocessableEntity, "step index must be an integer")
		return
	}

	t, err := h.ctrl.ToggleStep(r.Context(), userID, chi.URLParam(r, "id"), index)
	if err != nil {
		writeTodoError(w, err, userID)
		return
	}
	JSON(w, http.StatusOK, t)
}

// Delete removes a task.
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if err := h.ctrl.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeTodoError(w, err, userID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeTodoError(w http.ResponseWriter, err error, userID string) {
	switch {
	case errors.Is(err, todo.ErrInvalidInput):
		Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, todo.ErrBusy):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, todo.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("Board operation failed", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to update board")
	}
}
