package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/legacore/legacore/control-plane/internal/api/middleware"
	"github.com/legacore/legacore/control-plane/internal/store"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

type executeRequest struct {
	AgentID  string         `json:"agentId"`
	Input    string         `json:"input"`
	UserID   string         `json:"userId"`
	Metadata map[string]any `json:"metadata"`
}

type agentRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type executeResponse struct {
	TaskID   string            `json:"taskId"`
	Status   models.TaskStatus `json:"status"`
	Output   string            `json:"output"`
	Metadata map[string]any    `json:"metadata"`
	Agent    agentRef          `json:"agent"`
}

type taskStatusResponse struct {
	ID        string            `json:"id"`
	Status    models.TaskStatus `json:"status"`
	Input     string            `json:"input"`
	Output    string            `json:"output"`
	Metadata  map[string]any    `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ExecuteAgent creates a task for the agent and runs it to completion.
func (h *Handlers) ExecuteAgent(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AgentID == "" || strings.TrimSpace(req.Input) == "" {
		respondError(w, http.StatusBadRequest, "Agent ID and input are required")
		return
	}
	agent, ok := h.Catalog.Get(req.AgentID)
	if !ok {
		respondError(w, http.StatusNotFound, "Agent not found")
		return
	}
	if req.UserID == "" {
		req.UserID = middleware.GetUserID(r.Context())
	}

	task, err := h.Executor.Run(r.Context(), agent.ID, req.UserID, req.Input, req.Metadata)
	if err != nil {
		if task == nil {
			respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusInternalServerError, envelope{
			Success: false,
			Error:   err.Error(),
			Data:    toExecuteResponse(task, agent),
		})
		return
	}
	respondData(w, http.StatusOK, toExecuteResponse(task, agent))
}

// GetExecution reports a task by ?taskId=.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("taskId")
	if id == "" {
		respondError(w, http.StatusBadRequest, "Task ID is required")
		return
	}
	h.writeTask(w, r, id)
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	h.writeTask(w, r, chi.URLParam(r, "taskId"))
}

func (h *Handlers) writeTask(w http.ResponseWriter, r *http.Request, id string) {
	task, err := h.Store.GetTask(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, taskStatusResponse{
		ID:        task.ID,
		Status:    task.Status,
		Input:     task.Input,
		Output:    task.Output,
		Metadata:  task.Metadata,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	})
}

// ListTasks lists tasks newest first, filtered by ?agentId=&status=&limit=.
// Users only see their own tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TaskFilter{
		AgentID: q.Get("agentId"),
		UserID:  middleware.GetUserID(r.Context()),
		Limit:   queryLimit(r, store.DefaultListLimit),
	}
	if s := q.Get("status"); s != "" {
		st := models.TaskStatus(s)
		switch st {
		case models.TaskPending, models.TaskRunning, models.TaskCompleted, models.TaskFailed:
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		filter.Status = st
	}

	tasks, err := h.Store.ListTasks(r.Context(), filter)
	if err != nil {
		respondErr(w, err)
		return
	}
	if tasks == nil {
		tasks = []models.AgentTask{}
	}
	respondData(w, http.StatusOK, tasks)
}

func toExecuteResponse(task *models.AgentTask, agent *models.AgentConfig) executeResponse {
	return executeResponse{
		TaskID:   task.ID,
		Status:   task.Status,
		Output:   task.Output,
		Metadata: task.Metadata,
		Agent:    agentRef{ID: agent.ID, Name: agent.Name, Category: agent.Category},
	}
}
