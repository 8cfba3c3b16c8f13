package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/legacore/legacore/control-plane/internal/api/middleware"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

type createThreadRequest struct {
	AgentID string `json:"agentId"`
	Title   string `json:"title"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

type conversationTurn struct {
	Reply *models.AgentMessage `json:"reply"`
}

func (h *Handlers) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "Agent ID is required")
		return
	}
	th, err := h.Executor.CreateThread(r.Context(), req.AgentID, middleware.GetUserID(r.Context()), req.Title)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusCreated, th)
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Executor.Messages(r.Context(), chi.URLParam(r, "threadId"))
	if err != nil {
		respondErr(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.AgentMessage{}
	}
	respondData(w, http.StatusOK, msgs)
}

// PostMessage sends a user message to the thread's agent and returns the
// stored reply.
func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "Message content is required")
		return
	}
	reply, err := h.Executor.Converse(r.Context(), chi.URLParam(r, "threadId"), req.Content)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, conversationTurn{Reply: reply})
}
