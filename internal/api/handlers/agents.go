package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/legacore/legacore/control-plane/internal/executor"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

// ListAgents returns the active agents, optionally filtered by ?category=.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	var agents []*models.AgentConfig
	if cat := r.URL.Query().Get("category"); cat != "" {
		agents = h.Catalog.ByCategory(cat)
	} else {
		agents = h.Catalog.Active()
	}
	if agents == nil {
		agents = []*models.AgentConfig{}
	}
	respondData(w, http.StatusOK, agents)
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats := h.Catalog.Categories()
	if cats == nil {
		cats = []string{}
	}
	respondData(w, http.StatusOK, cats)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.agent(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, agent)
}

func (h *Handlers) GetAgentTools(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.agent(w, r)
	if !ok {
		return
	}
	tools := agent.Tools
	if tools == nil {
		tools = []models.AgentTool{}
	}
	respondData(w, http.StatusOK, tools)
}

func (h *Handlers) agent(w http.ResponseWriter, r *http.Request) (*models.AgentConfig, bool) {
	id := chi.URLParam(r, "agentId")
	agent, ok := h.Catalog.Get(id)
	if !ok {
		respondErr(w, &executor.AgentConfigNotFoundError{AgentID: id})
		return nil, false
	}
	return agent, true
}
