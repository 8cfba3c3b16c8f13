package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/legacore/legacore/control-plane/internal/router"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

// DefaultChatSystemPrompt is used when a chat names no agent.
const DefaultChatSystemPrompt = "You are a helpful AI assistant."

type chatRequest struct {
	Messages []models.ChatMessage `json:"messages"`
	AgentID  string               `json:"agentId"`
}

type chatResponse struct {
	Message  string        `json:"message"`
	Model    string        `json:"model"`
	Provider string        `json:"provider"`
	Usage    *models.Usage `json:"usage,omitempty"`
	Agent    *agentRef     `json:"agent"`
}

// streamChunk is one SSE data frame of a streamed chat.
type streamChunk struct {
	Content  string `json:"content,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Error    string `json:"error,omitempty"`
	Done     bool   `json:"done"`
}

// Chat answers a free-form conversation, optionally as an agent. With
// ?stream=true the reply is sent as server-sent events.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		respondError(w, http.StatusBadRequest, "Messages array is required")
		return
	}
	for _, m := range req.Messages {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid message role %q", m.Role))
			return
		}
	}

	var agent *models.AgentConfig
	if req.AgentID != "" {
		agent, _ = h.Catalog.Get(req.AgentID)
	}
	systemPrompt := DefaultChatSystemPrompt
	if agent != nil && agent.SystemPrompt != "" {
		systemPrompt = agent.SystemPrompt
	}

	if !h.Router.Status().HasAnyProvider {
		respondError(w, http.StatusServiceUnavailable,
			"No AI providers configured. Please set up OpenAI, xAI, Groq or OpenRouter API keys.")
		return
	}

	rreq := &router.Request{
		Messages: append([]models.ChatMessage{{Role: models.RoleSystem, Content: systemPrompt}}, req.Messages...),
	}
	if agent != nil {
		rreq.Temperature = agent.Temperature
		rreq.MaxTokens = agent.MaxTokens
	}

	if r.URL.Query().Get("stream") == "true" {
		h.streamChat(w, r, rreq)
		return
	}

	resp := h.Router.Generate(r.Context(), rreq)
	out := chatResponse{
		Message:  resp.Text,
		Model:    resp.Model,
		Provider: resp.Provider,
		Usage:    resp.Usage,
	}
	if agent != nil {
		out.Agent = &agentRef{ID: agent.ID, Name: agent.Name, Category: agent.Category}
	}
	respondData(w, http.StatusOK, out)
}

func (h *Handlers) streamChat(w http.ResponseWriter, r *http.Request, req *router.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	sr, err := h.Router.Stream(r.Context(), req)
	if err != nil {
		respondErr(w, err)
		return
	}
	defer sr.Stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(c streamChunk) error {
		data, _ := json.Marshal(c)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for {
		text, err := sr.Stream.Recv()
		if errors.Is(err, io.EOF) {
			send(streamChunk{Provider: sr.Provider, Model: sr.Model, Done: true})
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("provider", sr.Provider).Msg("Chat stream interrupted")
			send(streamChunk{Error: err.Error(), Done: true})
			return
		}
		if text == "" {
			continue
		}
		if err := send(streamChunk{Content: text}); err != nil {
			return
		}
	}
}
