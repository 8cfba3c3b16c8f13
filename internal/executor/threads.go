package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/legacore/legacore/control-plane/internal/analytics"
	"github.com/legacore/legacore/control-plane/internal/store"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

// DefaultThreadTitle names threads created without a title.
const DefaultThreadTitle = "New Conversation"

// CreateThread starts a conversation between userID and agentID.
func (e *Executor) CreateThread(ctx context.Context, agentID, userID, title string) (*models.AgentThread, error) {
	if _, ok := e.agents.Get(agentID); !ok {
		return nil, &AgentConfigNotFoundError{AgentID: agentID}
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultThreadTitle
	}
	th := &models.AgentThread{AgentID: agentID, UserID: userID, Title: title}
	if err := e.store.CreateThread(ctx, th); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return th, nil
}

// AddMessage appends a message to a thread.
func (e *Executor) AddMessage(ctx context.Context, threadID, role, content string) (*models.AgentMessage, error) {
	switch role {
	case models.RoleSystem, models.RoleUser, models.RoleAssistant:
	default:
		return nil, fmt.Errorf("invalid message role %q", role)
	}
	msg := &models.AgentMessage{ThreadID: threadID, Role: role, Content: content}
	if err := e.store.AddMessage(ctx, msg); err != nil {
		return nil, threadErr(threadID, err)
	}
	return msg, nil
}

// Messages returns a thread's messages oldest first.
func (e *Executor) Messages(ctx context.Context, threadID string) ([]models.AgentMessage, error) {
	msgs, err := e.store.ListMessages(ctx, threadID)
	if err != nil {
		return nil, threadErr(threadID, err)
	}
	return msgs, nil
}

// Converse sends userMessage to the thread's agent and stores both the
// message and the agent's reply. The agent sees the prior transcript as
// "role: content" lines followed by the new user line.
func (e *Executor) Converse(ctx context.Context, threadID, userMessage string) (*models.AgentMessage, error) {
	th, err := e.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, threadErr(threadID, err)
	}
	agent, ok := e.agents.Get(th.AgentID)
	if !ok {
		return nil, &AgentConfigNotFoundError{AgentID: th.AgentID}
	}

	history, err := e.Messages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddMessage(ctx, threadID, models.RoleUser, userMessage); err != nil {
		return nil, err
	}
	e.trackChat(th, agent, models.RoleUser)

	out, err := e.generate(ctx, agent, transcript(history, userMessage))
	if err != nil {
		return nil, err
	}
	if out.Output == "" {
		return nil, errors.New("failed to generate response")
	}

	reply, err := e.AddMessage(ctx, threadID, models.RoleAssistant, out.Output)
	if err != nil {
		return nil, err
	}
	e.trackChat(th, agent, models.RoleAssistant)

	log.Debug().Str("thread", threadID).Str("agent", agent.ID).Str("provider", out.Provider).Msg("Thread reply stored")
	return reply, nil
}

func transcript(history []models.AgentMessage, userMessage string) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role + ": " + m.Content + "\n")
	}
	b.WriteString(models.RoleUser + ": " + userMessage)
	return b.String()
}

func (e *Executor) trackChat(th *models.AgentThread, agent *models.AgentConfig, role string) {
	e.tracker.TrackChatMessage(analytics.ChatMessage{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		UserID:    th.UserID,
		ThreadID:  th.ID,
		Action:    analytics.OpCreated,
		Category:  agent.Category,
		Metadata:  map[string]any{"role": role},
	})
}

func threadErr(threadID string, err error) error {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) && nf.Entity == "thread" {
		return &ThreadNotFoundError{ThreadID: threadID}
	}
	return err
}
