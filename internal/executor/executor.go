// Package executor runs agent tasks and conversations.
//
// A task moves through a one-way state machine:
//
//	pending → running → completed | failed
//
// Executing a task makes one provider call, or two when the agent's tools
// are offered and the model answers with a tool invocation envelope:
//
//	system prompt (+ tool catalog) → Router → decode envelope →
//	dispatch tool → append result → Router → final answer
//
// ExecuteTask never returns with the task left pending or running.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/legacore/legacore/control-plane/internal/analytics"
	"github.com/legacore/legacore/control-plane/internal/metrics"
	"github.com/legacore/legacore/control-plane/internal/router"
	"github.com/legacore/legacore/control-plane/internal/store"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

var tracer = otel.Tracer("legacore/executor")

// Activity log vocabulary.
const (
	ActionTaskCompleted = "task_completed"
	ActionTaskFailed    = "task_failed"
	ResourceAgentTask   = "agent_task"
)

// Generator produces model output. *router.Router satisfies it.
type Generator interface {
	Generate(ctx context.Context, req *router.Request) models.AIResponse
}

// AgentSource resolves agent definitions. *catalog.Catalog satisfies it.
type AgentSource interface {
	Get(id string) (*models.AgentConfig, bool)
}

// ToolRunner validates and dispatches tool invocations. *tools.Registry
// satisfies it.
type ToolRunner interface {
	Execute(category string, tool models.AgentTool, params map[string]any) (map[string]any, error)
}

// Executor runs agent tasks and thread conversations.
type Executor struct {
	store   store.Store
	agents  AgentSource
	gen     Generator
	tools   ToolRunner
	gate    ToolGate
	tracker *analytics.Tracker
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithGate replaces the default KeywordGate.
func WithGate(g ToolGate) Option {
	return func(e *Executor) { e.gate = g }
}

// WithTracker sends lifecycle events to t.
func WithTracker(t *analytics.Tracker) Option {
	return func(e *Executor) { e.tracker = t }
}

// NewExecutor creates an executor.
func NewExecutor(s store.Store, agents AgentSource, gen Generator, tools ToolRunner, opts ...Option) *Executor {
	e := &Executor{
		store:  s,
		agents: agents,
		gen:    gen,
		tools:  tools,
		gate:   KeywordGate{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateTask persists a new pending task. No model call is made.
func (e *Executor) CreateTask(ctx context.Context, agentID, userID, input string, metadata map[string]any) (*models.AgentTask, error) {
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}
	task := &models.AgentTask{
		AgentID:  agentID,
		UserID:   userID,
		Input:    input,
		Status:   models.TaskPending,
		Metadata: copyMap(metadata),
	}
	if err := e.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	category := ""
	if agent, ok := e.agents.Get(agentID); ok {
		category = agent.Category
	}
	e.tracker.TrackTaskOperation(analytics.TaskOperation{
		TaskID:   task.ID,
		TaskType: "agent_execution",
		UserID:   userID,
		Action:   analytics.OpCreated,
		Category: category,
		Metadata: map[string]any{"agent_id": agentID, "input_length": len(input)},
	})
	return task, nil
}

// Run creates a task, executes it and returns the stored result. On
// failure the failed task is returned alongside the error when it exists.
func (e *Executor) Run(ctx context.Context, agentID, userID, input string, metadata map[string]any) (*models.AgentTask, error) {
	task, err := e.CreateTask(ctx, agentID, userID, input, metadata)
	if err != nil {
		return nil, err
	}
	execErr := e.ExecuteTask(ctx, task.ID)

	stored, err := e.store.GetTask(context.WithoutCancel(ctx), task.ID)
	if err != nil {
		if execErr != nil {
			return nil, execErr
		}
		return nil, fmt.Errorf("reload task: %w", err)
	}
	return stored, execErr
}

// outcome is the result of running an agent over one input.
type outcome struct {
	Output    string
	Provider  string
	Model     string
	Usage     *models.Usage
	ToolsUsed []string
}

func (o *outcome) record(resp models.AIResponse) {
	o.Output = resp.Text
	o.Provider = resp.Provider
	o.Model = resp.Model
	if resp.Usage != nil {
		if o.Usage == nil {
			o.Usage = &models.Usage{}
		}
		o.Usage.PromptTokens += resp.Usage.PromptTokens
		o.Usage.CompletionTokens += resp.Usage.CompletionTokens
		o.Usage.TotalTokens += resp.Usage.TotalTokens
	}
}

// ExecuteTask runs a pending task to completion or failure.
func (e *Executor) ExecuteTask(ctx context.Context, taskID string) error {
	ctx, span := tracer.Start(ctx, "executor.task")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID))

	start := e.now()

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			err = &TaskNotFoundError{TaskID: taskID}
		} else {
			err = fmt.Errorf("load task %s: %w", taskID, err)
		}
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("agent.id", task.AgentID))

	running := models.TaskRunning
	if _, err := e.store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &running}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		var it *store.ErrInvalidTransition
		if errors.As(err, &it) {
			return err
		}
		return e.fail(ctx, task, "", start, fmt.Errorf("start task: %w", err))
	}

	agent, ok := e.agents.Get(task.AgentID)
	if !ok {
		return e.fail(ctx, task, "", start, &AgentConfigNotFoundError{AgentID: task.AgentID})
	}

	out, err := e.generate(ctx, agent, task.Input)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return e.fail(ctx, task, agent.Category, start, err)
	}

	elapsed := e.now().Sub(start)
	meta := copyMap(task.Metadata)
	meta["provider"] = out.Provider
	meta["model"] = out.Model
	meta["tools_used"] = out.ToolsUsed
	meta["execution_time"] = elapsed.Milliseconds()
	if out.Usage != nil {
		meta["usage"] = map[string]any{
			"promptTokens":     out.Usage.PromptTokens,
			"completionTokens": out.Usage.CompletionTokens,
			"totalTokens":      out.Usage.TotalTokens,
		}
	}

	completed := models.TaskCompleted
	if _, err := e.store.UpdateTask(ctx, taskID, store.TaskUpdate{
		Status:   &completed,
		Output:   &out.Output,
		Metadata: meta,
	}); err != nil {
		return e.fail(ctx, task, agent.Category, start, fmt.Errorf("complete task: %w", err))
	}

	e.logActivity(ctx, task.UserID, ActionTaskCompleted, taskID, map[string]any{
		"agent_id":       agent.ID,
		"input_length":   len(task.Input),
		"output_length":  len(out.Output),
		"tools_used":     out.ToolsUsed,
		"execution_time": elapsed.Milliseconds(),
	})
	metrics.RecordTask(agent.Category, string(models.TaskCompleted), elapsed.Seconds())

	tokens := 0
	if out.Usage != nil {
		tokens = out.Usage.TotalTokens
	}
	e.tracker.TrackAgentInteraction(analytics.AgentInteraction{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		UserID:    task.UserID,
		Action:    analytics.AgentComplete,
		Duration:  elapsed,
		Tokens:    tokens,
		Model:     out.Model,
		Category:  agent.Category,
	})
	e.tracker.TrackTaskOperation(analytics.TaskOperation{
		TaskID:   taskID,
		TaskType: "agent_execution",
		UserID:   task.UserID,
		Action:   analytics.OpCompleted,
		Category: agent.Category,
		Metadata: map[string]any{"tools_used": out.ToolsUsed, "provider": out.Provider},
	})

	log.Info().
		Str("task", taskID).
		Str("agent", agent.ID).
		Str("provider", out.Provider).
		Strs("tools", out.ToolsUsed).
		Int64("total_ms", elapsed.Milliseconds()).
		Msg("Agent task complete")
	return nil
}

// fail marks task failed, records the failure and returns cause. The writes
// run detached from ctx so a cancelled caller still leaves a terminal task.
func (e *Executor) fail(ctx context.Context, task *models.AgentTask, category string, start time.Time, cause error) error {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()

	failed := models.TaskFailed
	if _, err := e.store.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: &failed, Output: &msg}); err != nil {
		log.Error().Err(err).Str("task", task.ID).Msg("Failed to mark task failed")
	}
	e.logActivity(ctx, task.UserID, ActionTaskFailed, task.ID, map[string]any{"error": msg})
	metrics.RecordTask(category, string(models.TaskFailed), e.now().Sub(start).Seconds())

	e.tracker.TrackAgentInteraction(analytics.AgentInteraction{
		AgentID:  task.AgentID,
		UserID:   task.UserID,
		Action:   analytics.AgentError,
		Duration: e.now().Sub(start),
		Category: category,
	})
	e.tracker.TrackTaskOperation(analytics.TaskOperation{
		TaskID:   task.ID,
		TaskType: "agent_execution",
		UserID:   task.UserID,
		Action:   analytics.OpFailed,
		Category: category,
		Metadata: map[string]any{"error": msg},
	})

	log.Warn().Err(cause).Str("task", task.ID).Str("agent", task.AgentID).Msg("Agent task failed")
	return cause
}

// logActivity is best effort: a failed write is logged, never returned.
func (e *Executor) logActivity(ctx context.Context, userID, action, taskID string, details map[string]any) {
	err := e.store.LogActivity(ctx, &models.ActivityLog{
		UserID:       userID,
		Action:       action,
		ResourceType: ResourceAgentTask,
		ResourceID:   taskID,
		Details:      details,
	})
	if err != nil {
		log.Warn().Err(err).Str("action", action).Str("task", taskID).Msg("Failed to log activity")
	}
}

// generate runs agent over input, with one tool round when the gate allows.
func (e *Executor) generate(ctx context.Context, agent *models.AgentConfig, input string) (*outcome, error) {
	out := &outcome{ToolsUsed: []string{}}

	if !e.gate.ShouldInvokeTools(agent, input) {
		resp := e.gen.Generate(ctx, e.request(agent, []models.ChatMessage{
			{Role: models.RoleSystem, Content: agent.SystemPrompt},
			{Role: models.RoleUser, Content: input},
		}))
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution cancelled: %w", err)
		}
		out.record(resp)
		return out, nil
	}

	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: toolSystemPrompt(agent)},
		{Role: models.RoleUser, Content: input},
	}
	resp := e.gen.Generate(ctx, e.request(agent, messages))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("execution cancelled: %w", err)
	}
	out.record(resp)

	inv, ok := DecodeInvocation(resp.Text)
	if !ok {
		return out, nil
	}

	tool, ok := agent.Tool(inv.Tool)
	if !ok {
		return nil, &ToolNotFoundError{AgentID: agent.ID, Tool: inv.Tool}
	}
	result, err := e.tools.Execute(agent.Category, tool, inv.Parameters)
	if err != nil {
		return nil, err
	}
	out.ToolsUsed = append(out.ToolsUsed, tool.Name)

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	messages = append(messages,
		models.ChatMessage{Role: models.RoleAssistant, Content: resp.Text},
		models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprintf("Tool \"%s\" executed. Result: %s", tool.Name, encoded)},
	)

	log.Debug().Str("agent", agent.ID).Str("tool", tool.Name).Msg("Tool executed, requesting final answer")

	final := e.gen.Generate(ctx, e.request(agent, messages))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("execution cancelled: %w", err)
	}
	out.record(final)
	return out, nil
}

func (e *Executor) request(agent *models.AgentConfig, messages []models.ChatMessage) *router.Request {
	return &router.Request{
		Messages:    messages,
		Temperature: agent.Temperature,
		MaxTokens:   agent.MaxTokens,
	}
}

// toolSystemPrompt appends the tool catalog and envelope instructions to
// the agent's system prompt.
func toolSystemPrompt(agent *models.AgentConfig) string {
	var b strings.Builder
	b.WriteString(agent.SystemPrompt)
	b.WriteString("\n\nAvailable Tools:\n")
	for i, t := range agent.Tools {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.Name + ": " + t.Description)
	}
	b.WriteString(`

When you need to use a tool, respond with a JSON object in this format:
{
  "action": "use_tool",
  "tool": "tool_name",
  "parameters": { ... }
}

Otherwise, respond normally with text.`)
	return b.String()
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
