// Package analytics emits product events (agent runs, task lifecycle, chat
// messages) to an external sink.
//
// Tracking is fire-and-forget: Tracker methods return immediately and sink
// failures are only logged, so analytics never delays or fails a task.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Platform is stamped on every event.
const Platform = "LEGACORE"

// Event names.
const (
	EventAgentInteraction = "Agent Interaction"
	EventTaskOperation    = "Task Operation"
	EventChatMessage      = "Chat Message"
)

// Agent interaction actions.
const (
	AgentCreate   = "create"
	AgentRun      = "run"
	AgentComplete = "complete"
	AgentError    = "error"
)

// Task and chat actions.
const (
	OpCreated   = "created"
	OpUpdated   = "updated"
	OpCompleted = "completed"
	OpFailed    = "failed"
)

// Event is one tracked occurrence.
type Event struct {
	UserID     string         `json:"userId"`
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Sink delivers events.
type Sink interface {
	Track(ctx context.Context, e Event) error
}

// AgentInteraction describes an agent being created, run or finishing.
type AgentInteraction struct {
	AgentID   string
	AgentName string
	UserID    string
	Action    string
	Duration  time.Duration
	Tokens    int
	Model     string
	Category  string
}

// TaskOperation describes a task lifecycle change.
type TaskOperation struct {
	TaskID   string
	TaskType string
	UserID   string
	Action   string
	Category string
	Metadata map[string]any
}

// ChatMessage describes a message added to a conversation.
type ChatMessage struct {
	AgentID   string
	AgentName string
	UserID    string
	ThreadID  string
	Action    string
	Category  string
	Metadata  map[string]any
}

// Tracker dispatches events to a Sink in the background.
type Tracker struct {
	sink    Sink
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewTracker wraps sink. A nil sink discards events.
func NewTracker(sink Sink) *Tracker {
	return &Tracker{sink: sink, timeout: 10 * time.Second, now: time.Now}
}

// TrackAgentInteraction records an "Agent Interaction" event.
func (t *Tracker) TrackAgentInteraction(e AgentInteraction) {
	props := map[string]any{
		"agent_id":   e.AgentID,
		"agent_name": e.AgentName,
		"action":     e.Action,
		"category":   e.Category,
	}
	if e.Duration > 0 {
		props["duration_ms"] = e.Duration.Milliseconds()
	}
	if e.Tokens > 0 {
		props["tokens_used"] = e.Tokens
	}
	if e.Model != "" {
		props["model"] = e.Model
	}
	t.send(e.UserID, EventAgentInteraction, props)
}

// TrackTaskOperation records a "Task Operation" event. Metadata keys are
// merged into the event properties.
func (t *Tracker) TrackTaskOperation(e TaskOperation) {
	props := map[string]any{}
	for k, v := range e.Metadata {
		props[k] = v
	}
	props["task_id"] = e.TaskID
	props["task_type"] = e.TaskType
	props["action"] = e.Action
	props["category"] = e.Category
	t.send(e.UserID, EventTaskOperation, props)
}

// TrackChatMessage records a "Chat Message" event.
func (t *Tracker) TrackChatMessage(e ChatMessage) {
	props := map[string]any{}
	for k, v := range e.Metadata {
		props[k] = v
	}
	props["agent_id"] = e.AgentID
	props["agent_name"] = e.AgentName
	props["thread_id"] = e.ThreadID
	props["action"] = e.Action
	props["category"] = e.Category
	t.send(e.UserID, EventChatMessage, props)
}

func (t *Tracker) send(userID, name string, props map[string]any) {
	if t == nil || t.sink == nil {
		return
	}
	if userID == "" {
		userID = "anonymous"
	}
	ts := t.now().UTC()
	props["platform"] = Platform
	props["timestamp"] = ts.Format(time.RFC3339)
	ev := Event{UserID: userID, Event: name, Properties: props, Timestamp: ts}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.sink.Track(ctx, ev); err != nil {
			log.Warn().Err(err).Str("event", name).Msg("Analytics tracking failed")
		}
	}()
}

// Flush waits for in-flight events to be delivered.
func (t *Tracker) Flush() {
	if t == nil {
		return
	}
	t.wg.Wait()
}

// LogSink writes events to the structured log. Used when no external
// analytics backend is configured.
type LogSink struct{}

func (LogSink) Track(_ context.Context, e Event) error {
	log.Debug().
		Str("user_id", e.UserID).
		Str("event", e.Event).
		Interface("properties", e.Properties).
		Msg("Analytics event")
	return nil
}
