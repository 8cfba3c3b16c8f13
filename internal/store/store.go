// Package store provides the persistence interface and implementations for
// agent tasks, conversation threads and the activity log.
//
// MemoryStore keeps everything in maps (optionally snapshotted to disk),
// SQLiteStore is the default durable backend and PostgresStore targets a
// hosted database.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

// Store is the primary storage interface for the control plane.
// Handler and executor code depends only on this interface.
type Store interface {
	TaskStore
	ThreadStore
	ActivityStore

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Task Store ──────────────────────────────────────────────

// TaskStore persists agent tasks.
type TaskStore interface {
	// CreateTask inserts task, assigning an id and timestamps when unset.
	CreateTask(ctx context.Context, task *models.AgentTask) error
	GetTask(ctx context.Context, id string) (*models.AgentTask, error)
	// UpdateTask applies a partial update and returns the stored task.
	// Status changes must move forward (see models.TaskStatus.CanTransition).
	UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*models.AgentTask, error)
	// ListTasks returns tasks newest first.
	ListTasks(ctx context.Context, filter TaskFilter) ([]models.AgentTask, error)
}

// TaskUpdate is a partial task update. Nil fields are left unchanged.
type TaskUpdate struct {
	Status   *models.TaskStatus
	Output   *string
	Metadata map[string]any // replaces the stored metadata when non-nil
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	AgentID string
	UserID  string
	Status  models.TaskStatus
	Limit   int
}

// ── Thread Store ────────────────────────────────────────────

// ThreadStore persists conversation threads and their append-only messages.
type ThreadStore interface {
	CreateThread(ctx context.Context, thread *models.AgentThread) error
	GetThread(ctx context.Context, id string) (*models.AgentThread, error)
	// AddMessage appends msg to its thread and bumps the thread's updated_at.
	AddMessage(ctx context.Context, msg *models.AgentMessage) error
	// ListMessages returns a thread's messages oldest first.
	ListMessages(ctx context.Context, threadID string) ([]models.AgentMessage, error)
}

// ── Activity Store ──────────────────────────────────────────

// ActivityStore persists the user activity log.
type ActivityStore interface {
	LogActivity(ctx context.Context, entry *models.ActivityLog) error
	// ListActivity returns a user's newest entries first. An empty userID
	// lists every user.
	ListActivity(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error)
	// ActivityBefore returns up to limit entries created before cutoff,
	// oldest first.
	ActivityBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ActivityLog, error)
	// DeleteActivity removes the entries with the given ids and reports how
	// many were removed.
	DeleteActivity(ctx context.Context, ids []string) (int, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrInvalidTransition is returned when a task update would move its
// status backwards or out of a terminal state.
type ErrInvalidTransition struct {
	TaskID string
	From   models.TaskStatus
	To     models.TaskStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("task %s: invalid status transition %s -> %s", e.TaskID, e.From, e.To)
}

// ── Helpers ─────────────────────────────────────────────────

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 100

func limitOrDefault(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}

func prepareTask(t *models.AgentTask) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
}

func prepareThread(t *models.AgentThread) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
}

func prepareMessage(m *models.AgentMessage) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}

func prepareActivity(a *models.ActivityLog) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
}

// applyUpdate validates upd against t and mutates t in place.
func applyUpdate(t *models.AgentTask, upd TaskUpdate) error {
	if upd.Status != nil && *upd.Status != t.Status {
		if !t.Status.CanTransition(*upd.Status) {
			return &ErrInvalidTransition{TaskID: t.ID, From: t.Status, To: *upd.Status}
		}
		t.Status = *upd.Status
	}
	if upd.Output != nil {
		t.Output = *upd.Output
	}
	if upd.Metadata != nil {
		t.Metadata = upd.Metadata
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func matchTask(t *models.AgentTask, f TaskFilter) bool {
	if f.AgentID != "" && t.AgentID != f.AgentID {
		return false
	}
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}
