package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS agent_tasks (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	input      TEXT NOT NULL,
	output     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_tasks_agent ON agent_tasks(agent_id);
CREATE INDEX IF NOT EXISTS idx_agent_tasks_user ON agent_tasks(user_id);

CREATE TABLE IF NOT EXISTS agent_threads (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	thread_id  TEXT NOT NULL REFERENCES agent_threads(id),
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_messages_thread ON agent_messages(thread_id, seq);

CREATE TABLE IF NOT EXISTS activity_logs (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	user_id       TEXT NOT NULL,
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	details       TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_logs_user ON activity_logs(user_id, seq);
CREATE INDEX IF NOT EXISTS idx_activity_logs_created ON activity_logs(created_at);
`

// SQLiteStore implements Store on a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;", "PRAGMA foreign_keys=ON;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite store initialized")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error {
	log.Info().Msg("SQLite store closed")
	return s.db.Close()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func encodeJSONMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(b), nil
}

func decodeJSONMap(s string) (map[string]any, error) {
	out := map[string]any{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ── Task Store ──────────────────────────────────────────────

const taskColumns = `id, agent_id, user_id, input, output, status, metadata, created_at, updated_at`

func scanTask(row rowScanner) (*models.AgentTask, error) {
	var (
		t                models.AgentTask
		status, meta     string
		created, updated string
	)
	if err := row.Scan(&t.ID, &t.AgentID, &t.UserID, &t.Input, &t.Output, &status, &meta, &created, &updated); err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	var err error
	if t.Metadata, err = decodeJSONMap(meta); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *models.AgentTask) error {
	prepareTask(task)
	meta, err := encodeJSONMap(task.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.AgentID, task.UserID, task.Input, task.Output, string(task.Status),
		meta, formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.AgentTask, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM agent_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*models.AgentTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM agent_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if err := applyUpdate(t, upd); err != nil {
		return nil, err
	}
	meta, err := encodeJSONMap(t.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE agent_tasks SET status = ?, output = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		string(t.Status), t.Output, meta, formatTime(t.UpdatedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]models.AgentTask, error) {
	where := "1=1"
	args := []any{}
	if filter.AgentID != "" {
		where += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}
	if filter.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM agent_tasks WHERE %s ORDER BY created_at DESC, rowid DESC LIMIT ?`, taskColumns, where),
		args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	result := make([]models.AgentTask, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

// ── Thread Store ────────────────────────────────────────────

func (s *SQLiteStore) CreateThread(ctx context.Context, thread *models.AgentThread) error {
	prepareThread(thread)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_threads (id, agent_id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		thread.ID, thread.AgentID, thread.UserID, thread.Title,
		formatTime(thread.CreatedAt), formatTime(thread.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*models.AgentThread, error) {
	var (
		t                models.AgentThread
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, user_id, title, created_at, updated_at FROM agent_threads WHERE id = ?`, id,
	).Scan(&t.ID, &t.AgentID, &t.UserID, &t.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "thread", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) AddMessage(ctx context.Context, msg *models.AgentMessage) error {
	prepareMessage(msg)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE agent_threads SET updated_at = ? WHERE id = ?`,
		formatTime(msg.CreatedAt), msg.ThreadID)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "thread", Key: msg.ThreadID}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO agent_messages (id, thread_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, msg.Role, msg.Content, formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListMessages(ctx context.Context, threadID string) ([]models.AgentMessage, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, created_at FROM agent_messages WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	result := make([]models.AgentMessage, 0)
	for rows.Next() {
		var (
			m       models.AgentMessage
			created string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ── Activity Store ──────────────────────────────────────────

func (s *SQLiteStore) LogActivity(ctx context.Context, entry *models.ActivityLog) error {
	prepareActivity(entry)
	details, err := encodeJSONMap(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activity_logs (id, user_id, action, resource_type, resource_id, details, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID, details, formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActivity(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_logs`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limitOrDefault(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

func (s *SQLiteStore) ActivityBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ActivityLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activity_logs WHERE created_at < ? ORDER BY created_at ASC, seq ASC LIMIT ?`,
		formatTime(cutoff), limitOrDefault(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query expired activity: %w", err)
	}
	defer rows.Close()
	return scanActivity(rows)
}

func (s *SQLiteStore) DeleteActivity(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM activity_logs WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	removed := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("delete activity %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return removed, nil
}

const activityColumns = `id, user_id, action, resource_type, resource_id, details, created_at`

func scanActivity(rows *sql.Rows) ([]models.ActivityLog, error) {
	result := make([]models.ActivityLog, 0)
	for rows.Next() {
		var (
			a                models.ActivityLog
			details, created string
			err              error
		)
		if err = rows.Scan(&a.ID, &a.UserID, &a.Action, &a.ResourceType, &a.ResourceID, &details, &created); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if a.Details, err = decodeJSONMap(details); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
