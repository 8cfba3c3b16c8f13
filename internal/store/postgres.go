package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS agent_tasks (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	input      TEXT NOT NULL,
	output     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_agent_tasks_agent ON agent_tasks (agent_id);
CREATE INDEX IF NOT EXISTS idx_agent_tasks_user ON agent_tasks (user_id);

CREATE TABLE IF NOT EXISTS agent_threads (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS agent_messages (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	thread_id  TEXT NOT NULL REFERENCES agent_threads (id),
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_agent_messages_thread ON agent_messages (thread_id, seq);

CREATE TABLE IF NOT EXISTS activity_logs (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	user_id       TEXT NOT NULL,
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	details       JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_activity_logs_user ON activity_logs (user_id, seq);
CREATE INDEX IF NOT EXISTS idx_activity_logs_created ON activity_logs (created_at);
`

// PostgresStore implements Store on PostgreSQL via a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to connURL and creates the schema if missing.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("Postgres store initialized")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	log.Info().Msg("Postgres store closed")
	return nil
}

// ── Task Store ──────────────────────────────────────────────

func scanPgTask(row pgx.Row) (*models.AgentTask, error) {
	var (
		t      models.AgentTask
		status string
	)
	if err := row.Scan(&t.ID, &t.AgentID, &t.UserID, &t.Input, &t.Output, &status, &t.Metadata, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	return &t, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *models.AgentTask) error {
	prepareTask(task)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_tasks (`+taskColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.AgentID, task.UserID, task.Input, task.Output, string(task.Status),
		task.Metadata, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*models.AgentTask, error) {
	t, err := scanPgTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM agent_tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*models.AgentTask, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanPgTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM agent_tasks WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if err := applyUpdate(t, upd); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE agent_tasks SET status = $1, output = $2, metadata = $3, updated_at = $4 WHERE id = $5`,
		string(t.Status), t.Output, t.Metadata, t.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]models.AgentTask, error) {
	where := "1=1"
	args := []any{}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		where += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM agent_tasks WHERE %s ORDER BY created_at DESC LIMIT $%d`, taskColumns, where, len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	result := make([]models.AgentTask, 0)
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

// ── Thread Store ────────────────────────────────────────────

func (s *PostgresStore) CreateThread(ctx context.Context, thread *models.AgentThread) error {
	prepareThread(thread)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_threads (id, agent_id, user_id, title, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		thread.ID, thread.AgentID, thread.UserID, thread.Title, thread.CreatedAt, thread.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThread(ctx context.Context, id string) (*models.AgentThread, error) {
	var t models.AgentThread
	err := s.pool.QueryRow(ctx,
		`SELECT id, agent_id, user_id, title, created_at, updated_at FROM agent_threads WHERE id = $1`, id,
	).Scan(&t.ID, &t.AgentID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "thread", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, msg *models.AgentMessage) error {
	prepareMessage(msg)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE agent_threads SET updated_at = $1 WHERE id = $2`, msg.CreatedAt, msg.ThreadID)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "thread", Key: msg.ThreadID}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO agent_messages (id, thread_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ThreadID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListMessages(ctx context.Context, threadID string) ([]models.AgentMessage, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, role, content, created_at FROM agent_messages WHERE thread_id = $1 ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	result := make([]models.AgentMessage, 0)
	for rows.Next() {
		var m models.AgentMessage
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ── Activity Store ──────────────────────────────────────────

func (s *PostgresStore) LogActivity(ctx context.Context, entry *models.ActivityLog) error {
	prepareActivity(entry)
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO activity_logs (id, user_id, action, resource_type, resource_id, details, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID, details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	query := `SELECT id, user_id, action, resource_type, resource_id, details, created_at FROM activity_logs`
	args := []any{}
	if userID != "" {
		args = append(args, userID)
		query += ` WHERE user_id = $1`
	}
	args = append(args, limitOrDefault(limit))
	query += fmt.Sprintf(` ORDER BY seq DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	return scanActivityRows(rows)
}

func (s *PostgresStore) ActivityBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ActivityLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, action, resource_type, resource_id, details, created_at FROM activity_logs
		 WHERE created_at < $1 ORDER BY created_at ASC, seq ASC LIMIT $2`,
		cutoff, limitOrDefault(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query expired activity: %w", err)
	}
	defer rows.Close()
	return scanActivityRows(rows)
}

func (s *PostgresStore) DeleteActivity(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM activity_logs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete activity: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanActivityRows(rows pgx.Rows) ([]models.ActivityLog, error) {
	result := make([]models.ActivityLog, 0)
	for rows.Next() {
		var a models.ActivityLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.ResourceType, &a.ResourceID, &a.Details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
