package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/legacore/legacore/control-plane/internal/store"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

// postgresDSNEnv points the suite at a disposable PostgreSQL database. Its
// tables are truncated before every test.
const postgresDSNEnv = "LEGACORE_TEST_POSTGRES_DSN"

// backends returns a fresh instance of every store: memory and SQLite
// always, PostgreSQL when postgresDSNEnv is set.
func backends(t *testing.T) map[string]store.Store {
	t.Helper()

	mem := store.NewMemoryStore(store.MemoryOptions{})
	t.Cleanup(func() { mem.Close() })

	lite, err := store.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { lite.Close() })

	all := map[string]store.Store{"memory": mem, "sqlite": lite}
	if dsn := os.Getenv(postgresDSNEnv); dsn != "" {
		all["postgres"] = newPostgres(t, dsn)
	}
	return all
}

func newPostgres(t *testing.T, dsn string) *store.PostgresStore {
	t.Helper()
	ctx := context.Background()

	pg, err := store.NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	t.Cleanup(func() { pg.Close() })

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("pgx.Connect() error = %v", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, `TRUNCATE agent_messages, agent_threads, agent_tasks, activity_logs RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate error = %v", err)
	}
	return pg
}

func eachBackend(t *testing.T, fn func(t *testing.T, s store.Store)) {
	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func status(s models.TaskStatus) *models.TaskStatus { return &s }
func str(s string) *string                         { return &s }

// ─── Tasks ───────────────────────────────────────────────────

func TestCreateAndGetTask(t *testing.T) {
	eachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		task := &models.AgentTask{AgentID: "credit-repair-expert", UserID: "u1", Input: "help",
			Metadata: map[string]any{"source": "test"}}

		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
		if task.ID == "" {
			t.Fatal("CreateTask() did not assign an id")
		}
		if task.Status != models.TaskPending {
			t.Errorf("CreateTask().Status = %q, want %q", task.Status, models.TaskPending)
		}

		got, err := s.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask() error = %v", err)
		}
		if got.Input != "help" || got.UserID != "u1" {
			t.Errorf("GetTask() = %+v", got)
		}
		if got.Metadata["source"] != "test" {
			t.Errorf("GetTask().Metadata = %v", got.Metadata)
		}
	})
}

func TestGetTask_NotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, s store.Store) {
		_, err := s.GetTask(context.Background(), "missing")
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			t.Fatalf("GetTask() error = %v, want *ErrNotFound", err)
		}
		if nf.Entity != "task" || nf.Key != "missing" {
			t.Errorf("ErrNotFound = %+v", nf)
		}
	})
}

func TestUpdateTask_ForwardOnly(t *testing.T) {
	eachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		task := &models.AgentTask{AgentID: "a", UserID: "u", Input: "x"}
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatal(err)
		}

		got, err := s.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: status(models.TaskRunning)})
		if err != nil {
			t.Fatalf("UpdateTask(running) error = %v", err)
		}
		if got.Status != models.TaskRunning {
			t.Errorf("Status = %q, want running", got.Status)
		}

		got, err = s.UpdateTask(ctx, task.ID, store.TaskUpdate{
			Status:   status(models.TaskCompleted),
			Output:   str("done"),
			Metadata: map[string]any{"provider": "groq"},
		})
		if err != nil {
			t.Fatalf("UpdateTask(completed) error = %v", err)
		}
		if got.Output != "done" || got.Metadata["provider"] != "groq" {
			t.Errorf("UpdateTask() = %+v", got)
		}

		_, err = s.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: status(models.TaskRunning)})
		var it *store.ErrInvalidTransition
		if !errors.As(err, &it) {
			t.Fatalf("UpdateTask(completed→running) error = %v, want *ErrInvalidTransition", err)
		}

		reloaded, _ := s.GetTask(ctx, task.ID)
		if reloaded.Status != models.TaskCompleted {
			t.Errorf("Status after rejected update = %q, want completed", reloaded.Status)
		}
	})
}

func TestUpdateTask_NotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, s store.Store) {
		_, err := s.UpdateTask(context.Background(), "nope", store.TaskUpdate{Output: str("x")})
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			t.Errorf("UpdateTask() error = %v, want *ErrNotFound", err)
		}
	})
}

func TestListTasks_Filter(t *testing.T) {
	eachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)
		for i, agent := range []string{"a", "b", "a", "a"} {
			task := &models.AgentTask{AgentID: agent, UserID: "u", Input: "x",
				CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			if err := s.CreateTask(ctx, task); err != nil {
				t.Fatal(err)
			}
		}

		all, err := s.ListTasks(ctx, store.TaskFilter{})
		if err != nil {
			t.Fatalf("ListTasks() error = %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("ListTasks() len = %d, want 4", len(all))
		}
		if !all[0].CreatedAt.After(all[3].CreatedAt) {
			t.Error("ListTasks() not newest first")
		}

		onlyA, _ := s.ListTasks(ctx, store.TaskFilter{AgentID: "a", Limit: 2})
		if len(onlyA) != 2 {
			t.Errorf("ListTasks(agent=a, limit=2) len = %d, want 2", len(onlyA))
		}
		for _, task := range onlyA {
			if task.AgentID != "a" {
				t.Errorf("ListTasks(agent=a) returned agent %q", task.AgentID)
			}
		}

		pending, _ := s.ListTasks(ctx, store.TaskFilter{Status: models.TaskCompleted})
		if len(pending) != 0 {
			t.Errorf("ListTasks(status=completed) len = %d, want 0", len(pending))
		}
	})
}

// ─── Threads ─────────────────────────────────────────────────

func TestThreadMessagesInOrder(t *testing.T) {
	eachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		th := &models.AgentThread{AgentID: "greatness-coach", UserID: "u", Title: "New Conversation"}
		if err := s.CreateThread(ctx, th); err != nil {
			t.Fatalf("CreateThread() error = %v", err)
		}

		for _, c := range []string{"one", "two", "three"} {
			if err := s.AddMessage(ctx, &models.AgentMessage{ThreadID: th.ID, Role: models.RoleUser, Content: c}); err != nil {
				t.Fatalf("AddMessage() error = %v", err)
			}
		}

		msgs, err := s.ListMessages(ctx, th.ID)
		if err != nil {
			t.Fatalf("ListMessages() error = %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("ListMessages() len = %d, want 3", len(msgs))
		}
		for i, want := range []string{"one", "two", "three"} {
			if msgs[i].Content != want {
				t.Errorf("msgs[%d].Content = %q, want %q", i, msgs[i].Content, want)
			}
		}

		got, _ := s.GetThread(ctx, th.ID)
		if got.UpdatedAt.Before(th.CreatedAt) {
			t.Error("thread updated_at not bumped by AddMessage")
		}
	})
}

func TestAddMessage_UnknownThread(t *testing.T) {
	eachBackend(t, func(t *testing.T, s store.Store) {
		err := s.AddMessage(context.Background(), &models.AgentMessage{ThreadID: "ghost", Role: "user", Content: "hi"})
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			t.Errorf("AddMessage() error = %v, want *ErrNotFound", err)
		}
		_, err = s.ListMessages(context.Background(), "ghost")
		if !errors.As(err, &nf) {
			t.Errorf("ListMessages() error = %v, want *ErrNotFound", err)
		}
	})
}

// ─── Activity ────────────────────────────────────────────────

func TestActivityNewestFirst(t *testing.T) {
	eachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		for _, action := range []string{"task_created", "task_completed", "task_failed"} {
			err := s.LogActivity(ctx, &models.ActivityLog{UserID: "u1", Action: action,
				ResourceType: "agent_task", ResourceID: "t1", Details: map[string]any{"agent_id": "a"}})
			if err != nil {
				t.Fatalf("LogActivity() error = %v", err)
			}
		}
		_ = s.LogActivity(ctx, &models.ActivityLog{UserID: "u2", Action: "task_created", ResourceType: "agent_task", ResourceID: "t2"})

		got, err := s.ListActivity(ctx, "u1", 2)
		if err != nil {
			t.Fatalf("ListActivity() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ListActivity() len = %d, want 2", len(got))
		}
		if got[0].Action != "task_failed" || got[1].Action != "task_completed" {
			t.Errorf("ListActivity() order = %q, %q", got[0].Action, got[1].Action)
		}
		if got[0].Details["agent_id"] != "a" {
			t.Errorf("Details = %v", got[0].Details)
		}

		everyone, _ := s.ListActivity(ctx, "", 0)
		if len(everyone) != 4 {
			t.Errorf("ListActivity(all) len = %d, want 4", len(everyone))
		}
	})
}

func TestActivityBeforeAndDelete(t *testing.T) {
	eachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		now := time.Now().UTC()
		entries := []*models.ActivityLog{
			{UserID: "u1", Action: "older", CreatedAt: now.Add(-3 * time.Hour)},
			{UserID: "u1", Action: "fresh", CreatedAt: now.Add(-time.Minute)},
			{UserID: "u2", Action: "oldest", CreatedAt: now.Add(-5 * time.Hour)},
		}
		for _, e := range entries {
			if err := s.LogActivity(ctx, e); err != nil {
				t.Fatalf("LogActivity() error = %v", err)
			}
		}

		expired, err := s.ActivityBefore(ctx, now.Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("ActivityBefore() error = %v", err)
		}
		if len(expired) != 2 || expired[0].Action != "oldest" || expired[1].Action != "older" {
			t.Fatalf("ActivityBefore() = %+v", expired)
		}

		limited, _ := s.ActivityBefore(ctx, now.Add(-time.Hour), 1)
		if len(limited) != 1 || limited[0].Action != "oldest" {
			t.Errorf("ActivityBefore(limit 1) = %+v", limited)
		}

		n, err := s.DeleteActivity(ctx, []string{expired[0].ID, expired[1].ID, "missing"})
		if err != nil {
			t.Fatalf("DeleteActivity() error = %v", err)
		}
		if n != 2 {
			t.Errorf("DeleteActivity() = %d, want 2", n)
		}
		if n, _ := s.DeleteActivity(ctx, nil); n != 0 {
			t.Errorf("DeleteActivity(nil) = %d, want 0", n)
		}

		rest, _ := s.ListActivity(ctx, "", 0)
		if len(rest) != 1 || rest[0].Action != "fresh" {
			t.Errorf("remaining activity = %+v", rest)
		}
	})
}

// ─── Snapshot persistence ────────────────────────────────────

func TestMemoryStore_SnapshotSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := store.NewMemoryStore(store.MemoryOptions{DataDir: dir})
	task := &models.AgentTask{AgentID: "a", UserID: "u", Input: "persist me"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	th := &models.AgentThread{AgentID: "a", UserID: "u"}
	_ = s.CreateThread(ctx, th)
	_ = s.AddMessage(ctx, &models.AgentMessage{ThreadID: th.ID, Role: "user", Content: "hello"})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	reopened := store.NewMemoryStore(store.MemoryOptions{DataDir: dir})
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask() after restart error = %v", err)
	}
	if got.Input != "persist me" {
		t.Errorf("Input = %q", got.Input)
	}
	msgs, _ := reopened.ListMessages(ctx, th.ID)
	if len(msgs) != 1 {
		t.Errorf("messages after restart = %d, want 1", len(msgs))
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore(store.MemoryOptions{})
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	task := &models.AgentTask{AgentID: "a", UserID: "u", Input: "x"}
	_ = s.CreateTask(ctx, task)

	got, _ := s.GetTask(ctx, task.ID)
	got.Metadata["mutated"] = true
	got.Status = models.TaskFailed

	again, _ := s.GetTask(ctx, task.ID)
	if _, ok := again.Metadata["mutated"]; ok {
		t.Error("metadata mutation leaked into the store")
	}
	if again.Status != models.TaskPending {
		t.Errorf("Status = %q, want pending", again.Status)
	}
}

// ─── Open ────────────────────────────────────────────────────

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(ctx, store.Options{Driver: store.DriverSQLite, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	if _, ok := s.(*store.SQLiteStore); !ok {
		t.Errorf("Open(sqlite) = %T", s)
	}
	s.Close()

	s, err = store.Open(ctx, store.Options{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("Open(sqlite dsn) error = %v", err)
	}
	s.Close()

	s, err = store.Open(ctx, store.Options{})
	if err != nil {
		t.Fatalf("Open(default) error = %v", err)
	}
	if _, ok := s.(*store.MemoryStore); !ok {
		t.Errorf("Open(default) = %T", s)
	}
	s.Close()

	if _, err := store.Open(ctx, store.Options{Driver: store.DriverPostgres}); err == nil {
		t.Error("Open(postgres) without DSN should fail")
	}
	if _, err := store.Open(ctx, store.Options{Driver: "mongo"}); err == nil {
		t.Error("Open(mongo) should fail")
	}
}
