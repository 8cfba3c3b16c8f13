package retention

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legacore/legacore/control-plane/internal/store"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

type failingArchiver struct{}

func (failingArchiver) Kind() string { return "broken" }

func (failingArchiver) ArchiveActivity(context.Context, []models.ActivityLog) (string, error) {
	return "", errors.New("disk full")
}

func seed(t *testing.T, s store.ActivityStore, now time.Time, ages ...time.Duration) {
	t.Helper()
	for i, age := range ages {
		require.NoError(t, s.LogActivity(context.Background(), &models.ActivityLog{
			UserID:       "u1",
			Action:       "task_completed",
			ResourceType: "agent_task",
			ResourceID:   string(rune('a' + i)),
			CreatedAt:    now.Add(-age),
		}))
	}
}

func newMemory(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore(store.MemoryOptions{})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunCycle_PurgesExpired(t *testing.T) {
	s := newMemory(t)
	now := time.Now().UTC()
	seed(t, s, now, 48*time.Hour, 30*time.Hour, time.Hour)

	j := NewJanitor(s, 24*time.Hour, time.Hour, WithBatchSize(1))
	j.now = func() time.Time { return now }

	stats := j.RunCycle(context.Background())
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 2, stats.Purged)
	assert.Zero(t, stats.Archived)

	rest, err := s.ListActivity(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", rest[0].ResourceID)
}

func TestRunCycle_ZeroTTLKeepsEverything(t *testing.T) {
	s := newMemory(t)
	seed(t, s, time.Now().UTC(), 1000*time.Hour)

	stats := NewJanitor(s, 0, time.Hour).RunCycle(context.Background())
	assert.Zero(t, stats.Purged)

	rest, _ := s.ListActivity(context.Background(), "", 0)
	assert.Len(t, rest, 1)
}

func TestRunCycle_ArchiveFailureSkipsPurge(t *testing.T) {
	s := newMemory(t)
	seed(t, s, time.Now().UTC(), 48*time.Hour)

	stats := NewJanitor(s, time.Hour, time.Hour, WithArchiver(failingArchiver{})).RunCycle(context.Background())
	require.Len(t, stats.Errors, 1)
	assert.Zero(t, stats.Purged)

	rest, _ := s.ListActivity(context.Background(), "", 0)
	assert.Len(t, rest, 1)
}

func TestRunCycle_ArchivesThenPurges(t *testing.T) {
	s := newMemory(t)
	now := time.Now().UTC()
	seed(t, s, now, 48*time.Hour, 47*time.Hour)

	arch := NewLocalFileArchiver(t.TempDir(), true)
	j := NewJanitor(s, time.Hour, time.Hour, WithArchiver(arch))
	j.now = func() time.Time { return now }

	stats := j.RunCycle(context.Background())
	require.Empty(t, stats.Errors)
	assert.Equal(t, 2, stats.Archived)
	assert.Equal(t, 2, stats.Purged)
	require.Len(t, stats.Files, 1)

	f, err := os.Open(stats.Files[0])
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	lines := 0
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines++
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, 2, lines)
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := newMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewJanitor(s, time.Hour, time.Hour).Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestLocalFileArchiver_HealthCheck(t *testing.T) {
	assert.NoError(t, NewLocalFileArchiver(t.TempDir(), false).HealthCheck(context.Background()))
}
