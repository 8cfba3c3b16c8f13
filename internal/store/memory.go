package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Tasks    map[string]*models.AgentTask      `json:"tasks"`
	Threads  map[string]*models.AgentThread    `json:"threads"`
	Messages map[string][]*models.AgentMessage `json:"messages"` // key: thread id
	Activity []*models.ActivityLog             `json:"activity"`
}

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	// DataDir enables snapshot persistence to DataDir/data.json when set.
	DataDir string
}

// MemoryStore implements Store with in-memory maps. Used for local dev and
// tests; an optional JSON snapshot lets data survive restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]*models.AgentTask
	threads  map[string]*models.AgentThread
	messages map[string][]*models.AgentMessage // append-only per thread
	activity []*models.ActivityLog             // append-only log

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
	wg           sync.WaitGroup
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	m := &MemoryStore{
		tasks:    make(map[string]*models.AgentTask),
		threads:  make(map[string]*models.AgentThread),
		messages: make(map[string][]*models.AgentMessage),
		activity: make([]*models.ActivityLog, 0),
		saveCh:   make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
	}

	if opts.DataDir != "" {
		m.snapshotPath = filepath.Join(opts.DataDir, "data.json")
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", opts.DataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		m.wg.Add(1)
		go m.saveLoop()
	}
	log.Info().
		Str("snapshot", m.snapshotPath).
		Msg("Memory store configured")

	return m
}

// requestSave signals the background saver. Non-blocking.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			select {
			case <-m.doneCh:
				return
			case <-time.After(500 * time.Millisecond):
			}
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Tasks:    m.tasks,
		Threads:  m.threads,
		Messages: m.messages,
		Activity: m.activity,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
	}
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Tasks != nil {
		m.tasks = snap.Tasks
	}
	if snap.Threads != nil {
		m.threads = snap.Threads
	}
	if snap.Messages != nil {
		m.messages = snap.Messages
	}
	if snap.Activity != nil {
		m.activity = snap.Activity
	}

	log.Info().
		Int("tasks", len(m.tasks)).
		Int("threads", len(m.threads)).
		Int("activity", len(m.activity)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times.
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}
	m.wg.Wait()

	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

func cloneTask(t *models.AgentTask) *models.AgentTask {
	c := *t
	c.Metadata = make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

// ── Task Store ──────────────────────────────────────────────

func (m *MemoryStore) CreateTask(_ context.Context, task *models.AgentTask) error {
	prepareTask(task)
	m.mu.Lock()
	m.tasks[task.ID] = cloneTask(task)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetTask(_ context.Context, id string) (*models.AgentTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	return cloneTask(t), nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, id string, upd TaskUpdate) (*models.AgentTask, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	next := cloneTask(t)
	if err := applyUpdate(next, upd); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.tasks[id] = next
	out := cloneTask(next)
	m.mu.Unlock()

	m.requestSave()
	return out, nil
}

func (m *MemoryStore) ListTasks(_ context.Context, filter TaskFilter) ([]models.AgentTask, error) {
	m.mu.RLock()
	result := make([]models.AgentTask, 0)
	for _, t := range m.tasks {
		if matchTask(t, filter) {
			result = append(result, *cloneTask(t))
		}
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit := limitOrDefault(filter.Limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ── Thread Store ────────────────────────────────────────────

func (m *MemoryStore) CreateThread(_ context.Context, thread *models.AgentThread) error {
	prepareThread(thread)
	m.mu.Lock()
	c := *thread
	m.threads[thread.ID] = &c
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetThread(_ context.Context, id string) (*models.AgentThread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threads[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "thread", Key: id}
	}
	c := *t
	return &c, nil
}

func (m *MemoryStore) AddMessage(_ context.Context, msg *models.AgentMessage) error {
	prepareMessage(msg)
	m.mu.Lock()
	t, ok := m.threads[msg.ThreadID]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "thread", Key: msg.ThreadID}
	}
	c := *msg
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], &c)
	t.UpdatedAt = msg.CreatedAt
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, threadID string) ([]models.AgentMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.threads[threadID]; !ok {
		return nil, &ErrNotFound{Entity: "thread", Key: threadID}
	}
	msgs := m.messages[threadID]
	result := make([]models.AgentMessage, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, *msg)
	}
	return result, nil
}

// ── Activity Store ──────────────────────────────────────────

func (m *MemoryStore) LogActivity(_ context.Context, entry *models.ActivityLog) error {
	prepareActivity(entry)
	m.mu.Lock()
	c := *entry
	m.activity = append(m.activity, &c)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListActivity(_ context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	limit = limitOrDefault(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.ActivityLog, 0)
	for i := len(m.activity) - 1; i >= 0 && len(result) < limit; i-- {
		a := m.activity[i]
		if userID == "" || a.UserID == userID {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (m *MemoryStore) ActivityBefore(_ context.Context, cutoff time.Time, limit int) ([]models.ActivityLog, error) {
	limit = limitOrDefault(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.ActivityLog, 0)
	for _, a := range m.activity {
		if a.CreatedAt.Before(cutoff) {
			result = append(result, *a)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) DeleteActivity(_ context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	m.mu.Lock()
	kept := m.activity[:0]
	for _, a := range m.activity {
		if !drop[a.ID] {
			kept = append(kept, a)
		}
	}
	removed := len(m.activity) - len(kept)
	m.activity = kept
	m.mu.Unlock()

	if removed > 0 {
		m.requestSave()
	}
	return removed, nil
}
