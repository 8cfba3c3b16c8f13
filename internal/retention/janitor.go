// Package retention prunes the activity log.
//
// A Janitor wakes on an interval, collects activity entries older than the
// configured TTL in batches and deletes them. When an Archiver is set each
// batch is archived first; a batch that fails to archive is left in place.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/legacore/legacore/control-plane/internal/store"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

// DefaultBatchSize is the max records per archive write and delete.
const DefaultBatchSize = 5000

// maxBatchesPerCycle bounds one sweep so a large backlog drains over
// several cycles.
const maxBatchesPerCycle = 20

// Archiver stores expired activity before it is deleted.
type Archiver interface {
	Kind() string
	ArchiveActivity(ctx context.Context, entries []models.ActivityLog) (string, error)
}

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	Archived int
	Purged   int
	Files    []string
	Errors   []error
}

// Janitor periodically archives and purges expired activity.
type Janitor struct {
	store     store.ActivityStore
	ttl       time.Duration
	interval  time.Duration
	batchSize int
	archiver  Archiver
	now       func() time.Time
}

// Option customises a Janitor.
type Option func(*Janitor)

// WithArchiver archives each batch before it is purged.
func WithArchiver(a Archiver) Option {
	return func(j *Janitor) { j.archiver = a }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(j *Janitor) {
		if n > 0 {
			j.batchSize = n
		}
	}
}

// NewJanitor creates a janitor that removes activity older than ttl. An
// interval under a minute is raised to one hour.
func NewJanitor(s store.ActivityStore, ttl, interval time.Duration, opts ...Option) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	j := &Janitor{
		store:     s,
		ttl:       ttl,
		interval:  interval,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start runs the janitor until ctx is cancelled. It sweeps once
// immediately, then on every interval.
func (j *Janitor) Start(ctx context.Context) {
	archiver := "none"
	if j.archiver != nil {
		archiver = j.archiver.Kind()
	}
	log.Info().
		Dur("ttl", j.ttl).
		Dur("interval", j.interval).
		Str("archiver", archiver).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logCycle(j.RunCycle(ctx))
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.logCycle(j.RunCycle(ctx))
		}
	}
}

// RunCycle performs one sweep.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats
	if j.ttl <= 0 {
		return stats
	}
	cutoff := j.now().Add(-j.ttl)

	for i := 0; i < maxBatchesPerCycle; i++ {
		if ctx.Err() != nil {
			return stats
		}
		batch, err := j.store.ActivityBefore(ctx, cutoff, j.batchSize)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("find expired activity: %w", err))
			return stats
		}
		if len(batch) == 0 {
			return stats
		}

		if j.archiver != nil {
			path, err := j.archiver.ArchiveActivity(ctx, batch)
			if err != nil {
				stats.Errors = append(stats.Errors, fmt.Errorf("archive activity (%s): %w", j.archiver.Kind(), err))
				log.Warn().Err(err).Msg("Archive failed, skipping purge")
				return stats
			}
			stats.Archived += len(batch)
			stats.Files = append(stats.Files, path)
		}

		ids := make([]string, len(batch))
		for k, e := range batch {
			ids[k] = e.ID
		}
		n, err := j.store.DeleteActivity(ctx, ids)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("purge activity: %w", err))
			return stats
		}
		stats.Purged += n

		if len(batch) < j.batchSize {
			return stats
		}
	}
	return stats
}

func (j *Janitor) logCycle(stats CycleStats) {
	for _, err := range stats.Errors {
		log.Warn().Err(err).Msg("Retention cycle error")
	}
	if stats.Purged > 0 || stats.Archived > 0 {
		log.Info().
			Int("purged", stats.Purged).
			Int("archived", stats.Archived).
			Strs("files", stats.Files).
			Msg("Retention cycle complete")
	}
}
