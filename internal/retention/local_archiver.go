package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

// LocalFileArchiver writes expired activity as JSONL files:
//
//	{basePath}/activity/2026-02-20T15-04-05.000000000Z.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
	now      func() time.Time
}

// NewLocalFileArchiver creates a file-based archiver. An empty basePath
// defaults to ~/.legacore/archive.
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = filepath.Join(os.TempDir(), "legacore", "archive")
		} else {
			basePath = filepath.Join(home, ".legacore", "archive")
		}
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress, now: time.Now}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

func (a *LocalFileArchiver) ArchiveActivity(_ context.Context, entries []models.ActivityLog) (string, error) {
	dir := filepath.Join(a.basePath, "activity")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := a.now().UTC().Format("2006-01-02T15-04-05.000000000Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	if err := writeJSONL(f, entries, a.compress); err != nil {
		f.Close()
		os.Remove(fpath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(fpath)
		return "", fmt.Errorf("close archive file: %w", err)
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(entries)).
		Msg("Archived activity to local file")

	return fpath, nil
}

func writeJSONL(w io.Writer, entries []models.ActivityLog, compress bool) error {
	var gw *gzip.Writer
	if compress {
		gw = gzip.NewWriter(w)
		w = gw
	}
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode activity %s: %w", e.ID, err)
		}
	}
	if gw != nil {
		if err := gw.Close(); err != nil {
			return fmt.Errorf("flush gzip: %w", err)
		}
	}
	return nil
}

// HealthCheck verifies the archive directory is writable.
func (a *LocalFileArchiver) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(a.basePath, 0o755); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	testFile := filepath.Join(a.basePath, ".healthcheck")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	os.Remove(testFile)
	return nil
}
