package audit

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/pkg/models"
)

// LocalFileArchiver writes expired audit records as gzip-compressed JSONL
// files to a local directory, used as the default archive driver for OSS
// and development (adapted from the teacher's LocalFileArchiver).
//
// Directory structure: {basePath}/2026-02-20T15-04-05Z.jsonl.gz
type LocalFileArchiver struct {
	basePath string
	compress bool
}

// NewLocalFileArchiver creates a file-based archiver. If basePath is
// empty, it defaults to "~/.edgerouter/archive".
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = "/tmp/edgerouter/archive"
		} else {
			basePath = filepath.Join(home, ".edgerouter", "archive")
		}
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

// ArchiveAuditRecords implements contracts.ArchiveDriver.
func (a *LocalFileArchiver) ArchiveAuditRecords(_ context.Context, records []models.AuditRecord) (string, error) {
	if err := os.MkdirAll(a.basePath, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(a.basePath, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if a.compress {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		enc = json.NewEncoder(gw)
	}

	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return "", fmt.Errorf("encode audit record %s: %w", r.ID, err)
		}
	}

	log.Debug().Str("path", fpath).Int("count", len(records)).Msg("archived audit records to local file")
	return fpath, nil
}

// HealthCheck verifies the archive path is writable.
func (a *LocalFileArchiver) HealthCheck() error {
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
