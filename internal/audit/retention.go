package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/pkg/contracts"
	"github.com/blackroad-os/edge-router/pkg/models"
)

// DefaultRetentionDays is the audit store's default retention window.
// spec.md §9's open question leaves this unstated in the source; 90 days
// is assumed and documented (see DESIGN.md).
const DefaultRetentionDays = 90

// ExpirableStore is implemented by audit stores capable of listing their
// own expired records for the retention janitor. MemoryStore and the
// Postgres store (internal/audit/pgstore) both satisfy it.
type ExpirableStore interface {
	contracts.AuditStore
	ExpiredRecordsBefore(ctx context.Context, cutoff time.Time) ([]models.AuditRecord, error)
}

// Janitor periodically archives and purges audit records older than its
// retention window. Archiving is fail-safe: records are never purged if
// the archive write failed (adapted from the teacher's retention.Janitor).
type Janitor struct {
	store          ExpirableStore
	retentionDays  int
	interval       time.Duration

	driverMu sync.RWMutex
	archiver contracts.ArchiveDriver
}

// NewJanitor constructs a Janitor over store, sweeping every interval for
// records older than retentionDays. An interval under one minute is
// replaced by one hour.
func NewJanitor(store ExpirableStore, retentionDays int, interval time.Duration) *Janitor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{store: store, retentionDays: retentionDays, interval: interval}
}

// SetArchiver registers the archive driver used before purging. Without
// one registered, expired records are purged without archiving.
func (j *Janitor) SetArchiver(d contracts.ArchiveDriver) {
	j.driverMu.Lock()
	defer j.driverMu.Unlock()
	j.archiver = d
}

// Start runs the janitor loop until ctx is canceled, sweeping once
// immediately on startup.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().Dur("interval", j.interval).Int("retention_days", j.retentionDays).Msg("audit retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("audit retention janitor stopped")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

// CycleStats reports the outcome of a single sweep.
type CycleStats struct {
	Archived int
	Purged   int
	Errors   []error
}

func (j *Janitor) runCycle(ctx context.Context) CycleStats {
	stats := CycleStats{}
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)

	expired, err := j.store.ExpiredRecordsBefore(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("audit retention: failed to list expired records")
		stats.Errors = append(stats.Errors, err)
		return stats
	}
	if len(expired) == 0 {
		return stats
	}

	j.driverMu.RLock()
	driver := j.archiver
	j.driverMu.RUnlock()

	if driver != nil {
		if _, err := driver.ArchiveAuditRecords(ctx, expired); err != nil {
			log.Warn().Err(err).Int("count", len(expired)).Msg("audit retention: archive failed, skipping purge (fail-safe)")
			stats.Errors = append(stats.Errors, err)
			return stats
		}
		stats.Archived = len(expired)
	}

	for _, r := range expired {
		if err := j.store.Delete(ctx, r.ID); err != nil {
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.Purged++
	}

	log.Info().Int("archived", stats.Archived).Int("purged", stats.Purged).Msg("audit retention cycle complete")
	return stats
}
