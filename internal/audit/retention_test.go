package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/internal/signalbus"
	"github.com/blackroad-os/edge-router/pkg/models"
)

type failingArchiver struct{}

func (failingArchiver) Kind() string { return "failing" }
func (failingArchiver) ArchiveAuditRecords(context.Context, []models.AuditRecord) (string, error) {
	return "", errors.New("archive backend unavailable")
}

type noopArchiver struct{ calls int }

func (a *noopArchiver) Kind() string { return "noop" }
func (a *noopArchiver) ArchiveAuditRecords(_ context.Context, records []models.AuditRecord) (string, error) {
	a.calls++
	return "memory://archived", nil
}

func TestRetentionPurgesExpiredRecordsWithoutArchiver(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	oldTs := time.Now().Add(-100 * 24 * time.Hour).UnixMilli()
	id, err := store.Append(ctx, signalbus.New(models.SignalRouteComplete, "AI", "router", oldTs, nil))
	require.NoError(t, err)

	freshID, err := store.Append(ctx, signalbus.New(models.SignalRouteComplete, "AI", "router", time.Now().UnixMilli(), nil))
	require.NoError(t, err)

	j := NewJanitor(store, 90, time.Hour)
	stats := j.runCycle(ctx)

	assert.Equal(t, 1, stats.Purged)
	_, err = store.Query(ctx, models.AuditFilter{})
	require.NoError(t, err)

	remaining, _ := store.Query(ctx, models.AuditFilter{})
	require.Len(t, remaining, 1)
	assert.Equal(t, freshID, remaining[0].ID)
	assert.Error(t, store.Delete(ctx, id)) // already purged
}

func TestRetentionFailSafeSkipsPurgeWhenArchiveFails(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	oldTs := time.Now().Add(-100 * 24 * time.Hour).UnixMilli()
	_, err := store.Append(ctx, signalbus.New(models.SignalRouteComplete, "AI", "router", oldTs, nil))
	require.NoError(t, err)

	j := NewJanitor(store, 90, time.Hour)
	j.SetArchiver(failingArchiver{})

	stats := j.runCycle(ctx)
	assert.Equal(t, 0, stats.Purged)
	assert.NotEmpty(t, stats.Errors)

	remaining, _ := store.Query(ctx, models.AuditFilter{})
	assert.Len(t, remaining, 1, "record must not be purged when archiving failed")
}

func TestRetentionArchivesThenPurges(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	oldTs := time.Now().Add(-100 * 24 * time.Hour).UnixMilli()
	_, err := store.Append(ctx, signalbus.New(models.SignalRouteComplete, "AI", "router", oldTs, nil))
	require.NoError(t, err)

	archiver := &noopArchiver{}
	j := NewJanitor(store, 90, time.Hour)
	j.SetArchiver(archiver)

	stats := j.runCycle(ctx)
	assert.Equal(t, 1, stats.Archived)
	assert.Equal(t, 1, stats.Purged)
	assert.Equal(t, 1, archiver.calls)
}
