// Package audit implements the append-only, indexed signal log described
// in spec.md §4.5, plus its retention/compaction job.
package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackroad-os/edge-router/pkg/models"
)

// MemoryStore is a thread-safe in-memory AuditStore, the default backend
// for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.AuditRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.AuditRecord)}
}

// Append durably appends signal before returning, per spec.md §4.5's
// append(signal) -> record_id contract.
func (s *MemoryStore) Append(_ context.Context, signal models.Signal) (string, error) {
	id := uuid.New().String()
	record := models.AuditRecord{
		ID:        id,
		Signal:    signal,
		Actor:     actorOf(signal),
		Action:    string(signal.Type),
		Resource:  signal.Target,
		Outcome:   outcomeOf(signal),
		Timestamp: signal.Timestamp,
	}

	s.mu.Lock()
	s.records[id] = record
	s.mu.Unlock()
	return id, nil
}

func actorOf(s models.Signal) string {
	if s.Source != "" {
		return s.Source
	}
	return "unknown"
}

func outcomeOf(s models.Signal) string {
	switch s.Type {
	case models.SignalRouteFailed, models.SignalAuthFailed, models.SignalWebhookRejected:
		return "failure"
	default:
		return "success"
	}
}

// Query returns records matching filter, newest first, applying limit and
// offset (spec.md §4.5).
func (s *MemoryStore) Query(_ context.Context, filter models.AuditFilter) ([]models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.AuditRecord, 0, len(s.records))
	for _, r := range s.records {
		if matches(r, filter) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp > matched[j].Timestamp })

	return paginate(matched, filter), nil
}

// Count returns the number of records matching filter, ignoring Limit/Offset.
func (s *MemoryStore) Count(_ context.Context, filter models.AuditFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if matches(r, filter) {
			n++
		}
	}
	return n, nil
}

// Delete removes a single record by ID, used by the retention janitor.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("audit record %s not found", id)
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }
func (s *MemoryStore) Close() error                 { return nil }

func matches(r models.AuditRecord, filter models.AuditFilter) bool {
	if filter.Actor != "" && r.Actor != filter.Actor {
		return false
	}
	if filter.Action != "" && r.Action != filter.Action {
		return false
	}
	if filter.Resource != "" && r.Resource != filter.Resource {
		return false
	}
	if filter.Type != "" && r.Signal.Type != filter.Type {
		return false
	}
	if filter.Source != "" && r.Signal.Source != filter.Source {
		return false
	}
	if !filter.Since.IsZero() && r.Timestamp < filter.Since.UnixMilli() {
		return false
	}
	if !filter.Until.IsZero() && r.Timestamp > filter.Until.UnixMilli() {
		return false
	}
	return true
}

func paginate(records []models.AuditRecord, filter models.AuditFilter) []models.AuditRecord {
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return nil
	}
	records = records[offset:]

	limit := filter.Limit
	if limit <= 0 {
		return records
	}
	if limit > len(records) {
		limit = len(records)
	}
	return records[:limit]
}

// ExpiredRecordsBefore returns records with Timestamp before cutoff, used
// by the retention janitor.
func (s *MemoryStore) ExpiredRecordsBefore(_ context.Context, cutoff time.Time) ([]models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoffMs := cutoff.UnixMilli()
	var expired []models.AuditRecord
	for _, r := range s.records {
		if r.Timestamp < cutoffMs {
			expired = append(expired, r)
		}
	}
	return expired, nil
}
