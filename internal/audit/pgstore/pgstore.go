// Package pgstore is the Postgres-backed implementation of the audit
// store, used when DATABASE_URL is configured (spec.md §6.1).
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blackroad-os/edge-router/pkg/models"
)

// allowedTables is the hard table allow-list from spec.md §6. Any caller
// path that constructs a query against a table outside this set is
// rejected before a statement is even prepared.
var allowedTables = map[string]bool{
	"users": true, "sessions": true, "api_keys": true, "signals": true,
	"audit_log": true, "routing_rules": true, "webhooks": true,
	"node_health": true, "metrics_hourly": true,
}

// blockedKeywords are destructive SQL keywords rejected at the API layer
// per spec.md §6 and §9's "SQL pass-through endpoint" re-architecture note.
var blockedKeywords = []string{
	"DROP", "ALTER", "CREATE", "TRUNCATE", "DELETE FROM", "UPDATE", "INSERT INTO",
}

// Store is a Postgres-backed audit.Store implementation.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pooled connection to url with maxConns connections.
func Connect(ctx context.Context, url string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse config: %w", err)
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append inserts a signal into audit_log and returns its generated ID.
// The statement is fully parameterized — no caller-supplied SQL ever
// reaches this layer.
func (s *Store) Append(ctx context.Context, signal models.Signal) (string, error) {
	id := uuid.New().String()
	data, err := json.Marshal(signal.Data)
	if err != nil {
		return "", fmt.Errorf("pgstore: marshal signal data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, signal_id, type, source, target, actor, action, resource, outcome, data, formatted, timestamp_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
	`, id, signal.ID, string(signal.Type), signal.Source, signal.Target,
		actorOf(signal), string(signal.Type), signal.Target, outcomeOf(signal),
		data, signal.Formatted, signal.Timestamp)
	if err != nil {
		return "", fmt.Errorf("pgstore: insert audit_log: %w", err)
	}
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

// Query builds a parameterized SELECT against audit_log restricted to the
// allow-listed columns; no user input is ever interpolated into SQL text.
func (s *Store) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, error) {
	query := `
		SELECT id, signal_id, type, source, target, actor, action, resource, outcome, data, formatted, timestamp_ms
		FROM audit_log
		WHERE ($1 = '' OR actor = $1)
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR resource = $3)
		  AND ($4 = '' OR type = $4)
		  AND ($5 = '' OR source = $5)
		  AND ($6 = 0 OR timestamp_ms >= $6)
		  AND ($7 = 0 OR timestamp_ms <= $7)
		ORDER BY timestamp_ms DESC
		LIMIT $8 OFFSET $9
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query,
		filter.Actor, filter.Action, filter.Resource, string(filter.Type), filter.Source,
		msOrZero(filter.Since), msOrZero(filter.Until), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query audit_log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var (
			id, signalID, typ, source, target, actor, action, resource, outcome, formatted string
			data                                                                           []byte
			timestampMs                                                                    int64
		)
		if err := rows.Scan(&id, &signalID, &typ, &source, &target, &actor, &action, &resource, &outcome, &data, &formatted, &timestampMs); err != nil {
			return nil, fmt.Errorf("pgstore: scan row: %w", err)
		}
		var dataMap map[string]interface{}
		_ = json.Unmarshal(data, &dataMap)

		out = append(out, models.AuditRecord{
			ID: id,
			Signal: models.Signal{
				ID:        signalID,
				Type:      models.SignalType(typ),
				Source:    source,
				Target:    target,
				Timestamp: timestampMs,
				Data:      dataMap,
				Formatted: formatted,
			},
			Actor:     actor,
			Action:    action,
			Resource:  resource,
			Outcome:   outcome,
			Timestamp: timestampMs,
		})
	}
	return out, rows.Err()
}

// Count mirrors Query's filter but returns only the matching row count.
func (s *Store) Count(ctx context.Context, filter models.AuditFilter) (int64, error) {
	query := `
		SELECT count(*) FROM audit_log
		WHERE ($1 = '' OR actor = $1)
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR resource = $3)
		  AND ($4 = '' OR type = $4)
		  AND ($5 = '' OR source = $5)
		  AND ($6 = 0 OR timestamp_ms >= $6)
		  AND ($7 = 0 OR timestamp_ms <= $7)
	`
	var n int64
	err := s.pool.QueryRow(ctx, query,
		filter.Actor, filter.Action, filter.Resource, string(filter.Type), filter.Source,
		msOrZero(filter.Since), msOrZero(filter.Until)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgstore: count audit_log: %w", err)
	}
	return n, nil
}

// Delete removes one record by ID, used by the retention janitor after a
// successful archive.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_log WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgstore: delete audit_log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("audit record %s not found", id)
	}
	return nil
}

// ExpiredRecordsBefore supports the retention janitor's sweep.
func (s *Store) ExpiredRecordsBefore(ctx context.Context, cutoff time.Time) ([]models.AuditRecord, error) {
	return s.Query(ctx, models.AuditFilter{Until: cutoff, Limit: 10000})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func msOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// ValidateTable enforces the hard table allow-list from spec.md §6 for
// any caller-facing query-building path.
func ValidateTable(table string) error {
	if !allowedTables[table] {
		return fmt.Errorf("table %q is not in the allow-list", table)
	}
	return nil
}

// RejectDestructiveSQL blocks raw SQL input containing a destructive
// keyword, per spec.md §6 and §9's re-architecture note on the removed
// "/v1/db" pass-through endpoint.
func RejectDestructiveSQL(raw string) error {
	upper := toUpperASCII(raw)
	for _, kw := range blockedKeywords {
		if contains(upper, kw) {
			return fmt.Errorf("query contains blocked keyword: %s", kw)
		}
	}
	return nil
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func contains(haystack, needle string) bool {
	return len(needle) > 0 && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}
