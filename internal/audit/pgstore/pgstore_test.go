package pgstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTableAllowsKnownTables(t *testing.T) {
	for _, table := range []string{"users", "sessions", "api_keys", "signals", "audit_log", "routing_rules", "webhooks", "node_health", "metrics_hourly"} {
		assert.NoError(t, ValidateTable(table))
	}
}

func TestValidateTableRejectsUnknownTable(t *testing.T) {
	assert.Error(t, ValidateTable("pg_shadow"))
	assert.Error(t, ValidateTable("information_schema.tables"))
}

func TestRejectDestructiveSQLBlocksDangerousKeywords(t *testing.T) {
	cases := []string{
		"DROP TABLE users",
		"alter table users add column x text",
		"CREATE TABLE evil (id text)",
		"TRUNCATE audit_log",
		"DELETE FROM users WHERE 1=1",
		"UPDATE users SET role = 'admin'",
		"INSERT INTO users (id) VALUES ('x')",
	}
	for _, sql := range cases {
		assert.Error(t, RejectDestructiveSQL(sql), sql)
	}
}

func TestRejectDestructiveSQLAllowsSelect(t *testing.T) {
	assert.NoError(t, RejectDestructiveSQL("SELECT * FROM audit_log WHERE actor = 'AI'"))
}
