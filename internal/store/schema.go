package store

import (
	"fmt"
	"strings"
)

// Schema renders the DDL for the log_entries table. It only creates what is
// missing and never alters existing tables.
func Schema(d Dialect) string {
	return strings.Join(schemaStatements(d), ";\n\n") + ";\n"
}

func schemaStatements(d Dialect) []string {
	idType, tsType, tsDefault := "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ", "now()"
	if d == SQLite {
		idType, tsType, tsDefault = "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP", "CURRENT_TIMESTAMP"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS log_entries (
	id %s,
	event_id TEXT NOT NULL UNIQUE,
	message TEXT NOT NULL,
	level TEXT NOT NULL,
	timestamp %s NOT NULL DEFAULT %s
)`, idType, tsType, tsDefault),
		"CREATE INDEX IF NOT EXISTS ix_log_entries_message ON log_entries (message)",
		"CREATE INDEX IF NOT EXISTS ix_log_entries_level ON log_entries (level)",
	}
}
