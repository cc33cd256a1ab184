package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// requiredColumns lists every column the repositories read or write.  A
// deployment whose tables lack one of them is misconfigured.
var requiredColumns = map[string][]string{
	"facilities":            {"id", "name", "capacity", "status", "updated_at"},
	"reservations":          {"id", "facility_id", "day", "start_min", "end_min", "quantity", "requester_id", "purpose", "status", "admin_note", "created_at", "updated_at"},
	"reservation_day_locks": {"facility_id", "day"},
}

// Migrate creates the tables from the embedded schema when they are
// missing.  It never alters existing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range statements(schemaSQL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// VerifySchema checks that every required column exists in the current
// database.  Callers treat a non-nil error as fatal.
func VerifySchema(ctx context.Context, db *sql.DB) error {
	const q = `SELECT table_name, column_name
               FROM information_schema.columns
               WHERE table_schema = DATABASE()
                 AND table_name IN ('facilities', 'reservations', 'reservation_day_locks')`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("verify schema: %w", err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("verify schema: %w", err)
		}
		have[strings.ToLower(table)+"."+strings.ToLower(column)] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("verify schema: %w", err)
	}

	var missing []string
	for table, cols := range requiredColumns {
		for _, c := range cols {
			if !have[table+"."+c] {
				missing = append(missing, table+"."+c)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("schema mismatch, missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// statements splits a schema file on semicolons, dropping comments and
// blank statements.
func statements(src string) []string {
	var b strings.Builder
	for _, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	var out []string
	for _, s := range strings.Split(b.String(), ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
