// Package db opens the attendance server's SQLite store and applies its
// schema.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: a pure-Go SQLite
// ────────────────────────────────────────────────────────────────────
// modernc.org/sqlite needs no C toolchain, so the server cross-compiles
// and runs from a scratch image. It registers itself as "sqlite" (not
// "sqlite3") with database/sql.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the database at dsn and migrates it.
//
//	file:    "geocheckin.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
//	tests:   "file:testXYZ?mode=memory&cache=shared&_foreign_keys=on"
//
// Pragmas go in the DSN so every pooled connection gets them.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("database ready", "dsn", dsn)
	return db, nil
}

// migrate runs the schema one statement at a time; the driver only
// executes the first statement of a multi-statement Exec.
func migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// schema contains every CREATE TABLE statement for the application.
//
// LEARNING NOTE: schema design choices
//
//	users           one table for teachers and students; "role" tells
//	                them apart.
//
//	class_sessions  one meeting of a class. Starting attendance fills in
//	                the origin point (nullable), the radius, the late
//	                threshold and the nonce baked into the current QR.
//
//	attendances     one row per student per session.
//	                UNIQUE(session_id,student_id) is the last line of
//	                defence against a double check-in racing past the
//	                handler's own lookup. is_valid is NULL while a
//	                check-in without location waits for review.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    name          TEXT NOT NULL,
    role          TEXT NOT NULL CHECK(role IN ('student','teacher')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS class_sessions (
    id                 TEXT PRIMARY KEY,
    teacher_id         TEXT NOT NULL REFERENCES users(id),
    class_name         TEXT NOT NULL,
    starts_at          DATETIME NOT NULL,
    attendance_open    INTEGER NOT NULL DEFAULT 0,
    method             TEXT NOT NULL DEFAULT '',
    late_after_minutes INTEGER NOT NULL DEFAULT 0,
    opened_at          DATETIME,
    origin_lat         REAL,
    origin_lon         REAL,
    radius_meters      REAL NOT NULL DEFAULT 0,
    qr_nonce           TEXT NOT NULL DEFAULT '',
    qr_expires_at      DATETIME,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS attendances (
    id              TEXT PRIMARY KEY,
    session_id      TEXT NOT NULL REFERENCES class_sessions(id) ON DELETE CASCADE,
    student_id      TEXT NOT NULL REFERENCES users(id),
    status          TEXT NOT NULL CHECK(status IN ('on_time','late')),
    is_valid        INTEGER,
    checkin_time    DATETIME NOT NULL,
    latitude        REAL,
    longitude       REAL,
    distance_meters REAL,
    no_gps_reason   TEXT NOT NULL DEFAULT '',
    UNIQUE (session_id, student_id)
)
`
