// This file implements an SQLite-backed store for journey events and attendance.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/ensam-campus/wayfinder/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, ErrDSNNotSet
	}

	if path := sqliteFilePath(dsn); path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		slog.Debug("SQLite database directory verified/created", "dir", dir)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// sqliteFilePath strips the file: scheme and query parameters from a DSN. It returns
// "" for in-memory databases.
func sqliteFilePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

func (s *SQLiteStore) AddJourneyEvent(e models.JourneyEvent) error {
	_, err := s.db.Exec(`INSERT INTO journey_events (session_id, path_id, kind, time) VALUES (?, ?, ?, ?)`,
		e.SessionID, e.PathID, string(e.Kind), e.Time)
	if err != nil {
		slog.Error("SQLiteStore AddJourneyEvent failed", "error", err, "session", e.SessionID)
		return fmt.Errorf("failed to insert journey event for %s: %w", e.SessionID, err)
	}
	slog.Debug("SQLiteStore AddJourneyEvent succeeded", "session", e.SessionID, "kind", e.Kind)
	return nil
}

func (s *SQLiteStore) GetJourneyEvents(pathID string, limit int) ([]models.JourneyEvent, error) {
	query := `SELECT session_id, path_id, kind, time FROM journey_events`
	var args []interface{}
	if pathID != "" {
		query += ` WHERE path_id = ?`
		args = append(args, pathID)
	}
	query += ` ORDER BY time DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore GetJourneyEvents query failed", "error", err)
		return nil, fmt.Errorf("failed to query journey events: %w", err)
	}
	defer rows.Close()
	events, err := scanJourneyEvents(rows)
	if err != nil {
		slog.Error("SQLiteStore GetJourneyEvents scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore GetJourneyEvents succeeded", "count", len(events))
	return events, nil
}

func (s *SQLiteStore) SaveAttendance(r models.AttendanceRecord) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO attendance (session_code, student_id, name, room, status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.SessionCode, r.StudentID, nilIfEmpty(r.Name), nilIfEmpty(r.Room), string(r.Status), r.RecordedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveAttendance failed", "error", err, "session", r.SessionCode, "student", r.StudentID)
		return fmt.Errorf("failed to save attendance for %s: %w", r.StudentID, err)
	}
	slog.Debug("SQLiteStore SaveAttendance succeeded", "session", r.SessionCode, "student", r.StudentID, "status", r.Status)
	return nil
}

func (s *SQLiteStore) ListAttendance(sessionCode string) ([]models.AttendanceRecord, error) {
	rows, err := s.db.Query(`
		SELECT session_code, student_id, name, room, status, recorded_at
		FROM attendance WHERE session_code = ? ORDER BY student_id`, sessionCode)
	if err != nil {
		slog.Error("SQLiteStore ListAttendance query failed", "error", err)
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()
	records, err := scanAttendance(rows)
	if err != nil {
		slog.Error("SQLiteStore ListAttendance scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore ListAttendance succeeded", "session", sessionCode, "count", len(records))
	return records, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
