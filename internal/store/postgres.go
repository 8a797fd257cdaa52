// This file implements a PostgreSQL-backed store for journey events and attendance.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/ensam-campus/wayfinder/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, ErrDSNNotSet
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddJourneyEvent(e models.JourneyEvent) error {
	_, err := s.db.Exec(`INSERT INTO journey_events (session_id, path_id, kind, time) VALUES ($1, $2, $3, $4)`,
		e.SessionID, e.PathID, string(e.Kind), e.Time)
	if err != nil {
		slog.Error("PostgresStore AddJourneyEvent failed", "error", err, "session", e.SessionID)
		return fmt.Errorf("failed to insert journey event for %s: %w", e.SessionID, err)
	}
	slog.Debug("PostgresStore AddJourneyEvent succeeded", "session", e.SessionID, "kind", e.Kind)
	return nil
}

func (s *PostgresStore) GetJourneyEvents(pathID string, limit int) ([]models.JourneyEvent, error) {
	query := `SELECT session_id, path_id, kind, time FROM journey_events`
	var args []interface{}
	if pathID != "" {
		args = append(args, pathID)
		query += fmt.Sprintf(` WHERE path_id = $%d`, len(args))
	}
	query += ` ORDER BY time DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore GetJourneyEvents query failed", "error", err)
		return nil, fmt.Errorf("failed to query journey events: %w", err)
	}
	defer rows.Close()
	events, err := scanJourneyEvents(rows)
	if err != nil {
		slog.Error("PostgresStore GetJourneyEvents scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore GetJourneyEvents succeeded", "count", len(events))
	return events, nil
}

func (s *PostgresStore) SaveAttendance(r models.AttendanceRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO attendance (session_code, student_id, name, room, status, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_code, student_id) DO UPDATE SET
			name = EXCLUDED.name,
			room = EXCLUDED.room,
			status = EXCLUDED.status,
			recorded_at = EXCLUDED.recorded_at`,
		r.SessionCode, r.StudentID, nilIfEmpty(r.Name), nilIfEmpty(r.Room), string(r.Status), r.RecordedAt)
	if err != nil {
		slog.Error("PostgresStore SaveAttendance failed", "error", err, "session", r.SessionCode, "student", r.StudentID)
		return fmt.Errorf("failed to save attendance for %s: %w", r.StudentID, err)
	}
	slog.Debug("PostgresStore SaveAttendance succeeded", "session", r.SessionCode, "student", r.StudentID, "status", r.Status)
	return nil
}

func (s *PostgresStore) ListAttendance(sessionCode string) ([]models.AttendanceRecord, error) {
	rows, err := s.db.Query(`
		SELECT session_code, student_id, name, room, status, recorded_at
		FROM attendance WHERE session_code = $1 ORDER BY student_id`, sessionCode)
	if err != nil {
		slog.Error("PostgresStore ListAttendance query failed", "error", err)
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()
	records, err := scanAttendance(rows)
	if err != nil {
		slog.Error("PostgresStore ListAttendance scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore ListAttendance succeeded", "session", sessionCode, "count", len(records))
	return records, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
