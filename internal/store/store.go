// Package store provides storage backends for the journey log and attendance ledgers.
//
// It includes an in-memory store used when no database is configured, plus SQLite and
// PostgreSQL backends selected from the DSN.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ensam-campus/wayfinder/internal/models"
)

var ErrDSNNotSet = errors.New("database DSN not set")

// Store persists journey events and attendance records.
type Store interface {
	AddJourneyEvent(e models.JourneyEvent) error
	// GetJourneyEvents returns events for pathID (all paths when empty), newest first,
	// at most limit entries (no limit when limit <= 0).
	GetJourneyEvents(pathID string, limit int) ([]models.JourneyEvent, error)
	// SaveAttendance records or replaces the entry for (session code, student).
	SaveAttendance(r models.AttendanceRecord) error
	// ListAttendance returns the ledger of a session code ordered by student id.
	ListAttendance(sessionCode string) ([]models.AttendanceRecord, error)
	Close() error
}

// Opts holds configuration options for stores.
type Opts struct {
	DSN    string
	Driver string
}

// Option defines a configuration option for stores.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend at the given file path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithPostgresDSN selects the PostgreSQL backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3"
// for anything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	lower := strings.ToLower(d)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	// key=value form, e.g. "host=localhost dbname=wayfinder sslmode=disable"
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the store selected by opts. Without a DSN it returns an in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDSNType(cfg.DSN)
	}
	if driver == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// InMemoryStore keeps records in process memory.
type InMemoryStore struct {
	mu         sync.RWMutex
	journeys   []models.JourneyEvent
	attendance map[string]map[string]models.AttendanceRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{attendance: make(map[string]map[string]models.AttendanceRecord)}
}

func (s *InMemoryStore) AddJourneyEvent(e models.JourneyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journeys = append(s.journeys, e)
	return nil
}

func (s *InMemoryStore) GetJourneyEvents(pathID string, limit int) ([]models.JourneyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.JourneyEvent
	for i := len(s.journeys) - 1; i >= 0; i-- {
		e := s.journeys[i]
		if pathID != "" && e.PathID != pathID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) SaveAttendance(r models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger, ok := s.attendance[r.SessionCode]
	if !ok {
		ledger = make(map[string]models.AttendanceRecord)
		s.attendance[r.SessionCode] = ledger
	}
	ledger[r.StudentID] = r
	return nil
}

func (s *InMemoryStore) ListAttendance(sessionCode string) ([]models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ledger := s.attendance[sessionCode]
	out := make([]models.AttendanceRecord, 0, len(ledger))
	for _, r := range ledger {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
