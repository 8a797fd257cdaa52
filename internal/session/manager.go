package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ensam-campus/wayfinder/internal/asset"
	"github.com/ensam-campus/wayfinder/internal/catalog"
	"github.com/ensam-campus/wayfinder/internal/config"
	"github.com/ensam-campus/wayfinder/internal/playback"
	"github.com/google/uuid"
)

// Opts holds configuration options for a Manager.
type Opts struct {
	Tuning       config.Tuning
	Prober       asset.Prober
	AssetBaseURL string
	Recorder     JourneyRecorder
	Timer        Timer
	Clock        playback.Clock
	NewID        func() string
}

// Option defines a configuration option for a Manager.
type Option func(*Opts)

// WithTuning sets the engine thresholds.
func WithTuning(t config.Tuning) Option {
	return func(o *Opts) { o.Tuning = t }
}

// WithProber sets how step images are verified.
func WithProber(p asset.Prober) Option {
	return func(o *Opts) { o.Prober = p }
}

// WithAssetBaseURL sets the prefix of relative step image paths.
func WithAssetBaseURL(base string) Option {
	return func(o *Opts) { o.AssetBaseURL = base }
}

// WithRecorder sets where journey events are logged.
func WithRecorder(r JourneyRecorder) Option {
	return func(o *Opts) { o.Recorder = r }
}

// WithTimer sets the timer driving idle expiry and media stall detection.
func WithTimer(t Timer) Option {
	return func(o *Opts) { o.Timer = t }
}

// WithClock sets the clock used by players and sensor windows.
func WithClock(c playback.Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Opts) { o.NewID = fn }
}

// Manager is the registry of live sessions. Sessions left idle for the session TTL
// are closed and removed.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	catalog  *catalog.Catalog
	deps     *deps
	newID    func() string
}

// NewManager creates a manager serving routes from cat.
func NewManager(cat *catalog.Catalog, opts ...Option) *Manager {
	cfg := Opts{Tuning: config.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Prober == nil {
		cfg.Prober = asset.HTTPProber{}
	}
	if cfg.Timer == nil {
		cfg.Timer = NewSimpleTimer()
	}
	if cfg.Clock == nil {
		cfg.Clock = playback.SystemClock{}
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	if cat == nil {
		cat = catalog.New(nil)
	}
	return &Manager{
		sessions: make(map[string]*Session),
		catalog:  cat,
		deps: &deps{
			tuning:    cfg.Tuning,
			prober:    cfg.Prober,
			assetBase: cfg.AssetBaseURL,
			recorder:  cfg.Recorder,
			timer:     cfg.Timer,
			clock:     cfg.Clock,
		},
		newID: cfg.NewID,
	}
}

// Catalog returns the catalog new sessions are opened against.
func (m *Manager) Catalog() *catalog.Catalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog
}

// SetCatalog swaps the catalog. Open sessions keep the route they loaded.
func (m *Manager) SetCatalog(c *catalog.Catalog) {
	m.mu.Lock()
	m.catalog = c
	m.mu.Unlock()
	slog.Info("Manager.SetCatalog: catalog replaced", "routes", c.Len(), "dropped", c.Dropped())
}

// Tuning returns the engine thresholds.
func (m *Manager) Tuning() config.Tuning {
	return m.deps.tuning
}

// Open starts a session for req. Catalog misses and gendered indirections still
// produce a session; its snapshot carries the redirect.
func (m *Manager) Open(req Request) *Session {
	id := m.newID()
	cat := m.Catalog()
	s := open(id, cat, req, m.deps)

	m.mu.Lock()
	m.sessions[id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.touch(id)
	slog.Info("Manager.Open: session opened", "session", id, "path", req.PathID, "phase", s.Phase(), "sessions", total)
	return s
}

// Get returns a live session and extends its idle deadline.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.touch(id)
	return s, nil
}

// Close tears a session down and removes it. Sensor listeners are always released.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.deps.timer.Cancel(idleKey(id))
	s.end()
	slog.Info("Manager.Close: session closed", "session", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every session and stops the timer.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.end()
	}
	m.deps.timer.Stop()
	slog.Info("Manager.Shutdown: all sessions closed", "count", len(sessions))
}

func (m *Manager) touch(id string) {
	m.deps.timer.ScheduleAfter(idleKey(id), idleFor(m.deps.tuning), func() {
		m.expire(id)
	})
}

func (m *Manager) expire(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.end()
	slog.Info("Manager.expire: idle session reaped", "session", id)
}

func idleKey(id string) string {
	return "idle:" + id
}
