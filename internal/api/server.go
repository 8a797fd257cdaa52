// Package api exposes navigation sessions, the route catalog and the exam ledger over
// HTTP. Device sensor events reach a session through a WebSocket stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ensam-campus/wayfinder/internal/catalog"
	"github.com/ensam-campus/wayfinder/internal/exams"
	"github.com/ensam-campus/wayfinder/internal/session"
	"github.com/ensam-campus/wayfinder/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

const shutdownTimeout = 10 * time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	Manager        *session.Manager
	Store          store.Store
	Directory      *catalog.Directory
	Roster         *exams.Roster
	CatalogSource  string
	CatalogOptions []catalog.Option
	StaticDir      string
	PublicBaseURL  string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithManager sets the session registry.
func WithManager(m *session.Manager) Option {
	return func(o *Opts) { o.Manager = m }
}

// WithStore sets the journey and attendance store.
func WithStore(st store.Store) Option {
	return func(o *Opts) { o.Store = st }
}

// WithDirectory sets the destination directory served to the discovery flow.
func WithDirectory(d *catalog.Directory) Option {
	return func(o *Opts) { o.Directory = d }
}

// WithRoster sets the exam assignments.
func WithRoster(r *exams.Roster) Option {
	return func(o *Opts) { o.Roster = r }
}

// WithCatalogSource sets the file or URL the catalog is reloaded from.
func WithCatalogSource(source string, opts ...catalog.Option) Option {
	return func(o *Opts) {
		o.CatalogSource = source
		o.CatalogOptions = opts
	}
}

// WithStaticDir serves step images and videos from dir under /assets/.
func WithStaticDir(dir string) Option {
	return func(o *Opts) { o.StaticDir = dir }
}

// WithPublicBaseURL sets the base of links encoded in route QR codes.
func WithPublicBaseURL(base string) Option {
	return func(o *Opts) { o.PublicBaseURL = base }
}

// Server is the wayfinder HTTP API.
type Server struct {
	addr          string
	manager       *session.Manager
	st            store.Store
	roster        *exams.Roster
	catalogSource string
	catalogOpts   []catalog.Option
	staticDir     string
	publicBaseURL string
	directory     *catalog.Directory

	router *mux.Router
	srv    *http.Server
}

// NewServer creates a server. Missing dependencies fall back to empty in-memory ones.
func NewServer(opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Manager == nil {
		cfg.Manager = session.NewManager(nil)
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryStore()
	}
	if cfg.Directory == nil {
		cfg.Directory = &catalog.Directory{}
	}
	if cfg.Roster == nil {
		cfg.Roster = exams.New(nil)
	}
	s := &Server{
		addr:          cfg.Addr,
		manager:       cfg.Manager,
		st:            cfg.Store,
		roster:        cfg.Roster,
		catalogSource: cfg.CatalogSource,
		catalogOpts:   cfg.CatalogOptions,
		staticDir:     cfg.StaticDir,
		publicBaseURL: cfg.PublicBaseURL,
		directory:     cfg.Directory,
	}
	s.router = s.routes()
	return s
}

// Router returns the request router.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Catalog
	r.HandleFunc("/paths", s.listPathsHandler).Methods("GET")
	r.HandleFunc("/paths/{id}", s.getPathHandler).Methods("GET")
	r.HandleFunc("/paths/{id}/qr", s.pathQRHandler).Methods("GET")
	r.HandleFunc("/destinations", s.destinationsHandler).Methods("GET")
	r.HandleFunc("/catalog/reload", s.reloadCatalogHandler).Methods("POST")

	// Sessions
	r.HandleFunc("/sessions", s.createSessionHandler).Methods("POST")
	r.HandleFunc("/sessions/{sid}", s.getSessionHandler).Methods("GET")
	r.HandleFunc("/sessions/{sid}", s.deleteSessionHandler).Methods("DELETE")
	r.HandleFunc("/sessions/{sid}/{action:start|close|next|previous|tap|restart|new-journey|retry}", s.sessionActionHandler).Methods("POST")
	r.HandleFunc("/sessions/{sid}/scrub/{gesture:press|move|release|edge}", s.scrubHandler).Methods("POST")
	r.HandleFunc("/sessions/{sid}/media/{event:loaded|error|tick}", s.mediaHandler).Methods("POST")
	r.HandleFunc("/sessions/{sid}/sensors/enable", s.enableSensorsHandler).Methods("POST")
	r.HandleFunc("/sessions/{sid}/sensors/disable", s.disableSensorsHandler).Methods("POST")
	r.HandleFunc("/sessions/{sid}/sensors/stream", s.sensorStreamHandler).Methods("GET")

	// Exams and ledgers
	r.HandleFunc("/exams/{studentID}", s.examHandler).Methods("GET")
	r.HandleFunc("/attendance", s.recordAttendanceHandler).Methods("POST")
	r.HandleFunc("/attendance/codes", s.newAttendanceCodeHandler).Methods("POST")
	r.HandleFunc("/attendance/{code}", s.listAttendanceHandler).Methods("GET")
	r.HandleFunc("/journeys", s.journeysHandler).Methods("GET")

	if s.staticDir != "" {
		files := http.StripPrefix("/assets/", http.FileServer(http.Dir(s.staticDir)))
		r.PathPrefix("/assets/").Handler(cacheControl(files))
	}
	return r
}

// cacheControl lets clients keep step images briefly; probes revisit them often.
func cacheControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully and closes every
// session.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			slog.Error("Server.Run: listen failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}
	return s.Shutdown()
}

// Shutdown stops the listener and closes every live session.
func (s *Server) Shutdown() error {
	var err error
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err = s.srv.Shutdown(ctx); err != nil {
			slog.Warn("Server.Shutdown: graceful shutdown failed", "error", err)
			_ = s.srv.Close()
		}
	}
	s.manager.Shutdown()
	slog.Info("Server.Shutdown: server stopped")
	return err
}
