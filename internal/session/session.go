// Package session implements the navigation session shell and the session registry.
//
// A session loads one route from the catalog, shows its confirmation modal, then hands
// control to the step navigator (image routes) or to the scrub and sensor controllers
// (video routes) until the user arrives or leaves.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ensam-campus/wayfinder/internal/asset"
	"github.com/ensam-campus/wayfinder/internal/catalog"
	"github.com/ensam-campus/wayfinder/internal/config"
	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/ensam-campus/wayfinder/internal/navigator"
	"github.com/ensam-campus/wayfinder/internal/playback"
	"github.com/ensam-campus/wayfinder/internal/sensor"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrWrongPhase      = errors.New("action not allowed in the current phase")
	ErrWrongMode       = errors.New("action not supported by this route")
)

// Request opens a navigation session.
type Request struct {
	PathID        string `json:"path_id" validate:"required"`
	From          string `json:"from,omitempty"`
	Gender        string `json:"gender,omitempty"`
	ViewportWidth int    `json:"viewport_width,omitempty" validate:"gte=0"`
}

// JourneyRecorder stores journey log entries.
type JourneyRecorder interface {
	AddJourneyEvent(e models.JourneyEvent) error
}

// deps are shared by every session of a manager.
type deps struct {
	tuning    config.Tuning
	prober    asset.Prober
	assetBase string
	recorder  JourneyRecorder
	timer     Timer
	clock     playback.Clock
}

// Session is one user's walk along one route. All methods are safe for concurrent
// use and transitions are applied one at a time.
type Session struct {
	mu       sync.Mutex
	id       string
	req      Request
	pathID   string
	phase    models.SessionPhase
	redirect *models.Redirect
	route    catalog.Route
	d        *deps
	done     chan struct{}

	// image sequence
	resolver *asset.Resolver
	nav      *navigator.Navigator

	// video
	player         *playback.VirtualPlayer
	scrub          *playback.Scrub
	sensors        *sensor.Controller
	stream         *sensor.StreamSource
	originalSource string
	source         string
	reverted       bool
	mediaFailed    bool
	loaded         bool
	stalled        bool
}

// open runs the Loading phase: gendered indirections are detected before any catalog
// lookup, misses end in NotFound, and hits prepare the route's mode.
func open(id string, cat *catalog.Catalog, req Request, d *deps) *Session {
	s := &Session{id: id, req: req, pathID: req.PathID, phase: models.PhaseLoading, d: d, done: make(chan struct{})}

	if cat.IsGenderedRedirect(req.PathID) {
		target, err := catalog.GenderedTarget(req.PathID, req.Gender)
		if err != nil {
			s.phase = models.PhaseRedirect
			s.redirect = &models.Redirect{Target: models.RedirectGenderSelect, PathID: req.PathID, From: req.From}
			slog.Info("Session.open: gendered destination, redirecting to gender selection", "session", id, "path", req.PathID)
			return s
		}
		slog.Debug("Session.open: gendered destination resolved", "session", id, "path", req.PathID, "target", target)
		s.pathID = target
	}

	route, err := cat.LoadPath(s.pathID)
	if err != nil {
		s.phase = models.PhaseNotFound
		s.redirect = &models.Redirect{Target: models.RedirectDiscovery}
		slog.Info("Session.open: path not found, redirecting to discovery", "session", id, "path", s.pathID)
		s.record(models.JourneyNotFound)
		return s
	}
	s.route = route

	switch m := route.Mode.(type) {
	case models.ImageSequence:
		s.resolver = asset.NewResolver(m, d.prober,
			asset.WithBaseURL(d.assetBase),
			asset.WithProbeTimeout(d.tuning.ProbeTimeout))
		s.nav = navigator.New(m.Steps, s.resolver, navigator.WithPrefetchCount(d.tuning.PrefetchCount))
		// The first image starts loading while the modal is shown.
		s.resolver.ResolveAsync(1, nil)
	case models.Video:
		s.player = playback.NewVirtualPlayer(d.clock)
		s.scrub = playback.NewScrub(s.player, d.tuning)
		s.stream = sensor.NewStreamSource()
		s.sensors = sensor.NewController(s.player, s.stream, d.tuning, sensor.WithClock(d.clock))
		s.originalSource = m.VideoPath
		s.source = asset.VideoVariant(m.VideoPath, asset.ClassifyViewport(req.ViewportWidth, d.tuning), d.tuning)
		s.armMetadataTimer()
	}
	s.phase = models.PhaseConfirming
	slog.Debug("Session.open: route loaded", "session", id, "path", s.pathID, "mode", route.Mode.Kind())
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Done is closed once the session is removed from its manager.
func (s *Session) Done() <-chan struct{} { return s.done }

// Phase returns the current phase.
func (s *Session) Phase() models.SessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Snapshot returns the client-facing state.
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkArrival()
	return s.snapshot()
}

// Start leaves the confirmation modal and begins the walk.
func (s *Session) Start(ctx context.Context) (models.SessionSnapshot, error) {
	s.mu.Lock()
	if s.phase != models.PhaseConfirming {
		defer s.mu.Unlock()
		return s.snapshot(), s.wrongPhase("start")
	}
	s.mu.Unlock()

	// The first image is resolved without the lock so the session stays readable
	// while the probe runs.
	if s.resolver != nil {
		if _, err := s.resolver.Resolve(ctx, 1); err != nil {
			slog.Warn("Session.Start: first step unavailable", "session", s.id, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseConfirming {
		return s.snapshot(), s.wrongPhase("start")
	}
	if s.nav != nil {
		s.nav.Enter()
	}
	s.phase = models.PhaseActive
	s.record(models.JourneyStarted)
	s.checkArrival()
	slog.Info("Session.Start: journey started", "session", s.id, "path", s.pathID)
	return s.snapshot(), nil
}

// Close dismisses the confirmation modal and sends the user home.
func (s *Session) Close() (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseConfirming {
		return s.snapshot(), s.wrongPhase("close")
	}
	s.record(models.JourneyAbandoned)
	s.finish(models.RedirectHome)
	return s.snapshot(), nil
}

// NewJourney leaves an arrived session for the destination discovery flow.
func (s *Session) NewJourney() (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkArrival()
	if s.phase != models.PhaseArrived {
		return s.snapshot(), s.wrongPhase("new journey")
	}
	s.finish(models.RedirectDiscovery)
	return s.snapshot(), nil
}

// Restart returns an active or arrived session to the origin of the route.
func (s *Session) Restart() (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseActive && s.phase != models.PhaseArrived {
		return s.snapshot(), s.wrongPhase("restart")
	}
	if s.nav != nil {
		s.nav.Restart()
	} else {
		s.scrub.Restart()
		s.sensors.ResetPace()
	}
	s.phase = models.PhaseActive
	s.record(models.JourneyRestarted)
	s.checkArrival()
	return s.snapshot(), nil
}

// Next advances one step on an image route.
func (s *Session) Next() (models.SessionSnapshot, error) {
	return s.step("next", (*navigator.Navigator).Next)
}

// Previous goes back one step on an image route.
func (s *Session) Previous() (models.SessionSnapshot, error) {
	return s.step("previous", (*navigator.Navigator).Previous)
}

// Tap handles a tap on the step image.
func (s *Session) Tap() (models.SessionSnapshot, error) {
	return s.step("tap", (*navigator.Navigator).Tap)
}

func (s *Session) step(action string, move func(*navigator.Navigator) navigator.Frame) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nav == nil {
		return s.snapshot(), s.wrongMode(action)
	}
	switch s.phase {
	case models.PhaseActive:
		move(s.nav)
		s.checkArrival()
	case models.PhaseArrived:
	default:
		return s.snapshot(), s.wrongPhase(action)
	}
	return s.snapshot(), nil
}

// Retry loads the current step image again, or restarts the wait for video metadata.
func (s *Session) Retry() (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case models.PhaseConfirming, models.PhaseActive, models.PhaseArrived:
	default:
		return s.snapshot(), s.wrongPhase("retry")
	}
	if s.nav != nil {
		s.nav.Retry()
		return s.snapshot(), nil
	}
	if !s.loaded {
		s.stalled = false
		s.mediaFailed = false
		s.armMetadataTimer()
	}
	return s.snapshot(), nil
}

// PressStart begins a press-and-hold on a video route.
func (s *Session) PressStart(x, y float64) (models.SessionSnapshot, error) {
	return s.gesture("press", func() {
		s.scrub.PressStart(x, y)
		s.sensors.ResetPace()
	})
}

// PressMove moves the held press vertically.
func (s *Session) PressMove(y float64) (models.SessionSnapshot, error) {
	return s.gesture("move", func() { s.scrub.PressMove(y) })
}

// PressEnd releases the press.
func (s *Session) PressEnd() (models.SessionSnapshot, error) {
	return s.gesture("release", func() {
		s.scrub.PressEnd()
		s.sensors.ResetPace()
	})
}

// EdgeTap seeks when x falls in an edge zone of a surface width pixels wide.
func (s *Session) EdgeTap(x, width float64) (models.SessionSnapshot, error) {
	return s.gesture("edge", func() { s.scrub.EdgeTap(x, width) })
}

func (s *Session) gesture(action string, apply func()) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scrub == nil {
		return s.snapshot(), s.wrongMode(action)
	}
	s.checkArrival()
	switch s.phase {
	case models.PhaseActive:
		apply()
		s.checkArrival()
	case models.PhaseArrived:
	default:
		return s.snapshot(), s.wrongPhase(action)
	}
	return s.snapshot(), nil
}

// MediaLoaded records the video duration reported by the client.
func (s *Session) MediaLoaded(duration float64) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireMedia("media loaded"); err != nil {
		return s.snapshot(), err
	}
	s.player.SetDuration(duration)
	s.loaded = s.player.Duration() > 0
	if s.loaded {
		s.stalled = false
		s.d.timer.Cancel(s.metadataKey())
	}
	slog.Debug("Session.MediaLoaded: metadata received", "session", s.id, "duration", duration)
	s.checkArrival()
	return s.snapshot(), nil
}

// MediaError handles a failed video load. The first error on a device variant falls
// back to the original file; later errors are reported to the client.
func (s *Session) MediaError() (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireMedia("media error"); err != nil {
		return s.snapshot(), err
	}
	if !s.reverted && s.source != s.originalSource {
		slog.Warn("Session.MediaError: variant failed, reverting to original", "session", s.id, "variant", s.source, "original", s.originalSource)
		s.reverted = true
		s.source = s.originalSource
		s.loaded = false
		s.armMetadataTimer()
		return s.snapshot(), nil
	}
	s.mediaFailed = true
	s.d.timer.Cancel(s.metadataKey())
	slog.Error("Session.MediaError: video failed to load", "session", s.id, "source", s.source)
	return s.snapshot(), nil
}

// MediaTick syncs the position reported by the client's media element.
func (s *Session) MediaTick(position float64) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireMedia("media tick"); err != nil {
		return s.snapshot(), err
	}
	s.player.Sync(position)
	s.checkArrival()
	return s.snapshot(), nil
}

// EnableSensors runs the sensor permission protocol. Refusals are reported in the
// snapshot, not as errors.
func (s *Session) EnableSensors(ctx context.Context, env sensor.Env, grants sensor.Grants) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sensors == nil {
		return s.snapshot(), s.wrongMode("enable sensors")
	}
	if s.phase == models.PhaseClosed {
		return s.snapshot(), s.wrongPhase("enable sensors")
	}
	s.sensors.SetPermissionRequester(grants)
	ok, status := s.sensors.Enable(ctx, env)
	slog.Debug("Session.EnableSensors: result", "session", s.id, "enabled", ok, "status", status)
	return s.snapshot(), nil
}

// DisableSensors turns motion controls off.
func (s *Session) DisableSensors() (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sensors == nil {
		return s.snapshot(), s.wrongMode("disable sensors")
	}
	s.sensors.Disable()
	return s.snapshot(), nil
}

// SensorStream returns the source device events are pushed into.
func (s *Session) SensorStream() (*sensor.StreamSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil, s.wrongMode("sensor stream")
	}
	return s.stream, nil
}

// Navigator exposes the step navigator of an image route, nil otherwise.
func (s *Session) Navigator() *navigator.Navigator { return s.nav }

// end tears the session down unconditionally. Journeys cut short are logged as
// abandoned.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	switch s.phase {
	case models.PhaseConfirming, models.PhaseActive:
		s.record(models.JourneyAbandoned)
	}
	s.teardown()
	if s.phase != models.PhaseNotFound && s.phase != models.PhaseRedirect {
		s.phase = models.PhaseClosed
	}
}

// finish must be called with mu held.
func (s *Session) finish(target models.RedirectTarget) {
	s.teardown()
	s.phase = models.PhaseClosed
	s.redirect = &models.Redirect{Target: target}
	slog.Info("Session.finish: session closed", "session", s.id, "redirect", target)
}

func (s *Session) teardown() {
	if s.sensors != nil {
		s.sensors.Close()
	}
	if s.player != nil {
		s.player.Pause()
		s.d.timer.Cancel(s.metadataKey())
	}
}

// checkArrival moves an active session to Arrived once the walk is complete.
func (s *Session) checkArrival() {
	if s.phase != models.PhaseActive {
		return
	}
	arrived := false
	if s.nav != nil {
		arrived = s.nav.Current().State == navigator.StateArrived
	} else if s.player != nil {
		arrived = playback.Arrived(s.player, s.d.tuning.ArrivalEpsilon)
	}
	if !arrived {
		return
	}
	s.phase = models.PhaseArrived
	if s.player != nil {
		s.player.Pause()
	}
	s.record(models.JourneyArrived)
	slog.Info("Session.checkArrival: arrived", "session", s.id, "path", s.pathID)
}

func (s *Session) requireMedia(action string) error {
	if s.player == nil {
		return s.wrongMode(action)
	}
	if s.phase == models.PhaseClosed {
		return s.wrongPhase(action)
	}
	return nil
}

func (s *Session) metadataKey() string {
	return "metadata:" + s.id
}

// armMetadataTimer flags the video as stalled if no metadata arrives in time.
func (s *Session) armMetadataTimer() {
	timeout := s.d.tuning.MetadataTimeout
	if timeout <= 0 {
		return
	}
	s.d.timer.ScheduleAfter(s.metadataKey(), timeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.loaded || s.phase == models.PhaseClosed {
			return
		}
		s.stalled = true
		slog.Warn("Session: video metadata timed out", "session", s.id, "source", s.source, "timeout", timeout)
	})
}

func (s *Session) record(kind models.JourneyKind) {
	if s.d.recorder == nil {
		return
	}
	e := models.JourneyEvent{SessionID: s.id, PathID: s.pathID, Kind: kind, Time: s.d.clock.Now().Unix()}
	if err := s.d.recorder.AddJourneyEvent(e); err != nil {
		slog.Error("Session.record: failed to record journey event", "error", err, "session", s.id, "kind", kind)
	}
}

func (s *Session) wrongPhase(action string) error {
	slog.Warn("Session: action rejected", "session", s.id, "action", action, "phase", s.phase)
	return fmt.Errorf("%w: %s during %s", ErrWrongPhase, action, s.phase)
}

func (s *Session) wrongMode(action string) error {
	slog.Warn("Session: action not supported by route", "session", s.id, "action", action, "path", s.pathID)
	return fmt.Errorf("%w: %s", ErrWrongMode, action)
}

// snapshot must be called with mu held.
func (s *Session) snapshot() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		ID:       s.id,
		PathID:   s.pathID,
		Phase:    s.phase,
		Redirect: s.redirect,
	}
	if s.route.Mode == nil {
		return snap
	}
	snap.Mode = s.route.Mode.Kind()
	if s.phase == models.PhaseConfirming {
		snap.Modal = &models.ModalInfo{
			Title:       s.route.Title,
			Description: s.route.Description,
			From:        s.route.From,
			To:          s.route.To,
			Time:        s.route.Time,
		}
	}
	if s.phase == models.PhaseClosed {
		return snap
	}
	if s.nav != nil && s.phase != models.PhaseConfirming {
		snap.Step = s.nav.Current().View()
	}
	if s.player != nil {
		snap.Video = s.videoView()
		snap.Sensors = &models.SensorView{
			Enabled: s.sensors.Enabled(),
			Status:  s.sensors.Status(),
			Rate:    string(s.sensors.Tilt()),
		}
	}
	return snap
}

func (s *Session) videoView() *models.VideoView {
	_, label := s.scrub.Pace()
	v := &models.VideoView{
		Source:    s.source,
		Position:  s.player.Position(),
		Duration:  s.player.Duration(),
		Loaded:    s.loaded,
		Stalled:   s.stalled,
		Failed:    s.mediaFailed,
		Playing:   s.player.Playing(),
		Rate:      s.player.Rate(),
		PaceLabel: label,
		Pressing:  s.scrub.State() == playback.ScrubPressing,
	}
	if v.Duration > 0 {
		v.Progress = v.Position / v.Duration
	}
	return v
}

// idleFor reports how long the session may stay unused before it is reaped.
func idleFor(t config.Tuning) time.Duration {
	if t.SessionTTL <= 0 {
		return config.Default().SessionTTL
	}
	return t.SessionTTL
}
