// Package sensor maps device motion to video playback.
//
// Two channels are supported. The shake channel toggles play and pause when the
// acceleration magnitude crosses a threshold. The tilt channel picks a slow, normal or
// fast rate from the front-back tilt and seeks from the left-right rotation.
package sensor

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ensam-campus/wayfinder/internal/config"
	"github.com/ensam-campus/wayfinder/internal/playback"
)

// Status messages shown to the user.
const (
	StatusUnavailable = "sensors are not available on this device"
	StatusDenied      = "motion sensor permission was denied"
	StatusFailed      = "could not request motion sensor permission"
	StatusActive      = "motion controls active"
	StatusOff         = ""
)

// Motion is an acceleration sample including gravity, in m/s^2.
type Motion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the length of the acceleration vector.
func (m Motion) Magnitude() float64 {
	return math.Sqrt(m.X*m.X + m.Y*m.Y + m.Z*m.Z)
}

// Orientation is a device orientation sample in degrees. Beta is the front-back tilt,
// Gamma the left-right rotation.
type Orientation struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Handler receives device events from a Source.
type Handler interface {
	HandleMotion(Motion)
	HandleOrientation(Orientation)
}

// Source delivers device events. Attach registers a handler and returns the function
// that removes it.
type Source interface {
	Attach(h Handler) (detach func())
}

// Env describes the device a session runs on.
type Env struct {
	Mobile bool `json:"mobile"`
	// PermissionAPI is set when the platform requires an explicit permission request
	// before motion events are delivered.
	PermissionAPI bool `json:"permission_api"`
}

// PermissionRequester asks the user for sensor access.
type PermissionRequester interface {
	RequestMotion(ctx context.Context) (bool, error)
	RequestOrientation(ctx context.Context) (bool, error)
}

// Tilt is the rate band selected by the front-back tilt.
type Tilt string

const (
	TiltNormal Tilt = "normal"
	TiltSlow   Tilt = "slow"
	TiltFast   Tilt = "fast"
)

// Controller applies device events to a player while enabled. It is safe for
// concurrent use; events arriving while disabled are ignored.
type Controller struct {
	mu        sync.Mutex
	player    playback.Player
	source    Source
	requester PermissionRequester
	clock     playback.Clock
	tuning    config.Tuning

	enabled      bool
	closed       bool
	detach       func()
	status       string
	tilt         Tilt
	lastShake    time.Time
	lastRotation time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used for debounce and throttle windows.
func WithClock(c playback.Clock) Option {
	return func(ctrl *Controller) {
		if c != nil {
			ctrl.clock = c
		}
	}
}

// WithPermissionRequester sets how permissions are requested on devices that need it.
func WithPermissionRequester(r PermissionRequester) Option {
	return func(ctrl *Controller) {
		ctrl.requester = r
	}
}

// NewController creates a disabled controller for player fed by source.
func NewController(player playback.Player, source Source, t config.Tuning, opts ...Option) *Controller {
	c := &Controller{
		player: player,
		source: source,
		clock:  playback.SystemClock{},
		tuning: t,
		tilt:   TiltNormal,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPermissionRequester replaces the requester used by the next Enable.
func (c *Controller) SetPermissionRequester(r PermissionRequester) {
	c.mu.Lock()
	c.requester = r
	c.mu.Unlock()
}

// Enable turns motion controls on. It never fails: refusals and denials are reported
// through the returned status and the controller stays disabled.
func (c *Controller) Enable(ctx context.Context, env Env) (bool, string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, StatusUnavailable
	}
	if c.enabled {
		defer c.mu.Unlock()
		return true, c.status
	}
	if !env.Mobile || c.source == nil {
		c.status = StatusUnavailable
		c.mu.Unlock()
		slog.Info("Controller.Enable: sensors unavailable", "mobile", env.Mobile)
		return false, StatusUnavailable
	}
	requester := c.requester
	c.mu.Unlock()

	if env.PermissionAPI {
		if status, ok := requestPermissions(ctx, requester); !ok {
			c.mu.Lock()
			c.status = status
			c.mu.Unlock()
			return false, status
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, StatusUnavailable
	}
	if c.enabled {
		return true, c.status
	}
	c.detach = c.source.Attach(c)
	c.enabled = true
	c.status = StatusActive
	c.tilt = TiltNormal
	c.lastShake = time.Time{}
	c.lastRotation = time.Time{}
	slog.Debug("Controller.Enable: listeners attached")
	return true, c.status
}

// requestPermissions asks for motion then orientation access; both must be granted.
func requestPermissions(ctx context.Context, r PermissionRequester) (string, bool) {
	if r == nil {
		slog.Warn("requestPermissions: no permission requester configured")
		return StatusFailed, false
	}
	motion, err := r.RequestMotion(ctx)
	if err != nil {
		slog.Warn("requestPermissions: motion request failed", "error", err)
		return StatusFailed, false
	}
	orientation, err := r.RequestOrientation(ctx)
	if err != nil {
		slog.Warn("requestPermissions: orientation request failed", "error", err)
		return StatusFailed, false
	}
	if !motion || !orientation {
		slog.Info("requestPermissions: permission denied", "motion", motion, "orientation", orientation)
		return StatusDenied, false
	}
	return StatusActive, true
}

// Disable detaches listeners and returns playback to normal speed.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.teardown()
	c.status = StatusOff
}

// Close detaches listeners unconditionally. The controller cannot be enabled again.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown()
	c.closed = true
	c.status = StatusOff
}

// teardown must be called with mu held.
func (c *Controller) teardown() {
	if c.detach != nil {
		c.detach()
		c.detach = nil
	}
	if c.enabled {
		c.player.SetRate(1)
	}
	c.enabled = false
	c.tilt = TiltNormal
	slog.Debug("Controller.teardown: listeners detached")
}

// ResetPace forgets the tilt band after something else set the player back to normal
// speed, so the next tilted sample applies its rate again.
func (c *Controller) ResetPace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tilt = TiltNormal
}

// Enabled reports whether motion controls are on.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Status returns the last status message.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Tilt returns the current tilt band.
func (c *Controller) Tilt() Tilt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tilt
}

// HandleMotion toggles play and pause when the device is shaken.
func (c *Controller) HandleMotion(m Motion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	if m.Magnitude() <= c.tuning.ShakeThresholdMS2 {
		return
	}
	now := c.clock.Now()
	if !c.lastShake.IsZero() && now.Sub(c.lastShake) < c.tuning.ShakeDebounce {
		return
	}
	c.lastShake = now
	if c.player.Playing() {
		c.player.Pause()
		slog.Debug("Controller.HandleMotion: shake paused", "magnitude", m.Magnitude())
	} else {
		c.player.Play()
		slog.Debug("Controller.HandleMotion: shake resumed", "magnitude", m.Magnitude())
	}
}

// HandleOrientation picks the rate from the tilt and seeks on rotation.
func (c *Controller) HandleOrientation(o Orientation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}

	tilt := TiltNormal
	switch {
	case o.Beta > c.tuning.TiltThresholdDeg:
		tilt = TiltFast
	case o.Beta < -c.tuning.TiltThresholdDeg:
		tilt = TiltSlow
	}
	if tilt != c.tilt {
		c.tilt = tilt
		c.player.SetRate(c.rateFor(tilt))
		slog.Debug("Controller.HandleOrientation: tilt changed", "tilt", tilt, "beta", o.Beta)
	}

	if math.Abs(o.Gamma) <= c.tuning.RotationThresholdDeg {
		return
	}
	now := c.clock.Now()
	if !c.lastRotation.IsZero() && now.Sub(c.lastRotation) < c.tuning.RotationThrottle {
		return
	}
	c.lastRotation = now
	delta := c.tuning.RotationSeekSeconds
	if o.Gamma < 0 {
		delta = -delta
	}
	pos := playback.SeekBy(c.player, delta)
	slog.Debug("Controller.HandleOrientation: rotation seek", "gamma", o.Gamma, "position", pos)
}

func (c *Controller) rateFor(t Tilt) float64 {
	switch t {
	case TiltSlow:
		return c.tuning.SlowRate
	case TiltFast:
		return c.tuning.FastRate
	default:
		return 1
	}
}

// Grants is a PermissionRequester answering with permissions the client already
// obtained from the user.
type Grants struct {
	Motion      bool `json:"motion_granted"`
	Orientation bool `json:"orientation_granted"`
}

func (g Grants) RequestMotion(context.Context) (bool, error)      { return g.Motion, nil }
func (g Grants) RequestOrientation(context.Context) (bool, error) { return g.Orientation, nil }
