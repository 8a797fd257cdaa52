// Package playback drives video routes: the media transport, the walking-pace table
// and the touch scrub controller.
package playback

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Player is the media transport a controller drives. Times are in seconds.
type Player interface {
	Play()
	Pause()
	Playing() bool
	SetRate(rate float64)
	Rate() float64
	Seek(t float64)
	Position() float64
	// Duration returns 0 while the media metadata is unknown.
	Duration() float64
}

// Clock tells the time. Tests swap it for a ManualClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock set to start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// VirtualPlayer is a Player whose position advances with its clock while playing.
// It mirrors what the client's video element does so the server can answer with
// positions and arrival without streaming media.
type VirtualPlayer struct {
	mu       sync.Mutex
	clock    Clock
	duration float64
	pos      float64
	rate     float64
	playing  bool
	since    time.Time
}

// NewVirtualPlayer creates a paused player at position 0 and rate 1.
func NewVirtualPlayer(clock Clock) *VirtualPlayer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &VirtualPlayer{clock: clock, rate: 1}
}

// advance folds elapsed playing time into pos. Must be called with mu held.
func (p *VirtualPlayer) advance() {
	now := p.clock.Now()
	if p.playing {
		p.pos += now.Sub(p.since).Seconds() * p.rate
		if p.duration > 0 && p.pos >= p.duration {
			p.pos = p.duration
			p.playing = false
			slog.Debug("VirtualPlayer.advance: reached end of media", "duration", p.duration)
		}
	}
	p.since = now
}

func (p *VirtualPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	if p.duration > 0 && p.pos >= p.duration {
		return
	}
	p.playing = true
}

func (p *VirtualPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.playing = false
}

func (p *VirtualPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.playing
}

// SetRate changes speed without restarting playback.
func (p *VirtualPlayer) SetRate(rate float64) {
	if rate <= 0 || math.IsNaN(rate) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.rate = rate
}

func (p *VirtualPlayer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// Seek moves to t, clamped to [0, duration] when the duration is known.
func (p *VirtualPlayer) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.pos = clampPosition(t, p.duration)
}

func (p *VirtualPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.pos
}

func (p *VirtualPlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// SetDuration records the media duration once its metadata has loaded.
func (p *VirtualPlayer) SetDuration(d float64) {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.duration = d
	p.pos = clampPosition(p.pos, d)
}

// Sync overwrites the position with one reported by the client's media element.
func (p *VirtualPlayer) Sync(pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.pos = clampPosition(pos, p.duration)
}

func clampPosition(t, duration float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if duration > 0 && t > duration {
		return duration
	}
	return t
}

// SeekBy moves the player by delta seconds, clamped to [0, duration].
func SeekBy(p Player, delta float64) float64 {
	target := clampPosition(p.Position()+delta, p.Duration())
	p.Seek(target)
	return target
}

// Arrived reports whether the player reached the end of a known-length media,
// within epsilon seconds.
func Arrived(p Player, epsilon float64) bool {
	d := p.Duration()
	if d <= 0 {
		return false
	}
	return p.Position() >= d-epsilon
}
