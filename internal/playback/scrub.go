package playback

import (
	"log/slog"
	"sync"

	"github.com/ensam-campus/wayfinder/internal/config"
)

// ScrubState is the touch state of the scrub controller.
type ScrubState string

const (
	ScrubIdle     ScrubState = "idle"
	ScrubPressing ScrubState = "pressing"
)

// Edge identifies which side of the screen an edge tap landed on.
type Edge string

const (
	EdgeNone  Edge = ""
	EdgeLeft  Edge = "left"
	EdgeRight Edge = "right"
)

// Scrub maps press-and-hold gestures to walking playback. Holding plays the video;
// dragging up or down while holding changes the pace; releasing pauses.
// Taps on the screen edges jump backward or forward by a fixed offset.
type Scrub struct {
	mu          sync.Mutex
	player      Player
	pace        PaceTable
	sensitivity float64
	edgeZone    float64
	edgeSeek    float64

	state     ScrubState
	originX   float64
	originY   float64
	paceIndex int
}

// NewScrub creates a scrub controller driving player with the given tuning.
func NewScrub(player Player, t config.Tuning) *Scrub {
	pace := NewPaceTable(t)
	return &Scrub{
		player:      player,
		pace:        pace,
		sensitivity: t.ScrubSensitivityPx,
		edgeZone:    t.EdgeZone,
		edgeSeek:    t.EdgeSeekSeconds,
		state:       ScrubIdle,
		paceIndex:   pace.Center(),
	}
}

// PressStart begins a hold at (x, y) and starts playback at normal pace.
func (s *Scrub) PressStart(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ScrubPressing
	s.originX, s.originY = x, y
	s.paceIndex = s.pace.Center()
	s.player.SetRate(s.pace.Rate(s.paceIndex))
	s.player.Play()
	slog.Debug("Scrub.PressStart: playing", "x", x, "y", y)
}

// PressMove updates the pace from the vertical distance to the press origin.
// Moving up speeds up, moving down slows down. Ignored when not pressing.
func (s *Scrub) PressMove(y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ScrubPressing {
		return
	}
	idx := s.pace.IndexFor(s.originY-y, s.sensitivity)
	if idx == s.paceIndex {
		return
	}
	s.paceIndex = idx
	s.player.SetRate(s.pace.Rate(idx))
	slog.Debug("Scrub.PressMove: pace changed", "index", idx, "rate", s.pace.Rate(idx), "label", s.pace.Label(idx))
}

// PressEnd releases the hold: playback pauses where it is and the pace resets.
func (s *Scrub) PressEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ScrubPressing {
		return
	}
	s.state = ScrubIdle
	s.player.Pause()
	s.paceIndex = s.pace.Center()
	s.player.SetRate(s.pace.Rate(s.paceIndex))
	slog.Debug("Scrub.PressEnd: paused", "position", s.player.Position())
}

// EdgeTap handles a tap at x on a surface width pixels wide. Taps in the left or
// right edge zone seek by the edge offset; other taps are ignored. It returns the
// edge that was hit.
func (s *Scrub) EdgeTap(x, width float64) Edge {
	if width <= 0 {
		return EdgeNone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case x < width*s.edgeZone:
		SeekBy(s.player, -s.edgeSeek)
		return EdgeLeft
	case x > width*(1-s.edgeZone):
		SeekBy(s.player, s.edgeSeek)
		return EdgeRight
	default:
		return EdgeNone
	}
}

// Restart seeks to the beginning, resets the pace and pauses.
func (s *Scrub) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ScrubIdle
	s.paceIndex = s.pace.Center()
	s.player.Pause()
	s.player.SetRate(s.pace.Rate(s.paceIndex))
	s.player.Seek(0)
}

// State returns the touch state.
func (s *Scrub) State() ScrubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pace returns the current pace multiplier and its label.
func (s *Scrub) Pace() (float64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pace.Rate(s.paceIndex), s.pace.Label(s.paceIndex)
}

// PaceIndex returns the current index into the pace table.
func (s *Scrub) PaceIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paceIndex
}
