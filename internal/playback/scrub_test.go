package playback

import (
	"math"
	"testing"
	"time"

	"github.com/ensam-campus/wayfinder/internal/config"
)

func newTestScrub(t *testing.T) (*Scrub, *VirtualPlayer, *ManualClock) {
	t.Helper()
	clock := NewManualClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	p := NewVirtualPlayer(clock)
	p.SetDuration(60)
	return NewScrub(p, config.Default()), p, clock
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPaceIndexMonotoneAndClamped(t *testing.T) {
	pace := NewPaceTable(config.Default())
	if pace.Rate(pace.Center()) != 1 {
		t.Fatalf("center should be 1x, got %v", pace.Rate(pace.Center()))
	}
	prev := -1
	for d := -500.0; d <= 500; d += 7 {
		idx := pace.IndexFor(d, 40)
		if idx < 0 || idx > pace.Len()-1 {
			t.Fatalf("index %d out of range for displacement %v", idx, d)
		}
		if idx < prev {
			t.Fatalf("pace index decreased from %d to %d at displacement %v", prev, idx, d)
		}
		prev = idx
	}
	tests := []struct {
		displacement float64
		want         float64
	}{
		{0, 1},
		{39, 1},
		{-39, 1},
		{40, 1.5},
		{80, 2},
		{-40, 0.5},
		{-1000, 0.25},
		{1000, 2.5},
	}
	for _, tt := range tests {
		if got := pace.Rate(pace.IndexFor(tt.displacement, 40)); got != tt.want {
			t.Errorf("displacement %v: expected rate %v, got %v", tt.displacement, tt.want, got)
		}
	}
}

func TestPressMoveChangesRateWithoutRestart(t *testing.T) {
	s, p, clock := newTestScrub(t)
	s.PressStart(100, 400)
	clock.Advance(2 * time.Second)
	s.PressMove(320) // 80px up
	if !approx(p.Rate(), 2) {
		t.Fatalf("expected 2x after dragging up two steps, got %v", p.Rate())
	}
	if _, label := s.Pace(); label != "Fast" {
		t.Errorf("expected Fast label, got %q", label)
	}
	clock.Advance(time.Second)
	if !approx(p.Position(), 4) {
		t.Errorf("expected position 4 (2s at 1x + 1s at 2x), got %v", p.Position())
	}
	s.PressMove(440) // 40px below origin
	if !approx(p.Rate(), 0.5) {
		t.Errorf("expected 0.5x after dragging down, got %v", p.Rate())
	}
	s.PressMove(480)
	if !approx(p.Rate(), 0.25) {
		t.Errorf("expected 0.25x two steps below origin, got %v", p.Rate())
	}
}

func TestPressMoveIgnoredWhenIdle(t *testing.T) {
	s, p, _ := newTestScrub(t)
	s.PressMove(0)
	if p.Playing() || p.Rate() != 1 {
		t.Errorf("move without press should not touch the player")
	}
}

func TestEdgeTaps(t *testing.T) {
	s, p, _ := newTestScrub(t)
	p.Seek(10)
	if e := s.EdgeTap(10, 400); e != EdgeLeft || !approx(p.Position(), 7) {
		t.Errorf("left edge should seek back 3s, got %s at %v", e, p.Position())
	}
	if e := s.EdgeTap(390, 400); e != EdgeRight || !approx(p.Position(), 10) {
		t.Errorf("right edge should seek forward 3s, got %s at %v", e, p.Position())
	}
	if e := s.EdgeTap(200, 400); e != EdgeNone || !approx(p.Position(), 10) {
		t.Errorf("central tap should be ignored, got %s at %v", e, p.Position())
	}

	p.Seek(1)
	s.EdgeTap(0, 400)
	if p.Position() != 0 {
		t.Errorf("seek should clamp at 0, got %v", p.Position())
	}
	p.Seek(59)
	s.EdgeTap(400, 400)
	if p.Position() != 60 {
		t.Errorf("seek should clamp at duration, got %v", p.Position())
	}
}

func TestRestartRoundTrip(t *testing.T) {
	s, p, clock := newTestScrub(t)
	s.PressStart(0, 100)
	s.PressMove(0)
	clock.Advance(5 * time.Second)
	s.Restart()
	if p.Position() != 0 || p.Playing() || p.Rate() != 1 {
		t.Errorf("restart should pause at 0 at 1x, got pos=%v playing=%v rate=%v", p.Position(), p.Playing(), p.Rate())
	}
	if s.State() != ScrubIdle || s.PaceIndex() != NewPaceTable(config.Default()).Center() {
		t.Errorf("restart should reset scrub state")
	}
}

// A press held without vertical movement plays at normal speed and releasing
// pauses where the video is.
func TestScenarioVid1(t *testing.T) {
	s, p, clock := newTestScrub(t)
	s.PressStart(200, 300)
	if !p.Playing() || p.Rate() != 1 {
		t.Fatalf("press should play at 1x")
	}
	clock.Advance(4 * time.Second)
	s.PressMove(300)
	s.PressEnd()
	if p.Playing() {
		t.Errorf("release should pause")
	}
	if !approx(p.Position(), 4) {
		t.Errorf("expected position retained at 4s, got %v", p.Position())
	}
	clock.Advance(10 * time.Second)
	if !approx(p.Position(), 4) {
		t.Errorf("paused position should not move, got %v", p.Position())
	}
	if rate, label := s.Pace(); rate != 1 || label != "Normal" {
		t.Errorf("pace should reset to normal, got %v %q", rate, label)
	}
}

func TestVirtualPlayerStopsAtEnd(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	p := NewVirtualPlayer(clock)
	p.SetDuration(10)
	p.SetRate(2)
	p.Play()
	clock.Advance(8 * time.Second)
	if p.Position() != 10 || p.Playing() {
		t.Errorf("expected to stop at 10, got %v playing=%v", p.Position(), p.Playing())
	}
	if !Arrived(p, 0.25) {
		t.Errorf("expected arrival at end of media")
	}
}

func TestArrivedNeedsDuration(t *testing.T) {
	p := NewVirtualPlayer(NewManualClock(time.Unix(0, 0)))
	if Arrived(p, 0.25) {
		t.Errorf("unknown duration must never count as arrived")
	}
}
