package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ensam-campus/wayfinder/internal/config"
	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/ensam-campus/wayfinder/internal/playback"
	"github.com/ensam-campus/wayfinder/internal/session"
	"github.com/ensam-campus/wayfinder/internal/testutil"
	"github.com/gdamore/tcell/v2"
)

type countingBell struct{ rings int }

func (b *countingBell) Ring()  { b.rings++ }
func (b *countingBell) Close() {}

type harness struct {
	player *player
	bell   *countingBell
	clock  *playback.ManualClock
	mgr    *session.Manager
}

func newHarness(t *testing.T, flags Flags) harness {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("failed to init simulation screen: %v", err)
	}
	screen.SetSize(80, 24)
	t.Cleanup(screen.Fini)

	clock := playback.NewManualClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	mgr := session.NewManager(testutil.NewTestCatalog(),
		session.WithProber(testutil.AcceptAll),
		session.WithClock(clock),
	)
	t.Cleanup(mgr.Shutdown)

	sess, err := openSession(mgr, flags)
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	b := &countingBell{}
	return harness{player: newPlayer(screen, sess, mgr.Tuning(), b), bell: b, clock: clock, mgr: mgr}
}

func (h harness) key(k tcell.Key) {
	h.player.handleEvent(context.Background(), tcell.NewEventKey(k, 0, tcell.ModNone))
}

func (h harness) rune(r rune) {
	h.player.handleEvent(context.Background(), tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
}

func (h harness) mouse(x, y int, buttons tcell.ButtonMask) {
	h.player.handleEvent(context.Background(), tcell.NewEventMouse(x, y, buttons, tcell.ModNone))
}

func TestImageRouteFromKeyboard(t *testing.T) {
	h := newHarness(t, Flags{pathID: "p2a"})
	p := h.player

	if !p.snap.ShowModal() {
		t.Fatalf("expected confirmation modal, got %+v", p.snap)
	}
	h.key(tcell.KeyRight)
	if p.message == "" {
		t.Errorf("next before start should report the rejection")
	}

	h.key(tcell.KeyEnter)
	if p.snap.Phase != models.PhaseActive || p.snap.Step.Index != 0 {
		t.Fatalf("enter should start the journey, got %+v", p.snap)
	}

	h.rune(' ')
	h.key(tcell.KeyLeft)
	if p.snap.Step.Index != 0 {
		t.Errorf("expected step 0 after tap and previous, got %d", p.snap.Step.Index)
	}

	h.key(tcell.KeyRight)
	h.mouse(40, 10, tcell.Button1)
	h.mouse(40, 10, tcell.ButtonNone)
	if p.snap.Phase != models.PhaseArrived {
		t.Fatalf("expected arrival, got %+v", p.snap)
	}
	if h.bell.rings != 1 {
		t.Errorf("expected one chime on arrival, got %d", h.bell.rings)
	}

	h.key(tcell.KeyRight)
	if h.bell.rings != 1 {
		t.Errorf("chime must not repeat while arrived, got %d", h.bell.rings)
	}

	h.rune('n')
	if !p.quit || p.snap.Redirect == nil || p.snap.Redirect.Target != models.RedirectDiscovery {
		t.Errorf("new journey should leave for discovery, got %+v", p.snap)
	}
}

func TestEscapeClosesModal(t *testing.T) {
	h := newHarness(t, Flags{pathID: "p2a"})
	h.key(tcell.KeyEscape)
	if !h.player.quit || h.player.snap.Redirect == nil || h.player.snap.Redirect.Target != models.RedirectHome {
		t.Errorf("escape at the modal should close the session, got %+v", h.player.snap)
	}
}

func TestQuitKeys(t *testing.T) {
	for _, tt := range []struct {
		name string
		ev   *tcell.EventKey
	}{
		{"q", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)},
		{"ctrl-c", tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Flags{pathID: "single"})
			h.player.handleEvent(context.Background(), tt.ev)
			if !h.player.quit {
				t.Errorf("%s should quit", tt.name)
			}
		})
	}
}

func TestVideoRouteWithMouse(t *testing.T) {
	h := newHarness(t, Flags{pathID: "vid1", videoDuration: 10})
	p := h.player
	if p.snap.Video == nil || !p.snap.Video.Loaded || p.snap.Video.Duration != 10 {
		t.Fatalf("video metadata should be loaded on open, got %+v", p.snap.Video)
	}
	h.key(tcell.KeyEnter)

	// Rows are 16px tall: five rows up is 80px, two pace steps.
	h.mouse(40, 18, tcell.Button1)
	if !p.snap.Video.Pressing || p.snap.Video.Rate != 1 {
		t.Fatalf("press should play at normal pace, got %+v", p.snap.Video)
	}
	h.mouse(40, 13, tcell.Button1)
	if p.snap.Video.Rate != 2 {
		t.Errorf("dragging up should double the pace, got %v", p.snap.Video.Rate)
	}
	h.clock.Advance(2 * time.Second)
	h.mouse(40, 13, tcell.ButtonNone)
	if p.snap.Video.Playing || p.snap.Video.Position != 4 {
		t.Errorf("release should pause after 2s at 2x, got %+v", p.snap.Video)
	}

	h.mouse(75, 10, tcell.Button1)
	h.mouse(75, 10, tcell.ButtonNone)
	if p.snap.Video.Position != 7 {
		t.Errorf("clicking the right edge should seek forward, got %v", p.snap.Video.Position)
	}
	if p.snap.Video.Playing {
		t.Errorf("an edge click must not start playback")
	}

	h.key(tcell.KeyLeft)
	if p.snap.Video.Position != 4 {
		t.Errorf("left arrow should seek back, got %v", p.snap.Video.Position)
	}

	h.key(tcell.KeyRight)
	h.key(tcell.KeyRight)
	if p.snap.Phase != models.PhaseArrived || h.bell.rings != 1 {
		t.Errorf("seeking to the end should arrive and chime, got %s rings %d", p.snap.Phase, h.bell.rings)
	}

	h.rune('r')
	if p.snap.Phase != models.PhaseActive || p.snap.Video.Position != 0 {
		t.Errorf("restart should rewind, got %+v", p.snap)
	}
}

func TestSensorKeys(t *testing.T) {
	h := newHarness(t, Flags{pathID: "vid1", videoDuration: 10})
	p := h.player
	h.key(tcell.KeyEnter)

	h.rune('f')
	if p.snap.Video.Rate != 1 {
		t.Errorf("tilt before enabling motion must not change the pace")
	}

	h.rune('m')
	if p.snap.Sensors == nil || !p.snap.Sensors.Enabled {
		t.Fatalf("m should enable motion controls, got %+v", p.snap.Sensors)
	}
	tuning := config.Default()

	h.rune('f')
	if p.snap.Video.Rate != tuning.FastRate {
		t.Errorf("forward tilt should play fast, got %v", p.snap.Video.Rate)
	}
	h.rune('s')
	if p.snap.Video.Rate != tuning.SlowRate {
		t.Errorf("backward tilt should play slow, got %v", p.snap.Video.Rate)
	}
	h.rune('n')
	if p.snap.Video.Rate != 1 {
		t.Errorf("level tilt should play at normal pace, got %v", p.snap.Video.Rate)
	}

	h.rune('M')
	if p.snap.Sensors != nil && p.snap.Sensors.Enabled {
		t.Errorf("M should disable motion controls")
	}
}

func TestSensorKeysOnImageRoute(t *testing.T) {
	h := newHarness(t, Flags{pathID: "p2a"})
	h.key(tcell.KeyEnter)
	h.rune('k')
	if !strings.Contains(h.player.message, "not supported") {
		t.Errorf("sensor keys on an image route should report the mode, got %q", h.player.message)
	}
}

func TestDrawShowsModal(t *testing.T) {
	h := newHarness(t, Flags{pathID: "p2a"})
	h.player.draw()

	var row strings.Builder
	for x := 0; x < len("To Amphi A"); x++ {
		r, _, _, _ := h.player.screen.GetContent(x, 0)
		row.WriteRune(r)
	}
	if row.String() != "To Amphi A" {
		t.Errorf("expected the route title on the first row, got %q", row.String())
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		snap models.SessionSnapshot
		want []string
	}{
		{
			name: "modal",
			snap: models.SessionSnapshot{
				PathID: "p2a", Phase: models.PhaseConfirming,
				Modal: &models.ModalInfo{Title: "To Amphi A", From: "Entrance", To: "Amphi A", Time: "3 min"},
			},
			want: []string{"To Amphi A", "Entrance -> Amphi A", "Walk time: 3 min", "enter start"},
		},
		{
			name: "step",
			snap: models.SessionSnapshot{
				PathID: "p2a", Phase: models.PhaseActive,
				Step: &models.StepView{Index: 1, Steps: 3, URL: "/img/p2a/2.jpg", Progress: 0.5},
			},
			want: []string{"Step 2 of 3", "/img/p2a/2.jpg", "[" + strings.Repeat("#", 20)},
		},
		{
			name: "failed step",
			snap: models.SessionSnapshot{
				PathID: "p2a", Phase: models.PhaseActive,
				Step: &models.StepView{Steps: 3, URL: "/img/p2a/1.jpg", Failed: true},
			},
			want: []string{"Image failed to load: /img/p2a/1.jpg"},
		},
		{
			name: "video arrived",
			snap: models.SessionSnapshot{
				PathID: "vid1", Phase: models.PhaseArrived,
				Video: &models.VideoView{Source: "/media/vid1.mp4", Position: 10, Duration: 10, PaceLabel: "1x", Progress: 1},
			},
			want: []string{"10.0s / 10.0s  paused  pace 1x", "You have arrived.", "[" + strings.Repeat("#", barWidth) + "]"},
		},
		{
			name: "not found",
			snap: models.SessionSnapshot{PathID: "ghost", Phase: models.PhaseNotFound},
			want: []string{"Route not found: ghost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := strings.Join(render(tt.snap), "\n")
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("render output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestProgressBarClamps(t *testing.T) {
	if got := progressBar(-1); got != "["+strings.Repeat(".", barWidth)+"]" {
		t.Errorf("negative progress = %q", got)
	}
	if got := progressBar(2); got != "["+strings.Repeat("#", barWidth)+"]" {
		t.Errorf("overflowing progress = %q", got)
	}
}

func TestOpenSession(t *testing.T) {
	mgr := session.NewManager(testutil.NewTestCatalog(), session.WithProber(testutil.AcceptAll))
	t.Cleanup(mgr.Shutdown)

	if _, err := openSession(mgr, Flags{pathID: "ghost", catalog: "data.json"}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
	if _, err := openSession(mgr, Flags{pathID: "toilet"}); err == nil || !strings.Contains(err.Error(), "-gender") {
		t.Errorf("expected gender hint, got %v", err)
	}
	sess, err := openSession(mgr, Flags{pathID: "toilet", gender: "female"})
	if err != nil {
		t.Fatalf("gendered route with gender should open: %v", err)
	}
	if got := sess.Snapshot().PathID; got != "toilet-female" {
		t.Errorf("expected toilet-female, got %s", got)
	}
	if mgr.Len() != 1 {
		t.Errorf("rejected sessions should be released, %d open", mgr.Len())
	}
}

func TestParseFlags(t *testing.T) {
	t.Setenv("WAYFINDER_CATALOG", "")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := parseFlags(fs, nil); !errors.Is(err, errNoPath) {
		t.Errorf("expected errNoPath, got %v", err)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	f, err := parseFlags(fs, []string{"-video-duration", "12.5", "-mute", "vid1"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if f.pathID != "vid1" || f.videoDuration != 12.5 || !f.mute || f.catalog != "data.json" {
		t.Errorf("unexpected flags %+v", f)
	}
}
