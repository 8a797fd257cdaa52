package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ensam-campus/wayfinder/internal/config"
	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/ensam-campus/wayfinder/internal/sensor"
	"github.com/ensam-campus/wayfinder/internal/session"
	"github.com/gdamore/tcell/v2"
)

const (
	frameInterval = 16 * time.Millisecond
	// A terminal cell stands in for this many CSS pixels when gestures are forwarded.
	cellWidthPx  = 8
	cellHeightPx = 16
	barWidth     = 40
)

// Tilt samples sent by the sensor keys, in degrees of front-back tilt.
const (
	slowBeta   = -45
	fastBeta   = 45
	normalBeta = 0
	shakeX     = 20
)

var (
	styleDefault = tcell.StyleDefault
	styleTitle   = tcell.StyleDefault.Bold(true)
	styleBar     = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleError   = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleHint    = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

// player drives one navigation session from a terminal.
type player struct {
	screen tcell.Screen
	sess   *session.Session
	tuning config.Tuning
	bell   bell

	snap     models.SessionSnapshot
	message  string
	pressing bool
	edge     bool // the current press landed in an edge zone
	quit     bool
}

func newPlayer(screen tcell.Screen, sess *session.Session, tuning config.Tuning, b bell) *player {
	if b == nil {
		b = silentBell{}
	}
	return &player{screen: screen, sess: sess, tuning: tuning, bell: b, snap: sess.Snapshot()}
}

// run polls terminal events and redraws until the user quits or the session ends.
func (p *player) run(ctx context.Context) {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := p.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for !p.quit {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			p.handleEvent(ctx, ev)
		case <-ticker.C:
			p.update(p.sess.Snapshot(), nil)
		}
		p.draw()
	}
}

// handleEvent maps one terminal event onto a session action.
func (p *player) handleEvent(ctx context.Context, ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		p.handleKey(ctx, ev)
	case *tcell.EventMouse:
		p.handleMouse(ev)
	case *tcell.EventResize:
		p.screen.Sync()
	}
}

func (p *player) handleKey(ctx context.Context, ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyCtrlC:
		p.quit = true
		return
	case tcell.KeyEscape:
		if p.snap.ShowModal() {
			p.update(p.sess.Close())
			return
		}
		p.quit = true
		return
	case tcell.KeyEnter:
		if p.snap.ShowModal() {
			p.update(p.sess.Start(ctx))
		}
		return
	case tcell.KeyRight:
		if p.snap.Mode == models.ModeKindVideo {
			p.update(p.sess.EdgeTap(p.widthPx()-1, p.widthPx()))
			return
		}
		p.update(p.sess.Next())
		return
	case tcell.KeyLeft:
		if p.snap.Mode == models.ModeKindVideo {
			p.update(p.sess.EdgeTap(0, p.widthPx()))
			return
		}
		p.update(p.sess.Previous())
		return
	case tcell.KeyRune:
	default:
		return
	}

	switch ev.Rune() {
	case 'q':
		p.quit = true
	case ' ':
		if p.snap.Mode == models.ModeKindImageSequence {
			p.update(p.sess.Tap())
		}
	case 'r':
		p.update(p.sess.Restart())
	case 't':
		p.update(p.sess.Retry())
	case 'n':
		if p.snap.Phase == models.PhaseArrived {
			p.update(p.sess.NewJourney())
			return
		}
		p.tilt(normalBeta)
	case 'm':
		p.update(p.sess.EnableSensors(ctx, sensor.Env{Mobile: true}, sensor.Grants{Motion: true, Orientation: true}))
	case 'M':
		p.update(p.sess.DisableSensors())
	case 's':
		p.tilt(slowBeta)
	case 'f':
		p.tilt(fastBeta)
	case 'k':
		p.deliver(sensor.StreamMessage{Type: "motion", Motion: sensor.Motion{X: shakeX}})
	}
}

// handleMouse turns Button1 into press-and-hold scrubbing. A press inside an edge
// zone seeks instead.
func (p *player) handleMouse(ev *tcell.EventMouse) {
	x, y := ev.Position()
	px, py := float64(x*cellWidthPx), float64(y*cellHeightPx)
	down := ev.Buttons()&tcell.Button1 != 0

	if p.snap.Mode == models.ModeKindImageSequence {
		if down && !p.pressing {
			p.update(p.sess.Tap())
		}
		p.pressing = down
		return
	}

	switch {
	case down && !p.pressing:
		p.pressing = true
		p.edge = p.inEdgeZone(px)
		if p.edge {
			p.update(p.sess.EdgeTap(px, p.widthPx()))
			return
		}
		p.update(p.sess.PressStart(px, py))
	case down && !p.edge:
		p.update(p.sess.PressMove(py))
	case !down && p.pressing:
		p.pressing = false
		if p.edge {
			p.edge = false
			return
		}
		p.update(p.sess.PressEnd())
	}
}

func (p *player) inEdgeZone(px float64) bool {
	w := p.widthPx()
	if w <= 0 {
		return false
	}
	return px < w*p.tuning.EdgeZone || px > w*(1-p.tuning.EdgeZone)
}

func (p *player) widthPx() float64 {
	w, _ := p.screen.Size()
	return float64(w * cellWidthPx)
}

func (p *player) tilt(beta float64) {
	p.deliver(sensor.StreamMessage{Type: "orientation", Orientation: sensor.Orientation{Beta: beta}})
}

func (p *player) deliver(msg sensor.StreamMessage) {
	stream, err := p.sess.SensorStream()
	if err != nil {
		p.message = err.Error()
		return
	}
	if err := stream.Deliver(msg); err != nil {
		p.message = err.Error()
		return
	}
	p.update(p.sess.Snapshot(), nil)
}

// update stores the latest snapshot and rings the bell on arrival.
func (p *player) update(snap models.SessionSnapshot, err error) {
	if err != nil {
		p.message = err.Error()
		if !errors.Is(err, session.ErrWrongPhase) && !errors.Is(err, session.ErrWrongMode) {
			slog.Warn("player.update: action failed", "session", snap.ID, "error", err)
		}
	}
	if snap.Phase == models.PhaseArrived && p.snap.Phase != models.PhaseArrived {
		p.bell.Ring()
	}
	p.snap = snap
	if snap.Phase == models.PhaseClosed || snap.Redirect != nil {
		p.quit = true
	}
}

func (p *player) draw() {
	p.screen.Clear()
	for row, line := range render(p.snap) {
		style := styleDefault
		switch {
		case row == 0:
			style = styleTitle
		case strings.HasPrefix(line, "["):
			style = styleBar
		case strings.HasPrefix(line, "  "):
			style = styleHint
		}
		drawText(p.screen, 0, row, line, style)
	}
	if p.message != "" {
		_, h := p.screen.Size()
		drawText(p.screen, 0, h-1, p.message, styleError)
	}
	p.screen.Show()
}

func drawText(s tcell.Screen, x, y int, text string, style tcell.Style) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

// render lays a snapshot out as text lines.
func render(snap models.SessionSnapshot) []string {
	var lines []string
	switch snap.Phase {
	case models.PhaseNotFound:
		return []string{"Route not found: " + snap.PathID, "  q quit"}
	case models.PhaseLoading:
		return []string{"Loading " + snap.PathID + "..."}
	}

	if m := snap.Modal; m != nil {
		lines = append(lines, m.Title)
		lines = append(lines, fmt.Sprintf("%s -> %s", m.From, m.To))
		if m.Time != "" {
			lines = append(lines, "Walk time: "+m.Time)
		}
	} else {
		lines = append(lines, snap.PathID)
	}
	if snap.ShowModal() {
		return append(lines, "", "  enter start   esc close")
	}

	lines = append(lines, "")
	if st := snap.Step; st != nil {
		lines = append(lines, fmt.Sprintf("Step %d of %d", st.Index+1, st.Steps))
		switch {
		case st.Failed:
			lines = append(lines, "Image failed to load: "+st.URL)
		case st.Loading:
			lines = append(lines, "Loading "+st.URL)
		default:
			lines = append(lines, st.URL)
		}
		lines = append(lines, progressBar(st.Progress))
		lines = append(lines, "", "  <- previous   -> / space next   r restart   t retry   q quit")
	}
	if v := snap.Video; v != nil {
		state := "paused"
		if v.Playing {
			state = "playing"
		}
		switch {
		case v.Failed:
			state = "failed to load"
		case v.Stalled:
			state = "waiting for video"
		}
		lines = append(lines, v.Source)
		lines = append(lines, fmt.Sprintf("%.1fs / %.1fs  %s  pace %s", v.Position, v.Duration, state, v.PaceLabel))
		lines = append(lines, progressBar(v.Progress))
		if s := snap.Sensors; s != nil && (s.Enabled || s.Status != "") {
			lines = append(lines, fmt.Sprintf("Motion: %s %s", s.Status, s.Rate))
		}
		lines = append(lines, "", "  drag up/down pace   click edges or <- -> seek   m motion   s/f/n tilt   k shake   r restart   q quit")
	}
	if snap.Phase == models.PhaseArrived {
		lines = append(lines, "", "You have arrived.", "  n new journey   r restart   q quit")
	}
	return lines
}

func progressBar(progress float64) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * barWidth)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}
