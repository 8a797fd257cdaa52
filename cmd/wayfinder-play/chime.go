package main

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

const chimeSampleRate = beep.SampleRate(44100)

// bell announces arrival.
type bell interface {
	Ring()
	Close()
}

// chime plays two short sine tones through the speaker.
type chime struct{}

// newChime initializes the speaker. Callers fall back to a silent bell on error.
func newChime() (*chime, error) {
	if err := speaker.Init(chimeSampleRate, chimeSampleRate.N(time.Second/10)); err != nil {
		return nil, err
	}
	return &chime{}, nil
}

func (c *chime) Ring() {
	low, err := generators.SineTone(chimeSampleRate, 660)
	if err != nil {
		return
	}
	high, err := generators.SineTone(chimeSampleRate, 880)
	if err != nil {
		return
	}
	speaker.Play(beep.Seq(
		beep.Take(chimeSampleRate.N(120*time.Millisecond), low),
		beep.Take(chimeSampleRate.N(180*time.Millisecond), high),
	))
}

func (c *chime) Close() {
	speaker.Close()
}

// silentBell is used when no audio device is available.
type silentBell struct{}

func (silentBell) Ring()  {}
func (silentBell) Close() {}
