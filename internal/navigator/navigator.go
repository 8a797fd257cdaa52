// Package navigator implements the step navigator for image-sequence routes.
//
// The navigator is a linear state machine over 0-based step indices. Step images are
// numbered from 1, so index k shows asset k+1. Every transition shows the target
// step from cache when possible and prefetches the following steps in the background.
package navigator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ensam-campus/wayfinder/internal/asset"
	"github.com/ensam-campus/wayfinder/internal/models"
)

// DefaultPrefetchCount is how many upcoming steps are prefetched after a transition.
const DefaultPrefetchCount = 2

// State is the navigator state.
type State string

const (
	StateIdle    State = "idle"
	StateViewing State = "viewing"
	StateArrived State = "arrived"
)

// Assets is the cache and prefetcher the navigator reads step images from.
type Assets interface {
	Resolve(ctx context.Context, step int) (string, error)
	ResolveAsync(step int, done func(url string, err error))
	Cached(step int) (string, bool)
	Status(step int) asset.StepStatus
	Prefetch(from, count int) int
}

// Frame is what the render surface shows for the current step.
type Frame struct {
	State    State
	Index    int
	Asset    int
	Steps    int
	URL      string
	Loading  bool
	Failed   bool
	Progress float64
}

// View converts the frame to its API representation.
func (f Frame) View() *models.StepView {
	return &models.StepView{
		State:    string(f.State),
		Index:    f.Index,
		Asset:    f.Asset,
		Steps:    f.Steps,
		URL:      f.URL,
		Loading:  f.Loading,
		Failed:   f.Failed,
		Progress: f.Progress,
	}
}

// Navigator walks an image sequence one step at a time.
type Navigator struct {
	mu       sync.Mutex
	steps    int
	index    int
	state    State
	assets   Assets
	prefetch int
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithPrefetchCount sets how many upcoming steps each transition prefetches.
func WithPrefetchCount(n int) Option {
	return func(nv *Navigator) {
		if n >= 0 {
			nv.prefetch = n
		}
	}
}

// New creates a navigator over steps images served by assets. steps must be at least 1.
func New(steps int, assets Assets, opts ...Option) *Navigator {
	if steps < 1 {
		steps = 1
	}
	n := &Navigator{
		steps:    steps,
		state:    StateIdle,
		assets:   assets,
		prefetch: DefaultPrefetchCount,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Begin resolves the first step image before anything is shown, then enters the
// first state. A failed first probe still starts the walk; the frame reports it.
func (n *Navigator) Begin(ctx context.Context) Frame {
	if _, err := n.assets.Resolve(ctx, 1); err != nil {
		slog.Warn("Navigator.Begin: first step unavailable", "error", err)
	}
	return n.Enter()
}

// Enter shows the first step without waiting for its image, for callers that
// resolved it already.
func (n *Navigator) Enter() Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enter(0)
	if n.prefetch > 0 {
		n.assets.Prefetch(1, n.prefetch)
	}
	return n.frame()
}

// Next advances one step. It is a no-op on the last step.
func (n *Navigator) Next() Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateIdle {
		n.moveTo(0)
		return n.frame()
	}
	if n.index >= n.steps-1 {
		return n.frame()
	}
	n.moveTo(n.index + 1)
	return n.frame()
}

// Tap is what tapping the rendered frame does: the same as Next.
func (n *Navigator) Tap() Frame {
	return n.Next()
}

// Previous goes back one step. It is a no-op on the first step.
func (n *Navigator) Previous() Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateIdle || n.index == 0 {
		return n.frame()
	}
	n.moveTo(n.index - 1)
	return n.frame()
}

// Restart returns to the first step. The asset cache is kept.
func (n *Navigator) Restart() Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.moveTo(0)
	return n.frame()
}

// Retry probes the current step again if its image failed to load.
func (n *Navigator) Retry() Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.show()
	return n.frame()
}

// Current returns the frame for the current step, picking up images resolved since
// the last transition.
func (n *Navigator) Current() Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frame()
}

// Steps returns the number of steps.
func (n *Navigator) Steps() int {
	return n.steps
}

// moveTo must be called with mu held.
func (n *Navigator) moveTo(index int) {
	n.enter(index)
	n.show()
}

func (n *Navigator) enter(index int) {
	if index < 0 {
		index = 0
	}
	if index > n.steps-1 {
		index = n.steps - 1
	}
	n.index = index
	if index == n.steps-1 {
		n.state = StateArrived
	} else {
		n.state = StateViewing
	}
}

// show starts loading the current step if needed and prefetches what comes next.
func (n *Navigator) show() {
	step := n.index + 1
	switch n.assets.Status(step) {
	case asset.StatusCached, asset.StatusInFlight:
	default:
		n.assets.ResolveAsync(step, func(url string, err error) {
			if err != nil {
				slog.Debug("Navigator.show: step image unavailable", "step", step, "error", err)
			}
		})
	}
	if n.prefetch > 0 {
		n.assets.Prefetch(step, n.prefetch)
	}
}

func (n *Navigator) frame() Frame {
	step := n.index + 1
	f := Frame{
		State:    n.state,
		Index:    n.index,
		Asset:    step,
		Steps:    n.steps,
		Progress: float64(n.index+1) / float64(n.steps),
	}
	if n.state == StateIdle {
		f.Progress = 0
	}
	if url, ok := n.assets.Cached(step); ok {
		f.URL = url
		return f
	}
	f.Loading = true
	f.Failed = n.assets.Status(step) == asset.StatusFailed
	return f
}
