// Package asset resolves and caches the step images of image-sequence routes.
//
// A Resolver is owned by one navigation session. It maps 1-based step numbers to
// URLs that passed a load probe, keeps at most one probe in flight per step, and
// prefetches upcoming steps in the background.
package asset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ensam-campus/wayfinder/internal/models"
	"golang.org/x/sync/singleflight"
)

// DefaultProbeTimeout bounds a single probe when no timeout is configured.
const DefaultProbeTimeout = 8 * time.Second

var (
	// ErrNotFound is returned when a step asset could not be loaded.
	ErrNotFound = errors.New("asset not found")
	// ErrStepOutOfRange is returned for step numbers outside [1, steps].
	ErrStepOutOfRange = errors.New("step out of range")
)

// Prober checks that a candidate asset URL can actually be loaded.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, url string) error

// Probe calls f(ctx, url).
func (f ProberFunc) Probe(ctx context.Context, url string) error {
	return f(ctx, url)
}

// StepStatus describes what the resolver knows about one step.
type StepStatus string

const (
	StatusUnknown  StepStatus = "unknown"
	StatusInFlight StepStatus = "in_flight"
	StatusCached   StepStatus = "cached"
	StatusFailed   StepStatus = "failed"
)

// Opts holds configuration options for a Resolver.
type Opts struct {
	BaseURL      string
	ProbeTimeout time.Duration
}

// Option defines a configuration option for a Resolver.
type Option func(*Opts)

// WithBaseURL prefixes every asset path, e.g. "https://cdn.example.org".
func WithBaseURL(base string) Option {
	return func(o *Opts) {
		o.BaseURL = strings.TrimRight(base, "/")
	}
}

// WithProbeTimeout bounds each probe. Stalled probes fail after this delay.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ProbeTimeout = d
	}
}

// Resolver is the session-scoped asset cache and prefetcher for one image sequence.
type Resolver struct {
	seq     models.ImageSequence
	prober  Prober
	base    string
	timeout time.Duration

	mu       sync.Mutex
	cache    map[int]string
	inflight map[int]struct{}
	failed   map[int]error

	group  singleflight.Group
	probes atomic.Int64
	wg     sync.WaitGroup
}

// NewResolver creates a resolver for seq using prober.
func NewResolver(seq models.ImageSequence, prober Prober, opts ...Option) *Resolver {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	slog.Debug("asset.NewResolver: created", "path", seq.Path, "steps", seq.Steps, "base_set", cfg.BaseURL != "", "probe_timeout", cfg.ProbeTimeout)
	return &Resolver{
		seq:      seq,
		prober:   prober,
		base:     cfg.BaseURL,
		timeout:  cfg.ProbeTimeout,
		cache:    make(map[int]string),
		inflight: make(map[int]struct{}),
		failed:   make(map[int]error),
	}
}

// Steps returns the number of steps in the sequence.
func (r *Resolver) Steps() int {
	return r.seq.Steps
}

// URL builds the candidate URL for a 1-based step number without probing it.
func (r *Resolver) URL(step int) string {
	return r.base + r.seq.AssetPath(step)
}

// Cached returns the verified URL of step if it has been resolved.
func (r *Resolver) Cached(step int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	url, ok := r.cache[step]
	return url, ok
}

// Status reports the cache state of step.
func (r *Resolver) Status(step int) StepStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[step]; ok {
		return StatusCached
	}
	if _, ok := r.inflight[step]; ok {
		return StatusInFlight
	}
	if _, ok := r.failed[step]; ok {
		return StatusFailed
	}
	return StatusUnknown
}

// ProbeCount returns how many probes have been issued so far.
func (r *Resolver) ProbeCount() int64 {
	return r.probes.Load()
}

// Resolve returns the verified URL for step, probing it if it is not cached.
// Concurrent callers for the same step share a single probe. A failed probe is not
// cached, so a later call probes again.
func (r *Resolver) Resolve(ctx context.Context, step int) (string, error) {
	if step < 1 || step > r.seq.Steps {
		return "", fmt.Errorf("%w: %d not in [1, %d]", ErrStepOutOfRange, step, r.seq.Steps)
	}
	if url, ok := r.Cached(step); ok {
		return url, nil
	}

	ch := r.group.DoChan(strconv.Itoa(step), func() (interface{}, error) {
		return r.probe(step)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		// The shared probe keeps running and will still populate the cache.
		return "", ctx.Err()
	}
}

func (r *Resolver) probe(step int) (string, error) {
	if url, ok := r.Cached(step); ok {
		return url, nil
	}
	url := r.URL(step)

	r.mu.Lock()
	r.inflight[step] = struct{}{}
	r.mu.Unlock()
	r.probes.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err := r.prober.Probe(ctx, url)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, step)
	if err != nil {
		r.failed[step] = err
		slog.Debug("Resolver.probe: probe failed", "step", step, "url", url, "error", err)
		return "", fmt.Errorf("%w: step %d (%s): %v", ErrNotFound, step, url, err)
	}
	delete(r.failed, step)
	r.cache[step] = url
	slog.Debug("Resolver.probe: step cached", "step", step, "url", url)
	return url, nil
}

// Prefetch starts background resolves for the next count steps after the 1-based
// step from that are not cached yet. It never blocks and never reports errors.
func (r *Resolver) Prefetch(from, count int) int {
	launched := 0
	for step := from + 1; step <= r.seq.Steps && count > 0; step++ {
		switch r.Status(step) {
		case StatusCached:
			continue
		case StatusInFlight:
			count--
			continue
		}
		count--
		launched++
		r.wg.Add(1)
		go func(step int) {
			defer r.wg.Done()
			if _, err := r.Resolve(context.Background(), step); err != nil {
				slog.Debug("Resolver.Prefetch: prefetch failed, ignoring", "step", step, "error", err)
			}
		}(step)
	}
	if launched > 0 {
		slog.Debug("Resolver.Prefetch: prefetch started", "from", from, "launched", launched)
	}
	return launched
}

// ResolveAsync starts a background resolve for step and calls done with the result.
// done may be nil.
func (r *Resolver) ResolveAsync(step int, done func(url string, err error)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		url, err := r.Resolve(context.Background(), step)
		if done != nil {
			done(url, err)
		}
	}()
}

// Wait blocks until every background resolve started by this resolver has finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}
