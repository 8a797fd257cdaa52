package asset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ensam-campus/wayfinder/internal/config"
	"github.com/ensam-campus/wayfinder/internal/models"
)

// gatedProber blocks every probe until release is closed and counts calls per URL.
type gatedProber struct {
	release chan struct{}
	missing map[string]bool
	mu      sync.Mutex
	calls   map[string]int
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newGatedProber() *gatedProber {
	return &gatedProber{release: make(chan struct{}), missing: map[string]bool{}, calls: map[string]int{}}
}

func (p *gatedProber) Probe(ctx context.Context, url string) error {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		cur := p.maxSeen.Load()
		if n <= cur || p.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	p.mu.Lock()
	p.calls[url]++
	p.mu.Unlock()
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.missing[url] {
		return errors.New("404")
	}
	return nil
}

func (p *gatedProber) count(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

var p2a = models.ImageSequence{Path: "/assets/p2a", Steps: 3}

func TestResolveCachesAndDeduplicates(t *testing.T) {
	prober := newGatedProber()
	r := NewResolver(p2a, prober)

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url, err := r.Resolve(context.Background(), 1)
			if err != nil {
				t.Errorf("resolve %d: %v", i, err)
			}
			results[i] = url
		}(i)
	}
	// Let the callers pile up on the in-flight probe before releasing it.
	deadline := time.Now().Add(time.Second)
	for r.Status(1) != StatusInFlight && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(prober.release)
	wg.Wait()

	if got := prober.count("/assets/p2a/1.jpg"); got != 1 {
		t.Errorf("expected exactly one probe for step 1, got %d", got)
	}
	for _, url := range results {
		if url != "/assets/p2a/1.jpg" {
			t.Errorf("unexpected url %q", url)
		}
	}
	if r.Status(1) != StatusCached {
		t.Errorf("expected cached status, got %s", r.Status(1))
	}

	// Second access resolves from cache without probing.
	before := r.ProbeCount()
	url, ok := r.Cached(1)
	if !ok || url != "/assets/p2a/1.jpg" {
		t.Fatalf("expected cached url, got %q %v", url, ok)
	}
	if _, err := r.Resolve(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ProbeCount() != before {
		t.Errorf("cached resolve should not probe")
	}
}

func TestResolveFailureIsNotCached(t *testing.T) {
	var calls atomic.Int32
	fail := true
	var mu sync.Mutex
	prober := ProberFunc(func(ctx context.Context, url string) error {
		calls.Add(1)
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return errors.New("broken image")
		}
		return nil
	})
	r := NewResolver(p2a, prober)

	if _, err := r.Resolve(context.Background(), 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if r.Status(2) != StatusFailed {
		t.Errorf("expected failed status, got %s", r.Status(2))
	}
	if _, ok := r.Cached(2); ok {
		t.Fatal("failed probe must not be cached")
	}

	mu.Lock()
	fail = false
	mu.Unlock()
	url, err := r.Resolve(context.Background(), 2)
	if err != nil || url != "/assets/p2a/2.jpg" {
		t.Fatalf("retry should succeed, got %q %v", url, err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 probes, got %d", calls.Load())
	}
}

func TestResolveOutOfRange(t *testing.T) {
	r := NewResolver(p2a, ProberFunc(func(context.Context, string) error { return nil }))
	for _, step := range []int{0, -1, 4} {
		if _, err := r.Resolve(context.Background(), step); !errors.Is(err, ErrStepOutOfRange) {
			t.Errorf("step %d: expected ErrStepOutOfRange, got %v", step, err)
		}
	}
}

func TestProbeTimeout(t *testing.T) {
	stall := ProberFunc(func(ctx context.Context, url string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r := NewResolver(p2a, stall, WithProbeTimeout(20*time.Millisecond))
	start := time.Now()
	if _, err := r.Resolve(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("probe timeout was not applied")
	}
}

func TestPrefetchSkipsCachedAndBoundsSteps(t *testing.T) {
	var calls atomic.Int32
	r := NewResolver(models.ImageSequence{Path: "/p", Steps: 5}, ProberFunc(func(context.Context, string) error {
		calls.Add(1)
		return nil
	}))
	if _, err := r.Resolve(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	launched := r.Prefetch(1, 2)
	r.Wait()
	if launched != 2 {
		t.Errorf("expected 2 launched prefetches (steps 3 and 4), got %d", launched)
	}
	for _, step := range []int{2, 3, 4} {
		if r.Status(step) != StatusCached {
			t.Errorf("step %d expected cached, got %s", step, r.Status(step))
		}
	}
	if r.Status(5) != StatusUnknown {
		t.Errorf("step 5 should not be prefetched, got %s", r.Status(5))
	}

	if n := r.Prefetch(4, 5); n != 1 {
		t.Errorf("expected only step 5 to be launched at the tail, got %d", n)
	}
	r.Wait()
	if n := r.Prefetch(5, 2); n != 0 {
		t.Errorf("nothing to prefetch past the last step, got %d", n)
	}
	if calls.Load() != 4 {
		t.Errorf("expected 4 probes in total, got %d", calls.Load())
	}
}

func TestPrefetchCoalescesWithInFlight(t *testing.T) {
	prober := newGatedProber()
	r := NewResolver(models.ImageSequence{Path: "/p", Steps: 4}, prober)
	r.Prefetch(1, 2)
	r.Prefetch(1, 2)
	r.Prefetch(0, 3)
	close(prober.release)
	r.Wait()
	for _, url := range []string{"/p/2.jpg", "/p/3.jpg"} {
		if got := prober.count(url); got != 1 {
			t.Errorf("%s probed %d times, expected 1", url, got)
		}
	}
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/1.jpg":
			if r.Header.Get("Range") != "bytes=0-0" {
				t.Errorf("expected ranged request, got %q", r.Header.Get("Range"))
			}
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte{0xFF})
		case "/p/2.jpg":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewResolver(models.ImageSequence{Path: "/p", Steps: 3}, HTTPProber{Client: srv.Client()}, WithBaseURL(srv.URL+"/"))
	url, err := r.Resolve(context.Background(), 1)
	if err != nil || url != srv.URL+"/p/1.jpg" {
		t.Fatalf("unexpected result %q %v", url, err)
	}
	if _, err := r.Resolve(context.Background(), 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("html response should be rejected, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("404 should be rejected, got %v", err)
	}
}

func TestFileProber(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "assets", "p2a"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "assets", "p2a", "1.jpg"), []byte{0xFF, 0xD8}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "assets", "p2a", "2.jpg"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p := FileProber{Root: root}
	if err := p.Probe(context.Background(), "/assets/p2a/1.jpg"); err != nil {
		t.Errorf("expected existing file to probe, got %v", err)
	}
	if err := p.Probe(context.Background(), "/assets/p2a/2.jpg"); !errors.Is(err, ErrProbeRejected) {
		t.Errorf("empty file should be rejected, got %v", err)
	}
	if err := p.Probe(context.Background(), "/../../etc/passwd"); err == nil {
		t.Errorf("paths must stay under root")
	}
}

func TestVideoVariant(t *testing.T) {
	tu := config.Default()
	tests := []struct {
		width int
		class DeviceClass
		want  string
	}{
		{375, DeviceMobile, "/v/vid1_mobile.mp4"},
		{800, DeviceTablet, "/v/vid1_tablet.mp4"},
		{1440, DeviceDesktop, "/v/vid1.mp4"},
		{0, DeviceDesktop, "/v/vid1.mp4"},
	}
	for _, tt := range tests {
		class := ClassifyViewport(tt.width, tu)
		if class != tt.class {
			t.Errorf("width %d: expected %s, got %s", tt.width, tt.class, class)
		}
		if got := VideoVariant("/v/vid1.mp4", class, tu); got != tt.want {
			t.Errorf("width %d: expected %s, got %s", tt.width, tt.want, got)
		}
	}
}
