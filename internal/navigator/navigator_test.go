package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ensam-campus/wayfinder/internal/asset"
	"github.com/ensam-campus/wayfinder/internal/models"
)

func okProber() asset.Prober {
	return asset.ProberFunc(func(context.Context, string) error { return nil })
}

func newNav(t *testing.T, steps int, prober asset.Prober) (*Navigator, *asset.Resolver) {
	t.Helper()
	r := asset.NewResolver(models.ImageSequence{Path: "/assets/p2a", Steps: steps}, prober)
	n := New(steps, r)
	t.Cleanup(r.Wait)
	return n, r
}

func TestNextVisitsEveryIndexOnce(t *testing.T) {
	for _, steps := range []int{1, 2, 3, 7} {
		t.Run(fmt.Sprintf("steps=%d", steps), func(t *testing.T) {
			n, _ := newNav(t, steps, okProber())
			f := n.Begin(context.Background())
			visited := []int{f.Index}
			for i := 0; i < steps+2; i++ {
				f = n.Next()
				if f.Index != visited[len(visited)-1] {
					visited = append(visited, f.Index)
				}
				if f.Index < 0 || f.Index > steps-1 {
					t.Fatalf("index %d out of range", f.Index)
				}
			}
			if len(visited) != steps {
				t.Fatalf("expected %d distinct indices, got %v", steps, visited)
			}
			for i, idx := range visited {
				if idx != i {
					t.Fatalf("expected sequential indices, got %v", visited)
				}
			}
			if f.State != StateArrived {
				t.Errorf("expected arrived, got %s", f.State)
			}
			if again := n.Next(); again.Index != steps-1 || again.State != StateArrived {
				t.Errorf("Next on last step must be a no-op, got %+v", again)
			}
		})
	}
}

func TestPreviousIsNoOpAtStart(t *testing.T) {
	n, _ := newNav(t, 4, okProber())
	n.Begin(context.Background())
	if f := n.Previous(); f.Index != 0 || f.State != StateViewing {
		t.Errorf("Previous at 0 should stay at 0, got %+v", f)
	}
}

func TestPreviousAfterNexts(t *testing.T) {
	n, _ := newNav(t, 6, okProber())
	n.Begin(context.Background())
	for i := 0; i < 4; i++ {
		n.Next()
	}
	for k := 1; k <= 6; k++ {
		f := n.Previous()
		want := 4 - k
		if want < 0 {
			want = 0
		}
		if f.Index != want {
			t.Errorf("after %d Previous expected %d, got %d", k, want, f.Index)
		}
	}
}

func TestTapMatchesNext(t *testing.T) {
	n, _ := newNav(t, 3, okProber())
	n.Begin(context.Background())
	if f := n.Tap(); f.Index != 1 {
		t.Errorf("tap should advance, got %d", f.Index)
	}
}

func TestRestartKeepsCache(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	prober := asset.ProberFunc(func(_ context.Context, url string) error {
		mu.Lock()
		calls[url]++
		mu.Unlock()
		return nil
	})
	n, r := newNav(t, 3, prober)
	n.Begin(context.Background())
	n.Next()
	n.Next()
	r.Wait()
	f := n.Restart()
	r.Wait()
	if f.Index != 0 || f.State != StateViewing {
		t.Fatalf("restart should return to step 0, got %+v", f)
	}
	if f.URL != "/assets/p2a/1.jpg" || f.Loading {
		t.Errorf("step 1 should come straight from cache, got %+v", f)
	}
	mu.Lock()
	defer mu.Unlock()
	for url, c := range calls {
		if c != 1 {
			t.Errorf("%s probed %d times across restart", url, c)
		}
	}
}

func TestScenarioP2A(t *testing.T) {
	n, r := newNav(t, 3, okProber())
	f := n.Begin(context.Background())
	if f.Asset != 1 || f.URL != "/assets/p2a/1.jpg" {
		t.Fatalf("first frame should show asset 1, got %+v", f)
	}
	n.Next()
	f = n.Next()
	if f.State != StateArrived || f.Index != 2 || f.Asset != 3 {
		t.Fatalf("expected arrival at index 2, got %+v", f)
	}
	if f.Progress != 1 {
		t.Errorf("expected full progress, got %v", f.Progress)
	}
	if again := n.Next(); again.Index != 2 {
		t.Errorf("Next after arrival moved to %d", again.Index)
	}
	r.Wait()
	if f := n.Current(); f.URL != "/assets/p2a/3.jpg" {
		t.Errorf("expected step 3 image once resolved, got %+v", f)
	}
}

func TestSingleStepRouteStartsArrived(t *testing.T) {
	n, _ := newNav(t, 1, okProber())
	if f := n.Begin(context.Background()); f.State != StateArrived {
		t.Errorf("single step route should start arrived, got %s", f.State)
	}
}

func TestMissingStepShowsLoadingAndRetries(t *testing.T) {
	var mu sync.Mutex
	broken := true
	prober := asset.ProberFunc(func(_ context.Context, url string) error {
		mu.Lock()
		defer mu.Unlock()
		if broken && strings.HasSuffix(url, "/2.jpg") {
			return errors.New("missing")
		}
		return nil
	})
	n, r := newNav(t, 3, prober)
	n.Begin(context.Background())
	r.Wait()
	n.Next()
	r.Wait()
	f := n.Current()
	if !f.Loading || !f.Failed || f.URL != "" {
		t.Fatalf("missing step should report loading + failed, got %+v", f)
	}

	// Navigation is not blocked by the missing image.
	if f := n.Next(); f.Index != 2 {
		t.Fatalf("expected to move past the missing step, got %+v", f)
	}

	mu.Lock()
	broken = false
	mu.Unlock()
	n.Previous()
	r.Wait()
	if f := n.Current(); f.Loading || f.URL != "/assets/p2a/2.jpg" {
		t.Errorf("revisiting should retry the probe, got %+v", f)
	}
}

func TestFrameView(t *testing.T) {
	f := Frame{State: StateViewing, Index: 1, Asset: 2, Steps: 3, URL: "/x/2.jpg", Progress: 2.0 / 3}
	v := f.View()
	if v.State != "viewing" || v.Asset != 2 || v.URL != "/x/2.jpg" {
		t.Errorf("unexpected view %+v", v)
	}
}
