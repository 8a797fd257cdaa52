package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrProbeRejected is returned when an asset answered but is not a loadable image.
var ErrProbeRejected = errors.New("asset rejected")

// HTTPProber loads the first byte of an asset over HTTP, the way an image element
// would start loading it.
type HTTPProber struct {
	Client *http.Client
}

// Probe issues a ranged GET for url.
func (p HTTPProber) Probe(ctx context.Context, url string) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("%w: status %d", ErrProbeRejected, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("%w: content type %s", ErrProbeRejected, ct)
	}
	return nil
}

// FileProber checks assets under a local static root. URLs are treated as paths
// relative to Root.
type FileProber struct {
	Root string
}

// Probe stats the file behind url.
func (p FileProber) Probe(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean := path.Clean("/" + strings.TrimPrefix(url, "/"))
	full := filepath.Join(p.Root, filepath.FromSlash(clean))
	fi, err := os.Stat(full)
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() || fi.Size() == 0 {
		return fmt.Errorf("%w: %s is not a non-empty file", ErrProbeRejected, clean)
	}
	return nil
}
