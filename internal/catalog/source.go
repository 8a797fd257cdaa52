// Package catalog provides the read-only path catalog and the destination directory.
//
// Both are static JSON documents fetched once, either from a file or over HTTP.
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Constants for document fetching
const (
	// DefaultFetchTimeout bounds a single catalog or directory fetch.
	DefaultFetchTimeout = 10 * time.Second
	// MaxDocumentBytes caps the size of a fetched JSON document.
	MaxDocumentBytes = 8 << 20
)

// Opts holds configuration options for catalog loading.
type Opts struct {
	HTTPClient  *http.Client
	GenderedIDs []string
}

// Option defines a configuration option for catalog loading.
type Option func(*Opts)

// WithHTTPClient sets the client used for http(s) sources.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// WithGenderedIDs sets the identifiers that redirect to the gendered destination flow.
func WithGenderedIDs(ids []string) Option {
	return func(o *Opts) {
		o.GenderedIDs = ids
	}
}

func applyOpts(opts []Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return cfg
}

// IsRemote reports whether source is an http(s) URL rather than a file path.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// ReadSource returns the raw bytes of a JSON document at source, which is either a
// file path or an http(s) URL.
func ReadSource(ctx context.Context, source string, opts ...Option) ([]byte, error) {
	if source == "" {
		return nil, fmt.Errorf("document source not set")
	}
	cfg := applyOpts(opts)

	if !IsRemote(source) {
		slog.Debug("catalog.ReadSource: reading file", "path", source)
		data, err := os.ReadFile(source)
		if err != nil {
			slog.Error("catalog.ReadSource: failed to read file", "error", err, "path", source)
			return nil, fmt.Errorf("failed to read %s: %w", source, err)
		}
		return data, nil
	}

	slog.Debug("catalog.ReadSource: fetching document", "url", source)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", source, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		slog.Error("catalog.ReadSource: fetch failed", "error", err, "url", source)
		return nil, fmt.Errorf("failed to fetch %s: %w", source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Error("catalog.ReadSource: unexpected status", "status", resp.StatusCode, "url", source)
		return nil, fmt.Errorf("failed to fetch %s: status %d", source, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", source, err)
	}
	slog.Debug("catalog.ReadSource: document fetched", "url", source, "bytes", len(data))
	return data, nil
}
