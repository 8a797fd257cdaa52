// Package qr renders route QR codes so a printed sign can open a navigation session.
package qr

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
)

var ErrEmptyBase = errors.New("base URL not set")

// RouteURL builds the link that opens navigation for pathID: {base}/navigate/{id}.
func RouteURL(base, pathID string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", ErrEmptyBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: scheme and host required", base)
	}
	return base + "/navigate/" + url.PathEscape(pathID), nil
}

// Write renders link as a half-block QR code on w.
func Write(w io.Writer, link string) {
	qrterminal.GenerateHalfBlock(link, qrterminal.L, w)
}

// WriteFile renders link as a QR code into the file at path.
func WriteFile(path, link string) error {
	f, err := os.Create(path)
	if err != nil {
		slog.Error("qr.WriteFile: failed to create QR file", "error", err, "path", path)
		return fmt.Errorf("failed to create QR file: %w", err)
	}
	defer f.Close()
	Write(f, link)
	slog.Debug("qr.WriteFile: QR code written", "path", path, "link", link)
	return nil
}
