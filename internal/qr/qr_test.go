package qr

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRouteURL(t *testing.T) {
	tests := []struct {
		base, id, want string
		wantErr        bool
	}{
		{"https://campus.example.ma", "p2a", "https://campus.example.ma/navigate/p2a", false},
		{"https://campus.example.ma/", "p2a", "https://campus.example.ma/navigate/p2a", false},
		{"https://campus.example.ma/app", "amphi b", "https://campus.example.ma/app/navigate/amphi%20b", false},
		{"", "p2a", "", true},
		{"campus", "p2a", "", true},
	}
	for _, tt := range tests {
		got, err := RouteURL(tt.base, tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("RouteURL(%q, %q) error = %v, wantErr %v", tt.base, tt.id, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("RouteURL(%q, %q) = %q, want %q", tt.base, tt.id, got, tt.want)
		}
	}
}

func TestWriteProducesBlocks(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, "https://campus.example.ma/navigate/p2a")
	if buf.Len() == 0 {
		t.Fatal("expected QR output")
	}
	if lines := bytes.Count(buf.Bytes(), []byte("\n")); lines < 10 {
		t.Errorf("expected a multi-line QR code, got %d lines", lines)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p2a.txt")
	if err := WriteFile(path, "https://campus.example.ma/navigate/p2a"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		t.Errorf("expected QR file content, got %d bytes (%v)", len(data), err)
	}
}
