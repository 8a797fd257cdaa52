package util

import (
	"strings"
	"testing"
)

func TestRandomCode(t *testing.T) {
	tests := []struct {
		name     string
		alphabet string
		length   int
		want     int
	}{
		{"zero length", "AB", 0, 0},
		{"negative length", "AB", -1, 0},
		{"empty alphabet", "", 8, 0},
		{"single symbol", "Z", 5, 5},
		{"code alphabet", codeAlphabet, 64, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RandomCode(tt.alphabet, tt.length)
			if len(got) != tt.want {
				t.Errorf("RandomCode() length = %v, want %v", len(got), tt.want)
			}
			for _, c := range got {
				if !strings.ContainsRune(tt.alphabet, c) {
					t.Errorf("RandomCode() = %v contains %q outside the alphabet", got, c)
				}
			}
		})
	}
}

func TestGenerateAttendanceCode(t *testing.T) {
	got := GenerateAttendanceCode()
	if !strings.HasPrefix(got, AttendancePrefix) {
		t.Errorf("GenerateAttendanceCode() = %v, want prefix %v", got, AttendancePrefix)
	}
	if len(got) != len(AttendancePrefix)+AttendanceCodeLength {
		t.Errorf("GenerateAttendanceCode() length = %v", len(got))
	}
	if strings.ContainsAny(got[len(AttendancePrefix):], "01OIL") {
		t.Errorf("GenerateAttendanceCode() = %v uses an ambiguous character", got)
	}
	if !IsAttendanceCode(got) {
		t.Errorf("generated code %v should be recognized", got)
	}
}

func TestIsAttendanceCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"EX-ABCDEFGH", true},
		{"ex-abcdefgh", true},
		{" EX-23456789 ", true},
		{"EX-ABCDEFG", false},
		{"EX-ABCDEFGHJ", false},
		{"EX-ABCDEF0H", false},
		{"AB-ABCDEFGH", false},
		{"ABCDEFGH", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsAttendanceCode(tt.code); got != tt.want {
			t.Errorf("IsAttendanceCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestAttendanceCodeUniqueness(t *testing.T) {
	const iterations = 1000
	seen := make(map[string]bool)

	for i := 0; i < iterations; i++ {
		code := GenerateAttendanceCode()
		if seen[code] {
			t.Errorf("GenerateAttendanceCode() generated duplicate: %v", code)
		}
		seen[code] = true
	}
}
