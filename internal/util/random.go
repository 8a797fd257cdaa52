package util

import (
	"math/rand/v2"
	"strings"
)

const (
	// AttendancePrefix starts every attendance session code.
	AttendancePrefix = "EX-"
	// AttendanceCodeLength is the number of characters after the prefix.
	AttendanceCodeLength = 8

	// Invigilators read codes aloud, so 0/O and 1/I/L are left out.
	codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

// RandomCode returns length characters drawn from alphabet. It is not suitable for secrets.
func RandomCode(alphabet string, length int) string {
	if length <= 0 || alphabet == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return b.String()
}

// GenerateAttendanceCode returns a short code grouping the attendance lines of one
// exam sitting, in the form "EX-" followed by eight characters.
func GenerateAttendanceCode() string {
	return AttendancePrefix + RandomCode(codeAlphabet, AttendanceCodeLength)
}

// IsAttendanceCode reports whether code has the shape GenerateAttendanceCode produces.
// Lower case is accepted since codes are often typed by hand.
func IsAttendanceCode(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	rest, ok := strings.CutPrefix(code, AttendancePrefix)
	if !ok || len(rest) != AttendanceCodeLength {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if strings.IndexByte(codeAlphabet, rest[i]) < 0 {
			return false
		}
	}
	return true
}
