// Package exams resolves a student's exam room so the student can be guided there.
package exams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ensam-campus/wayfinder/internal/catalog"
	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/go-playground/validator/v10"
)

// ErrNotFound is returned when no assignment exists for a student.
var ErrNotFound = errors.New("no exam assignment for student")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Roster is the read-only set of exam assignments keyed by student id.
type Roster struct {
	byStudent map[string]models.ExamAssignment
}

// Load fetches and parses the assignment document at source (file or http(s) URL).
func Load(ctx context.Context, source string, opts ...catalog.Option) (*Roster, error) {
	data, err := catalog.ReadSource(ctx, source, opts...)
	if err != nil {
		return nil, err
	}
	var assignments []models.ExamAssignment
	if err := json.Unmarshal(data, &assignments); err != nil {
		slog.Error("exams.Load: invalid assignment document", "error", err, "source", source)
		return nil, fmt.Errorf("invalid assignment document: %w", err)
	}
	return New(assignments), nil
}

// New builds a roster. Invalid entries are dropped; a repeated student id keeps the
// last entry.
func New(assignments []models.ExamAssignment) *Roster {
	r := &Roster{byStudent: make(map[string]models.ExamAssignment, len(assignments))}
	for _, a := range assignments {
		if err := validate.Struct(a); err != nil {
			slog.Warn("exams.New: dropping invalid assignment", "student", a.StudentID, "error", err)
			continue
		}
		key := normalizeID(a.StudentID)
		if _, dup := r.byStudent[key]; dup {
			slog.Warn("exams.New: duplicate assignment, keeping the last one", "student", a.StudentID)
		}
		r.byStudent[key] = a
	}
	slog.Debug("exams.New: roster ready", "assignments", len(r.byStudent))
	return r
}

// Lookup returns the assignment of studentID. Ids are matched ignoring case and
// surrounding spaces.
func (r *Roster) Lookup(studentID string) (models.ExamAssignment, error) {
	a, ok := r.byStudent[normalizeID(studentID)]
	if !ok {
		return models.ExamAssignment{}, fmt.Errorf("%w: %s", ErrNotFound, studentID)
	}
	return a, nil
}

// Len returns the number of assignments.
func (r *Roster) Len() int {
	return len(r.byStudent)
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
