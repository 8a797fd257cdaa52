package store

import (
	"database/sql"
	"fmt"

	"github.com/ensam-campus/wayfinder/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanJourneyEvents drains rows into journey events.
func scanJourneyEvents(rows *sql.Rows) ([]models.JourneyEvent, error) {
	var events []models.JourneyEvent
	for rows.Next() {
		var e models.JourneyEvent
		var kind string
		if err := rows.Scan(&e.SessionID, &e.PathID, &kind, &e.Time); err != nil {
			return nil, fmt.Errorf("scan journey event failed: %w", err)
		}
		e.Kind = models.JourneyKind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journey event rows: %w", err)
	}
	return events, nil
}

// scanAttendance drains rows into attendance records.
func scanAttendance(rows *sql.Rows) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	for rows.Next() {
		var r models.AttendanceRecord
		var name, room sql.NullString
		var status string
		if err := rows.Scan(&r.SessionCode, &r.StudentID, &name, &room, &status, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan attendance failed: %w", err)
		}
		r.Name = name.String
		r.Room = room.String
		r.Status = models.AttendanceStatus(status)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance rows: %w", err)
	}
	return records, nil
}
