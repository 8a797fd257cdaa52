package api

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ensam-campus/wayfinder/internal/exams"
	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/ensam-campus/wayfinder/internal/util"
	"github.com/gorilla/mux"
)

const (
	defaultJourneyLimit = 100
	maxJourneyLimit     = 1000
)

// examView is an exam assignment plus whether its room can be navigated to.
type examView struct {
	models.ExamAssignment
	Navigable bool `json:"navigable"`
}

func (s *Server) examHandler(w http.ResponseWriter, r *http.Request) {
	studentID := mux.Vars(r)["studentID"]
	a, err := s.roster.Lookup(studentID)
	if err != nil {
		if errors.Is(err, exams.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("No exam assignment for this student"))
			return
		}
		slog.Error("Server.examHandler: lookup failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up exam assignment"))
		return
	}
	view := examView{ExamAssignment: a}
	if a.PathID != "" {
		_, err := s.manager.Catalog().LoadPath(a.PathID)
		view.Navigable = err == nil
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

func (s *Server) recordAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	var rec models.AttendanceRecord
	if err := decodeJSONBody(r, &rec); err != nil {
		slog.Warn("Server.recordAttendanceHandler: bad request", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	rec.SessionCode = strings.ToUpper(strings.TrimSpace(rec.SessionCode))
	if !util.IsAttendanceCode(rec.SessionCode) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("session_code must be a code issued by POST /attendance/codes"))
		return
	}
	if !models.IsValidAttendanceStatus(rec.Status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("status must be present, absent or late"))
		return
	}
	if rec.Room == "" || rec.Name == "" {
		// Fill the ledger line from the roster when the proctor only sent an id.
		if a, err := s.roster.Lookup(rec.StudentID); err == nil {
			if rec.Room == "" {
				rec.Room = a.Room
			}
			if rec.Name == "" {
				rec.Name = a.Name
			}
		}
	}
	if rec.RecordedAt == 0 {
		rec.RecordedAt = time.Now().Unix()
	}
	if err := s.st.SaveAttendance(rec); err != nil {
		slog.Error("Server.recordAttendanceHandler: failed to save attendance", "error", err, "session_code", rec.SessionCode)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record attendance"))
		return
	}
	slog.Info("Server.recordAttendanceHandler: attendance recorded", "session_code", rec.SessionCode, "student", rec.StudentID, "status", rec.Status)
	writeJSONResponse(w, http.StatusCreated, models.Recorded())
}

type attendanceCodeView struct {
	SessionCode string `json:"session_code"`
}

// newAttendanceCodeHandler hands a proctor a fresh code to group an exam sitting's
// attendance lines.
func (s *Server) newAttendanceCodeHandler(w http.ResponseWriter, r *http.Request) {
	code := util.GenerateAttendanceCode()
	slog.Debug("Server.newAttendanceCodeHandler: code issued", "session_code", code)
	writeJSONResponse(w, http.StatusCreated, models.Success(attendanceCodeView{SessionCode: code}))
}

func wantsCSV(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

func (s *Server) listAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(mux.Vars(r)["code"])
	if !util.IsAttendanceCode(code) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid attendance code"))
		return
	}
	records, err := s.st.ListAttendance(code)
	if err != nil {
		slog.Error("Server.listAttendanceHandler: failed to list attendance", "error", err, "session_code", code)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list attendance"))
		return
	}
	if !wantsCSV(r) {
		writeJSONResponse(w, http.StatusOK, models.Success(records))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="attendance-`+code+`.csv"`)
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"session_code", "student_id", "name", "room", "status", "recorded_at"})
	for _, rec := range records {
		_ = cw.Write([]string{
			rec.SessionCode,
			rec.StudentID,
			rec.Name,
			rec.Room,
			string(rec.Status),
			time.Unix(rec.RecordedAt, 0).UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("Server.listAttendanceHandler: failed to write CSV", "error", err)
	}
}

func (s *Server) journeysHandler(w http.ResponseWriter, r *http.Request) {
	pathID := r.URL.Query().Get("path")
	limit := defaultJourneyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = min(n, maxJourneyLimit)
	}
	events, err := s.st.GetJourneyEvents(pathID, limit)
	if err != nil {
		slog.Error("Server.journeysHandler: failed to read journey log", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read journey log"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}
