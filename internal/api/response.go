// Package api provides HTTP response utilities for the wayfinder server.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/ensam-campus/wayfinder/internal/session"
)

// fallbackErrorResponse is written when a response cannot be encoded.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeSnapshot answers with a session snapshot. Snapshots that hand control to another
// flow use the redirect envelope so clients can branch on status alone.
func writeSnapshot(w http.ResponseWriter, statusCode int, snap models.SessionSnapshot) {
	if snap.Redirect != nil {
		writeJSONResponse(w, http.StatusOK, models.RedirectTo("continue in "+string(snap.Redirect.Target), snap))
		return
	}
	writeJSONResponse(w, statusCode, models.Success(snap))
}

// writeSessionError maps engine errors to HTTP statuses. Phase and mode errors still
// carry the current snapshot so the client can resynchronise.
func writeSessionError(w http.ResponseWriter, err error, snap *models.SessionSnapshot) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	case errors.Is(err, session.ErrWrongPhase), errors.Is(err, session.ErrWrongMode):
		status = http.StatusConflict
	}
	resp := models.Error(err.Error())
	if snap != nil {
		resp.Result = *snap
	}
	writeJSONResponse(w, status, resp)
}
