package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/ensam-campus/wayfinder/internal/sensor"
	"github.com/ensam-campus/wayfinder/internal/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// maxSensorFrameBytes bounds a single sensor stream message.
const maxSensorFrameBytes = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Sessions are addressed by unguessable ids; the player page may be served from
	// another origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type sessionAction func(ctx context.Context, sess *session.Session) (models.SessionSnapshot, error)

var sessionActions = map[string]sessionAction{
	"start":       func(ctx context.Context, sess *session.Session) (models.SessionSnapshot, error) { return sess.Start(ctx) },
	"close":       func(_ context.Context, sess *session.Session) (models.SessionSnapshot, error) { return sess.Close() },
	"next":        func(_ context.Context, sess *session.Session) (models.SessionSnapshot, error) { return sess.Next() },
	"previous":    func(_ context.Context, sess *session.Session) (models.SessionSnapshot, error) { return sess.Previous() },
	"tap":         func(_ context.Context, sess *session.Session) (models.SessionSnapshot, error) { return sess.Tap() },
	"restart":     func(_ context.Context, sess *session.Session) (models.SessionSnapshot, error) { return sess.Restart() },
	"new-journey": func(_ context.Context, sess *session.Session) (models.SessionSnapshot, error) { return sess.NewJourney() },
	"retry":       func(_ context.Context, sess *session.Session) (models.SessionSnapshot, error) { return sess.Retry() },
}

// decodeJSONBody decodes an optional JSON body into v and validates it. An empty body
// leaves v untouched.
func decodeJSONBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON format: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sid := mux.Vars(r)["sid"]
	sess, err := s.manager.Get(sid)
	if err != nil {
		slog.Debug("Server.lookupSession: unknown session", "session", sid)
		writeSessionError(w, err, nil)
		return nil, false
	}
	return sess, true
}

// respond writes the outcome of a session operation and forgets sessions that handed
// control to another flow.
func (s *Server) respond(w http.ResponseWriter, sess *session.Session, snap models.SessionSnapshot, err error) {
	if err != nil {
		slog.Warn("Server.respond: session operation rejected", "session", sess.ID(), "phase", snap.Phase, "error", err)
		writeSessionError(w, err, &snap)
		return
	}
	if snap.Phase == models.PhaseClosed {
		if cerr := s.manager.Close(sess.ID()); cerr != nil && !errors.Is(cerr, session.ErrSessionNotFound) {
			slog.Error("Server.respond: failed to release closed session", "session", sess.ID(), "error", cerr)
		}
	}
	writeSnapshot(w, http.StatusOK, snap)
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req session.Request
	if err := decodeJSONBody(r, &req); err != nil {
		slog.Warn("Server.createSessionHandler: bad request", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	sess := s.manager.Open(req)
	snap := sess.Snapshot()
	slog.Info("Server.createSessionHandler: session created", "session", sess.ID(), "path", req.PathID, "phase", snap.Phase)
	if snap.Redirect != nil {
		// Nothing left to drive: the client continues in the redirect target.
		if err := s.manager.Close(sess.ID()); err != nil {
			slog.Error("Server.createSessionHandler: failed to release redirected session", "error", err)
		}
	}
	writeSnapshot(w, http.StatusCreated, snap)
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeSnapshot(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["sid"]
	if err := s.manager.Close(sid); err != nil {
		writeSessionError(w, err, nil)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session closed", nil))
}

func (s *Server) sessionActionHandler(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	apply, ok := sessionActions[action]
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown action"))
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	slog.Debug("Server.sessionActionHandler: applying action", "session", sess.ID(), "action", action)
	snap, err := apply(r.Context(), sess)
	s.respond(w, sess, snap, err)
}

type scrubRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Width float64 `json:"width" validate:"gte=0"`
}

func (s *Server) scrubHandler(w http.ResponseWriter, r *http.Request) {
	gesture := mux.Vars(r)["gesture"]
	var req scrubRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if gesture == "edge" && req.Width <= 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("width must be positive"))
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var snap models.SessionSnapshot
	var err error
	switch gesture {
	case "press":
		snap, err = sess.PressStart(req.X, req.Y)
	case "move":
		snap, err = sess.PressMove(req.Y)
	case "release":
		snap, err = sess.PressEnd()
	case "edge":
		snap, err = sess.EdgeTap(req.X, req.Width)
	}
	s.respond(w, sess, snap, err)
}

type mediaRequest struct {
	Duration float64 `json:"duration" validate:"gte=0"`
	Position float64 `json:"position" validate:"gte=0"`
}

func (s *Server) mediaHandler(w http.ResponseWriter, r *http.Request) {
	event := mux.Vars(r)["event"]
	var req mediaRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var snap models.SessionSnapshot
	var err error
	switch event {
	case "loaded":
		snap, err = sess.MediaLoaded(req.Duration)
	case "error":
		snap, err = sess.MediaError()
	case "tick":
		snap, err = sess.MediaTick(req.Position)
	}
	s.respond(w, sess, snap, err)
}

// sensorEnableRequest describes the device and the permissions the client obtained.
type sensorEnableRequest struct {
	sensor.Env
	sensor.Grants
}

func (s *Server) enableSensorsHandler(w http.ResponseWriter, r *http.Request) {
	var req sensorEnableRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	snap, err := sess.EnableSensors(r.Context(), req.Env, req.Grants)
	s.respond(w, sess, snap, err)
}

func (s *Server) disableSensorsHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	snap, err := sess.DisableSensors()
	s.respond(w, sess, snap, err)
}

type streamError struct {
	Error string `json:"error"`
}

// closeSensorStream tells the client the session is over. WriteControl and Close are
// safe to call alongside the read loop.
func closeSensorStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

// sensorStreamHandler upgrades to a WebSocket and feeds every text frame into the
// session's sensor source until the client disconnects.
func (s *Server) sensorStreamHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	stream, err := sess.SensorStream()
	if err != nil {
		writeSessionError(w, err, nil)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		slog.Warn("Server.sensorStreamHandler: upgrade failed", "session", sess.ID(), "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxSensorFrameBytes)
	slog.Info("Server.sensorStreamHandler: stream opened", "session", sess.ID())

	// The stream ends with its session, whether closed by the client or reaped.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-sess.Done():
			closeSensorStream(conn)
		case <-stop:
		}
	}()

	frames := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Server.sensorStreamHandler: stream closed unexpectedly", "session", sess.ID(), "error", err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		// Frames count as activity and keep the session from being reaped.
		if _, err := s.manager.Get(sess.ID()); err != nil {
			slog.Debug("Server.sensorStreamHandler: session gone", "session", sess.ID())
			closeSensorStream(conn)
			break
		}
		frames++
		if err := stream.Dispatch(data); err != nil {
			slog.Debug("Server.sensorStreamHandler: bad frame", "session", sess.ID(), "error", err)
			if werr := conn.WriteJSON(streamError{Error: err.Error()}); werr != nil {
				break
			}
		}
	}
	slog.Info("Server.sensorStreamHandler: stream closed", "session", sess.ID(), "frames", frames)
}
