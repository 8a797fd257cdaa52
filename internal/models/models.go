// Package models defines the core data structures for Wayfinder.
//
// It includes path records, navigation modes, journey and attendance records, and the
// JSON envelope shared by the API and its clients.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultImageExt is the asset extension used when a path record does not set one.
const DefaultImageExt = "jpg"

// Error variables for path record handling
var (
	ErrNoMode       = errors.New("path record has neither steps/path nor videoPath")
	ErrInvalidSteps = errors.New("path record steps must be at least 1")
	ErrEmptyPathID  = errors.New("path record id cannot be empty")
)

// PathRecord identifies one navigable route between two campus points.
type PathRecord struct {
	ID          string `json:"id" validate:"required,excludesall=/?# "`
	From        string `json:"from"`
	To          string `json:"to"`
	Time        string `json:"time,omitempty"` // display only
	Steps       int    `json:"steps,omitempty"`
	Path        string `json:"path,omitempty" validate:"required_with=Steps"`
	Ext         string `json:"ext,omitempty" validate:"omitempty,alphanum,max=5"`
	VideoPath   string `json:"videoPath,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Mode is the navigation mode of a path record, decided once when the record is loaded.
// It is either ImageSequence or Video.
type Mode interface {
	Kind() ModeKind
	isMode()
}

// ModeKind names a navigation mode on the wire.
type ModeKind string

const (
	// ModeKindImageSequence navigates through numbered step images.
	ModeKindImageSequence ModeKind = "image_sequence"
	// ModeKindVideo navigates by scrubbing a single video.
	ModeKindVideo ModeKind = "video"
)

// ImageSequence is a route made of Steps images stored under Path, numbered from 1.
type ImageSequence struct {
	Path  string
	Steps int
	Ext   string
}

func (ImageSequence) Kind() ModeKind { return ModeKindImageSequence }
func (ImageSequence) isMode()        {}

// AssetPath returns the relative location of the image for a 1-based step number.
func (m ImageSequence) AssetPath(step int) string {
	ext := m.Ext
	if ext == "" {
		ext = DefaultImageExt
	}
	return fmt.Sprintf("%s/%d.%s", strings.TrimRight(m.Path, "/"), step, ext)
}

// Video is a route rendered as one scrubbable video.
type Video struct {
	VideoPath string
}

func (Video) Kind() ModeKind { return ModeKindVideo }
func (Video) isMode()        {}

// Mode resolves the navigation mode of the record. A record carrying a complete step
// sequence is an image sequence even when it also names a video; a step count below 1
// falls back to the video when there is one.
func (p PathRecord) Mode() (Mode, error) {
	if p.ID == "" {
		return nil, ErrEmptyPathID
	}
	if p.Steps != 0 || p.Path != "" {
		if p.Steps < 1 {
			if p.VideoPath != "" {
				return Video{VideoPath: p.VideoPath}, nil
			}
			return nil, ErrInvalidSteps
		}
		if p.Path == "" {
			return nil, ErrNoMode
		}
		return ImageSequence{Path: p.Path, Steps: p.Steps, Ext: p.Ext}, nil
	}
	if p.VideoPath != "" {
		return Video{VideoPath: p.VideoPath}, nil
	}
	return nil, ErrNoMode
}

// Destination is one named location in the destination directory.
type Destination struct {
	Name     string `json:"name" validate:"required"`
	PathID   string `json:"path_id,omitempty"`
	Gendered bool   `json:"gendered,omitempty"`
	Icon     string `json:"icon,omitempty"`
}

// DestinationCategory groups destinations for the discovery listing.
type DestinationCategory struct {
	ID        string        `json:"id" validate:"required"`
	Label     string        `json:"label"`
	Locations []Destination `json:"locations" validate:"dive"`
}

// JourneyKind classifies a journey log entry.
type JourneyKind string

const (
	JourneyStarted   JourneyKind = "started"
	JourneyArrived   JourneyKind = "arrived"
	JourneyRestarted JourneyKind = "restarted"
	JourneyAbandoned JourneyKind = "abandoned"
	JourneyNotFound  JourneyKind = "not_found"
)

// JourneyEvent is one entry of the journey log.
type JourneyEvent struct {
	SessionID string      `json:"session_id"`
	PathID    string      `json:"path_id"`
	Kind      JourneyKind `json:"kind"`
	Time      int64       `json:"time"`
}

// AttendanceStatus is the recorded presence of a student.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

// IsValidAttendanceStatus checks if the given status is supported.
func IsValidAttendanceStatus(s AttendanceStatus) bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one line of an attendance ledger for an exam session.
type AttendanceRecord struct {
	SessionCode string           `json:"session_code" validate:"required"`
	StudentID   string           `json:"student_id" validate:"required"`
	Name        string           `json:"name,omitempty"`
	Room        string           `json:"room,omitempty"`
	Status      AttendanceStatus `json:"status" validate:"required"`
	RecordedAt  int64            `json:"recorded_at"`
}

// ExamAssignment places a student in an exam room.
type ExamAssignment struct {
	StudentID string `json:"student_id" validate:"required"`
	Name      string `json:"name,omitempty"`
	Room      string `json:"room" validate:"required"`
	PathID    string `json:"path_id,omitempty"`
	Date      string `json:"date,omitempty"`
	Slot      string `json:"slot,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRedirect indicates the client should continue in another flow.
	APIStatusRedirect APIStatus = "redirect"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// RedirectTo creates a redirect API response carrying the session snapshot.
func RedirectTo(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRedirect).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Recorded creates a recorded API response.
func Recorded() APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		Build()
}
