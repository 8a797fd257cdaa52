// Package models defines the navigation session views shared by the engine and the API.
package models

// SessionPhase is the page-level state of a navigation session.
type SessionPhase string

const (
	PhaseLoading    SessionPhase = "loading"
	PhaseNotFound   SessionPhase = "not_found"
	PhaseRedirect   SessionPhase = "redirect"
	PhaseConfirming SessionPhase = "confirming"
	PhaseActive     SessionPhase = "active"
	PhaseArrived    SessionPhase = "arrived"
	PhaseClosed     SessionPhase = "closed"
)

// RedirectTarget names an external flow the client should continue in.
type RedirectTarget string

const (
	RedirectDiscovery    RedirectTarget = "discovery"
	RedirectGenderSelect RedirectTarget = "gender-select"
	RedirectHome         RedirectTarget = "home"
)

// Redirect tells the client where to go when a session hands over control.
type Redirect struct {
	Target RedirectTarget `json:"target"`
	PathID string         `json:"path_id,omitempty"`
	From   string         `json:"from,omitempty"`
}

// ModalInfo is the route metadata shown before a journey starts.
type ModalInfo struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	From        string `json:"from"`
	To          string `json:"to"`
	Time        string `json:"time,omitempty"`
}

// StepView is the rendered state of an image-sequence journey.
type StepView struct {
	State    string  `json:"state"`
	Index    int     `json:"index"`
	Asset    int     `json:"asset"`
	Steps    int     `json:"steps"`
	URL      string  `json:"url,omitempty"`
	Loading  bool    `json:"loading"`
	Failed   bool    `json:"failed,omitempty"`
	Progress float64 `json:"progress"`
}

// VideoView is the rendered state of a video journey.
type VideoView struct {
	Source    string  `json:"source"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration,omitempty"`
	Loaded    bool    `json:"loaded"`
	Stalled   bool    `json:"stalled,omitempty"`
	Failed    bool    `json:"failed,omitempty"`
	Playing   bool    `json:"playing"`
	Rate      float64 `json:"rate"`
	PaceLabel string  `json:"pace_label"`
	Pressing  bool    `json:"pressing"`
	Progress  float64 `json:"progress"`
}

// SensorView reports the sensor controller to the client.
type SensorView struct {
	Enabled bool   `json:"enabled"`
	Status  string `json:"status,omitempty"`
	Rate    string `json:"rate,omitempty"`
}

// SessionSnapshot is the full client-facing state of a navigation session.
type SessionSnapshot struct {
	ID       string       `json:"id"`
	PathID   string       `json:"path_id"`
	Phase    SessionPhase `json:"phase"`
	Mode     ModeKind     `json:"mode,omitempty"`
	Modal    *ModalInfo   `json:"modal,omitempty"`
	Step     *StepView    `json:"step,omitempty"`
	Video    *VideoView   `json:"video,omitempty"`
	Sensors  *SensorView  `json:"sensors,omitempty"`
	Redirect *Redirect    `json:"redirect,omitempty"`
}

// ShowModal reports whether the confirmation modal is still pending.
func (s SessionSnapshot) ShowModal() bool {
	return s.Phase == PhaseConfirming
}
