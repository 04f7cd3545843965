// Package types defines the control API types shared by the daemon and
// softphonectl.
package types

// HealthResponse is the response from /api/v1/health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// CallStatus is the response from GET /api/v1/call
type CallStatus struct {
	State         string `json:"state"`
	CallID        string `json:"call_id,omitempty"`
	Remote        string `json:"remote,omitempty"`
	Origin        string `json:"origin,omitempty"`
	OriginLabel   string `json:"origin_label,omitempty"`
	Muted         bool   `json:"muted"`
	Speaker       bool   `json:"speaker"`
	Recording     bool   `json:"recording"`
	RecordingPath string `json:"recording_path,omitempty"`
	ConnectedAt   string `json:"connected_at,omitempty"`
	Duration      int    `json:"duration"`
	LastError     string `json:"last_error,omitempty"`
	AuthFailure   bool   `json:"auth_failure,omitempty"`
}

// StartCallRequest is the body of POST /api/v1/call. An empty From uses
// the default number.
type StartCallRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
}

// EndCallResponse is the response from DELETE /api/v1/call
type EndCallResponse struct {
	Ended bool `json:"ended"`
}

// ToggleResponse is the response from the mute and speaker toggles.
type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

// DigitsRequest is the body of POST /api/v1/call/digits
type DigitsRequest struct {
	Digits string `json:"digits"`
}

// DigitsResponse reports whether a call carried the digits.
type DigitsResponse struct {
	Sent bool `json:"sent"`
}

// RecordingResponse is the response from /api/v1/recording
type RecordingResponse struct {
	Recording bool   `json:"recording"`
	Path      string `json:"path,omitempty"`
}

// PhoneNumber is a stored caller identity.
type PhoneNumber struct {
	Number       string `json:"number"`
	Nickname     string `json:"nickname,omitempty"`
	FriendlyName string `json:"friendly_name,omitempty"`
	SID          string `json:"sid,omitempty"`
	IsDefault    bool   `json:"is_default"`
	DisplayName  string `json:"display_name"`
}

// Preferences is the response from /api/v1/prefs. The auth token is never
// returned.
type Preferences struct {
	AutoSpeaker        bool   `json:"auto_speaker"`
	RecordingDirectory string `json:"recording_directory,omitempty"`
	AccountSID         string `json:"account_sid,omitempty"`
	HasAuthToken       bool   `json:"has_auth_token"`
}

// PreferencesUpdate is the body of PUT /api/v1/prefs. Nil fields are left
// unchanged.
type PreferencesUpdate struct {
	AutoSpeaker        *bool   `json:"auto_speaker,omitempty"`
	RecordingDirectory *string `json:"recording_directory,omitempty"`
	AccountSID         *string `json:"account_sid,omitempty"`
	AuthToken          *string `json:"auth_token,omitempty"`
}

// Event types streamed on /api/v1/events
const (
	EventStateChanged     = "state_changed"
	EventConnected        = "connected"
	EventDisconnected     = "disconnected"
	EventFailed           = "failed"
	EventReconnecting     = "reconnecting"
	EventReconnected      = "reconnected"
	EventRecordingStarted = "recording_started"
	EventRecordingStopped = "recording_stopped"
)

// Event is one message on the /api/v1/events stream.
type Event struct {
	Type   string `json:"type"`
	State  string `json:"state,omitempty"`
	Remote string `json:"remote,omitempty"`
	Reason string `json:"reason,omitempty"`
	Path   string `json:"path,omitempty"`
	Time   string `json:"time"`
}
