// Package events provides call lifecycle event definitions and publishing infrastructure.
// Events are transport-agnostic; a Redis pub/sub publisher is provided for
// consumers outside the process.
package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the type of call event
type EventType string

const (
	// CallDialing fires when a call is placed
	CallDialing EventType = "call.dialing"
	// CallRinging fires when the remote side is alerting
	CallRinging EventType = "call.ringing"
	// CallAnswered fires when the call connects
	CallAnswered EventType = "call.answered"
	// CallEnded fires when the call terminates (any reason)
	CallEnded EventType = "call.ended"
	// RecordingStarted fires when a recording file is opened
	RecordingStarted EventType = "recording.started"
	// RecordingStopped fires when the recording file is closed
	RecordingStopped EventType = "recording.stopped"
)

// EndReason explains why a call ended
type EndReason string

const (
	EndReasonNormal     EndReason = "normal"      // Either side hung up
	EndReasonCancelled  EndReason = "cancelled"   // Hung up before answer
	EndReasonAuthFailed EndReason = "auth_failed" // Token could not be obtained
	EndReasonRejected   EndReason = "rejected"    // Transport could not connect
	EndReasonDropped    EndReason = "dropped"     // Transport ended with an error
)

// Direction indicates call direction
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Event is the base interface for all call events
type Event interface {
	// Type returns the event type for routing/filtering
	Type() EventType
	// Subject returns the subject this event is published to
	Subject() string
	// Timestamp returns when the event occurred
	Timestamp() time.Time
	// CallID returns the primary correlation ID
	CallID() string
}

// BaseEvent contains fields common to all events
type BaseEvent struct {
	// EventID is a unique identifier for this event instance (for deduplication)
	EventID string `json:"event_id"`
	// EventType identifies the event
	EventType EventType `json:"event_type"`
	// EventTime is when the event occurred (RFC3339Nano)
	EventTime time.Time `json:"event_time"`
	// CallUUID is the per-call identifier assigned when the call is placed
	CallUUID string `json:"call_uuid"`
	// NodeID identifies the softphone instance
	NodeID string `json:"node_id,omitempty"`
}

func (e *BaseEvent) Type() EventType      { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e *BaseEvent) CallID() string       { return e.CallUUID }

// Subject returns the subject for routing
// Format: softphone.calls.<call_uuid>.<suffix>
func (e *BaseEvent) Subject() string {
	return CallSubject(e.CallUUID, SubjectForEventType(e.EventType))
}

// Endpoint is one side of a call.
type Endpoint struct {
	Number string `json:"number"`
	Label  string `json:"label,omitempty"`
}

// CallDialingEvent fires when a call is placed
type CallDialingEvent struct {
	BaseEvent
	Direction   Direction `json:"direction"`
	Destination Endpoint  `json:"destination"`
	CallerID    Endpoint  `json:"caller_id"`
}

// CallRingingEvent fires when the remote side alerts
type CallRingingEvent struct {
	BaseEvent
	Remote Endpoint `json:"remote"`
}

// CallAnsweredEvent fires when the call connects
type CallAnsweredEvent struct {
	BaseEvent
	Remote Endpoint `json:"remote"`
	// Time from placing the call to answer
	SetupDurationMs int64 `json:"setup_duration_ms"`
}

// CallEndedEvent fires when the call terminates
type CallEndedEvent struct {
	BaseEvent
	Remote          Endpoint  `json:"remote"`
	EndReason       EndReason `json:"end_reason"`
	EndReasonDetail string    `json:"end_reason_detail,omitempty"`
	// Who initiated the hangup: "local", "remote" or "system"
	HangupSource    string `json:"hangup_source,omitempty"`
	SetupDurationMs int64  `json:"setup_duration_ms"`
	TalkDurationMs  int64  `json:"talk_duration_ms"`
	TotalDurationMs int64  `json:"total_duration_ms"`
	DispositionCode string `json:"disposition_code"`
}

// Disposition codes
const (
	DispositionAnswered = "ANSWERED"
	DispositionFailed   = "FAILED"
	DispositionCanceled = "CANCELED"
)

// RecordingEvent fires when a recording starts or stops
type RecordingEvent struct {
	BaseEvent
	Path string `json:"path,omitempty"`
}

// MarshalEvent encodes an event as JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
