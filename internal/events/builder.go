package events

import (
	"time"

	"github.com/google/uuid"
)

// Builder provides fluent construction of call events with consistent defaults.
type Builder struct {
	nodeID string
	now    func() time.Time
}

// NewBuilder creates an event builder with global defaults.
func NewBuilder(nodeID string) *Builder {
	return &Builder{nodeID: nodeID, now: time.Now}
}

// WithClock overrides the event timestamp source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// newBase creates a BaseEvent with common fields populated.
func (b *Builder) newBase(eventType EventType, callUUID string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventTime: b.now().UTC(),
		CallUUID:  callUUID,
		NodeID:    b.nodeID,
	}
}

// CallDialingBuilder constructs CallDialingEvent.
type CallDialingBuilder struct {
	event *CallDialingEvent
}

// CallDialing starts building a CallDialingEvent.
func (b *Builder) CallDialing(callUUID string) *CallDialingBuilder {
	return &CallDialingBuilder{
		event: &CallDialingEvent{
			BaseEvent: b.newBase(CallDialing, callUUID),
			Direction: DirectionOutbound,
		},
	}
}

func (cb *CallDialingBuilder) Direction(d Direction) *CallDialingBuilder {
	cb.event.Direction = d
	return cb
}

func (cb *CallDialingBuilder) Destination(e Endpoint) *CallDialingBuilder {
	cb.event.Destination = e
	return cb
}

func (cb *CallDialingBuilder) CallerID(e Endpoint) *CallDialingBuilder {
	cb.event.CallerID = e
	return cb
}

func (cb *CallDialingBuilder) Build() *CallDialingEvent {
	return cb.event
}

// CallRingingBuilder constructs CallRingingEvent.
type CallRingingBuilder struct {
	event *CallRingingEvent
}

// CallRinging starts building a CallRingingEvent.
func (b *Builder) CallRinging(callUUID string) *CallRingingBuilder {
	return &CallRingingBuilder{
		event: &CallRingingEvent{
			BaseEvent: b.newBase(CallRinging, callUUID),
		},
	}
}

func (cb *CallRingingBuilder) Remote(e Endpoint) *CallRingingBuilder {
	cb.event.Remote = e
	return cb
}

func (cb *CallRingingBuilder) Build() *CallRingingEvent {
	return cb.event
}

// CallAnsweredBuilder constructs CallAnsweredEvent.
type CallAnsweredBuilder struct {
	event *CallAnsweredEvent
}

// CallAnswered starts building a CallAnsweredEvent.
func (b *Builder) CallAnswered(callUUID string) *CallAnsweredBuilder {
	return &CallAnsweredBuilder{
		event: &CallAnsweredEvent{
			BaseEvent: b.newBase(CallAnswered, callUUID),
		},
	}
}

func (cb *CallAnsweredBuilder) Remote(e Endpoint) *CallAnsweredBuilder {
	cb.event.Remote = e
	return cb
}

func (cb *CallAnsweredBuilder) SetupDuration(d time.Duration) *CallAnsweredBuilder {
	cb.event.SetupDurationMs = d.Milliseconds()
	return cb
}

func (cb *CallAnsweredBuilder) Build() *CallAnsweredEvent {
	return cb.event
}

// CallEndedBuilder constructs CallEndedEvent.
type CallEndedBuilder struct {
	event *CallEndedEvent
}

// CallEnded starts building a CallEndedEvent.
func (b *Builder) CallEnded(callUUID string) *CallEndedBuilder {
	return &CallEndedBuilder{
		event: &CallEndedEvent{
			BaseEvent: b.newBase(CallEnded, callUUID),
		},
	}
}

func (cb *CallEndedBuilder) Remote(e Endpoint) *CallEndedBuilder {
	cb.event.Remote = e
	return cb
}

func (cb *CallEndedBuilder) Reason(r EndReason, detail string) *CallEndedBuilder {
	cb.event.EndReason = r
	cb.event.EndReasonDetail = detail
	return cb
}

func (cb *CallEndedBuilder) HangupSource(source string) *CallEndedBuilder {
	cb.event.HangupSource = source
	return cb
}

func (cb *CallEndedBuilder) Durations(setup, talk, total time.Duration) *CallEndedBuilder {
	cb.event.SetupDurationMs = setup.Milliseconds()
	cb.event.TalkDurationMs = talk.Milliseconds()
	cb.event.TotalDurationMs = total.Milliseconds()
	return cb
}

func (cb *CallEndedBuilder) Disposition(code string) *CallEndedBuilder {
	cb.event.DispositionCode = code
	return cb
}

func (cb *CallEndedBuilder) Build() *CallEndedEvent {
	return cb.event
}

// RecordingStarted builds a recording.started event.
func (b *Builder) RecordingStarted(callUUID, path string) *RecordingEvent {
	return &RecordingEvent{BaseEvent: b.newBase(RecordingStarted, callUUID), Path: path}
}

// RecordingStopped builds a recording.stopped event.
func (b *Builder) RecordingStopped(callUUID, path string) *RecordingEvent {
	return &RecordingEvent{BaseEvent: b.newBase(RecordingStopped, callUUID), Path: path}
}
