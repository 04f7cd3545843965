package events

import "fmt"

// Subject naming conventions.
//
// Hierarchy:
//   softphone.calls.<call_uuid>.<event_suffix>  - Per-call events
//
// Wildcard subscriptions (Redis PSUBSCRIBE):
//   softphone.calls.*                           - All call events
//   softphone.calls.*.ended                     - All call.ended events

const (
	// SubjectPrefix is the root of all softphone subjects
	SubjectPrefix = "softphone"

	// Call event subjects
	SubjectCalls            = SubjectPrefix + ".calls"
	SubjectCallDialing      = "dialing"
	SubjectCallRinging      = "ringing"
	SubjectCallAnswered     = "answered"
	SubjectCallEnded        = "ended"
	SubjectRecordingStarted = "recording_started"
	SubjectRecordingStopped = "recording_stopped"
)

// CallSubject builds a subject for a specific call event.
// Example: CallSubject("abc-123", "ended") => "softphone.calls.abc-123.ended"
func CallSubject(callUUID string, eventSuffix string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectCalls, callUUID, eventSuffix)
}

// Subject patterns for common consumer configurations
var (
	// PatternAllCalls matches all call events
	PatternAllCalls = SubjectCalls + ".*"

	// PatternCallEnded matches all call.ended events
	PatternCallEnded = SubjectCalls + ".*.ended"
)

// SubjectForEventType returns the suffix used for a given event type.
func SubjectForEventType(t EventType) string {
	switch t {
	case CallDialing:
		return SubjectCallDialing
	case CallRinging:
		return SubjectCallRinging
	case CallAnswered:
		return SubjectCallAnswered
	case CallEnded:
		return SubjectCallEnded
	case RecordingStarted:
		return SubjectRecordingStarted
	case RecordingStopped:
		return SubjectRecordingStopped
	default:
		return "unknown"
	}
}
