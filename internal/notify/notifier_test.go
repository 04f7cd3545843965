package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebas/softphone/internal/events"
	"github.com/sebas/softphone/internal/session"
)

type uiObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *uiObserver) add(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *uiObserver) StateChanged(s session.State, remote string) {
	o.add("state:" + s.String() + ":" + remote)
}
func (o *uiObserver) Connected()                { o.add("connected") }
func (o *uiObserver) Disconnected()             { o.add("disconnected") }
func (o *uiObserver) Failed(err error)          { o.add("failed:" + err.Error()) }
func (o *uiObserver) RecordingStarted()         { o.add("rec_started") }
func (o *uiObserver) RecordingStopped(p string) { o.add("rec_stopped:" + p) }

type reconnectingObserver struct {
	uiObserver
}

func (o *reconnectingObserver) Reconnecting(error) { o.add("reconnecting") }
func (o *reconnectingObserver) Reconnected()       { o.add("reconnected") }

func drain(t *testing.T, pub *events.ChannelPublisher, n int) []events.Event {
	t.Helper()
	var out []events.Event
	for i := 0; i < n; i++ {
		select {
		case e := <-pub.Events():
			out = append(out, e)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
	return out
}

func TestRelaysInOrder(t *testing.T) {
	n := New()
	obs := &uiObserver{}
	n.SetObserver(obs)

	n.StateChanged(session.StateConnecting, "+15551234567")
	n.StateChanged(session.StateConnected, "+15551234567")
	n.Connected()
	n.RecordingStarted()
	n.RecordingStopped("/tmp/call.wav")
	n.StateChanged(session.StateDisconnected, "+15551234567")
	n.Disconnected()

	assert.Equal(t, []string{
		"state:Connecting:+15551234567",
		"state:Connected:+15551234567",
		"connected",
		"rec_started",
		"rec_stopped:/tmp/call.wav",
		"state:Disconnected:+15551234567",
		"disconnected",
	}, obs.events)
}

func TestDropsWithoutObserver(t *testing.T) {
	n := New()
	assert.False(t, n.HasObserver())

	// Nothing registered: every callback is a silent drop.
	n.StateChanged(session.StateConnecting, "+1")
	n.Connected()
	n.Failed(errors.New("boom"))
	n.Reconnecting(nil)

	n.ClearObserver()
	assert.False(t, n.HasObserver())
}

func TestClearObserverIf(t *testing.T) {
	n := New()
	first := &uiObserver{}
	second := &uiObserver{}

	n.SetObserver(first)
	n.SetObserver(second)

	assert.False(t, n.ClearObserverIf(first), "stale observer must not detach the new one")
	assert.True(t, n.HasObserver())

	n.Connected()
	assert.Empty(t, first.events)
	assert.Equal(t, []string{"connected"}, second.events)

	assert.True(t, n.ClearObserverIf(second))
	assert.False(t, n.HasObserver())
	assert.False(t, n.ClearObserverIf(second))
}

func TestReconnectForwardedWhenSupported(t *testing.T) {
	n := New()
	plain := &uiObserver{}
	n.SetObserver(plain)
	n.Reconnecting(errors.New("no rtp"))
	assert.Empty(t, plain.events)

	rich := &reconnectingObserver{}
	n.SetObserver(rich)
	n.Reconnecting(errors.New("no rtp"))
	n.Reconnected()
	assert.Equal(t, []string{"reconnecting", "reconnected"}, rich.events)
}

func TestPublishesLifecycle(t *testing.T) {
	pub := events.NewChannelPublisher(16)
	base := time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)
	now := base
	n := New(
		WithPublisher(pub),
		WithClock(func() time.Time { return now }),
		WithLabeler(func(number string) string {
			if number == "+15551234567" {
				return "Alice"
			}
			return ""
		}),
	)

	n.StateChanged(session.StateConnecting, "+15551234567")
	callID := n.CallID()
	require.NotEmpty(t, callID)

	now = base.Add(2 * time.Second)
	n.StateChanged(session.StateRinging, "+15551234567")
	now = base.Add(5 * time.Second)
	n.StateChanged(session.StateConnected, "+15551234567")
	n.Connected()
	n.RecordingStarted()
	n.RecordingStopped("/data/call.wav")
	now = base.Add(65 * time.Second)
	n.StateChanged(session.StateDisconnected, "+15551234567")
	n.Disconnected()

	got := drain(t, pub, 6)
	types := make([]events.EventType, len(got))
	for i, e := range got {
		types[i] = e.Type()
		assert.Equal(t, callID, e.CallID())
	}
	assert.Equal(t, []events.EventType{
		events.CallDialing,
		events.CallRinging,
		events.CallAnswered,
		events.RecordingStarted,
		events.RecordingStopped,
		events.CallEnded,
	}, types)

	dialing := got[0].(*events.CallDialingEvent)
	assert.Equal(t, "Alice", dialing.Destination.Label)

	answered := got[2].(*events.CallAnsweredEvent)
	assert.Equal(t, int64(5000), answered.SetupDurationMs)

	ended := got[5].(*events.CallEndedEvent)
	assert.Equal(t, events.EndReasonNormal, ended.EndReason)
	assert.Equal(t, events.DispositionAnswered, ended.DispositionCode)
	assert.Equal(t, int64(60000), ended.TalkDurationMs)
	assert.Equal(t, int64(65000), ended.TotalDurationMs)

	stopped := got[4].(*events.RecordingEvent)
	assert.Equal(t, "/data/call.wav", stopped.Path)
}

func TestFailureReasons(t *testing.T) {
	pub := events.NewChannelPublisher(16)
	n := New(WithPublisher(pub))

	n.StateChanged(session.StateConnecting, "+1")
	n.Failed(&session.AuthError{Identity: "+2", Err: errors.New("no credentials")})
	n.StateChanged(session.StateConnecting, "+1")
	n.Failed(&session.ConnectFailure{Reason: "486 Busy Here"})
	n.StateChanged(session.StateConnecting, "+1")
	n.Disconnected()

	got := drain(t, pub, 6)
	assert.Equal(t, events.EndReasonAuthFailed, got[1].(*events.CallEndedEvent).EndReason)
	assert.Equal(t, events.EndReasonRejected, got[3].(*events.CallEndedEvent).EndReason)
	assert.Contains(t, got[3].(*events.CallEndedEvent).EndReasonDetail, "486 Busy Here")
	assert.Equal(t, events.EndReasonCancelled, got[5].(*events.CallEndedEvent).EndReason)
	assert.NotEqual(t, got[0].CallID(), got[2].CallID())
}
