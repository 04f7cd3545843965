package session

import (
	"context"
	"time"
)

// ConnectParams are passed to the transport when placing a call.
type ConnectParams struct {
	To   string
	From string
}

// Invite is an incoming call offer delivered by a transport.
type Invite interface {
	From() string
	To() string
}

// Transport places calls. Listener callbacks may arrive on any goroutine.
type Transport interface {
	Connect(ctx context.Context, token string, params ConnectParams, l Listener) (Call, error)
	Accept(ctx context.Context, inv Invite, l Listener) (Call, error)
}

// Call is the transport handle of one live call.
type Call interface {
	Disconnect()
	Mute(muted bool)
	SendDigits(digits string)
	StartRecording(l RecordingListener) error
	StopRecording()
}

// Listener receives call progress from the transport.
type Listener interface {
	Ringing()
	Connected()
	Reconnecting(reason error)
	Reconnected()
	Disconnected(err error)
	ConnectFailure(err error)
}

// RecordingListener receives the recording callbacks of a call.
type RecordingListener interface {
	RecordingStarted()
	RecordingFailed(err error)
	RecordingStopped()
	BufferAvailable(data []byte)
}

// TokenProvider returns an access token for the calling identity.
type TokenProvider interface {
	Token(ctx context.Context, identity string) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context, identity string) (string, error)

func (f TokenFunc) Token(ctx context.Context, identity string) (string, error) {
	return f(ctx, identity)
}

// AudioRouter is the device audio control used by the session.
type AudioRouter interface {
	SetSpeaker(on bool) bool
	Speaker() bool
	AcquireVoiceFocus()
	ReleaseVoiceFocus()
}

// WakeLock keeps the process busy while a call is set up.
type WakeLock interface {
	Acquire(timeout time.Duration)
	Release()
}

// Observer receives session events in order.
type Observer interface {
	StateChanged(state State, remote string)
	Connected()
	Disconnected()
	Failed(err error)
	RecordingStarted()
	RecordingStopped(path string)
}

// ReconnectObserver is implemented by observers that want transient
// media-loss notices.
type ReconnectObserver interface {
	Reconnecting(reason error)
	Reconnected()
}
