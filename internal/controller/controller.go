// Package controller is the softphone's command surface. It owns the call
// session and its notifier for the lifetime of the process.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sebas/softphone/internal/media"
	"github.com/sebas/softphone/internal/notify"
	"github.com/sebas/softphone/internal/numbers"
	"github.com/sebas/softphone/internal/session"
)

var (
	// ErrNoOrigin is returned when no caller id was given and no default
	// number is configured.
	ErrNoOrigin = errors.New("no origin number: pass one or set a default")
	// ErrNoDestination is returned for an empty destination.
	ErrNoDestination = errors.New("destination is required")
)

// Resolver looks up caller identities.
type Resolver interface {
	Default(ctx context.Context) (numbers.Number, error)
	Resolve(ctx context.Context, number string) string
}

// Status is the externally visible call state.
type Status struct {
	State         session.State
	CallID        string
	Remote        string
	Origin        string
	OriginLabel   string
	Muted         bool
	Speaker       bool
	Recording     bool
	RecordingPath string
	ConnectedAt   time.Time
	Duration      time.Duration
	LastError     string
	AuthFailure   bool
}

// Controller forwards UI commands to the session.
type Controller struct {
	session  *session.Session
	notifier *notify.Notifier
	numbers  Resolver
	now      func() time.Time
}

// New creates a controller. numbers may be nil, in which case every call
// needs an explicit origin.
func New(s *session.Session, n *notify.Notifier, numbers Resolver) *Controller {
	return &Controller{session: s, notifier: n, numbers: numbers, now: time.Now}
}

// Notifier returns the notifier observers attach to.
func (c *Controller) Notifier() *notify.Notifier {
	return c.notifier
}

// StartCall places a call. An empty origin selects the default number.
func (c *Controller) StartCall(ctx context.Context, remote, origin string) error {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return ErrNoDestination
	}
	origin = strings.TrimSpace(origin)
	if origin == "" {
		if c.numbers == nil {
			return ErrNoOrigin
		}
		def, err := c.numbers.Default(ctx)
		if errors.Is(err, numbers.ErrNotFound) {
			return ErrNoOrigin
		}
		if err != nil {
			return fmt.Errorf("resolve default number: %w", err)
		}
		origin = def.Number
	}

	slog.Info("[Controller] Starting call", "remote", remote, "origin", origin)
	return c.session.StartCall(remote, origin)
}

// Answer accepts an incoming call offer.
func (c *Controller) Answer(inv session.Invite) error {
	return c.session.Answer(inv)
}

// EndCall hangs up the active call.
func (c *Controller) EndCall() bool {
	return c.session.EndCall()
}

// ToggleMute flips the microphone mute and returns the new value.
func (c *Controller) ToggleMute() bool {
	return c.session.ToggleMute()
}

// ToggleSpeaker flips speaker routing and returns the new value.
func (c *Controller) ToggleSpeaker() bool {
	return c.session.ToggleSpeaker()
}

// SendDigits sends DTMF on the active call. It reports whether a call
// carried the digits; malformed digits are an error.
func (c *Controller) SendDigits(digits string) (bool, error) {
	if digits == "" {
		return false, errors.New("no digits")
	}
	if err := media.ValidDigits(digits); err != nil {
		return false, err
	}
	return c.session.SendDigits(digits), nil
}

// StartRecording starts recording the connected call.
func (c *Controller) StartRecording() error {
	return c.session.StartRecording()
}

// StopRecording stops the active recording and returns its path.
func (c *Controller) StopRecording() (string, bool) {
	return c.session.StopRecording()
}

// Status returns the current call state.
func (c *Controller) Status(ctx context.Context) Status {
	snap := c.session.Snapshot()
	st := Status{
		State:         snap.State,
		CallID:        c.notifier.CallID(),
		Remote:        snap.Remote,
		Origin:        snap.Origin,
		Muted:         snap.Muted,
		Speaker:       c.session.SpeakerEnabled(),
		Recording:     snap.Recording,
		RecordingPath: snap.RecordingPath,
		ConnectedAt:   snap.ConnectedAt,
	}
	if snap.Origin != "" && c.numbers != nil {
		st.OriginLabel = c.numbers.Resolve(ctx, snap.Origin)
	}
	if snap.State == session.StateConnected && !snap.ConnectedAt.IsZero() {
		st.Duration = c.now().Sub(snap.ConnectedAt).Truncate(time.Second)
	}
	if snap.LastError != nil {
		st.LastError = snap.LastError.Error()
		st.AuthFailure = session.IsAuthError(snap.LastError)
	}
	return st
}

// Close ends any active call, stops the session and flushes events.
func (c *Controller) Close(ctx context.Context) error {
	err := c.session.Close()
	if nerr := c.notifier.Close(ctx); nerr != nil && err == nil {
		err = nerr
	}
	return err
}
