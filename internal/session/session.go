// Package session implements the single-call state machine. Every command
// and every transport callback is funnelled through one ordered queue that
// a single goroutine consumes; token fetch and connect run on a separate
// worker goroutine so the queue never blocks on the network.
package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sebas/softphone/internal/recording"
)

const (
	defaultWakeTimeout  = 10 * time.Minute
	defaultSetupTimeout = 30 * time.Second
	eventQueueSize      = 64
	workQueueSize       = 4
)

// Option configures a Session.
type Option func(*Session)

// WithAudio sets the audio router.
func WithAudio(a AudioRouter) Option {
	return func(s *Session) { s.audio = a }
}

// WithWakeLock sets the wake lock and how long a single acquisition lasts.
func WithWakeLock(w WakeLock, timeout time.Duration) Option {
	return func(s *Session) {
		s.wake = w
		if timeout > 0 {
			s.wakeTimeout = timeout
		}
	}
}

// WithRecorder sets the recording pipe.
func WithRecorder(p *recording.Pipe) Option {
	return func(s *Session) { s.pipe = p }
}

// WithObserver sets the event sink, normally a notify.Notifier.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithAutoSpeaker sets the function consulted when a call connects.
func WithAutoSpeaker(fn func() bool) Option {
	return func(s *Session) { s.autoSpeaker = fn }
}

// WithSetupTimeout bounds token fetch plus the connect request.
func WithSetupTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.setupTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Snapshot is a consistent view of the session for readers outside the loop.
type Snapshot struct {
	State         State
	Remote        string
	Origin        string
	Muted         bool
	Speaker       bool
	Recording     bool
	RecordingPath string
	ConnectedAt   time.Time
	LastError     error
}

// attempt is one call placed by StartCall or Answer. Callbacks carry the
// attempt they belong to so stale ones can be recognised.
type attempt struct {
	id        uint64
	call      Call
	cancelled atomic.Bool
}

// Session owns the single active call.
type Session struct {
	transport    Transport
	tokens       TokenProvider
	audio        AudioRouter
	wake         WakeLock
	wakeTimeout  time.Duration
	pipe         *recording.Pipe
	observer     Observer
	autoSpeaker  func() bool
	setupTimeout time.Duration
	now          func() time.Time

	events     chan any
	work       chan func()
	quit       chan struct{}
	done       chan struct{}
	workerDone chan struct{}
	closeOnce  sync.Once

	// Cancelled by Close so in-flight setup returns promptly.
	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	state       State
	seq         uint64
	cur         *attempt
	handle      Call
	remote      string
	origin      string
	muted       bool
	focusHeld   bool
	wakeHeld    bool
	rec         *recording.Recording
	connectedAt time.Time
	lastErr     error

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a session and starts its loop and worker.
func New(transport Transport, tokens TokenProvider, opts ...Option) *Session {
	s := &Session{
		transport:    transport,
		tokens:       tokens,
		wakeTimeout:  defaultWakeTimeout,
		setupTimeout: defaultSetupTimeout,
		now:          time.Now,
		events:       make(chan any, eventQueueSize),
		work:         make(chan func(), workQueueSize),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		workerDone:   make(chan struct{}),
		state:        StateIdle,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	if s.audio == nil {
		s.audio = &nopAudio{}
	}
	if s.wake == nil {
		s.wake = nopWakeLock{}
	}
	if s.pipe == nil {
		s.pipe = recording.NewPipe()
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.autoSpeaker == nil {
		s.autoSpeaker = func() bool { return false }
	}
	s.pipe.OnClosed(func(rec *recording.Recording) {
		// The pipe may close from inside the loop; never block it on itself.
		go s.post(recordingClosed{rec: rec})
	})
	s.publish()

	go s.run()
	go s.worker()
	return s
}

// --- queue plumbing ---

type command struct {
	fn   func()
	done chan struct{}
}

type callbackKind int

const (
	cbRinging callbackKind = iota
	cbConnected
	cbReconnecting
	cbReconnected
	cbDisconnected
	cbConnectFailure
)

func (k callbackKind) String() string {
	switch k {
	case cbRinging:
		return "ringing"
	case cbConnected:
		return "connected"
	case cbReconnecting:
		return "reconnecting"
	case cbReconnected:
		return "reconnected"
	case cbDisconnected:
		return "disconnected"
	case cbConnectFailure:
		return "connect_failure"
	default:
		return "unknown"
	}
}

type callback struct {
	att  *attempt
	kind callbackKind
	err  error
}

type authFailed struct {
	att *attempt
	err error
}

type connectResult struct {
	att  *attempt
	call Call
	err  error
}

type recordingClosed struct {
	rec *recording.Recording
}

// post queues ev for the loop. It returns false once the session is closed.
func (s *Session) post(ev any) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.quit:
		return false
	}
}

// exec runs fn on the loop goroutine and waits for it.
func (s *Session) exec(fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case s.events <- cmd:
	case <-s.quit:
		return ErrSessionClosed
	}
	select {
	case <-cmd.done:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
		case <-s.quit:
			return
		}
	}
}

func (s *Session) worker() {
	defer close(s.workerDone)
	for {
		select {
		case job := <-s.work:
			job()
		case <-s.quit:
			return
		}
	}
}

func (s *Session) dispatch(ev any) {
	switch ev := ev.(type) {
	case command:
		ev.fn()
		close(ev.done)
	case callback:
		s.onCallback(ev)
	case authFailed:
		if ev.att == s.cur && s.state.IsActive() {
			s.teardown(StateFailed, ev.err, false)
		}
	case connectResult:
		s.onConnectResult(ev)
	case recordingClosed:
		if s.rec != nil && s.rec == ev.rec {
			s.rec = nil
			s.publish()
			s.observer.RecordingStopped(ev.rec.Path())
		}
	}
}

// --- listener ---

type callListener struct {
	s   *Session
	att *attempt
}

func (l *callListener) Ringing() {
	l.s.post(callback{att: l.att, kind: cbRinging})
}

func (l *callListener) Connected() {
	l.s.post(callback{att: l.att, kind: cbConnected})
}

func (l *callListener) Reconnecting(reason error) {
	l.s.post(callback{att: l.att, kind: cbReconnecting, err: reason})
}

func (l *callListener) Reconnected() {
	l.s.post(callback{att: l.att, kind: cbReconnected})
}

func (l *callListener) Disconnected(err error) {
	l.s.post(callback{att: l.att, kind: cbDisconnected, err: err})
}

func (l *callListener) ConnectFailure(err error) {
	l.s.post(callback{att: l.att, kind: cbConnectFailure, err: err})
}

// --- commands ---

// StartCall places a call to remote using origin as caller id. Progress is
// reported to the observer; token and connect failures end in StateFailed.
func (s *Session) StartCall(remote, origin string) error {
	var result error
	err := s.exec(func() {
		if !s.state.CanStartCall() {
			result = ErrCallInProgress
			return
		}
		att := s.begin(remote, origin)
		s.submit(att, func(ctx context.Context) {
			token, err := s.tokens.Token(ctx, origin)
			if err != nil {
				s.post(authFailed{att: att, err: &AuthError{Identity: origin, Err: err}})
				return
			}
			if att.cancelled.Load() {
				return
			}
			call, err := s.transport.Connect(ctx, token, ConnectParams{To: remote, From: origin}, &callListener{s: s, att: att})
			s.deliver(connectResult{att: att, call: call, err: err})
		})
	})
	if err != nil {
		return err
	}
	return result
}

// Answer accepts an incoming call offer.
func (s *Session) Answer(inv Invite) error {
	var result error
	err := s.exec(func() {
		if !s.state.CanStartCall() {
			result = ErrCallInProgress
			return
		}
		att := s.begin(inv.From(), inv.To())
		s.submit(att, func(ctx context.Context) {
			call, err := s.transport.Accept(ctx, inv, &callListener{s: s, att: att})
			s.deliver(connectResult{att: att, call: call, err: err})
		})
	})
	if err != nil {
		return err
	}
	return result
}

func (s *Session) begin(remote, origin string) *attempt {
	s.seq++
	att := &attempt{id: s.seq}
	s.cur = att
	s.remote = remote
	s.origin = origin
	s.muted = false
	s.lastErr = nil
	s.connectedAt = time.Time{}

	s.wake.Acquire(s.wakeTimeout)
	s.wakeHeld = true

	s.transition(StateConnecting)
	return att
}

func (s *Session) submit(att *attempt, job func(ctx context.Context)) {
	run := func() {
		if att.cancelled.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.setupTimeout)
		defer cancel()
		job(ctx)
	}
	select {
	case s.work <- run:
	default:
		slog.Warn("[Session] Worker busy, rejecting call", "call", att.id)
		s.teardown(StateFailed, &ConnectFailure{Reason: "call setup busy"}, false)
	}
}

// EndCall hangs up. It returns false if no call was active.
func (s *Session) EndCall() bool {
	var ended bool
	_ = s.exec(func() {
		if !s.state.IsActive() {
			return
		}
		s.cur.cancelled.Store(true)
		s.teardown(StateDisconnected, nil, true)
		ended = true
	})
	return ended
}

// ToggleMute flips the microphone mute. It returns the new value, or false
// without effect when there is no transport handle.
func (s *Session) ToggleMute() bool {
	var muted bool
	_ = s.exec(func() {
		if s.handle == nil {
			return
		}
		s.muted = !s.muted
		s.handle.Mute(s.muted)
		muted = s.muted
		s.publish()
	})
	return muted
}

// ToggleSpeaker flips speaker routing. Valid in any state.
func (s *Session) ToggleSpeaker() bool {
	var on bool
	_ = s.exec(func() {
		on = s.audio.SetSpeaker(!s.audio.Speaker())
		s.publish()
	})
	return on
}

// SendDigits sends DTMF digits. It reports whether a handle received them.
func (s *Session) SendDigits(digits string) bool {
	var sent bool
	_ = s.exec(func() {
		if s.handle == nil || digits == "" {
			return
		}
		s.handle.SendDigits(digits)
		sent = true
	})
	return sent
}

// StartRecording begins recording the connected call. Errors are
// *recording.Error values.
func (s *Session) StartRecording() error {
	var result error
	err := s.exec(func() {
		active := s.state == StateConnected && s.handle != nil
		var src recording.Source
		if s.handle != nil {
			src = s.handle
		}
		rec, err := s.pipe.Start(src, s.remote, active)
		if err != nil {
			result = err
			return
		}
		if err := s.handle.StartRecording(rec); err != nil {
			rec.Close()
			_ = os.Remove(rec.Path())
			result = &recording.Error{Kind: recording.IOError, Path: rec.Path(), Err: err}
			return
		}
		s.rec = rec
		s.publish()
		s.observer.RecordingStarted()
	})
	if err != nil {
		return err
	}
	return result
}

// StopRecording ends the active recording and returns its file path.
func (s *Session) StopRecording() (string, bool) {
	var (
		path string
		ok   bool
	)
	_ = s.exec(func() {
		path, ok = s.stopRecording()
	})
	return path, ok
}

func (s *Session) stopRecording() (string, bool) {
	rec := s.rec
	if rec == nil {
		return "", false
	}
	s.rec = nil
	s.pipe.StopRecording(rec)
	s.publish()
	s.observer.RecordingStopped(rec.Path())
	return rec.Path(), true
}

// Close ends any active call and stops the session goroutines.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.exec(func() {
			if s.state.IsActive() {
				s.cur.cancelled.Store(true)
				s.teardown(StateDisconnected, nil, true)
			}
		})
		s.cancel()
		close(s.quit)
		<-s.done
		<-s.workerDone
		s.drain()
	})
	return nil
}

// deliver hands a connect result to the loop, hanging up the call itself
// when the session has already closed.
func (s *Session) deliver(ev connectResult) {
	if !s.post(ev) && ev.call != nil {
		slog.Info("[Session] Session closed during setup, hanging up", "call", ev.att.id)
		ev.call.Disconnect()
	}
}

// drain disconnects calls whose connect result was queued but never
// handled. Runs after the loop and worker have exited.
func (s *Session) drain() {
	for {
		select {
		case ev := <-s.events:
			if cr, ok := ev.(connectResult); ok && cr.call != nil {
				slog.Info("[Session] Disconnecting call queued at close", "call", cr.att.id)
				cr.call.Disconnect()
			}
		default:
			return
		}
	}
}

// --- transport events ---

func (s *Session) onConnectResult(ev connectResult) {
	stale := ev.att != s.cur || ev.att.cancelled.Load() || !s.state.IsActive()
	if ev.call != nil {
		ev.att.call = ev.call
	}
	if stale {
		if ev.call != nil {
			slog.Info("[Session] Disconnecting orphaned call", "call", ev.att.id)
			ev.call.Disconnect()
		}
		return
	}
	if ev.err != nil {
		s.teardown(StateFailed, &ConnectFailure{Reason: ev.err.Error(), Err: ev.err}, false)
		return
	}
	s.handle = ev.call
	slog.Debug("[Session] Transport handle ready", "call", ev.att.id)
}

func (s *Session) onCallback(ev callback) {
	if ev.att != s.cur || !s.state.IsActive() {
		if ev.kind == cbConnected && ev.att.call != nil {
			slog.Info("[Session] Late connect for ended call, hanging up", "call", ev.att.id)
			ev.att.call.Disconnect()
		}
		slog.Debug("[Session] Ignoring stale callback", "call", ev.att.id, "event", ev.kind.String())
		return
	}

	switch ev.kind {
	case cbRinging:
		if s.state == StateConnecting {
			s.transition(StateRinging)
		}

	case cbConnected:
		if ev.att.cancelled.Load() {
			if ev.att.call != nil {
				ev.att.call.Disconnect()
			}
			s.teardown(StateDisconnected, nil, false)
			return
		}
		if s.state.CanTransitionTo(StateConnected) {
			s.onConnected()
		}

	case cbReconnecting:
		if s.state == StateConnected {
			slog.Warn("[Session] Media interrupted", "remote", s.remote, "reason", ev.err)
			if ro, ok := s.observer.(ReconnectObserver); ok {
				ro.Reconnecting(ev.err)
			}
		}

	case cbReconnected:
		if s.state == StateConnected {
			slog.Info("[Session] Media restored", "remote", s.remote)
			if ro, ok := s.observer.(ReconnectObserver); ok {
				ro.Reconnected()
			}
		}

	case cbDisconnected:
		var cause error
		if ev.err != nil {
			cause = &TransportDisconnected{Err: ev.err}
		}
		s.teardown(StateDisconnected, cause, false)

	case cbConnectFailure:
		reason := "unknown"
		if ev.err != nil {
			reason = ev.err.Error()
		}
		s.teardown(StateFailed, &ConnectFailure{Reason: reason, Err: ev.err}, false)
	}
}

func (s *Session) onConnected() {
	s.state = StateConnected
	s.connectedAt = s.now()

	s.audio.AcquireVoiceFocus()
	s.focusHeld = true
	if s.autoSpeaker() {
		s.audio.SetSpeaker(true)
	}

	slog.Info("[Session] State changed", "to", StateConnected.String(), "remote", s.remote, "call", s.cur.id)
	s.publish()
	s.observer.StateChanged(StateConnected, s.remote)
	s.observer.Connected()
}

func (s *Session) transition(next State) {
	prev := s.state
	s.state = next
	slog.Info("[Session] State changed", "from", prev.String(), "to", next.String(), "remote", s.remote, "call", s.seq)
	s.publish()
	s.observer.StateChanged(next, s.remote)
}

// teardown is the single exit path of a call. Every resource acquired for
// the call is released here whatever the cause.
func (s *Session) teardown(next State, cause error, hangup bool) {
	if !s.state.IsActive() {
		return
	}

	s.stopRecording()

	if s.focusHeld {
		s.audio.ReleaseVoiceFocus()
		s.focusHeld = false
	}
	if s.wakeHeld {
		s.wake.Release()
		s.wakeHeld = false
	}
	if s.handle != nil {
		if hangup {
			s.handle.Disconnect()
		}
		s.handle = nil
	}

	remote := s.remote
	prev := s.state
	s.state = next
	s.lastErr = cause
	s.remote = ""
	s.muted = false

	if cause != nil {
		slog.Info("[Session] State changed", "from", prev.String(), "to", next.String(), "remote", remote, "call", s.cur.id, "cause", cause)
	} else {
		slog.Info("[Session] State changed", "from", prev.String(), "to", next.String(), "remote", remote, "call", s.cur.id)
	}
	s.publish()

	s.observer.StateChanged(next, remote)
	if next == StateFailed {
		s.observer.Failed(cause)
	} else {
		s.observer.Disconnected()
	}
}

// --- readers ---

func (s *Session) publish() {
	snap := Snapshot{
		State:       s.state,
		Remote:      s.remote,
		Origin:      s.origin,
		Muted:       s.muted,
		Speaker:     s.audio.Speaker(),
		Recording:   s.rec != nil,
		ConnectedAt: s.connectedAt,
		LastError:   s.lastErr,
	}
	if s.rec != nil {
		snap.RecordingPath = s.rec.Path()
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// State returns the current state.
func (s *Session) State() State { return s.Snapshot().State }

// Remote returns the remote address of the active call.
func (s *Session) Remote() string { return s.Snapshot().Remote }

// Origin returns the caller id of the current or last call.
func (s *Session) Origin() string { return s.Snapshot().Origin }

// ConnectedAt returns when the current call connected, or the zero time.
func (s *Session) ConnectedAt() time.Time { return s.Snapshot().ConnectedAt }

// Muted reports the mute flag.
func (s *Session) Muted() bool { return s.Snapshot().Muted }

// SpeakerEnabled reports speaker routing.
func (s *Session) SpeakerEnabled() bool { return s.audio.Speaker() }

// Recording reports whether a recording is active.
func (s *Session) Recording() bool { return s.Snapshot().Recording }

// LastError returns the cause of the last terminal transition, if any.
func (s *Session) LastError() error { return s.Snapshot().LastError }

// IsAuthError reports whether err is an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// --- defaults ---

type nopAudio struct {
	speaker atomic.Bool
}

func (a *nopAudio) SetSpeaker(on bool) bool { a.speaker.Store(on); return on }
func (a *nopAudio) Speaker() bool           { return a.speaker.Load() }
func (a *nopAudio) AcquireVoiceFocus()      {}
func (a *nopAudio) ReleaseVoiceFocus()      {}

type nopWakeLock struct{}

func (nopWakeLock) Acquire(time.Duration) {}
func (nopWakeLock) Release()              {}

type nopObserver struct{}

func (nopObserver) StateChanged(State, string) {}
func (nopObserver) Connected()                 {}
func (nopObserver) Disconnected()              {}
func (nopObserver) Failed(error)               {}
func (nopObserver) RecordingStarted()          {}
func (nopObserver) RecordingStopped(string)    {}
