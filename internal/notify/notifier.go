// Package notify relays session events to the single registered UI observer
// and publishes them as lifecycle events.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/softphone/internal/events"
	"github.com/sebas/softphone/internal/session"
)

// Option configures a Notifier.
type Option func(*Notifier)

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(n *Notifier) { n.pub = p }
}

// WithLabeler sets the function resolving a number to a display label.
func WithLabeler(fn func(number string) string) Option {
	return func(n *Notifier) { n.label = fn }
}

// WithNodeID sets the node ID stamped on published events.
func WithNodeID(id string) Option {
	return func(n *Notifier) { n.nodeID = id }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// Notifier implements session.Observer. Observers are compared by identity,
// so they must be comparable values such as pointers.
type Notifier struct {
	pub    events.Publisher
	label  func(string) string
	nodeID string
	now    func() time.Time

	builder *events.Builder

	mu  sync.RWMutex
	obs session.Observer

	// Per-call tracking, written from the session loop only.
	callMu     sync.Mutex
	callID     string
	remote     string
	startedAt  time.Time
	answeredAt time.Time
}

var (
	_ session.Observer          = (*Notifier)(nil)
	_ session.ReconnectObserver = (*Notifier)(nil)
)

// New creates a Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		pub:    events.NewNoopPublisher(),
		label:  func(string) string { return "" },
		nodeID: "softphone",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.builder = events.NewBuilder(n.nodeID).WithClock(n.now)
	return n
}

// SetObserver registers obs, replacing any previous observer.
func (n *Notifier) SetObserver(obs session.Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.obs = obs
}

// ClearObserver removes the observer. Safe with none registered.
func (n *Notifier) ClearObserver() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.obs = nil
}

// ClearObserverIf removes obs only if it is still the registered observer.
func (n *Notifier) ClearObserverIf(obs session.Observer) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.obs == nil || n.obs != obs {
		return false
	}
	n.obs = nil
	return true
}

// HasObserver reports whether an observer is registered.
func (n *Notifier) HasObserver() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.obs != nil
}

// CallID returns the identifier of the current or last call.
func (n *Notifier) CallID() string {
	n.callMu.Lock()
	defer n.callMu.Unlock()
	return n.callID
}

func (n *Notifier) observer() session.Observer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.obs
}

func (n *Notifier) endpoint(number string) events.Endpoint {
	return events.Endpoint{Number: number, Label: n.label(number)}
}

func (n *Notifier) StateChanged(state session.State, remote string) {
	n.callMu.Lock()
	switch state {
	case session.StateConnecting:
		n.callID = uuid.New().String()
		n.remote = remote
		n.startedAt = n.now()
		n.answeredAt = time.Time{}
		n.pub.PublishAsync(n.builder.CallDialing(n.callID).
			Destination(n.endpoint(remote)).
			Build())
	case session.StateRinging:
		n.pub.PublishAsync(n.builder.CallRinging(n.callID).
			Remote(n.endpoint(remote)).
			Build())
	case session.StateConnected:
		n.answeredAt = n.now()
		n.pub.PublishAsync(n.builder.CallAnswered(n.callID).
			Remote(n.endpoint(remote)).
			SetupDuration(n.answeredAt.Sub(n.startedAt)).
			Build())
	}
	n.callMu.Unlock()

	if obs := n.observer(); obs != nil {
		obs.StateChanged(state, remote)
	}
}

func (n *Notifier) Connected() {
	if obs := n.observer(); obs != nil {
		obs.Connected()
	}
}

func (n *Notifier) Disconnected() {
	n.callMu.Lock()
	if n.answeredAt.IsZero() {
		n.publishEnded(events.EndReasonCancelled, "", events.DispositionCanceled)
	} else {
		n.publishEnded(events.EndReasonNormal, "", events.DispositionAnswered)
	}
	n.callMu.Unlock()

	if obs := n.observer(); obs != nil {
		obs.Disconnected()
	}
}

func (n *Notifier) Failed(err error) {
	reason := events.EndReasonRejected
	var ae *session.AuthError
	if errors.As(err, &ae) {
		reason = events.EndReasonAuthFailed
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}

	n.callMu.Lock()
	n.publishEnded(reason, detail, events.DispositionFailed)
	n.callMu.Unlock()

	if obs := n.observer(); obs != nil {
		obs.Failed(err)
	}
}

// publishEnded must be called with callMu held.
func (n *Notifier) publishEnded(reason events.EndReason, detail, disposition string) {
	end := n.now()
	var setup, talk time.Duration
	if n.answeredAt.IsZero() {
		setup = end.Sub(n.startedAt)
	} else {
		setup = n.answeredAt.Sub(n.startedAt)
		talk = end.Sub(n.answeredAt)
	}
	n.pub.PublishAsync(n.builder.CallEnded(n.callID).
		Remote(n.endpoint(n.remote)).
		Reason(reason, detail).
		Durations(setup, talk, end.Sub(n.startedAt)).
		Disposition(disposition).
		Build())
}

func (n *Notifier) RecordingStarted() {
	n.pub.PublishAsync(n.builder.RecordingStarted(n.CallID(), ""))
	if obs := n.observer(); obs != nil {
		obs.RecordingStarted()
	}
}

func (n *Notifier) RecordingStopped(path string) {
	n.pub.PublishAsync(n.builder.RecordingStopped(n.CallID(), path))
	if obs := n.observer(); obs != nil {
		obs.RecordingStopped(path)
	}
}

func (n *Notifier) Reconnecting(reason error) {
	slog.Debug("[Notify] Reconnecting", "call_id", n.CallID(), "reason", reason)
	if ro, ok := n.observer().(session.ReconnectObserver); ok {
		ro.Reconnecting(reason)
	}
}

func (n *Notifier) Reconnected() {
	if ro, ok := n.observer().(session.ReconnectObserver); ok {
		ro.Reconnected()
	}
}

// Close flushes and closes the publisher.
func (n *Notifier) Close(ctx context.Context) error {
	if err := n.pub.Flush(ctx); err != nil {
		slog.Warn("[Notify] Flush failed", "error", err)
	}
	return n.pub.Close()
}
