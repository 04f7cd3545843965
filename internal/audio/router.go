// Package audio owns device audio routing and voice-focus for a call.
package audio

import (
	"log/slog"
	"sync"
)

// Platform is the device audio layer the router drives.
type Platform interface {
	SetSpeakerphone(on bool) error
	RequestFocus() error
	AbandonFocus() error
}

// Router tracks speaker routing and the voice-focus claim.
type Router struct {
	platform Platform

	mu      sync.Mutex
	speaker bool
	focused bool
}

// NewRouter creates a router over platform. A nil platform uses LogPlatform.
func NewRouter(platform Platform) *Router {
	if platform == nil {
		platform = LogPlatform{}
	}
	return &Router{platform: platform}
}

// SetSpeaker routes output to the speaker (true) or earpiece (false).
// Platform failures are logged; the returned value is the requested state.
func (r *Router) SetSpeaker(on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.platform.SetSpeakerphone(on); err != nil {
		slog.Warn("[Audio] Speaker routing failed", "speaker", on, "error", err)
	}
	r.speaker = on
	return r.speaker
}

// Speaker reports the current routing flag.
func (r *Router) Speaker() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speaker
}

// AcquireVoiceFocus claims audio focus for voice communication.
// No-op if focus is already held.
func (r *Router) AcquireVoiceFocus() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.focused {
		return
	}
	if err := r.platform.RequestFocus(); err != nil {
		slog.Warn("[Audio] Focus request failed", "error", err)
	}
	r.focused = true
}

// ReleaseVoiceFocus abandons audio focus. No-op if not held.
func (r *Router) ReleaseVoiceFocus() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.focused {
		return
	}
	if err := r.platform.AbandonFocus(); err != nil {
		slog.Warn("[Audio] Focus release failed", "error", err)
	}
	r.focused = false
}

// HasFocus reports whether voice focus is held.
func (r *Router) HasFocus() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focused
}

// LogPlatform is the headless platform: it only logs routing changes.
type LogPlatform struct{}

func (LogPlatform) SetSpeakerphone(on bool) error {
	slog.Debug("[Audio] Speakerphone", "on", on)
	return nil
}

func (LogPlatform) RequestFocus() error {
	slog.Debug("[Audio] Voice focus acquired")
	return nil
}

func (LogPlatform) AbandonFocus() error {
	slog.Debug("[Audio] Voice focus released")
	return nil
}
