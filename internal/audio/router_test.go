package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingPlatform struct {
	speakerCalls []bool
	requests     int
	abandons     int
	failSpeaker  bool
}

func (p *countingPlatform) SetSpeakerphone(on bool) error {
	p.speakerCalls = append(p.speakerCalls, on)
	if p.failSpeaker {
		return errors.New("no route")
	}
	return nil
}

func (p *countingPlatform) RequestFocus() error { p.requests++; return nil }
func (p *countingPlatform) AbandonFocus() error { p.abandons++; return nil }

func TestSetSpeakerReturnsIntentEvenOnFailure(t *testing.T) {
	p := &countingPlatform{failSpeaker: true}
	r := NewRouter(p)

	assert.True(t, r.SetSpeaker(true))
	assert.True(t, r.Speaker())
	assert.False(t, r.SetSpeaker(false))
	assert.Equal(t, []bool{true, false}, p.speakerCalls)
}

func TestFocusIsPairedAndIdempotent(t *testing.T) {
	p := &countingPlatform{}
	r := NewRouter(p)

	r.ReleaseVoiceFocus()
	assert.Equal(t, 0, p.abandons)

	r.AcquireVoiceFocus()
	r.AcquireVoiceFocus()
	assert.True(t, r.HasFocus())
	assert.Equal(t, 1, p.requests)

	r.ReleaseVoiceFocus()
	r.ReleaseVoiceFocus()
	assert.False(t, r.HasFocus())
	assert.Equal(t, 1, p.abandons)
}

func TestNilPlatformDefaultsToLogging(t *testing.T) {
	r := NewRouter(nil)
	r.AcquireVoiceFocus()
	assert.True(t, r.HasFocus())
	r.ReleaseVoiceFocus()
	assert.False(t, r.HasFocus())
}
