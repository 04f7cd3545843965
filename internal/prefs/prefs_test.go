package prefs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileReadsAsDefaults(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Preferences{}, s.Get())
	assert.False(t, s.AutoSpeaker())
	assert.Equal(t, "/fallback", s.RecordingDirectory("/fallback"))
}

func TestUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	s, err := Open(path)
	require.NoError(t, err)

	got, err := s.Update(func(p *Preferences) {
		p.AutoSpeaker = true
		p.RecordingDirectory = "/srv/recordings"
		p.AccountSID = "AC123"
		p.AuthToken = "token"
	})
	require.NoError(t, err)
	assert.True(t, got.HasCredentials())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "auto_speaker: true")
	assert.Contains(t, string(data), "recording_directory: /srv/recordings")

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, got, reopened.Get())
	assert.Equal(t, "/srv/recordings", reopened.RecordingDirectory("/fallback"))
}

func TestOpenRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auto_speaker: [unterminated"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestWatchPicksUpExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Watch())
	defer s.Close()

	require.NoError(t, os.WriteFile(path, []byte("auto_speaker: true\n"), 0o600))

	assert.Eventually(t, s.AutoSpeaker, 2*time.Second, 20*time.Millisecond)
}
