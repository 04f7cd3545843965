// Package prefs stores the user's softphone preferences in a YAML file.
package prefs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Preferences are the user-editable settings.
type Preferences struct {
	AutoSpeaker        bool   `yaml:"auto_speaker" json:"auto_speaker"`
	RecordingDirectory string `yaml:"recording_directory,omitempty" json:"recording_directory,omitempty"`
	AccountSID         string `yaml:"account_sid,omitempty" json:"account_sid,omitempty"`
	AuthToken          string `yaml:"auth_token,omitempty" json:"auth_token,omitempty"`
}

// HasCredentials reports whether both account credentials are set.
func (p Preferences) HasCredentials() bool {
	return p.AccountSID != "" && p.AuthToken != ""
}

// Store is a file-backed Preferences holder. A missing file reads as the
// zero Preferences.
type Store struct {
	path string

	mu      sync.RWMutex
	current Preferences

	watcher *fsnotify.Watcher
}

// Open loads the preferences file at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current preferences.
func (s *Store) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AutoSpeaker reports the auto_speaker preference.
func (s *Store) AutoSpeaker() bool {
	return s.Get().AutoSpeaker
}

// RecordingDirectory returns the configured directory, or fallback when unset.
func (s *Store) RecordingDirectory(fallback string) string {
	if dir := s.Get().RecordingDirectory; dir != "" {
		return dir
	}
	return fallback
}

// Update applies fn to a copy of the preferences and persists the result.
func (s *Store) Update(fn func(*Preferences)) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)

	if err := s.write(next); err != nil {
		return s.current, err
	}
	s.current = next
	return next, nil
}

func (s *Store) write(p Preferences) error {
	data, err := yaml.Marshal(&p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp preferences: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read preferences: %w", err)
	}

	var p Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse preferences %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	return nil
}

// Watch reloads the preferences when the file is edited externally.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("create preferences directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	name := filepath.Base(s.path)
	go func() {
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(100*time.Millisecond, func() {
					if err := s.reload(); err != nil {
						slog.Warn("[Prefs] Reload failed", "path", s.path, "error", err)
						return
					}
					slog.Debug("[Prefs] Reloaded", "path", s.path)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("[Prefs] Watcher error", "error", err)
			}
		}
	}()

	slog.Debug("[Prefs] Watching for changes", "path", s.path)
	return nil
}

// Close stops the watcher, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		return w.Close()
	}
	return nil
}
