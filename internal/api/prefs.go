package api

import (
	"errors"
	"fmt"
	"net/http"

	types "github.com/sebas/softphone/api/types/v1"
	"github.com/sebas/softphone/internal/prefs"
)

func toPreferences(p prefs.Preferences) types.Preferences {
	return types.Preferences{
		AutoSpeaker:        p.AutoSpeaker,
		RecordingDirectory: p.RecordingDirectory,
		AccountSID:         p.AccountSID,
		HasAuthToken:       p.AuthToken != "",
	}
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeError(w, http.StatusNotImplemented, errors.New("preferences not configured"), "")
		return
	}
	writeJSON(w, http.StatusOK, toPreferences(s.prefs.Get()))
}

func (s *Server) handleUpdatePrefs(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeError(w, http.StatusNotImplemented, errors.New("preferences not configured"), "")
		return
	}
	var req types.PreferencesUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), "")
		return
	}

	updated, err := s.prefs.Update(func(p *prefs.Preferences) {
		if req.AutoSpeaker != nil {
			p.AutoSpeaker = *req.AutoSpeaker
		}
		if req.RecordingDirectory != nil {
			p.RecordingDirectory = *req.RecordingDirectory
		}
		if req.AccountSID != nil {
			p.AccountSID = *req.AccountSID
		}
		if req.AuthToken != nil {
			p.AuthToken = *req.AuthToken
		}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toPreferences(updated))
}
