package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	types "github.com/sebas/softphone/api/types/v1"
	"github.com/sebas/softphone/internal/controller"
	"github.com/sebas/softphone/internal/recording"
	"github.com/sebas/softphone/internal/session"
)

func toCallStatus(st controller.Status) types.CallStatus {
	out := types.CallStatus{
		State:         st.State.String(),
		CallID:        st.CallID,
		Remote:        st.Remote,
		Origin:        st.Origin,
		OriginLabel:   st.OriginLabel,
		Muted:         st.Muted,
		Speaker:       st.Speaker,
		Recording:     st.Recording,
		RecordingPath: st.RecordingPath,
		Duration:      int(st.Duration.Seconds()),
		LastError:     st.LastError,
		AuthFailure:   st.AuthFailure,
	}
	if !st.ConnectedAt.IsZero() {
		out.ConnectedAt = st.ConnectedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCallStatus(s.ctrl.Status(r.Context())))
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req types.StartCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), "")
		return
	}

	err := s.ctrl.StartCall(r.Context(), req.To, req.From)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, toCallStatus(s.ctrl.Status(r.Context())))
	case errors.Is(err, session.ErrCallInProgress):
		writeError(w, http.StatusConflict, err, "call_in_progress")
	case errors.Is(err, controller.ErrNoOrigin), errors.Is(err, controller.ErrNoDestination):
		writeError(w, http.StatusBadRequest, err, "invalid_request")
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusServiceUnavailable, err, "closed")
	default:
		writeError(w, http.StatusInternalServerError, err, "")
	}
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.EndCallResponse{Ended: s.ctrl.EndCall()})
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ToggleResponse{Enabled: s.ctrl.ToggleMute()})
}

func (s *Server) handleSpeaker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ToggleResponse{Enabled: s.ctrl.ToggleSpeaker()})
}

func (s *Server) handleDigits(w http.ResponseWriter, r *http.Request) {
	var req types.DigitsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), "")
		return
	}
	sent, err := s.ctrl.SendDigits(req.Digits)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid_digits")
		return
	}
	writeJSON(w, http.StatusOK, types.DigitsResponse{Sent: sent})
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.StartRecording()
	if err == nil {
		st := s.ctrl.Status(r.Context())
		writeJSON(w, http.StatusOK, types.RecordingResponse{Recording: true, Path: st.RecordingPath})
		return
	}

	var recErr *recording.Error
	switch {
	case errors.As(err, &recErr) && recErr.Kind == recording.IOError:
		writeError(w, http.StatusInternalServerError, err, recErr.Kind.String())
	case errors.As(err, &recErr):
		writeError(w, http.StatusConflict, err, recErr.Kind.String())
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusServiceUnavailable, err, "closed")
	default:
		writeError(w, http.StatusInternalServerError, err, "")
	}
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	path, ok := s.ctrl.StopRecording()
	if !ok {
		writeJSON(w, http.StatusOK, types.RecordingResponse{})
		return
	}
	writeJSON(w, http.StatusOK, types.RecordingResponse{Recording: false, Path: path})
}
