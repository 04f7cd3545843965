package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	types "github.com/sebas/softphone/api/types/v1"
	"github.com/sebas/softphone/internal/numbers"
)

func toPhoneNumber(n numbers.Number) types.PhoneNumber {
	return types.PhoneNumber{
		Number:       n.Number,
		Nickname:     n.Nickname,
		FriendlyName: n.FriendlyName,
		SID:          n.SID,
		IsDefault:    n.IsDefault,
		DisplayName:  n.DisplayName(),
	}
}

func (s *Server) requireNumbers(w http.ResponseWriter) bool {
	if s.numbers == nil {
		writeError(w, http.StatusNotImplemented, errors.New("number store not configured"), "")
		return false
	}
	return true
}

func (s *Server) handleListNumbers(w http.ResponseWriter, r *http.Request) {
	if !s.requireNumbers(w) {
		return
	}
	list, err := s.numbers.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	out := make([]types.PhoneNumber, 0, len(list))
	for _, n := range list {
		out = append(out, toPhoneNumber(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertNumber(w http.ResponseWriter, r *http.Request) {
	if !s.requireNumbers(w) {
		return
	}
	var req types.PhoneNumber
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), "")
		return
	}
	req.Number = strings.TrimSpace(req.Number)
	if req.Number == "" {
		writeError(w, http.StatusBadRequest, errors.New("number is required"), "invalid_request")
		return
	}

	n := numbers.Number{
		Number:       req.Number,
		Nickname:     strings.TrimSpace(req.Nickname),
		FriendlyName: req.FriendlyName,
		SID:          req.SID,
	}
	if err := s.numbers.Upsert(r.Context(), n); err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	if req.IsDefault {
		if err := s.numbers.SetDefault(r.Context(), n.Number); err != nil {
			writeError(w, http.StatusInternalServerError, err, "")
			return
		}
	}
	stored, err := s.numbers.Get(r.Context(), n.Number)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, toPhoneNumber(stored))
}

func (s *Server) handleDeleteNumber(w http.ResponseWriter, r *http.Request) {
	if !s.requireNumbers(w) {
		return
	}
	s.numberResult(w, s.numbers.Delete(r.Context(), r.PathValue("number")))
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	if !s.requireNumbers(w) {
		return
	}
	s.numberResult(w, s.numbers.SetDefault(r.Context(), r.PathValue("number")))
}

func (s *Server) numberResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, numbers.ErrNotFound):
		writeError(w, http.StatusNotFound, err, "not_found")
	default:
		writeError(w, http.StatusInternalServerError, err, "")
	}
}
