package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/sebas/softphone/api/types/v1"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCallRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/call", func(w http.ResponseWriter, r *http.Request) {
		var req types.StartCallRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+15551234567", req.To)
		assert.Empty(t, req.From)
		writeJSON(w, http.StatusAccepted, types.CallStatus{State: "Connecting", Remote: req.To})
	})
	mux.HandleFunc("DELETE /api/v1/call", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.EndCallResponse{Ended: true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	st, err := c.Call(context.Background(), "+15551234567", "")
	require.NoError(t, err)
	assert.Equal(t, "Connecting", st.State)

	ended, err := c.Hangup(context.Background())
	require.NoError(t, err)
	assert.True(t, ended)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, types.ErrorResponse{Error: "call already in progress", Kind: "call_in_progress"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Call(context.Background(), "+1", "")
	require.Error(t, err)
	assert.True(t, IsKind(err, "call_in_progress"))
	assert.Contains(t, err.Error(), "status 409")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestNumberPathsAreEscaped(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Method + " " + r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.SetDefaultNumber(context.Background(), "+1 555"))
	assert.Equal(t, "POST /api/v1/numbers/+1%20555/default", got)
	require.NoError(t, c.DeleteNumber(context.Background(), "+1555"))
	assert.Equal(t, "DELETE /api/v1/numbers/+1555", got)
}

func TestWatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(types.Event{Type: types.EventStateChanged, State: "Idle"})
		_ = conn.WriteJSON(types.Event{Type: types.EventConnected})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	var got []string
	err := NewClient(srv.URL).Watch(context.Background(), func(ev types.Event) {
		got = append(got, ev.Type)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{types.EventStateChanged, types.EventConnected}, got)
}

func TestWatchStopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewClient(strings.TrimSuffix(srv.URL, "/")).Watch(ctx, func(types.Event) {})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
