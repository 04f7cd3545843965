package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/sebas/softphone/api/types/v1"
)

func TestCommandsReachAPI(t *testing.T) {
	var calls []string
	var lastUpdate types.PreferencesUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/call":
			_ = json.NewEncoder(w).Encode(types.CallStatus{State: "Connecting", Remote: "+15551234567"})
		case "/api/v1/prefs":
			if r.Method == http.MethodPut {
				_ = json.NewDecoder(r.Body).Decode(&lastUpdate)
			}
			_ = json.NewEncoder(w).Encode(types.Preferences{})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{})
		}
	}))
	defer srv.Close()

	run := func(args ...string) {
		t.Helper()
		root := rootCmd()
		root.SetArgs(append([]string{"--api", srv.URL}, args...))
		require.NoError(t, root.Execute())
	}

	run("call", "+15551234567", "--from", "+15559876543")
	run("status")
	run("dtmf", "12#")
	run("record", "start")
	run("numbers", "default", "+15559876543")
	run("prefs", "set", "--auto-speaker=true")

	assert.Equal(t, []string{
		"POST /api/v1/call",
		"GET /api/v1/call",
		"POST /api/v1/call/digits",
		"POST /api/v1/recording",
		"POST /api/v1/numbers/+15559876543/default",
		"PUT /api/v1/prefs",
	}, calls)

	require.NotNil(t, lastUpdate.AutoSpeaker)
	assert.True(t, *lastUpdate.AutoSpeaker)
	assert.Nil(t, lastUpdate.AccountSID)
}

func TestCallRequiresNumber(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"call"})
	assert.Error(t, root.Execute())
}
