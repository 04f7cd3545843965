package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestHandlerFormatsAndFilters(t *testing.T) {
	SetLevel("info")
	defer SetLevel("info")

	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf)).With("call_id", "abc")

	log.Debug("[Session] hidden")
	log.Info("[Session] State changed", "state", "Ringing")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] [Session] State changed call_id=abc state=Ringing")
	assert.True(t, strings.HasSuffix(out, "\n"))

	SetLevel("debug")
	assert.Equal(t, "debug", GetLevel())
	log.Debug("[Session] visible")
	assert.Contains(t, buf.String(), "[DEBUG] [Session] visible")
}

func TestWriterRewritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := Writer(&buf)

	_, err := w.Write([]byte(`{"level":"warn","message":"transaction timeout","time":"2024-05-01T10:11:12Z","caller":"x.go:1","tx":"z9hG4bK"}` + "\n"))
	assert.NoError(t, err)
	assert.Equal(t, "[10:11:12] [WARN] transaction timeout tx=z9hG4bK\n", buf.String())

	buf.Reset()
	_, _ = w.Write([]byte("plain line\n"))
	assert.Equal(t, "plain line\n", buf.String())
}
