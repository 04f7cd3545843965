package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLevel = slog.LevelInfo
	levelMu     sync.RWMutex
)

// FileConfig configures the rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingFile returns a writer that rotates the log file by size.
func NewRotatingFile(cfg FileConfig) io.WriteCloser {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 14
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// zerologWriter rewrites JSON lines (sipgo logs through zerolog) into the
// same line format the slog handler produces.
type zerologWriter struct {
	base io.Writer
}

func (w *zerologWriter) Write(p []byte) (int, error) {
	if !strings.HasPrefix(strings.TrimSpace(string(p)), "{") {
		return w.base.Write(p)
	}

	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		return w.base.Write(p)
	}

	level := "info"
	if lv, ok := entry["level"]; ok {
		level = fmt.Sprint(lv)
	}
	message := fmt.Sprint(entry["message"])

	ts := time.Now()
	if t, ok := entry["time"]; ok {
		if parsed, err := time.Parse(time.RFC3339, fmt.Sprint(t)); err == nil {
			ts = parsed
		}
	}

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "level", "message", "time", "caller":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	attrs := make([]string, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, fmt.Sprintf("%s=%v", k, entry[k]))
	}

	line := formatLine(ts, strings.ToUpper(level), message, attrs)
	if _, err := w.base.Write([]byte(line)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetLevel sets the global log level
func SetLevel(levelStr string) {
	level := ParseLevel(levelStr)
	levelMu.Lock()
	defer levelMu.Unlock()
	globalLevel = level
}

// GetLevel returns the current log level as a string
func GetLevel() string {
	levelMu.RLock()
	defer levelMu.RUnlock()

	switch globalLevel {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel parses a string to an slog level. Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func currentLevel() slog.Level {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return globalLevel
}

// lineHandler writes "[15:04:05] [LEVEL] msg k=v" lines to every output.
type lineHandler struct {
	outs  []io.Writer
	mu    *sync.Mutex
	attrs []slog.Attr
	group string
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= currentLevel()
}

func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < currentLevel() {
		return nil
	}

	attrs := make([]string, 0, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		attrs = append(attrs, h.render(a))
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.render(a))
		return true
	})

	line := []byte(formatLine(record.Time, strings.ToUpper(record.Level.String()), record.Message, attrs))

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.outs {
		if out != nil {
			_, _ = out.Write(line)
		}
	}
	return nil
}

func (h *lineHandler) render(a slog.Attr) string {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	return key + "=" + a.Value.String()
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &lineHandler{outs: h.outs, mu: h.mu, attrs: merged, group: h.group}
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &lineHandler{outs: h.outs, mu: h.mu, attrs: h.attrs, group: group}
}

func formatLine(ts time.Time, level, message string, attrs []string) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(ts.Format("15:04:05"))
	b.WriteString("] [")
	b.WriteString(level)
	b.WriteString("] ")
	b.WriteString(message)
	if len(attrs) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(attrs, " "))
	}
	b.WriteString("\n")
	return b.String()
}

// NewHandler builds the line handler over the given outputs.
func NewHandler(outputs ...io.Writer) slog.Handler {
	return &lineHandler{outs: outputs, mu: &sync.Mutex{}}
}

// Writer wraps an output so JSON log lines from sipgo are reformatted.
func Writer(out io.Writer) io.Writer {
	return &zerologWriter{base: out}
}

// InitLogger initializes the global logger with one or more output writers
func InitLogger(outputs ...io.Writer) {
	wrapped := make([]io.Writer, len(outputs))
	for i, out := range outputs {
		wrapped[i] = Writer(out)
	}
	slog.SetDefault(slog.New(NewHandler(wrapped...)))
}
