// Package recording writes a call's audio buffers to a file sink that is
// closed exactly once, whichever side ends the recording first.
package recording

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDirectory is used when no directory function is configured.
const DefaultDirectory = "call_recordings"

const defaultQueueSize = 256

// Source produces the audio buffers of a recording.
type Source interface {
	StopRecording()
}

// Sink is the writable destination of a recording.
type Sink interface {
	io.Writer
	Sync() error
	Close() error
}

// Option configures a Pipe.
type Option func(*Pipe)

// WithDirectory sets the function resolving the output directory at start time.
func WithDirectory(dir func() string) Option {
	return func(p *Pipe) {
		p.dir = dir
	}
}

// WithClock overrides the clock used for file names.
func WithClock(now func() time.Time) Option {
	return func(p *Pipe) {
		p.now = now
	}
}

// WithQueueSize bounds how many buffers wait for the writer before new ones are dropped.
func WithQueueSize(n int) Option {
	return func(p *Pipe) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithSinkOpener replaces the file opener.
func WithSinkOpener(open func(path string) (Sink, error)) Option {
	return func(p *Pipe) {
		p.open = open
	}
}

// Pipe manages at most one live Recording.
type Pipe struct {
	dir       func() string
	now       func() time.Time
	open      func(path string) (Sink, error)
	queueSize int

	mu       sync.Mutex
	current  *Recording
	onClosed func(rec *Recording)
}

// NewPipe creates a recording pipe.
func NewPipe(opts ...Option) *Pipe {
	p := &Pipe{
		dir:       func() string { return DefaultDirectory },
		now:       time.Now,
		open:      openFile,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func openFile(path string) (Sink, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// OnClosed registers fn to run once per recording after its sink is closed.
// Paths only have second resolution, so identify recordings by pointer.
func (p *Pipe) OnClosed(fn func(rec *Recording)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClosed = fn
}

// FileName returns the recording file name for remote at t.
func FileName(remote string, t time.Time) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, remote)
	return fmt.Sprintf("call_%s_%s.wav", t.Format("20060102_150405"), digits)
}

// Start opens a sink for a new recording fed by src.
func (p *Pipe) Start(src Source, remote string, callActive bool) (*Recording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return nil, ErrAlreadyRecording
	}
	if !callActive {
		return nil, ErrCallNotActive
	}

	dir := p.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Kind: IOError, Path: dir, Err: err}
	}

	path := filepath.Join(dir, FileName(remote, p.now()))
	sink, err := p.open(path)
	if err != nil {
		return nil, &Error{Kind: IOError, Path: path, Err: err}
	}

	rec := &Recording{
		path:       path,
		src:        src,
		sink:       sink,
		queue:      make(chan []byte, p.queueSize),
		writerDone: make(chan struct{}),
		pipe:       p,
		started:    p.now(),
	}
	go rec.writeLoop()

	p.current = rec
	slog.Info("[Recording] Started", "path", path)
	return rec, nil
}

// Stop asks the source to stop producing buffers and closes the sink.
// It returns the file path if a recording was active.
func (p *Pipe) Stop() (string, bool) {
	p.mu.Lock()
	rec := p.current
	p.mu.Unlock()

	if rec == nil {
		return "", false
	}
	p.StopRecording(rec)
	return rec.path, true
}

// StopRecording stops rec specifically: it stops accepting buffers, asks the
// source to stop and closes the sink. A newer recording is left alone.
func (p *Pipe) StopRecording(rec *Recording) {
	if rec == nil {
		return
	}
	rec.seal()
	if rec.src != nil {
		rec.src.StopRecording()
	}
	rec.Close()
}

// Active reports whether a recording is open.
func (p *Pipe) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

// Current returns the live recording, or nil.
func (p *Pipe) Current() *Recording {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Pipe) detach(rec *Recording) func(*Recording) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == rec {
		p.current = nil
	}
	return p.onClosed
}

// Stats summarises a recording's writes.
type Stats struct {
	BytesWritten int64
	Buffers      int64
	Dropped      int64
	WriteErrors  int64
}

// Recording is one open sink. It receives the transport's recording
// callbacks directly.
type Recording struct {
	path    string
	src     Source
	sink    Sink
	pipe    *Pipe
	started time.Time

	queue      chan []byte
	writerDone chan struct{}

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once

	bytesWritten atomic.Int64
	buffers      atomic.Int64
	dropped      atomic.Int64
	writeErrors  atomic.Int64
}

// Path returns the destination file.
func (r *Recording) Path() string {
	return r.path
}

// Stats returns write counters.
func (r *Recording) Stats() Stats {
	return Stats{
		BytesWritten: r.bytesWritten.Load(),
		Buffers:      r.buffers.Load(),
		Dropped:      r.dropped.Load(),
		WriteErrors:  r.writeErrors.Load(),
	}
}

// RecordingStarted is the transport's confirmation that buffers will flow.
func (r *Recording) RecordingStarted() {
	slog.Debug("[Recording] Source started", "path", r.path)
}

// RecordingFailed closes the sink after a transport-side failure.
func (r *Recording) RecordingFailed(err error) {
	slog.Warn("[Recording] Source failed", "path", r.path, "error", err)
	r.Close()
}

// RecordingStopped closes the sink after the transport stopped producing.
func (r *Recording) RecordingStopped() {
	r.Close()
}

// BufferAvailable queues a copy of data for the writer. Buffers arriving
// after close, or while the queue is full, are dropped.
func (r *Recording) BufferAvailable(data []byte) {
	if len(data) == 0 {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- buf:
	default:
		if r.dropped.Add(1) == 1 {
			slog.Warn("[Recording] Writer behind, dropping buffers", "path", r.path)
		}
	}
}

func (r *Recording) writeLoop() {
	defer close(r.writerDone)
	for buf := range r.queue {
		n, err := r.sink.Write(buf)
		r.bytesWritten.Add(int64(n))
		if err != nil {
			r.writeErrors.Add(1)
			slog.Warn("[Recording] Buffer dropped",
				"error", &BufferWriteError{Path: r.path, Size: len(buf), Err: err},
			)
			continue
		}
		r.buffers.Add(1)
	}
}

// seal stops accepting buffers without closing the sink.
func (r *Recording) seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Close drains queued buffers and closes the sink. Safe to call from any
// goroutine any number of times; only the first call has an effect.
func (r *Recording) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()

		<-r.writerDone

		if err := r.sink.Sync(); err != nil {
			slog.Warn("[Recording] Sync failed", "path", r.path, "error", err)
		}
		if err := r.sink.Close(); err != nil {
			slog.Warn("[Recording] Close failed", "path", r.path, "error", err)
		}

		stats := r.Stats()
		slog.Info("[Recording] Stopped",
			"path", r.path,
			"bytes", stats.BytesWritten,
			"dropped", stats.Dropped,
			"write_errors", stats.WriteErrors,
			"duration", time.Since(r.started).Round(time.Second),
		)

		if onClosed := r.pipe.detach(r); onClosed != nil {
			onClosed(r)
		}
	})
}
