package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
)

const (
	dtmfDigitDuration = 160 * time.Millisecond
	dtmfInterDigit    = 80 * time.Millisecond
	maxPacketSize     = 1500
)

// Tap receives each inbound audio frame decoded to 16-bit little-endian PCM.
// It runs on the receive goroutine and must not block.
type Tap func(pcm []byte)

// StreamConfig configures a Stream.
type StreamConfig struct {
	Conn   net.PacketConn
	Remote net.Addr
	Codec  Codec
	// DTMFPayloadType is the negotiated telephone-event type; 0 disables DTMF.
	DTMFPayloadType uint8
	// InactivityTimeout reports media loss after this long without packets.
	// Zero disables the watchdog.
	InactivityTimeout time.Duration
	// Input supplies outbound 16-bit PCM. Nil sends silence.
	Input io.Reader
	// OnInactive and OnResumed fire on watchdog transitions.
	OnInactive func(idle time.Duration)
	OnResumed  func()
}

// StreamStats summarises a stream.
type StreamStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsLost     uint64
	DecodeErrors    uint64
}

// Stream is one bidirectional RTP audio stream. Outbound frames are paced
// by the codec clock.
type Stream struct {
	cfg   StreamConfig
	frame int

	mu   sync.Mutex // guards the RTP header state and socket writes
	ssrc uint32
	seq  uint16
	ts   uint32

	muted    atomic.Bool
	tap      atomic.Pointer[Tap]
	lastRecv atomic.Int64
	inactive atomic.Bool
	dtmfMu   sync.Mutex

	sent         atomic.Uint64
	received     atomic.Uint64
	lost         atomic.Uint64
	decodeErrors atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewStream validates cfg and creates a stream. The stream owns cfg.Conn.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.Conn == nil || cfg.Remote == nil {
		return nil, errors.New("stream needs a connection and a remote address")
	}
	if !cfg.Codec.IsVoice() {
		return nil, fmt.Errorf("codec %s is not a voice codec", cfg.Codec.Name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		cfg:    cfg,
		frame:  cfg.Codec.SamplesPerFrame() * 2,
		ssrc:   GenerateSSRC(),
		seq:    GenerateSequenceStart(),
		ts:     GenerateTimestampStart(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start launches the send, receive and watchdog goroutines.
func (s *Stream) Start() {
	s.startOnce.Do(func() {
		s.lastRecv.Store(time.Now().UnixNano())
		s.wg.Add(2)
		go s.sendLoop()
		go s.recvLoop()
		if s.cfg.InactivityTimeout > 0 {
			s.wg.Add(1)
			go s.watchLoop()
		}
		slog.Debug("[Media] Stream started",
			"local", s.LocalAddr(),
			"remote", s.cfg.Remote.String(),
			"codec", s.cfg.Codec.Name,
			"ssrc", s.ssrc,
		)
	})
}

// LocalAddr returns the local socket address.
func (s *Stream) LocalAddr() string {
	return s.cfg.Conn.LocalAddr().String()
}

// Codec returns the negotiated voice codec.
func (s *Stream) Codec() Codec {
	return s.cfg.Codec
}

// SetMuted replaces outbound audio with silence while set.
func (s *Stream) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// Muted reports the mute flag.
func (s *Stream) Muted() bool {
	return s.muted.Load()
}

// SetTap installs fn as the inbound audio tap; nil removes it.
func (s *Stream) SetTap(fn Tap) {
	if fn == nil {
		s.tap.Store(nil)
		return
	}
	s.tap.Store(&fn)
}

func (s *Stream) sendLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Codec.SampleDur)
	defer ticker.Stop()

	silence := s.cfg.Codec.Silence()
	input := s.cfg.Input
	pcm := make([]byte, s.frame)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		payload := silence
		if input != nil && !s.muted.Load() {
			if _, err := io.ReadFull(input, pcm); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					slog.Warn("[Media] Input failed, sending silence", "error", err)
				}
				input = nil
			} else if enc, err := s.cfg.Codec.Encode(pcm); err == nil {
				payload = enc
			}
		}

		if err := s.writeFrame(payload); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			slog.Debug("[Media] Send failed", "remote", s.cfg.Remote.String(), "error", err)
		}
	}
}

func (s *Stream) writeFrame(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.cfg.Codec.PayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	s.seq++
	s.ts += s.cfg.Codec.TimestampIncrement()
	return s.send(pkt)
}

// send must be called with mu held.
func (s *Stream) send(pkt *rtp.Packet) error {
	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	if _, err := s.cfg.Conn.WriteTo(data, s.cfg.Remote); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

// WriteRTP sends a packet on this stream's SSRC and sequence space.
func (s *Stream) WriteRTP(pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return net.ErrClosed
	}
	pkt.SSRC = s.ssrc
	pkt.SequenceNumber = s.seq
	s.seq++
	return s.send(pkt)
}

// Timestamp returns the RTP timestamp of the next audio frame.
func (s *Stream) Timestamp() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ts
}

// SendDigits sends digits as RFC 4733 events. It blocks for the duration
// of the digits; concurrent calls are serialized.
func (s *Stream) SendDigits(digits string) error {
	if s.cfg.DTMFPayloadType == 0 {
		return errors.New("remote did not negotiate telephone-event")
	}
	if err := ValidDigits(digits); err != nil {
		return err
	}
	s.dtmfMu.Lock()
	defer s.dtmfMu.Unlock()
	return NewDTMFWriter(s, s.cfg.DTMFPayloadType).SendDigitString(digits, dtmfDigitDuration, dtmfInterDigit)
}

func (s *Stream) recvLoop() {
	defer s.wg.Done()
	var tracker SequenceTracker
	buf := make([]byte, maxPacketSize)

	for {
		n, _, err := s.cfg.Conn.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Debug("[Media] Read failed", "error", err)
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		s.lastRecv.Store(time.Now().UnixNano())
		if s.inactive.CompareAndSwap(true, false) && s.cfg.OnResumed != nil {
			s.cfg.OnResumed()
		}

		if s.cfg.DTMFPayloadType != 0 && pkt.PayloadType == s.cfg.DTMFPayloadType {
			if evt, err := DecodeDTMFEvent(pkt.Payload); err == nil && evt.EndOfEvent {
				slog.Debug("[Media] Remote DTMF", "event", evt.String())
			}
			continue
		}
		if pkt.PayloadType != s.cfg.Codec.PayloadType {
			continue
		}

		s.received.Add(1)
		if _, lost := tracker.Update(pkt.SequenceNumber); lost > 0 {
			s.lost.Add(uint64(lost))
		}

		tap := s.tap.Load()
		if tap == nil {
			continue
		}
		pcm, err := s.cfg.Codec.Decode(pkt.Payload)
		if err != nil {
			s.decodeErrors.Add(1)
			continue
		}
		(*tap)(pcm)
	}
}

func (s *Stream) watchLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.InactivityTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
		idle := time.Since(time.Unix(0, s.lastRecv.Load()))
		if idle >= s.cfg.InactivityTimeout && s.inactive.CompareAndSwap(false, true) {
			slog.Warn("[Media] No inbound RTP", "remote", s.cfg.Remote.String(), "idle", idle.Round(time.Millisecond))
			if s.cfg.OnInactive != nil {
				s.cfg.OnInactive(idle)
			}
		}
	}
}

// Stats returns packet counters.
func (s *Stream) Stats() StreamStats {
	return StreamStats{
		PacketsSent:     s.sent.Load(),
		PacketsReceived: s.received.Load(),
		PacketsLost:     s.lost.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
	}
}

// Close stops the goroutines and closes the socket. Safe to call repeatedly.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.cfg.Conn.Close()
		s.wg.Wait()
		stats := s.Stats()
		slog.Debug("[Media] Stream closed",
			"local", s.LocalAddr(),
			"sent", stats.PacketsSent,
			"received", stats.PacketsReceived,
			"lost", stats.PacketsLost,
		)
	})
	return err
}
