package media

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecFraming(t *testing.T) {
	assert.Equal(t, 160, CodecPCMU.SamplesPerFrame())
	assert.Equal(t, 160, CodecPCMA.BytesPerFrame())
	assert.Equal(t, uint32(160), CodecPCMU.TimestampIncrement())
	assert.Equal(t, "PCMA/8000", CodecPCMA.RTPMap())
	assert.True(t, CodecPCMU.IsVoice())
	assert.False(t, CodecTelephoneEvent.IsVoice())
}

func TestCodecDecodeDoublesLength(t *testing.T) {
	for _, c := range VoiceCodecs {
		pcm, err := c.Decode(c.Silence())
		require.NoError(t, err, c.Name)
		assert.Len(t, pcm, 2*c.SamplesPerFrame(), c.Name)
	}
	_, err := CodecTelephoneEvent.Decode([]byte{1, 2, 3, 4})
	assert.Error(t, err)
}

func TestCodecLookup(t *testing.T) {
	c, ok := CodecByName("PCMA")
	require.True(t, ok)
	assert.Equal(t, uint8(8), c.PayloadType)

	_, ok = CodecByName("opus")
	assert.False(t, ok)

	c, ok = CodecByPayloadType(0)
	require.True(t, ok)
	assert.Equal(t, "PCMU", c.Name)

	_, ok = CodecByPayloadType(101)
	assert.False(t, ok, "telephone-event is not a voice codec")
}

func TestDTMFEventRoundTrip(t *testing.T) {
	evt := DTMFEvent{Event: 11, EndOfEvent: true, Volume: 10, Duration: 1600}
	data := evt.Encode()
	require.Len(t, data, 4)
	assert.Equal(t, byte(0x80|10), data[1])

	got, err := DecodeDTMFEvent(data)
	require.NoError(t, err)
	assert.Equal(t, evt, got)
	assert.Equal(t, "DTMF '#' vol=10 dur=1600 END", got.String())

	_, err = DecodeDTMFEvent([]byte{1, 2})
	assert.Error(t, err)
}

func TestDTMFAlphabet(t *testing.T) {
	for i, r := range "0123456789*#ABCD" {
		ev, ok := RuneToEvent(r)
		require.True(t, ok)
		assert.Equal(t, uint8(i), ev)
		back, ok := EventToRune(ev)
		require.True(t, ok)
		assert.Equal(t, r, back)
	}

	ev, ok := RuneToEvent('b')
	assert.True(t, ok)
	assert.Equal(t, uint8(13), ev)

	_, ok = RuneToEvent('x')
	assert.False(t, ok)
	_, ok = EventToRune(16)
	assert.False(t, ok)

	assert.NoError(t, ValidDigits("123*#"))
	assert.Error(t, ValidDigits("12x"))
}

func TestSequenceTrackerLossAndRollover(t *testing.T) {
	var s SequenceTracker

	ext, lost := s.Update(65534)
	assert.Equal(t, uint32(65534), ext)
	assert.Zero(t, lost)

	ext, lost = s.Update(1)
	assert.Equal(t, uint32(1<<16|1), ext)
	assert.Equal(t, 2, lost, "65535 and 0 are missing")

	_, lost = s.Update(0)
	assert.Zero(t, lost)
	assert.Equal(t, uint64(1), s.Reordered())

	received, totalLost := s.Stats()
	assert.Equal(t, uint64(3), received)
	assert.Equal(t, uint64(2), totalLost)
	assert.InDelta(t, 0.4, s.LossRate(), 0.0001)
}

func TestPortPoolRoundRobin(t *testing.T) {
	p := NewPortPool(10001, 10007)
	assert.Equal(t, 3, p.Available())

	a, err := p.Allocate()
	require.NoError(t, err)
	b, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 10002, a)
	assert.Equal(t, 10004, b)

	p.Release(a)
	c, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 10006, c, "released port is not reused first")

	d, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 10002, d)

	_, err = p.Allocate()
	assert.ErrorIs(t, err, ErrNoPorts)
	assert.Equal(t, 3, p.Allocated())
}

type recordingWriter struct {
	packets []*rtp.Packet
	ts      uint32
}

func (w *recordingWriter) WriteRTP(p *rtp.Packet) error {
	w.packets = append(w.packets, p)
	return nil
}

func (w *recordingWriter) Timestamp() uint32 { return w.ts }

func TestDTMFWriterSendDigit(t *testing.T) {
	w := &recordingWriter{ts: 4000}
	d := NewDTMFWriter(w, 101)
	d.sleep = func(time.Duration) {}

	require.NoError(t, d.SendDigit('5', 100*time.Millisecond))

	// 800 samples at 160 per step: 4 progress packets and 3 end packets.
	require.Len(t, w.packets, 7)
	assert.True(t, w.packets[0].Marker)
	for i, p := range w.packets {
		assert.Equal(t, uint8(101), p.PayloadType)
		assert.Equal(t, uint32(4000), p.Timestamp)
		evt, err := DecodeDTMFEvent(p.Payload)
		require.NoError(t, err)
		assert.Equal(t, uint8(5), evt.Event)
		if i >= 4 {
			assert.True(t, evt.EndOfEvent)
			assert.Equal(t, uint16(800), evt.Duration)
			assert.False(t, p.Marker)
		} else {
			assert.False(t, evt.EndOfEvent)
			assert.Equal(t, uint16(160*(i+1)), evt.Duration)
		}
	}
}

func TestDTMFWriterRejectsInvalidDigit(t *testing.T) {
	w := &recordingWriter{}
	d := NewDTMFWriter(w, 101)
	d.sleep = func(time.Duration) {}

	err := d.SendDigitString("1x", 50*time.Millisecond, 0)
	assert.Error(t, err)
	assert.NotEmpty(t, w.packets, "first digit was sent before the failure")
}
