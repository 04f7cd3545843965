package media

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	return conn
}

func readPacket(t *testing.T, conn net.PacketConn) *rtp.Packet {
	t.Helper()
	buf := make([]byte, maxPacketSize)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	pkt := &rtp.Packet{}
	require.NoError(t, pkt.Unmarshal(buf[:n]))
	return pkt
}

func TestStreamSendsSilenceWithoutInput(t *testing.T) {
	peer := listenUDP(t)
	defer peer.Close()

	s, err := NewStream(StreamConfig{
		Conn:   listenUDP(t),
		Remote: peer.LocalAddr(),
		Codec:  CodecPCMA,
	})
	require.NoError(t, err)
	s.Start()
	defer s.Close()

	first := readPacket(t, peer)
	second := readPacket(t, peer)

	assert.Equal(t, uint8(8), first.PayloadType)
	assert.Equal(t, CodecPCMA.Silence(), first.Payload)
	assert.Equal(t, first.SSRC, second.SSRC)
	assert.Equal(t, first.SequenceNumber+1, second.SequenceNumber)
	assert.Equal(t, first.Timestamp+160, second.Timestamp)
}

func TestStreamMuteReplacesInput(t *testing.T) {
	peer := listenUDP(t)
	defer peer.Close()

	// A constant non-zero tone, long enough for many frames.
	tone := bytes.Repeat([]byte{0x00, 0x40}, 160*100)

	s, err := NewStream(StreamConfig{
		Conn:   listenUDP(t),
		Remote: peer.LocalAddr(),
		Codec:  CodecPCMU,
		Input:  bytes.NewReader(tone),
	})
	require.NoError(t, err)
	s.SetMuted(true)
	s.Start()
	defer s.Close()

	assert.True(t, s.Muted())
	assert.Equal(t, CodecPCMU.Silence(), readPacket(t, peer).Payload)

	s.SetMuted(false)
	want, err := CodecPCMU.Encode(tone[:320])
	require.NoError(t, err)
	deadline := time.Now().Add(2 * time.Second)
	for !bytes.Equal(readPacket(t, peer).Payload, want) {
		require.True(t, time.Now().Before(deadline), "tone never sent after unmute")
	}
}

func TestStreamTapReceivesDecodedAudio(t *testing.T) {
	peer := listenUDP(t)
	defer peer.Close()

	s, err := NewStream(StreamConfig{
		Conn:   listenUDP(t),
		Remote: peer.LocalAddr(),
		Codec:  CodecPCMU,
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var frames [][]byte
	s.SetTap(func(pcm []byte) {
		mu.Lock()
		frames = append(frames, append([]byte(nil), pcm...))
		mu.Unlock()
	})
	s.Start()
	defer s.Close()

	local, err := net.ResolveUDPAddr("udp", s.LocalAddr())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		pkt := &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 0, SequenceNumber: uint16(10 + 2*i), SSRC: 7},
			Payload: CodecPCMU.Silence(),
		}
		data, err := pkt.Marshal()
		require.NoError(t, err)
		_, err = peer.WriteTo(data, local)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Len(t, frames[0], 320)
	mu.Unlock()

	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.PacketsReceived)
	assert.Equal(t, uint64(2), stats.PacketsLost)
}

func TestStreamInactivityWatchdog(t *testing.T) {
	peer := listenUDP(t)
	defer peer.Close()

	var inactive, resumed atomic.Int32
	s, err := NewStream(StreamConfig{
		Conn:              listenUDP(t),
		Remote:            peer.LocalAddr(),
		Codec:             CodecPCMU,
		InactivityTimeout: 80 * time.Millisecond,
		OnInactive:        func(time.Duration) { inactive.Add(1) },
		OnResumed:         func() { resumed.Add(1) },
	})
	require.NoError(t, err)
	s.Start()
	defer s.Close()

	require.Eventually(t, func() bool { return inactive.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	local, err := net.ResolveUDPAddr("udp", s.LocalAddr())
	require.NoError(t, err)
	pkt := &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 0, SSRC: 9}, Payload: CodecPCMU.Silence()}
	data, err := pkt.Marshal()
	require.NoError(t, err)
	_, err = peer.WriteTo(data, local)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return resumed.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamSendDigitsRequiresTelephoneEvent(t *testing.T) {
	peer := listenUDP(t)
	defer peer.Close()

	s, err := NewStream(StreamConfig{Conn: listenUDP(t), Remote: peer.LocalAddr(), Codec: CodecPCMU})
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.SendDigits("1"))
}

func TestStreamWriteRTPUsesStreamSSRC(t *testing.T) {
	peer := listenUDP(t)
	defer peer.Close()

	s, err := NewStream(StreamConfig{Conn: listenUDP(t), Remote: peer.LocalAddr(), Codec: CodecPCMU, DTMFPayloadType: 101})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteRTP(&rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 101, Timestamp: s.Timestamp()},
		Payload: DTMFEvent{Event: 1, Duration: 160}.Encode(),
	}))

	pkt := readPacket(t, peer)
	assert.Equal(t, s.ssrc, pkt.SSRC)
	assert.Equal(t, uint8(101), pkt.PayloadType)
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	peer := listenUDP(t)
	defer peer.Close()

	s, err := NewStream(StreamConfig{Conn: listenUDP(t), Remote: peer.LocalAddr(), Codec: CodecPCMU})
	require.NoError(t, err)
	s.Start()

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.WriteRTP(&rtp.Packet{}), net.ErrClosed)
}

func TestNewStreamValidation(t *testing.T) {
	_, err := NewStream(StreamConfig{Codec: CodecPCMU})
	assert.Error(t, err)

	conn := listenUDP(t)
	defer conn.Close()
	_, err = NewStream(StreamConfig{Conn: conn, Remote: conn.LocalAddr(), Codec: CodecTelephoneEvent})
	assert.Error(t, err)
}
