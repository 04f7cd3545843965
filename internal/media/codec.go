// Package media carries a call's audio over RTP: G.711 framing, RFC 4733
// DTMF, inbound decode for recording taps, and RTP port allocation.
package media

import (
	"fmt"
	"time"

	"github.com/zaf/g711"
)

// Codec represents an immutable audio codec specification.
type Codec struct {
	Name        string        // Codec name as used in SDP rtpmap
	PayloadType uint8         // RTP payload type
	SampleRate  uint32        // Sample rate in Hz
	SampleDur   time.Duration // Duration per frame
	Channels    int           // Number of channels
}

// Pre-defined codecs.
var (
	// CodecPCMU is G.711 µ-law
	CodecPCMU = Codec{"PCMU", 0, 8000, 20 * time.Millisecond, 1}

	// CodecPCMA is G.711 A-law
	CodecPCMA = Codec{"PCMA", 8, 8000, 20 * time.Millisecond, 1}

	// CodecTelephoneEvent is RFC 4733 DTMF events
	CodecTelephoneEvent = Codec{"telephone-event", 101, 8000, 20 * time.Millisecond, 1}
)

// VoiceCodecs lists the audio codecs offered, in preference order.
var VoiceCodecs = []Codec{CodecPCMU, CodecPCMA}

// SamplesPerFrame returns the number of samples in one frame.
// For 8kHz with 20ms frames, this returns 160.
func (c Codec) SamplesPerFrame() int {
	return int(c.SampleRate) * int(c.SampleDur) / int(time.Second)
}

// BytesPerFrame returns the encoded payload bytes per frame. G.711 uses
// one byte per sample.
func (c Codec) BytesPerFrame() int {
	return c.SamplesPerFrame() * c.Channels
}

// TimestampIncrement returns the RTP timestamp increment per frame.
func (c Codec) TimestampIncrement() uint32 {
	return uint32(c.SamplesPerFrame())
}

// RTPMap returns the SDP rtpmap value without the payload type.
func (c Codec) RTPMap() string {
	return fmt.Sprintf("%s/%d", c.Name, c.SampleRate)
}

// IsVoice reports whether the codec carries audio samples.
func (c Codec) IsVoice() bool {
	return c.Name == CodecPCMU.Name || c.Name == CodecPCMA.Name
}

// Decode converts an encoded payload to 16-bit little-endian PCM.
func (c Codec) Decode(payload []byte) ([]byte, error) {
	switch c.Name {
	case CodecPCMU.Name:
		return g711.DecodeUlaw(payload), nil
	case CodecPCMA.Name:
		return g711.DecodeAlaw(payload), nil
	default:
		return nil, fmt.Errorf("codec %s cannot be decoded", c.Name)
	}
}

// Encode converts 16-bit little-endian PCM to the codec's payload format.
func (c Codec) Encode(pcm []byte) ([]byte, error) {
	switch c.Name {
	case CodecPCMU.Name:
		return g711.EncodeUlaw(pcm), nil
	case CodecPCMA.Name:
		return g711.EncodeAlaw(pcm), nil
	default:
		return nil, fmt.Errorf("codec %s cannot be encoded", c.Name)
	}
}

// Silence returns one encoded frame of silence.
func (c Codec) Silence() []byte {
	frame, err := c.Encode(make([]byte, 2*c.SamplesPerFrame()))
	if err != nil {
		return make([]byte, c.BytesPerFrame())
	}
	return frame
}

// CodecByName finds a supported codec by its rtpmap encoding name.
func CodecByName(name string) (Codec, bool) {
	for _, c := range []Codec{CodecPCMU, CodecPCMA, CodecTelephoneEvent} {
		if c.Name == name {
			return c, true
		}
	}
	return Codec{}, false
}

// CodecByPayloadType finds a supported static-payload voice codec.
func CodecByPayloadType(pt uint8) (Codec, bool) {
	for _, c := range VoiceCodecs {
		if c.PayloadType == pt {
			return c, true
		}
	}
	return Codec{}, false
}
