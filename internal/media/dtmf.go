package media

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DTMFEvent represents an RFC 4733 telephone-event payload.
// The payload format is 4 bytes:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     event     |E|R| volume    |          duration             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type DTMFEvent struct {
	Event      uint8  // 0-15: 0-9, *, #, A-D
	EndOfEvent bool   // E bit: marks final packet of event
	Volume     uint8  // 0-63 in -dBm0
	Duration   uint16 // Duration in timestamp units
}

// Default DTMF parameters
const (
	DefaultDTMFVolume   uint8  = 10   // -10 dBm0
	DefaultDTMFDuration uint16 = 1600 // 200ms at 8kHz
	MinDTMFDuration     uint16 = 400  // 50ms minimum
	DTMFSampleRate      uint32 = 8000
)

// dtmfAlphabet is indexed by event code.
const dtmfAlphabet = "0123456789*#ABCD"

// RuneToEvent converts a DTMF character to its event code.
func RuneToEvent(r rune) (uint8, bool) {
	if r >= 'a' && r <= 'd' {
		r -= 'a' - 'A'
	}
	i := strings.IndexRune(dtmfAlphabet, r)
	if i < 0 {
		return 0, false
	}
	return uint8(i), true
}

// EventToRune converts a DTMF event code to its character.
func EventToRune(event uint8) (rune, bool) {
	if int(event) >= len(dtmfAlphabet) {
		return 0, false
	}
	return rune(dtmfAlphabet[event]), true
}

// ValidDigits reports the first character of s that is not a DTMF digit.
func ValidDigits(s string) error {
	for i, r := range s {
		if _, ok := RuneToEvent(r); !ok {
			return fmt.Errorf("invalid DTMF digit %q at %d", r, i)
		}
	}
	return nil
}

// Encode serializes the DTMF event to RFC 4733 4-byte format.
func (e DTMFEvent) Encode() []byte {
	b := make([]byte, 4)
	b[0] = e.Event
	b[1] = e.Volume & 0x3F
	if e.EndOfEvent {
		b[1] |= 0x80
	}
	binary.BigEndian.PutUint16(b[2:], e.Duration)
	return b
}

// DecodeDTMFEvent decodes an RFC 4733 4-byte payload into a DTMFEvent.
func DecodeDTMFEvent(payload []byte) (DTMFEvent, error) {
	if len(payload) < 4 {
		return DTMFEvent{}, fmt.Errorf("DTMF payload too short: %d bytes", len(payload))
	}
	return DTMFEvent{
		Event:      payload[0],
		EndOfEvent: (payload[1] & 0x80) != 0,
		Volume:     payload[1] & 0x3F,
		Duration:   binary.BigEndian.Uint16(payload[2:]),
	}, nil
}

// String returns a human-readable representation of the event.
func (e DTMFEvent) String() string {
	char, ok := EventToRune(e.Event)
	if !ok {
		char = '?'
	}
	end := ""
	if e.EndOfEvent {
		end = " END"
	}
	return fmt.Sprintf("DTMF '%c' vol=%d dur=%d%s", char, e.Volume, e.Duration, end)
}
