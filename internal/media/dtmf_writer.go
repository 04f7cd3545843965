package media

import (
	"fmt"
	"time"

	"github.com/pion/rtp"
)

// EventWriter is the RTP sink used for telephone-events. The writer owns
// SSRC and sequence numbering; the event keeps one timestamp throughout.
type EventWriter interface {
	WriteRTP(p *rtp.Packet) error
	Timestamp() uint32
}

// DTMFWriter generates RFC 4733 DTMF events.
type DTMFWriter struct {
	writer      EventWriter
	payloadType uint8
	sampleRate  uint32
	sleep       func(time.Duration)
}

// NewDTMFWriter creates a DTMF writer sending events through writer.
func NewDTMFWriter(writer EventWriter, payloadType uint8) *DTMFWriter {
	return &DTMFWriter{
		writer:      writer,
		payloadType: payloadType,
		sampleRate:  DTMFSampleRate,
		sleep:       time.Sleep,
	}
}

// SendDigit sends one digit. Intermediate packets are sent every 20ms with
// a growing duration, followed by three end-of-event packets.
func (d *DTMFWriter) SendDigit(digit rune, duration time.Duration) error {
	event, ok := RuneToEvent(digit)
	if !ok {
		return fmt.Errorf("invalid DTMF digit: %c", digit)
	}

	total := uint16(duration.Seconds() * float64(d.sampleRate))
	if total < MinDTMFDuration {
		total = MinDTMFDuration
	}
	const interval = 20 * time.Millisecond
	step := uint16(d.sampleRate / 50)

	ts := d.writer.Timestamp()
	first := true
	for dur := step; dur < total; dur += step {
		if err := d.write(event, dur, false, first, ts); err != nil {
			return fmt.Errorf("send DTMF packet: %w", err)
		}
		first = false
		d.sleep(interval)
	}

	for i := 0; i < 3; i++ {
		if err := d.write(event, total, true, first && i == 0, ts); err != nil {
			return fmt.Errorf("send DTMF end packet: %w", err)
		}
		if i < 2 {
			d.sleep(5 * time.Millisecond)
		}
	}
	return nil
}

func (d *DTMFWriter) write(event uint8, dur uint16, end, marker bool, ts uint32) error {
	evt := DTMFEvent{
		Event:      event,
		EndOfEvent: end,
		Volume:     DefaultDTMFVolume,
		Duration:   dur,
	}
	return d.writer.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			Marker:      marker,
			PayloadType: d.payloadType,
			Timestamp:   ts,
		},
		Payload: evt.Encode(),
	})
}

// SendDigitString sends digits with interDigitDelay between them.
func (d *DTMFWriter) SendDigitString(digits string, digitDuration, interDigitDelay time.Duration) error {
	for i, digit := range digits {
		if err := d.SendDigit(digit, digitDuration); err != nil {
			return fmt.Errorf("digit %d (%c): %w", i, digit, err)
		}
		if i < len(digits)-1 {
			d.sleep(interDigitDelay)
		}
	}
	return nil
}
