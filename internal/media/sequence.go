package media

// SequenceTracker tracks inbound RTP sequence numbers across 16-bit
// rollover. It is not safe for concurrent use; the receive loop owns it.
type SequenceTracker struct {
	initialized bool
	lastSeq     uint16
	cycles      uint32
	lost        uint64
	received    uint64
	reordered   uint64
}

// Update records a received sequence number. It returns the extended
// sequence number and how many packets were skipped since the last one.
func (s *SequenceTracker) Update(seq uint16) (extended uint32, lost int) {
	s.received++

	if !s.initialized {
		s.initialized = true
		s.lastSeq = seq
		return uint32(seq), 0
	}

	diff := int16(seq - s.lastSeq)
	switch {
	case diff <= 0:
		// Late or duplicate packet: counted, does not move the window.
		s.reordered++
		return s.cycles<<16 | uint32(seq), 0
	case diff > 1:
		lost = int(diff) - 1
		s.lost += uint64(lost)
	}

	if seq < s.lastSeq {
		s.cycles++
	}
	s.lastSeq = seq
	return s.cycles<<16 | uint32(seq), lost
}

// Stats returns cumulative counters.
func (s *SequenceTracker) Stats() (received, lost uint64) {
	return s.received, s.lost
}

// Reordered returns how many packets arrived late or duplicated.
func (s *SequenceTracker) Reordered() uint64 {
	return s.reordered
}

// LossRate returns the packet loss rate as a fraction (0.0 to 1.0).
func (s *SequenceTracker) LossRate() float64 {
	total := s.received + s.lost
	if total == 0 {
		return 0
	}
	return float64(s.lost) / float64(total)
}
