package media

import (
	"crypto/rand"
	"encoding/binary"
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return make([]byte, n)
	}
	return b
}

// GenerateSSRC generates a random 32-bit SSRC (RFC 3550 §8.1).
func GenerateSSRC() uint32 {
	ssrc := binary.BigEndian.Uint32(randomBytes(4))
	if ssrc == 0 {
		return 0x12345678
	}
	return ssrc
}

// GenerateSequenceStart generates a random starting sequence number.
func GenerateSequenceStart() uint16 {
	return binary.BigEndian.Uint16(randomBytes(2))
}

// GenerateTimestampStart generates a random starting timestamp.
func GenerateTimestampStart() uint32 {
	return binary.BigEndian.Uint32(randomBytes(4))
}
