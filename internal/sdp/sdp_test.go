package sdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebas/softphone/internal/media"
)

func TestBuildOffer(t *testing.T) {
	body, err := BuildOffer(Offer{Addr: "192.0.2.10", Port: 10000, DTMF: 101, Session: 42})
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, "m=audio 10000 RTP/AVP 0 8 101\r\n")
	assert.Contains(t, s, "c=IN IP4 192.0.2.10\r\n")
	assert.Contains(t, s, "a=rtpmap:0 PCMU/8000\r\n")
	assert.Contains(t, s, "a=rtpmap:8 PCMA/8000\r\n")
	assert.Contains(t, s, "a=rtpmap:101 telephone-event/8000\r\n")
	assert.Contains(t, s, "a=fmtp:101 0-15\r\n")
	assert.Contains(t, s, "a=ptime:20\r\n")
	assert.Contains(t, s, "a=sendrecv\r\n")
}

func TestBuildOfferRejectsBadEndpoint(t *testing.T) {
	_, err := BuildOffer(Offer{Addr: "", Port: 10000})
	assert.Error(t, err)
	_, err = BuildOffer(Offer{Addr: "192.0.2.10"})
	assert.Error(t, err)
}

func TestOfferParsesAsAnswer(t *testing.T) {
	body, err := BuildOffer(Offer{Addr: "192.0.2.10", Port: 10002, Codecs: []media.Codec{media.CodecPCMA}, DTMF: 101})
	require.NoError(t, err)

	ans, err := ParseAnswer(body, nil)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", ans.Addr)
	assert.Equal(t, 10002, ans.Port)
	assert.Equal(t, media.CodecPCMA, ans.Codec)
	assert.Equal(t, uint8(101), ans.DTMF)
	assert.Equal(t, "sendrecv", ans.Direction)

	addr, err := ans.RemoteAddr()
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10:10002", addr.String())
}

const carrierAnswer = "v=0\r\n" +
	"o=carrier 1 2 IN IP4 198.51.100.1\r\n" +
	"s=-\r\n" +
	"c=IN IP4 198.51.100.7\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"m=audio 40000 RTP/AVP 8 96\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n" +
	"a=rtpmap:96 telephone-event/8000\r\n" +
	"a=fmtp:96 0-16\r\n" +
	"a=recvonly\r\n"

func TestParseAnswerUsesSessionConnectionAndDynamicDTMF(t *testing.T) {
	ans, err := ParseAnswer([]byte(carrierAnswer), media.VoiceCodecs)
	require.NoError(t, err)

	assert.Equal(t, "198.51.100.7", ans.Addr)
	assert.Equal(t, 40000, ans.Port)
	assert.Equal(t, "PCMA", ans.Codec.Name)
	assert.Equal(t, uint8(96), ans.DTMF)
	assert.Equal(t, "recvonly", ans.Direction)
}

func TestParseAnswerWithoutOfferedCodec(t *testing.T) {
	_, err := ParseAnswer([]byte(carrierAnswer), []media.Codec{media.CodecPCMU})
	assert.ErrorIs(t, err, ErrNoCommonCodec)
}

func TestParseAnswerWithoutAudio(t *testing.T) {
	body := strings.Replace(carrierAnswer, "m=audio 40000", "m=audio 0", 1)
	_, err := ParseAnswer([]byte(body), nil)
	assert.ErrorIs(t, err, ErrNoAudio)

	_, err = ParseAnswer(nil, nil)
	assert.ErrorIs(t, err, ErrNoAudio)

	_, err = ParseAnswer([]byte("not sdp"), nil)
	assert.Error(t, err)
}
