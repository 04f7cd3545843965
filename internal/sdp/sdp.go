// Package sdp builds the softphone's SDP offer and reads the answer.
package sdp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/sebas/softphone/internal/media"
)

var (
	// ErrNoAudio is returned when the answer carries no usable audio stream.
	ErrNoAudio = errors.New("no audio media in SDP")
	// ErrNoCommonCodec is returned when the answer selects no offered codec.
	ErrNoCommonCodec = errors.New("no common codec")
)

// Offer describes the local media endpoint.
type Offer struct {
	Addr    string
	Port    int
	Codecs  []media.Codec
	DTMF    uint8 // telephone-event payload type; 0 omits it
	Session uint64
}

// BuildOffer creates an SDP offer for one sendrecv audio stream.
func BuildOffer(o Offer) ([]byte, error) {
	if o.Addr == "" || o.Port <= 0 {
		return nil, fmt.Errorf("invalid media endpoint %s:%d", o.Addr, o.Port)
	}
	codecs := o.Codecs
	if len(codecs) == 0 {
		codecs = media.VoiceCodecs
	}
	if o.Session == 0 {
		o.Session = uint64(time.Now().UnixNano())
	}

	formats := make([]string, 0, len(codecs)+1)
	attrs := make([]sdp.Attribute, 0, len(codecs)+4)
	for _, c := range codecs {
		pt := strconv.Itoa(int(c.PayloadType))
		formats = append(formats, pt)
		attrs = append(attrs, sdp.NewAttribute("rtpmap", pt+" "+c.RTPMap()))
	}
	if o.DTMF != 0 {
		pt := strconv.Itoa(int(o.DTMF))
		formats = append(formats, pt)
		attrs = append(attrs,
			sdp.NewAttribute("rtpmap", pt+" "+media.CodecTelephoneEvent.RTPMap()),
			sdp.NewAttribute("fmtp", pt+" 0-15"),
		)
	}
	attrs = append(attrs,
		sdp.NewAttribute("ptime", "20"),
		sdp.NewPropertyAttribute("sendrecv"),
	)

	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "softphone",
			SessionID:      o.Session,
			SessionVersion: o.Session,
			NetworkType:    "IN",
			AddressType:    addressType(o.Addr),
			UnicastAddress: o.Addr,
		},
		SessionName: "softphone",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType(o.Addr),
			Address:     &sdp.Address{Address: o.Addr},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{}}},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: o.Port},
					Protos:  []string{"RTP", "AVP"},
					Formats: formats,
				},
				Attributes: attrs,
			},
		},
	}
	return desc.Marshal()
}

func addressType(addr string) string {
	if ip := net.ParseIP(addr); ip != nil && ip.To4() == nil {
		return "IP6"
	}
	return "IP4"
}

// Answer is the negotiated remote media endpoint.
type Answer struct {
	Addr  string
	Port  int
	Codec media.Codec
	DTMF  uint8 // 0 when the remote did not accept telephone-event
	// Direction is the stream's direction attribute, sendrecv when absent.
	Direction string
}

// RemoteAddr resolves the RTP destination.
func (a *Answer) RemoteAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", net.JoinHostPort(a.Addr, strconv.Itoa(a.Port)))
}

// ParseAnswer reads the first active audio stream of an SDP answer and
// picks the first of its formats that was offered.
func ParseAnswer(body []byte, offered []media.Codec) (*Answer, error) {
	if len(body) == 0 {
		return nil, ErrNoAudio
	}
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("parse SDP: %w", err)
	}
	if len(offered) == 0 {
		offered = media.VoiceCodecs
	}

	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "audio" || md.MediaName.Port.Value == 0 {
			continue
		}

		ans := &Answer{Port: md.MediaName.Port.Value, Direction: "sendrecv"}
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			ans.Addr = md.ConnectionInformation.Address.Address
		} else if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
			ans.Addr = desc.ConnectionInformation.Address.Address
		}
		if ans.Addr == "" {
			return nil, fmt.Errorf("%w: missing connection address", ErrNoAudio)
		}

		rtpmaps := make(map[string]string)
		for _, attr := range md.Attributes {
			switch attr.Key {
			case "rtpmap":
				pt, enc, ok := strings.Cut(attr.Value, " ")
				if ok {
					name, _, _ := strings.Cut(enc, "/")
					rtpmaps[pt] = name
				}
			case "sendrecv", "sendonly", "recvonly", "inactive":
				ans.Direction = attr.Key
			}
		}

		found := false
		for _, format := range md.MediaName.Formats {
			pt, err := strconv.Atoi(format)
			if err != nil || pt > 127 {
				continue
			}
			name := rtpmaps[format]
			if strings.EqualFold(name, media.CodecTelephoneEvent.Name) {
				if ans.DTMF == 0 {
					ans.DTMF = uint8(pt)
				}
				continue
			}
			if found {
				continue
			}
			for _, c := range offered {
				if c.PayloadType == uint8(pt) && (name == "" || strings.EqualFold(name, c.Name)) {
					ans.Codec = c
					found = true
					break
				}
			}
		}
		if !found {
			return nil, ErrNoCommonCodec
		}
		return ans, nil
	}
	return nil, ErrNoAudio
}
