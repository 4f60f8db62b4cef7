package media

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"

	"g711enhance/pkg/g711"
)

var (
	ErrShortPacket        = errors.New("RTP packet too short")
	ErrUnsupportedPayload = errors.New("unsupported payload type")
)

// CodecInfo represents information about a codec
type CodecInfo struct {
	Name        string
	PayloadType uint8
	SampleRate  int
	Channels    int
	Description string
	Law         g711.Law
}

// SupportedCodecs maps static payload types to codec information
var SupportedCodecs = map[uint8]CodecInfo{
	0: {Name: "PCMU", PayloadType: 0, SampleRate: 8000, Channels: 1, Description: "G.711 μ-law", Law: g711.MuLaw},
	8: {Name: "PCMA", PayloadType: 8, SampleRate: 8000, Channels: 1, Description: "G.711 A-law", Law: g711.ALaw},
}

// GetCodecInfo returns detailed information about a codec by payload type
func GetCodecInfo(payloadType uint8) (CodecInfo, bool) {
	codec, exists := SupportedCodecs[payloadType]
	return codec, exists
}

// CodecByName looks a codec up by its SDP encoding name.
func CodecByName(name string) (CodecInfo, bool) {
	law, err := g711.ParseLaw(name)
	if err != nil {
		return CodecInfo{}, false
	}
	return GetCodecInfo(law.PayloadType())
}

// DetectCodec identifies the codec from a raw RTP packet
func DetectCodec(packet []byte) (CodecInfo, error) {
	var h rtp.Header
	if _, err := h.Unmarshal(packet); err != nil {
		return CodecInfo{}, fmt.Errorf("%w: %v", ErrShortPacket, err)
	}
	if codec, exists := SupportedCodecs[h.PayloadType]; exists {
		return codec, nil
	}
	return CodecInfo{}, fmt.Errorf("%w: %d", ErrUnsupportedPayload, h.PayloadType)
}
