package media

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pion/sdp/v3"

)

var ErrNoAudioCodec = errors.New("no G.711 audio format in SDP")

// LawFromSDP picks the first PCMU or PCMA format of the first audio media
// description. Dynamic payload types are resolved through a=rtpmap.
func LawFromSDP(data []byte) (CodecInfo, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(data); err != nil {
		return CodecInfo{}, fmt.Errorf("parse SDP: %w", err)
	}

	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		for _, format := range md.MediaName.Formats {
			pt, err := strconv.ParseUint(format, 10, 8)
			if err != nil {
				continue
			}
			if codec, err := sd.GetCodecForPayloadType(uint8(pt)); err == nil {
				if info, ok := CodecByName(codec.Name); ok {
					info.PayloadType = uint8(pt)
					return info, nil
				}
				continue
			}
			if info, ok := GetCodecInfo(uint8(pt)); ok {
				return info, nil
			}
		}
		break
	}
	return CodecInfo{}, ErrNoAudioCodec
}
