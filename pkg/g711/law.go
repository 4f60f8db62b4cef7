package g711

import (
	"errors"
	"fmt"
	"strings"

	fp "g711enhance/pkg/fixedpoint"
)

// FrameLen is the number of samples in a 5 ms frame at 8 kHz.
const FrameLen = 40

var (
	ErrUnsupportedLaw = errors.New("unsupported G.711 law")
	ErrFrameSize      = errors.New("frame size is not a multiple of 40 samples")
)

// Static RTP payload types of RFC 3551.
const (
	PayloadTypePCMU uint8 = 0
	PayloadTypePCMA uint8 = 8
)

// Code is the result of quantizing one linear sample.
type Code struct {
	Index byte
	// Local is the sample as the decoder will reconstruct it.
	Local    int16
	Exponent int16
}

// Law is a G.711 companding law. Samples are 16-bit linear.
type Law interface {
	Name() string
	Encode(x int16) Code
	// Decode returns the reconstructed sample, its segment and its sign
	// bit (0x80 for positive values).
	Decode(code byte) (sample, exponent, sign int16)
	// Offset is the DC bias the noise shaper adds before quantizing so that
	// small values land on the symmetric A-law levels.
	Offset() int16
	Silence() byte
	PayloadType() uint8
}

var (
	ALaw  Law = aLaw{}
	MuLaw Law = muLaw{}
)

type decoded struct {
	sample, exponent, sign int16
}

var (
	aLawDecodeTable  [256]decoded
	muLawDecodeTable [256]decoded
)

func init() {
	for i := 0; i < 256; i++ {
		aLawDecodeTable[i] = decodeALawSample(byte(i))
		muLawDecodeTable[i] = decodeMuLawSample(byte(i))
	}
}

// ParseLaw accepts the usual spellings of both laws: "A", "alaw", "PCMA",
// "u", "mu", "ulaw", "PCMU" and so on, case-insensitive.
func ParseLaw(s string) (Law, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "alaw", "a-law", "pcma", "g711a":
		return ALaw, nil
	case "u", "mu", "ulaw", "mulaw", "u-law", "pcmu", "g711u":
		return MuLaw, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLaw, s)
}

func LawFromPayloadType(pt uint8) (Law, error) {
	switch pt {
	case PayloadTypePCMA:
		return ALaw, nil
	case PayloadTypePCMU:
		return MuLaw, nil
	}
	return nil, fmt.Errorf("%w: payload type %d", ErrUnsupportedLaw, pt)
}

type aLaw struct{}

func (aLaw) Name() string       { return "PCMA" }
func (aLaw) Offset() int16      { return 8 }
func (aLaw) Silence() byte      { return 0xD5 }
func (aLaw) PayloadType() uint8 { return PayloadTypePCMA }

func (aLaw) Encode(x int16) Code {
	sign := int16(0x80)
	if x < 0 {
		x = fp.Negate(x)
		sign = 0
	}

	var exp, mant int16
	if x > 255 {
		exp = 7 - fp.Norm(x)
		mant = fp.Shr(x, exp+3) - 16
	} else {
		mant = fp.Shr(x, 4)
	}

	index := byte(sign+exp<<4+mant) ^ 0x55
	return Code{Index: index, Local: aLawDecodeTable[index].sample, Exponent: exp}
}

func (aLaw) Decode(code byte) (sample, exponent, sign int16) {
	d := aLawDecodeTable[code]
	return d.sample, d.exponent, d.sign
}

func decodeALawSample(code byte) decoded {
	sign := int16(code & 0x80)
	y := (code ^ 0x55) & 0x7F
	exp := int16(y >> 4)

	val := int16(y&0x0F)<<4 + 8
	if exp > 0 {
		val = (val + 256) << (exp - 1)
	}
	if sign == 0 {
		val = -val
	}
	return decoded{sample: val, exponent: exp, sign: sign}
}

type muLaw struct{}

// largest magnitude before the biased value overflows the top segment
const muLawClip = 32635

func (muLaw) Name() string       { return "PCMU" }
func (muLaw) Offset() int16      { return 0 }
func (muLaw) Silence() byte      { return 0xFF }
func (muLaw) PayloadType() uint8 { return PayloadTypePCMU }

func (muLaw) Encode(x int16) Code {
	x = max(min(x, muLawClip), -muLawClip)
	sign := int16(0x80)
	if x < 0 {
		x = -x
		sign = 0
	}

	x += 132
	exp := 7 - fp.Norm(x)
	mant := fp.Shr(x, exp+3) - 16

	index := byte(sign+exp<<4+mant) ^ 0x7F
	return Code{Index: index, Local: muLawDecodeTable[index].sample, Exponent: exp}
}

func (muLaw) Decode(code byte) (sample, exponent, sign int16) {
	d := muLawDecodeTable[code]
	return d.sample, d.exponent, d.sign
}

func decodeMuLawSample(code byte) decoded {
	sign := int16(code & 0x80)
	y := (code ^ 0x7F) & 0x7F
	exp := int16(y >> 4)

	val := (int16(y&0x0F)<<3+132)<<exp - 132
	if sign == 0 {
		val = -val
	}
	return decoded{sample: val, exponent: exp, sign: sign}
}
