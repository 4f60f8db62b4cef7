package media

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Captures use the rtpdump layout: a text magic line, a 16-byte binary
// file header, then packets each prefixed by an 8-byte record header.
const (
	rtpdumpMagic      = "#!rtpplay1.0 "
	captureHeaderSize = 16
	recordHeaderSize  = 8
	maxRecordSize     = 1<<16 - 1
)

var ErrBadCapture = errors.New("malformed RTP capture")

// CapturePacket is one captured datagram. RTCP records carry RTCP true.
type CapturePacket struct {
	Offset time.Duration
	Data   []byte
	RTCP   bool
}

type CaptureReader struct {
	r      *bufio.Reader
	Start  time.Time
	Source string
}

// NewCaptureReader consumes the file header and positions the reader on
// the first packet.
func NewCaptureReader(r io.Reader) (*CaptureReader, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read magic: %v", ErrBadCapture, err)
	}
	if !strings.HasPrefix(line, rtpdumpMagic) {
		return nil, fmt.Errorf("%w: missing rtpplay magic", ErrBadCapture)
	}

	var hdr [captureHeaderSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: read file header: %v", ErrBadCapture, err)
	}
	sec := binary.BigEndian.Uint32(hdr[0:4])
	usec := binary.BigEndian.Uint32(hdr[4:8])

	return &CaptureReader{
		r:      br,
		Start:  time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)),
		Source: strings.TrimSpace(strings.TrimPrefix(line, rtpdumpMagic)),
	}, nil
}

// Next returns the next packet, or io.EOF at the end of the capture.
func (c *CaptureReader) Next() (CapturePacket, error) {
	var hdr [recordHeaderSize]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return CapturePacket{}, fmt.Errorf("%w: truncated record header", ErrBadCapture)
		}
		return CapturePacket{}, err
	}
	length := int(binary.BigEndian.Uint16(hdr[0:2]))
	plen := binary.BigEndian.Uint16(hdr[2:4])
	offset := binary.BigEndian.Uint32(hdr[4:8])
	if length < recordHeaderSize {
		return CapturePacket{}, fmt.Errorf("%w: record length %d", ErrBadCapture, length)
	}

	data := make([]byte, length-recordHeaderSize)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return CapturePacket{}, fmt.Errorf("%w: truncated record: %v", ErrBadCapture, err)
	}
	return CapturePacket{
		Offset: time.Duration(offset) * time.Millisecond,
		Data:   data,
		RTCP:   plen == 0,
	}, nil
}

// Arrival is the absolute receive time of a packet in this capture.
func (c *CaptureReader) Arrival(p CapturePacket) time.Time {
	return c.Start.Add(p.Offset)
}

type CaptureWriter struct {
	w     *bufio.Writer
	start time.Time
}

func NewCaptureWriter(w io.Writer, source *net.UDPAddr, start time.Time) (*CaptureWriter, error) {
	if source == nil {
		source = &net.UDPAddr{IP: net.IPv4zero}
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s%s/%d\n", rtpdumpMagic, source.IP, source.Port); err != nil {
		return nil, err
	}

	var hdr [captureHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(start.Unix()))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(start.Nanosecond()/1000))
	if ip4 := source.IP.To4(); ip4 != nil {
		copy(hdr[8:12], ip4)
	}
	binary.BigEndian.PutUint16(hdr[12:14], uint16(source.Port))
	if _, err := bw.Write(hdr[:]); err != nil {
		return nil, err
	}
	return &CaptureWriter{w: bw, start: start}, nil
}

// WritePacket appends an RTP packet received at the given time.
func (c *CaptureWriter) WritePacket(data []byte, at time.Time) error {
	if len(data)+recordHeaderSize > maxRecordSize {
		return fmt.Errorf("%w: packet of %d bytes", ErrBadCapture, len(data))
	}
	offset := at.Sub(c.start)
	if offset < 0 {
		offset = 0
	}

	var hdr [recordHeaderSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(len(data)+recordHeaderSize))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(data)))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(offset/time.Millisecond))
	if _, err := c.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := c.w.Write(data)
	return err
}

func (c *CaptureWriter) Flush() error {
	return c.w.Flush()
}
