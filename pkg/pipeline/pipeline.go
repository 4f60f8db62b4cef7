// Package pipeline runs whole-file jobs: PCM to bitstream, bitstream to
// enhanced PCM, and captured RTP to enhanced PCM. Each job runs inside a
// trace span and reports its frame counts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"g711enhance/pkg/bitstream"
	"g711enhance/pkg/g711"
	"g711enhance/pkg/media"
	"g711enhance/pkg/telemetry/tracing"
)

// Result summarizes one job.
type Result struct {
	StreamID   string
	Frames     int
	LostFrames int
	Duration   time.Duration
}

type EncodeJob struct {
	Law          g711.Law
	Format       bitstream.Format
	NoiseShaping bool
	Name         string
	Logger       *logrus.Logger
}

// Encode reads 16-bit PCM and writes one coded frame per 40 samples. A
// short final frame is zero-padded.
func (j EncodeJob) Encode(ctx context.Context, in io.Reader, out io.Writer) (Result, error) {
	res := Result{StreamID: uuid.New().String()}
	scope := tracing.StartJobScope(ctx, "g711.encode",
		attribute.String("file", j.Name),
		attribute.String("stream_id", res.StreamID),
		attribute.Bool("noise_shaping", j.NoiseShaping),
	)
	defer scope.End()
	start := time.Now()

	enc, err := g711.NewEncoder(j.Law, g711.EncoderOptions{
		NoiseShaping: j.NoiseShaping,
		StreamID:     res.StreamID,
		Logger:       j.Logger,
	})
	if err != nil {
		scope.RecordError(err)
		return res, err
	}
	scope.SetAttributes(attribute.String("law", enc.Law().Name()))

	frames := media.NewFrameReader(in)
	w := bitstream.NewWriter(out, j.Format, g711.FrameLen)
	for {
		if err := ctx.Err(); err != nil {
			scope.RecordError(err)
			return res, err
		}
		pcm, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			scope.RecordError(err)
			return res, err
		}
		codes := enc.Encode(&pcm)
		if err := w.Write(bitstream.Frame{Codes: codes[:]}); err != nil {
			err = fmt.Errorf("frame %d: %w", res.Frames, err)
			scope.RecordError(err)
			return res, err
		}
		res.Frames++
	}
	if err := w.Flush(); err != nil {
		scope.RecordError(err)
		return res, err
	}

	res.Duration = time.Since(start)
	scope.SetAttributes(attribute.Int("frames", res.Frames))
	return res, nil
}

type DecodeJob struct {
	Law     g711.Law
	Format  bitstream.Format
	Options g711.Options
	Name    string
	Logger  *logrus.Logger
}

// Decode reads coded frames and writes enhanced 16-bit PCM, one frame per
// input frame.
func (j DecodeJob) Decode(ctx context.Context, in io.Reader, out io.Writer) (Result, error) {
	res := Result{StreamID: uuid.New().String()}
	scope := tracing.StartJobScope(ctx, "g711.decode",
		attribute.String("file", j.Name),
		attribute.String("stream_id", res.StreamID),
		attribute.String("format", j.Format.String()),
	)
	defer scope.End()
	start := time.Now()

	opts := j.Options
	opts.StreamID = res.StreamID
	opts.Logger = j.Logger
	dec, err := g711.NewDecoder(j.Law, opts)
	if err != nil {
		scope.RecordError(err)
		return res, err
	}
	scope.SetAttributes(attribute.String("law", dec.Law().Name()))

	r := bitstream.NewReader(in, j.Format, g711.FrameLen)
	for {
		if err := ctx.Err(); err != nil {
			scope.RecordError(err)
			return res, err
		}
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			scope.RecordError(err)
			return res, err
		}
		pcm, err := dec.Decode(f.Codes, f.Lost)
		if err != nil {
			err = fmt.Errorf("frame %d: %w", res.Frames, err)
			scope.RecordError(err)
			return res, err
		}
		if _, err := out.Write(media.SamplesToPCM(pcm[:])); err != nil {
			err = fmt.Errorf("write PCM: %w", err)
			scope.RecordError(err)
			return res, err
		}
		res.Frames++
		if f.Lost {
			res.LostFrames++
		}
	}

	res.Duration = time.Since(start)
	scope.SetAttributes(
		attribute.Int("frames", res.Frames),
		attribute.Int("frames.lost", res.LostFrames),
	)
	return res, nil
}

// CaptureJob decodes an rtpdump capture of one G.711 stream.
type CaptureJob struct {
	Receiver media.ReceiverOptions
	Name     string
}

func (j CaptureJob) Decode(ctx context.Context, in io.Reader, out io.Writer) (Result, error) {
	scope := tracing.StartJobScope(ctx, "g711.rtp", attribute.String("file", j.Name))
	defer scope.End()
	start := time.Now()

	capture, err := media.NewCaptureReader(in)
	if err != nil {
		scope.RecordError(err)
		return Result{}, err
	}
	rx := media.NewReceiver(out, j.Receiver)
	res := Result{StreamID: rx.StreamID()}
	scope.SetAttributes(attribute.String("stream_id", res.StreamID))

	for {
		if err := ctx.Err(); err != nil {
			scope.RecordError(err)
			return res, err
		}
		p, err := capture.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			scope.RecordError(err)
			return res, err
		}
		if p.RTCP {
			if err := rx.HandleRTCP(p.Data, capture.Arrival(p)); err != nil {
				j.logger().WithError(err).WithField("stream_id", res.StreamID).Warn("Skipping malformed RTCP record")
			}
			continue
		}
		if err := rx.HandlePacket(p.Data, capture.Arrival(p)); err != nil {
			scope.RecordError(err)
			return res, err
		}
	}
	if err := rx.Flush(); err != nil {
		scope.RecordError(err)
		return res, err
	}
	rx.Summary()

	res.Frames = int(rx.Frames())
	if dec := rx.Decoder(); dec != nil {
		res.LostFrames = int(dec.Engine().Stats().LostFrames)
	}
	res.Duration = time.Since(start)
	scope.SetAttributes(
		attribute.Int("frames", res.Frames),
		attribute.Int("frames.lost", res.LostFrames),
		attribute.Int64("rtp.dropped", int64(rx.Dropped())),
	)
	return res, nil
}

func (j CaptureJob) logger() *logrus.Logger {
	if j.Receiver.Logger != nil {
		return j.Receiver.Logger
	}
	return logrus.StandardLogger()
}
