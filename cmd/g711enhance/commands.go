package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"g711enhance/pkg/bitstream"
	"g711enhance/pkg/g711"
	"g711enhance/pkg/media"
	"g711enhance/pkg/pipeline"
	"g711enhance/pkg/spool"
)

func runEncode(ctx context.Context, a *app, args []string) error {
	fs, quiet := a.newFlagSet("encode")
	ns := fs.Bool("ns", a.cfg.NoiseShaping, "enable noise shaping and the DC blocker")
	hardbit := fs.Bool("hardbit", a.cfg.BitstreamFormat() == bitstream.Hardbit, "write hardbit instead of G.192 softbit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(fs, 3); err != nil {
		return err
	}
	a.applyQuiet(*quiet)

	law, err := g711.ParseLaw(fs.Arg(0))
	if err != nil {
		return err
	}
	in, err := os.Open(fs.Arg(1))
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(fs.Arg(2))
	if err != nil {
		return err
	}

	res, err := pipeline.EncodeJob{
		Law:          law,
		Format:       formatFlag(*hardbit),
		NoiseShaping: *ns,
		Name:         filepath.Base(fs.Arg(1)),
		Logger:       a.logger,
	}.Encode(ctx, in, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"stream_id": res.StreamID,
		"law":       law.Name(),
		"frames":    res.Frames,
		"elapsed":   res.Duration,
	}).Info("Encoding finished")
	return nil
}

func runDecode(ctx context.Context, a *app, args []string) error {
	fs, quiet := a.newFlagSet("decode")
	ng, pf, ferc := a.decoderFlags(fs)
	hardbit := fs.Bool("hardbit", a.cfg.BitstreamFormat() == bitstream.Hardbit, "read hardbit instead of G.192 softbit")
	wav := fs.Bool("wav", false, "write a WAV file instead of raw PCM")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(fs, 3); err != nil {
		return err
	}
	a.applyQuiet(*quiet)

	law, err := g711.ParseLaw(fs.Arg(0))
	if err != nil {
		return err
	}
	format := formatFlag(*hardbit)
	if format == bitstream.Hardbit && *ferc {
		a.logger.Warn("Hardbit input carries no erasure flags, concealment only adds delay")
	}
	in, err := os.Open(fs.Arg(1))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := createOutput(fs.Arg(2), *wav)
	if err != nil {
		return err
	}
	res, err := pipeline.DecodeJob{
		Law:     law,
		Format:  format,
		Options: g711.Options{NoiseGate: *ng, Concealment: *ferc, PostFilter: *pf},
		Name:    filepath.Base(fs.Arg(1)),
		Logger:  a.logger,
	}.Decode(ctx, in, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"stream_id": res.StreamID,
		"law":       law.Name(),
		"frames":    res.Frames,
		"lost":      res.LostFrames,
		"elapsed":   res.Duration,
	}).Info("Decoding finished")
	return nil
}

// runPacketize turns a bitstream into an rtpdump capture. Erased frames
// are not sent, so they reappear as gaps on the receiving side.
func runPacketize(ctx context.Context, a *app, args []string) error {
	fs, quiet := a.newFlagSet("packetize")
	ptime := fs.Int("ptime", 20, "packet duration in ms, a multiple of 5")
	hardbit := fs.Bool("hardbit", a.cfg.BitstreamFormat() == bitstream.Hardbit, "read hardbit instead of G.192 softbit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(fs, 3); err != nil {
		return err
	}
	a.applyQuiet(*quiet)
	if *ptime <= 0 || *ptime%5 != 0 {
		return fmt.Errorf("ptime %d is not a positive multiple of 5", *ptime)
	}

	law, err := g711.ParseLaw(fs.Arg(0))
	if err != nil {
		return err
	}
	codec, _ := media.GetCodecInfo(law.PayloadType())
	in, err := os.Open(fs.Arg(1))
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(fs.Arg(2))
	if err != nil {
		return err
	}
	defer out.Close()

	start := time.Now()
	cw, err := media.NewCaptureWriter(out, nil, start)
	if err != nil {
		return err
	}
	pk := media.NewPacketizer(codec, rand.Uint32(), *ptime/5)
	r := bitstream.NewReader(in, formatFlag(*hardbit), g711.FrameLen)

	frame, packets, lost := 0, 0, 0
	write := func(pkts []*rtp.Packet) error {
		at := start.Add(time.Duration(frame) * 5 * time.Millisecond)
		for _, p := range pkts {
			raw, err := p.Marshal()
			if err != nil {
				return err
			}
			if err := cw.WritePacket(raw, at); err != nil {
				return err
			}
			packets++
		}
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		frame++
		if f.Lost {
			lost++
			if err := write(pk.Flush()); err != nil {
				return err
			}
			pk.Skip(g711.FrameLen)
			continue
		}
		if err := write(pk.Push(f.Codes)); err != nil {
			return err
		}
	}
	if err := write(pk.Flush()); err != nil {
		return err
	}
	if err := cw.Flush(); err != nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"frames":  frame,
		"lost":    lost,
		"packets": packets,
	}).Info("Packetizing finished")
	return out.Close()
}

func runRTP(ctx context.Context, a *app, args []string) error {
	fs, quiet := a.newFlagSet("rtp")
	ng, pf, ferc := a.decoderFlags(fs)
	sdpPath := fs.String("sdp", "", "SDP offer that names the payload format")
	wav := fs.Bool("wav", false, "write a WAV file instead of raw PCM")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(fs, 2); err != nil {
		return err
	}
	a.applyQuiet(*quiet)

	opts := media.ReceiverOptions{
		Decoder:      g711.Options{NoiseGate: *ng, Concealment: *ferc, PostFilter: *pf},
		MaxGapFrames: a.cfg.MaxGapFrames,
		Logger:       a.logger,
	}
	if *sdpPath != "" {
		data, err := os.ReadFile(*sdpPath)
		if err != nil {
			return err
		}
		codec, err := media.LawFromSDP(data)
		if err != nil {
			return err
		}
		opts.Codec = codec
		a.logger.WithFields(logrus.Fields{
			"codec":        codec.Name,
			"payload_type": codec.PayloadType,
		}).Debug("Codec taken from SDP")
	}

	in, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := createOutput(fs.Arg(1), *wav)
	if err != nil {
		return err
	}
	_, err = pipeline.CaptureJob{Receiver: opts, Name: filepath.Base(fs.Arg(0))}.Decode(ctx, in, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs, quiet := a.newFlagSet("watch")
	dir := fs.String("dir", a.cfg.SpoolDir, "directory to watch")
	outDir := fs.String("out", a.cfg.SpoolOutDir, "directory for decoded files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(fs, 0); err != nil {
		return err
	}
	a.applyQuiet(*quiet)

	w, err := spool.NewWatcher(spool.Options{
		Dir:          *dir,
		OutDir:       *outDir,
		Law:          a.cfg.ParsedLaw(),
		Decoder:      a.cfg.DecoderOptions(),
		MaxGapFrames: a.cfg.MaxGapFrames,
		Schedule:     a.cfg.StatsSchedule,
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func formatFlag(hardbit bool) bitstream.Format {
	if hardbit {
		return bitstream.Hardbit
	}
	return bitstream.G192
}

// output is a PCM destination that may need finishing on Close.
type output struct {
	f   *os.File
	wav *media.WAVWriter
}

func createOutput(path string, wav bool) (*output, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	o := &output{f: f}
	if wav {
		o.wav, err = media.NewWAVWriter(f, 8000, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	return o, nil
}

func (o *output) Write(p []byte) (int, error) {
	if o.wav != nil {
		return o.wav.Write(p)
	}
	return o.f.Write(p)
}

func (o *output) Close() error {
	var err error
	if o.wav != nil {
		err = o.wav.Close()
	}
	if cerr := o.f.Close(); err == nil {
		err = cerr
	}
	return err
}
