// Package spool watches a directory for coded streams and decodes each new
// file into enhanced PCM in an output directory.
package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"g711enhance/pkg/bitstream"
	"g711enhance/pkg/g711"
	"g711enhance/pkg/media"
	"g711enhance/pkg/metrics"
	"g711enhance/pkg/pipeline"
)

const (
	DefaultSettleDelay = 500 * time.Millisecond
	DefaultSchedule    = "@every 1m"
	outputExt          = ".pcm"
)

var ErrNoDirectory = errors.New("spool directory not set")

// Options configures a Watcher.
type Options struct {
	Dir    string
	OutDir string
	// Law of .g192 and .bit files. Captures carry their payload type.
	Law          g711.Law
	Decoder      g711.Options
	MaxGapFrames int
	// SettleDelay is how long a file must stay unchanged before it is
	// decoded.
	SettleDelay time.Duration
	// Schedule of the summary log line, in cron syntax.
	Schedule string
	Logger   *logrus.Logger
}

// Summary counts the work done since the watcher started.
type Summary struct {
	Files  int
	Failed int
	Frames int
	Lost   int
}

type Watcher struct {
	opts   Options
	logger *logrus.Entry

	mu      sync.Mutex
	summary Summary
	done    map[string]bool
	timers  map[string]*time.Timer

	ready chan string
	quit  chan struct{}
}

func NewWatcher(opts Options) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, ErrNoDirectory
	}
	if opts.Law == nil {
		return nil, g711.ErrUnsupportedLaw
	}
	if opts.OutDir == "" {
		opts.OutDir = opts.Dir
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Watcher{
		opts:   opts,
		logger: opts.Logger.WithField("dir", opts.Dir),
		done:   make(map[string]bool),
		timers: make(map[string]*time.Timer),
		ready:  make(chan string, 64),
		quit:   make(chan struct{}),
	}, nil
}

// Summary returns a copy of the counters.
func (w *Watcher) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

// Run decodes the files already present, then every file that appears,
// until ctx is cancelled. A Watcher runs once.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.quit)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.opts.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.opts.Dir, err)
	}

	c := cron.New()
	if _, err := c.AddFunc(w.opts.Schedule, w.logSummary); err != nil {
		return fmt.Errorf("schedule %q: %w", w.opts.Schedule, err)
	}
	c.Start()
	defer c.Stop()

	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", w.opts.Dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.schedule(filepath.Join(w.opts.Dir, e.Name()))
		}
	}
	w.logger.WithField("out_dir", w.opts.OutDir).Info("Spool watcher started")

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			w.logSummary()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("File watcher error")
		case path := <-w.ready:
			w.process(ctx, path)
		}
	}
}

// schedule (re)starts the settle timer of a file with a known extension.
func (w *Watcher) schedule(path string) {
	if _, ok := jobKind(path); !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done[path] {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.opts.SettleDelay)
		return
	}
	w.timers[path] = time.AfterFunc(w.opts.SettleDelay, func() {
		select {
		case w.ready <- path:
		case <-w.quit:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

type kind int

const (
	kindG192 kind = iota
	kindHardbit
	kindCapture
)

func jobKind(path string) (kind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".g192":
		return kindG192, true
	case ".bit":
		return kindHardbit, true
	case ".rtp", ".rtpdump":
		return kindCapture, true
	}
	return 0, false
}

// OutputPath is where the decoded form of a spooled file is written.
func (w *Watcher) OutputPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(w.opts.OutDir, base+outputExt)
}

func (w *Watcher) process(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.timers, path)
	if w.done[path] {
		w.mu.Unlock()
		return
	}
	w.done[path] = true
	w.mu.Unlock()

	logger := w.logger.WithField("file", filepath.Base(path))
	res, err := w.decodeFile(ctx, path)

	w.mu.Lock()
	if err != nil {
		w.summary.Failed++
	} else {
		w.summary.Files++
		w.summary.Frames += res.Frames
		w.summary.Lost += res.LostFrames
	}
	w.mu.Unlock()

	if metrics.IsMetricsEnabled() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.RecordSpoolJob(result, res.Frames)
	}
	if err != nil {
		logger.WithError(err).Warn("Failed to decode spooled file")
		return
	}
	logger.WithFields(logrus.Fields{
		"stream_id": res.StreamID,
		"frames":    res.Frames,
		"lost":      res.LostFrames,
		"elapsed":   res.Duration,
	}).Info("Decoded spooled file")
}

func (w *Watcher) decodeFile(ctx context.Context, path string) (pipeline.Result, error) {
	k, _ := jobKind(path)
	in, err := os.Open(path)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer in.Close()

	outPath := w.OutputPath(path)
	tmp := outPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return pipeline.Result{}, err
	}

	var res pipeline.Result
	name := filepath.Base(path)
	switch k {
	case kindCapture:
		res, err = pipeline.CaptureJob{
			Receiver: media.ReceiverOptions{
				Decoder:      w.opts.Decoder,
				MaxGapFrames: w.opts.MaxGapFrames,
				Logger:       w.opts.Logger,
			},
			Name: name,
		}.Decode(ctx, in, out)
	default:
		format := bitstream.G192
		if k == kindHardbit {
			format = bitstream.Hardbit
		}
		res, err = pipeline.DecodeJob{
			Law:     w.opts.Law,
			Format:  format,
			Options: w.opts.Decoder,
			Name:    name,
			Logger:  w.opts.Logger,
		}.Decode(ctx, in, out)
	}

	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return res, err
	}
	return res, os.Rename(tmp, outPath)
}

func (w *Watcher) logSummary() {
	s := w.Summary()
	w.logger.WithFields(logrus.Fields{
		"files":  s.Files,
		"failed": s.Failed,
		"frames": s.Frames,
		"lost":   s.Lost,
	}).Info("Spool summary")
}
