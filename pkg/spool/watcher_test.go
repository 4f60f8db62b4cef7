package spool

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"g711enhance/pkg/bitstream"
	"g711enhance/pkg/g711"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

func codedFile(t *testing.T, format bitstream.Format, frames int, lost map[int]bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf, format, g711.FrameLen)
	for n := 0; n < frames; n++ {
		if lost[n] {
			require.NoError(t, w.Write(bitstream.Frame{Lost: true}))
			continue
		}
		codes := make([]byte, g711.FrameLen)
		for i := range codes {
			codes[i] = g711.ALaw.Encode(int16((n*g711.FrameLen + i) % 2000)).Index
		}
		require.NoError(t, w.Write(bitstream.Frame{Codes: codes}))
	}
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func TestNewWatcherValidates(t *testing.T) {
	_, err := NewWatcher(Options{Law: g711.ALaw})
	assert.ErrorIs(t, err, ErrNoDirectory)

	_, err = NewWatcher(Options{Dir: t.TempDir()})
	assert.ErrorIs(t, err, g711.ErrUnsupportedLaw)

	dir := t.TempDir()
	w, err := NewWatcher(Options{Dir: dir, Law: g711.ALaw})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "call.pcm"), w.OutputPath(filepath.Join(dir, "call.g192")))
}

func TestWatcherDecodesSpooledFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.bit"), codedFile(t, bitstream.Hardbit, 10, nil), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	w, err := NewWatcher(Options{
		Dir:         dir,
		OutDir:      out,
		Law:         g711.ALaw,
		Decoder:     g711.DefaultOptions(),
		SettleDelay: 20 * time.Millisecond,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	earlyOut := filepath.Join(out, "early.pcm")
	require.Eventually(t, func() bool {
		_, err := os.Stat(earlyOut)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.g192"), codedFile(t, bitstream.G192, 20, map[int]bool{5: true, 6: true}), 0o644))
	lateOut := filepath.Join(out, "late.pcm")
	require.Eventually(t, func() bool {
		_, err := os.Stat(lateOut)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	info, err := os.Stat(earlyOut)
	require.NoError(t, err)
	assert.Equal(t, int64(10*g711.FrameLen*2), info.Size())
	info, err = os.Stat(lateOut)
	require.NoError(t, err)
	assert.Equal(t, int64(20*g711.FrameLen*2), info.Size())

	s := w.Summary()
	assert.Equal(t, 2, s.Files)
	assert.Zero(t, s.Failed)
	assert.Equal(t, 30, s.Frames)
	assert.Equal(t, 2, s.Lost)

	_, err = os.Stat(filepath.Join(out, "notes.pcm"))
	assert.True(t, os.IsNotExist(err))
}

func TestWatcherCountsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.g192"), []byte{0x21, 0x6B, 0x40}, 0o644))

	w, err := NewWatcher(Options{Dir: dir, Law: g711.MuLaw, SettleDelay: 10 * time.Millisecond, Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return w.Summary().Failed == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	_, err = os.Stat(filepath.Join(dir, "broken.pcm"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "broken.pcm.tmp"))
	assert.True(t, os.IsNotExist(err))
}
