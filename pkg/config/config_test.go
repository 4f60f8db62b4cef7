package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"g711enhance/pkg/bitstream"
	"g711enhance/pkg/g711"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, g711.ALaw, cfg.ParsedLaw())
	assert.Equal(t, bitstream.G192, cfg.BitstreamFormat())
	assert.Equal(t, g711.DefaultOptions(), cfg.DecoderOptions())
	assert.True(t, cfg.NoiseShaping)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "@every 1m", cfg.StatsSchedule)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("G711_LAW", "u")
	t.Setenv("G711_FORMAT", "hardbit")
	t.Setenv("G711_FERC", "false")
	t.Setenv("G711_NOISE_GATE", "0")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, g711.MuLaw, cfg.ParsedLaw())
	assert.Equal(t, bitstream.Hardbit, cfg.BitstreamFormat())
	assert.False(t, cfg.DecoderOptions().Concealment)
	assert.False(t, cfg.DecoderOptions().NoiseGate)

	logger := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestInvalidValues(t *testing.T) {
	t.Setenv("G711_FERC", "maybe")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "G711_FERC")

	t.Setenv("G711_FERC", "")
	t.Setenv("G711_LAW", "g729")
	t.Setenv("G711_FORMAT", "wav")
	t.Setenv("STATS_SCHEDULE", "every minute")
	t.Setenv("LOG_FORMAT", "xml")
	cfg, err := FromEnv()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{"G711_LAW", "G711_FORMAT", "STATS_SCHEDULE", "LOG_FORMAT"} {
		assert.ErrorContains(t, err, key)
	}
	assert.ErrorIs(t, err, g711.ErrUnsupportedLaw)
	assert.ErrorIs(t, err, bitstream.ErrUnknownFormat)
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SPOOL_DIR=/var/spool/g711\nG711_MAX_GAP_FRAMES=20\n"), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Cleanup(func() {
		os.Unsetenv("SPOOL_DIR")
		os.Unsetenv("G711_MAX_GAP_FRAMES")
	})

	cfg, err := Load(logrus.New())
	require.NoError(t, err)
	assert.Equal(t, "/var/spool/g711", cfg.SpoolDir)
	assert.Equal(t, 20, cfg.MaxGapFrames)
}
