package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsToInfo(t *testing.T) {
	log, err := New(Options{Environment: "production", Service: "hostelway", Version: "0.1.0"})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewHonorsLevel(t *testing.T) {
	log, err := New(Options{Level: "warn", Environment: "development"})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.WarnLevel))
	require.False(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "shouty"})
	require.Error(t, err)
}
