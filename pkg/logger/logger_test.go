package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestLogger_Chaining(t *testing.T) {
	log, err := New("debug")
	require.NoError(t, err)

	child := log.Named("visitor").
		WithField("backend", "file").
		WithFields(map[string]interface{}{"count": 3}).
		WithError(errors.New("boom"))

	assert.NotNil(t, child.Logger)
	assert.NotSame(t, log.Logger, child.Logger)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	assert.NotPanics(t, func() {
		log.WithField("k", "v").Info("discarded")
	})
}
