package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
		env   string
		want  zapcore.Level
	}{
		{"local debug", "debug", "local", zapcore.DebugLevel},
		{"production info", "info", "production", zapcore.InfoLevel},
		{"test warn", "warn", "test", zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.env)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			assert.False(t, logger.Core().Enabled(tt.want-1))
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger("verbose", "local")
	assert.Error(t, err)
}
