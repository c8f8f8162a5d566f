package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		env      string
		expected zapcore.Level
		wantErr  bool
	}{
		{"Explicit", "debug", "", zapcore.DebugLevel, false},
		{"Case and spaces", " WARN ", "", zapcore.WarnLevel, false},
		{"From environment", "", "error", zapcore.ErrorLevel, false},
		{"Explicit beats environment", "debug", "error", zapcore.DebugLevel, false},
		{"Default", "", "", zapcore.InfoLevel, false},
		{"Unknown", "chatty", "", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestNew(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	logger, err := New("debug", FormatConsole)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New("", "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = New("info", "xml")
	assert.Error(t, err)
}
