package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"TRACE", TRACE},
		{"DEBUG", DEBUG},
		{"INFO", INFO},
		{"WARN", WARN},
		{"ERROR", ERROR},
		{"FATAL", FATAL},
		{"debug", DEBUG},
		{"Error", ERROR},
		{"bogus", INFO},
		{"", INFO},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, GetLevelFromString(tc.input), "input %q", tc.input)
	}
}

func TestIsLevelEnabled(t *testing.T) {
	defer SetLevel(INFO)

	SetLevel(WARN)
	assert.False(t, IsLevelEnabled(DEBUG))
	assert.False(t, IsLevelEnabled(INFO))
	assert.True(t, IsLevelEnabled(WARN))
	assert.True(t, IsLevelEnabled(ERROR))

	SetLevel(TRACE)
	assert.True(t, IsLevelEnabled(TRACE))
}

func TestLevelToString(t *testing.T) {
	assert.Equal(t, "DEBUG", levelToString(DEBUG))
	assert.Equal(t, "FATAL", levelToString(FATAL))
	assert.Equal(t, "UNKNOWN", levelToString(LogLevel(99)))
}

func TestLogMessageRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	original := stdLogger
	stdLogger = log.New(&buf, "", 0)
	defer func() {
		stdLogger = original
		SetLevel(INFO)
	}()

	SetLevel(WARN)
	Info("should be suppressed")
	assert.Empty(t, buf.String())

	Warn("disk %d%% full", 93)
	assert.Equal(t, "[WARN] disk 93% full\n", buf.String())
}
