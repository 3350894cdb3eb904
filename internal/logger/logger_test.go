package logger

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, log.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, log.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, log.InfoLevel, ParseLevel("chatty"))
}

func TestConfigureFiltersByLevel(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	var buf bytes.Buffer
	Logger = newLogger(&buf, ParseLevel("warn"))
	Info("hidden")
	WithPrefix("tts").Warn("synthesis skipped", "reason", "too long")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "tts")
	assert.Contains(t, out, "reason=")
}
