package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestConfigureLevel(t *testing.T) {
	defer Configure("info", os.Stderr)

	var buf bytes.Buffer
	Configure("warn", &buf)
	assert.Equal(t, log.WarnLevel, Logger.GetLevel())

	Info("hidden")
	Warn("shown", "session_id", "sess_1")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "session_id=sess_1")
}

func TestConfigureUnknownLevel(t *testing.T) {
	defer Configure("info", os.Stderr)

	Configure("loud", nil)
	assert.Equal(t, log.InfoLevel, Logger.GetLevel())
}
