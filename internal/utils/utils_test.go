package utils

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHistoryPercentile(t *testing.T) {
	h := NewRunHistory(10)
	for i := 1; i <= 5; i++ {
		h.Record(RunSample{RunID: "r", Duration: time.Duration(i*10) * time.Millisecond, Outcome: "success"})
	}

	assert.Equal(t, 5, h.Count())
	assert.Equal(t, 10*time.Millisecond, h.Percentile(0))
	assert.Equal(t, 30*time.Millisecond, h.Percentile(50))
	assert.Equal(t, 50*time.Millisecond, h.Percentile(100))
}

func TestRunHistoryBounded(t *testing.T) {
	h := NewRunHistory(3)
	for i := 0; i < 10; i++ {
		h.Record(RunSample{Duration: time.Duration(i) * time.Millisecond})
	}
	require.Equal(t, 3, h.Count())

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, 9*time.Millisecond, last.Duration)
	assert.Equal(t, 7*time.Millisecond, h.Recent()[0].Duration)
}

func TestRunHistoryEmpty(t *testing.T) {
	h := NewRunHistory(0)
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Zero(t, h.Percentile(95))
}

func TestExitCode(t *testing.T) {
	cause := errors.New("boom")
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitRuntime, ExitCode(NewAppError("export", "write failed", cause)))
	assert.Equal(t, ExitInput, ExitCode(NewInputError("load", "bad column", cause)))

	err := NewInputError("load", "bad column", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "load: bad column: boom", err.Error())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info", true)
	logger.Debug("hidden")
	logger.Info("visible", "records", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"visible"`)
	assert.Contains(t, out, `"service":"spendtrends"`)
}
