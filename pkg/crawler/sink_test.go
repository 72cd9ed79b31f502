package crawler

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestChanSinkDropsWhenFull(t *testing.T) {
	ch := make(ChanSink, 1)
	ch.Report("first")
	ch.Report("second")

	assert.Len(t, ch, 1)
	assert.Equal(t, "first", <-ch)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	LogSink{Logger: logger}.Report("Processing page 1: https://example.com/")
	assert.Contains(t, buf.String(), "Processing page 1")
}

func TestSafeReportRecovers(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	assert.NotPanics(t, func() {
		safeReport(SinkFunc(func(string) { panic("boom") }), logger, "hello")
	})
	assert.Contains(t, buf.String(), "status sink panicked")
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{StateIdle, "idle", false},
		{StateRunning, "running", false},
		{StateCompleted, "completed", true},
		{StateStopped, "stopped", true},
		{StateBudgetExhausted, "budget_exhausted", true},
		{State(42), "unknown", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
		assert.Equal(t, tt.terminal, tt.state.Terminal())
	}
}
