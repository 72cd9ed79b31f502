package crawler

import (
	"github.com/sirupsen/logrus"
)

// StatusSink receives human-readable progress messages. Implementations
// must not block.
type StatusSink interface {
	Report(message string)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(message string)

// Report calls f.
func (f SinkFunc) Report(message string) { f(message) }

// Discard drops every message.
var Discard StatusSink = SinkFunc(func(string) {})

// LogSink writes messages to a logrus logger at info level.
type LogSink struct {
	Logger logrus.FieldLogger
}

// Report logs message at info level.
func (s LogSink) Report(message string) {
	if s.Logger == nil {
		logrus.Info(message)
		return
	}
	s.Logger.Info(message)
}

// ChanSink forwards messages to a channel, dropping them when it is full.
type ChanSink chan string

// Report sends message unless the channel is full.
func (c ChanSink) Report(message string) {
	select {
	case c <- message:
	default:
	}
}

// safeReport shields the crawl from a misbehaving sink.
func safeReport(sink StatusSink, log logrus.FieldLogger, message string) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("message", message).Warnf("status sink panicked: %v", r)
		}
	}()
	sink.Report(message)
}
