package gateway

import (
	"bytes"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimestampFormat renders event times as HH:MM:SS.mmm
const DefaultTimestampFormat = "15:04:05.000"

// EventLogger receives human-readable protocol events, one line per call.
type EventLogger interface {
	Log(event string)
}

// EventLoggerFunc adapts a function to EventLogger.
type EventLoggerFunc func(event string)

func (f EventLoggerFunc) Log(event string) { f(event) }

// nopEventLogger discards events
type nopEventLogger struct{}

func (nopEventLogger) Log(string) {}

// EventFormatter renders logrus entries as "[<timestamp>] <message>".
// Fields are intentionally not rendered; the event log is meant for people.
type EventFormatter struct {
	TimestampFormat string
}

// Format implements logrus.Formatter
func (f *EventFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = DefaultTimestampFormat
	}

	var b bytes.Buffer
	b.WriteByte('[')
	b.WriteString(entry.Time.Format(layout))
	b.WriteString("] ")
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// EventLog is an EventLogger writing timestamped lines through a dedicated logrus logger.
type EventLog struct {
	logger *logrus.Logger
}

// NewEventLog creates an event log writing to w. An empty timestampFormat selects DefaultTimestampFormat.
func NewEventLog(w io.Writer, timestampFormat string) *EventLog {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&EventFormatter{TimestampFormat: timestampFormat})
	return &EventLog{logger: logger}
}

// Log implements EventLogger
func (l *EventLog) Log(event string) {
	l.logger.Info(event)
}

// LogAt writes event stamped with t instead of the current time
func (l *EventLog) LogAt(t time.Time, event string) {
	l.logger.WithTime(t).Info(event)
}
