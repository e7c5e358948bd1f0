// Package audit writes one JSON line per state-changing action.
package audit

import (
	"encoding/json"
	"io"
	"log"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Event is a single audited action.
type Event struct {
	Action   string         `json:"action"`
	ActorUID string         `json:"actor_uid"`
	Role     string         `json:"role,omitempty"`
	Subject  string         `json:"subject,omitempty"`
	Result   string         `json:"result"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

type Logger struct {
	logger *log.Logger
	closer io.Closer
	now    func() time.Time
}

// NewFileLogger writes to path with size based rotation. An empty path
// returns a Logger that drops everything.
func NewFileLogger(path string) *Logger {
	if path == "" {
		return Discard()
	}
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 10,
		MaxAge:     90,
		Compress:   true,
	}
	l := NewLogger(writer)
	l.closer = writer
	return l
}

func NewLogger(w io.Writer) *Logger {
	return &Logger{
		logger: log.New(w, "", 0),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func Discard() *Logger {
	return NewLogger(io.Discard)
}

// Record stamps the event and appends it. Failures to encode are dropped.
func (l *Logger) Record(event Event) {
	if l == nil {
		return
	}
	if event.Result == "" {
		event.Result = "success"
	}
	line := struct {
		Timestamp string `json:"timestamp"`
		Event
	}{
		Timestamp: l.now().Format(time.RFC3339Nano),
		Event:     event,
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	l.logger.Println(string(data))
}

// Failure is a helper for recording a rejected or failed action.
func (l *Logger) Failure(event Event, err error) {
	event.Result = "failed"
	if err != nil {
		event.Error = err.Error()
	}
	l.Record(event)
}

func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
