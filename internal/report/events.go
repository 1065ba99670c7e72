// Package report holds the machine-readable side of a run: the JSONL
// event log that doubles as a write-ahead record for crash recovery,
// and the human-readable run summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventRunStart         EventType = "run_start"
	EventRunEnd           EventType = "run_end"
	EventAnnotationResult EventType = "annotation_result"
	EventImport           EventType = "import"
	EventRecover          EventType = "recover"
	EventError            EventType = "error"
)

// Event is a single line of the event log. annotation_result events are
// written and synced before the database write so an interrupted run
// can be replayed from the log.
type Event struct {
	Timestamp      time.Time       `json:"ts"`
	RunID          string          `json:"run_id,omitempty"`
	Event          EventType       `json:"event"`
	PoemID         int64           `json:"poem_id,omitempty"`
	Model          string          `json:"model,omitempty"`
	Status         string          `json:"status,omitempty"`
	AnnotationData json.RawMessage `json:"annotation_data,omitempty"`
	Error          string          `json:"error,omitempty"`
	Duration       int64           `json:"duration_ms,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
	path    string
	runID   string
}

// NewEventLogger creates an event log file under outputDir, named with
// the current timestamp and stamped with the given run ID
func NewEventLogger(outputDir, runID string) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("annotation-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:    file,
		encoder: json.NewEncoder(file),
		path:    path,
		runID:   runID,
	}, nil
}

// Log writes an event to the JSONL file. sync forces the line to disk
// before returning.
func (l *EventLogger) Log(event *Event, sync bool) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if sync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync event log: %w", err)
		}
	}

	return nil
}

// LogRunStart records the start of an annotation run for one model
func (l *EventLogger) LogRunStart(model string, pending int) error {
	return l.Log(&Event{
		Event: EventRunStart,
		Model: model,
		Extra: map[string]string{
			"pending": fmt.Sprintf("%d", pending),
		},
	}, false)
}

// LogRunEnd records the end of an annotation run for one model
func (l *EventLogger) LogRunEnd(model string, completed, failed int, duration time.Duration) error {
	return l.Log(&Event{
		Event:    EventRunEnd,
		Model:    model,
		Duration: duration.Milliseconds(),
		Extra: map[string]string{
			"completed": fmt.Sprintf("%d", completed),
			"failed":    fmt.Sprintf("%d", failed),
		},
	}, true)
}

// LogAnnotationResult records one poem's outcome. The line is synced to
// disk so it survives a crash before the database write lands.
func (l *EventLogger) LogAnnotationResult(poemID int64, model, status string, data json.RawMessage, errMsg string, duration time.Duration) error {
	return l.Log(&Event{
		Event:          EventAnnotationResult,
		PoemID:         poemID,
		Model:          model,
		Status:         status,
		AnnotationData: data,
		Error:          errMsg,
		Duration:       duration.Milliseconds(),
	}, true)
}

// LogError records a non-poem error
func (l *EventLogger) LogError(model string, err error) error {
	return l.Log(&Event{
		Event: EventError,
		Model: model,
		Error: err.Error(),
	}, false)
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
