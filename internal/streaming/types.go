package streaming

import "time"

// EventType represents the type of SSE event
type EventType string

const (
	EventTypeSession   EventType = "session"
	EventTypeProgress  EventType = "progress"
	EventTypeFile      EventType = "file"
	EventTypeComplete  EventType = "complete"
	EventTypeError     EventType = "error"
	EventTypeHeartbeat EventType = "heartbeat"
)

// Import session statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Terminal reports whether no event follows this one in its session
func (e SSEEvent) Terminal() bool {
	return e.Type == EventTypeComplete || e.Type == EventTypeError
}

// SessionEvent is a snapshot of an import session, sent to every client
// when it connects
type SessionEvent struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Files       int            `json:"files"`
	Stats       map[string]int `json:"stats,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// ProgressEvent reports how many files of the session are finished
type ProgressEvent struct {
	FileName   string  `json:"fileName"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// FileEvent reports a change in one file's import
type FileEvent struct {
	SessionID string         `json:"sessionId"`
	FileName  string         `json:"fileName"`
	Parser    string         `json:"parser,omitempty"`
	Status    string         `json:"status"`
	Counts    map[string]int `json:"counts,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ErrorEvent ends a session that could not run to completion
type ErrorEvent struct {
	Message string `json:"message"`
}

// NewEvent stamps data with the event type and the current time
func NewEvent(t EventType, data interface{}) SSEEvent {
	return SSEEvent{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

// NewProgressEvent computes the percentage for processed of total files
func NewProgressEvent(fileName string, processed, total int) SSEEvent {
	pct := 0.0
	if total > 0 {
		pct = float64(processed) / float64(total) * 100
	}
	return NewEvent(EventTypeProgress, ProgressEvent{
		FileName:   fileName,
		Processed:  processed,
		Total:      total,
		Percentage: pct,
	})
}

// NewErrorEvent builds a terminal error event
func NewErrorEvent(message string) SSEEvent {
	return NewEvent(EventTypeError, ErrorEvent{Message: message})
}
