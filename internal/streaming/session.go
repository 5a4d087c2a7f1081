package streaming

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/pipeline"
)

// sessionTTL is how long a finished session stays queryable
const sessionTTL = time.Hour

// Session tracks one import run and relays its progress to the hub. It
// implements pipeline.Reporter.
type Session struct {
	mu          sync.Mutex
	id          string
	hub         *StreamHub
	status      string
	files       int
	processed   int
	stats       map[string]int
	startedAt   time.Time
	completedAt *time.Time
	err         string
}

var _ pipeline.Reporter = (*Session)(nil)

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Snapshot returns the session state as a session event
func (s *Session) Snapshot() SSEEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[string]int, len(s.stats))
	for k, v := range s.stats {
		stats[k] = v
	}
	return NewEvent(EventTypeSession, SessionEvent{
		ID:          s.id,
		Status:      s.status,
		Files:       s.files,
		Stats:       stats,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Error:       s.err,
	})
}

// Done reports whether the session has finished
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status != StatusRunning
}

func (s *Session) FileStarted(_, total int, path string) {
	s.mu.Lock()
	s.files = total
	s.mu.Unlock()
	s.hub.Broadcast(s.id, NewEvent(EventTypeFile, FileEvent{
		SessionID: s.id,
		FileName:  filepath.Base(path),
		Status:    "processing",
	}))
}

func (s *Session) FileDone(_, total int, file pipeline.FileReport) {
	s.mu.Lock()
	s.processed++
	processed := s.processed
	s.stats["revenues"] += file.Revenues
	s.stats["expenses"] += file.Expenses
	s.stats["rejected"] += file.Rejected
	s.stats["duplicates"] += file.Duplicates
	s.mu.Unlock()

	name := filepath.Base(file.Path)
	s.hub.Broadcast(s.id, NewEvent(EventTypeFile, FileEvent{
		SessionID: s.id,
		FileName:  name,
		Parser:    file.Parser,
		Status:    StatusCompleted,
		Counts: map[string]int{
			"revenues": file.Revenues,
			"expenses": file.Expenses,
			"skipped":  file.Skipped,
			"rejected": file.Rejected,
		},
	}))
	s.hub.Broadcast(s.id, NewProgressEvent(name, processed, total))
}

func (s *Session) FileFailed(_, total int, path string, err error) {
	s.mu.Lock()
	s.processed++
	processed := s.processed
	s.stats["failed"]++
	s.mu.Unlock()

	name := filepath.Base(path)
	s.hub.Broadcast(s.id, NewEvent(EventTypeFile, FileEvent{
		SessionID: s.id,
		FileName:  name,
		Status:    StatusFailed,
		Error:     err.Error(),
	}))
	s.hub.Broadcast(s.id, NewProgressEvent(name, processed, total))
}

// Finish records the outcome of the run and sends the terminal event.
// message is what clients see on failure; it must not carry internals.
func (s *Session) Finish(failed bool, message string) {
	s.mu.Lock()
	now := time.Now().UTC()
	s.completedAt = &now
	s.status = StatusCompleted
	if failed {
		s.status = StatusFailed
		s.err = message
	}
	s.mu.Unlock()

	if failed {
		s.hub.Broadcast(s.id, NewErrorEvent(message))
		return
	}
	s.hub.Broadcast(s.id, s.completeEvent())
}

func (s *Session) completeEvent() SSEEvent {
	e := s.Snapshot()
	e.Type = EventTypeComplete
	return e
}

// Tracker owns the import sessions of a server
type Tracker struct {
	mu       sync.Mutex
	hub      *StreamHub
	sessions map[string]*Session
	now      func() time.Time
}

// NewTracker creates a tracker broadcasting through hub
func NewTracker(hub *StreamHub) *Tracker {
	return &Tracker{hub: hub, sessions: make(map[string]*Session), now: time.Now}
}

// Hub returns the hub sessions broadcast through
func (t *Tracker) Hub() *StreamHub { return t.hub }

// Begin registers a running session and opens its broadcaster. Finished
// sessions older than an hour are forgotten.
func (t *Tracker) Begin(ctx context.Context, id string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for sid, s := range t.sessions {
		s.mu.Lock()
		expired := s.completedAt != nil && now.Sub(*s.completedAt) > sessionTTL
		s.mu.Unlock()
		if expired {
			delete(t.sessions, sid)
		}
	}

	s := &Session{
		id:        id,
		hub:       t.hub,
		status:    StatusRunning,
		stats:     make(map[string]int),
		startedAt: now.UTC(),
	}
	t.sessions[id] = s
	t.hub.Open(ctx, id)
	return s
}

// Get returns the session with id
func (t *Tracker) Get(id string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}
