// Package streaming fans import progress out to Server-Sent Event clients.
package streaming

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client represents a connected SSE client
type Client struct {
	Events chan SSEEvent
}

// NewClient creates a new SSE client
func NewClient() *Client {
	return &Client{
		Events: make(chan SSEEvent, 10),
	}
}

// ImportFeed broadcasts events to multiple clients for a single
// import session
type ImportFeed struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	events   chan SSEEvent
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  bool
	log      zerolog.Logger
}

// NewImportFeed creates the feed for one import session
func NewImportFeed(ctx context.Context, log zerolog.Logger) *ImportFeed {
	ctx, cancel := context.WithCancel(ctx)
	return &ImportFeed{
		clients: make(map[*Client]bool),
		events:  make(chan SSEEvent, 100),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}
}

// Register adds a client to the feed. A client registered after
// Stop gets an already closed channel.
func (f *ImportFeed) Register(client *Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		close(client.Events)
		return
	}
	f.clients[client] = true
	f.log.Debug().Int("clients", len(f.clients)).Msg("client registered")
}

// Unregister removes a client from the feed
func (f *ImportFeed) Unregister(client *Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[client]; ok {
		delete(f.clients, client)
		// Stop() already closed every client channel
		if !f.stopped {
			close(client.Events)
		}
		f.log.Debug().Int("clients", len(f.clients)).Msg("client unregistered")
	}
}

// ClientCount returns the number of connected clients
func (f *ImportFeed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Stopped reports whether the feed has shut down
func (f *ImportFeed) Stopped() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.stopped
}

// Broadcast sends an event to all registered clients
func (f *ImportFeed) Broadcast(event SSEEvent) {
	f.mu.RLock()
	if f.stopped {
		f.mu.RUnlock()
		return
	}
	f.mu.RUnlock()

	// Terminal events get a grace period; everything else is dropped when
	// the queue is full
	if event.Terminal() {
		select {
		case f.events <- event:
		case <-f.ctx.Done():
		case <-time.After(100 * time.Millisecond):
			f.log.Error().Str("type", string(event.Type)).Int("capacity", cap(f.events)).
				Msg("failed to queue terminal event, clients may hang")
		}
		return
	}

	select {
	case f.events <- event:
	case <-f.ctx.Done():
	default:
		f.log.Warn().Str("type", string(event.Type)).Msg("event queue full, dropping event")
	}
}

// Stop stops the feed and closes every client channel
func (f *ImportFeed) Stop() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		for client := range f.clients {
			close(client.Events)
			delete(f.clients, client)
		}
		f.mu.Unlock()
		f.cancel()
	})
}

// Start starts broadcasting events to all clients. The feed stops
// itself shortly after delivering a terminal event.
func (f *ImportFeed) Start() {
	go func() {
		defer f.Stop()
		for {
			select {
			case <-f.ctx.Done():
				return
			case event := <-f.events:
				f.fanOut(event)
				if event.Terminal() {
					time.Sleep(100 * time.Millisecond)
					return
				}
			}
		}
	}()
}

func (f *ImportFeed) fanOut(event SSEEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for client := range f.clients {
		if event.Terminal() {
			select {
			case client.Events <- event:
			case <-time.After(50 * time.Millisecond):
				f.log.Error().Str("type", string(event.Type)).Int("capacity", cap(client.Events)).
					Msg("failed to deliver terminal event to client")
			}
			continue
		}

		select {
		case client.Events <- event:
		default:
			f.log.Warn().Str("type", string(event.Type)).Msg("client channel full, skipping event")
		}
	}
}

// StreamHub manages feeds for multiple import sessions
type StreamHub struct {
	mu           sync.RWMutex
	feeds map[string]*ImportFeed
	log          zerolog.Logger
}

// NewStreamHub creates a new stream hub
func NewStreamHub(log zerolog.Logger) *StreamHub {
	return &StreamHub{
		feeds: make(map[string]*ImportFeed),
		log:          log,
	}
}

// Open starts a feed for sessionID before any client connects, so
// the producer can broadcast from its first event. ctx bounds the
// feed's lifetime.
func (h *StreamHub) Open(ctx context.Context, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feed(ctx, sessionID)
}

// Register registers a client for a session and returns the client
func (h *StreamHub) Register(ctx context.Context, sessionID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := NewClient()
	h.feed(ctx, sessionID).Register(client)
	return client
}

// feed returns the live feed for sessionID, replacing one
// that has already stopped. Callers hold h.mu.
func (h *StreamHub) feed(ctx context.Context, sessionID string) *ImportFeed {
	f, exists := h.feeds[sessionID]
	if exists && !f.Stopped() {
		return f
	}
	f = NewImportFeed(ctx, h.log.With().Str("session", sessionID).Logger())
	h.feeds[sessionID] = f
	f.Start()
	h.log.Debug().Str("session", sessionID).Msg("opened import feed")
	return f
}

// Unregister removes a client from a session. The feed is stopped
// once its last client leaves.
func (h *StreamHub) Unregister(sessionID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed, exists := h.feeds[sessionID]
	if !exists {
		return
	}

	feed.Unregister(client)

	if feed.ClientCount() == 0 {
		feed.Stop()
		delete(h.feeds, sessionID)
		h.log.Debug().Str("session", sessionID).Msg("last client disconnected, import feed closed")
	}
}

// Broadcast sends an event to all clients of a session
func (h *StreamHub) Broadcast(sessionID string, event SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	feed, exists := h.feeds[sessionID]
	if !exists {
		h.log.Debug().Str("session", sessionID).Str("type", string(event.Type)).
			Msg("no listeners for session, dropping event")
		return
	}

	feed.Broadcast(event)
}

// IsRunning checks if a live session feed exists
func (h *StreamHub) IsRunning(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	f, exists := h.feeds[sessionID]
	return exists && !f.Stopped()
}
