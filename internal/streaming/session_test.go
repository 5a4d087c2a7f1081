package streaming

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/strdash/internal/pipeline"
)

func TestSession_RelaysPipelineProgress(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newHub())
	session := tracker.Begin(ctx, "import-9")
	client := tracker.Hub().Register(ctx, "import-9")

	session.FileStarted(0, 2, "/exports/cochran/relay.csv")
	session.FileDone(0, 2, pipeline.FileReport{Path: "/exports/cochran/relay.csv", Parser: "bank-csv", Expenses: 2, Skipped: 1})
	session.FileFailed(1, 2, "/exports/unknown.csv", errors.New("no parser found"))
	session.Finish(false, "")

	var types []EventType
	for {
		event, ok := <-client.Events
		if !ok {
			break
		}
		types = append(types, event.Type)
		switch data := event.Data.(type) {
		case FileEvent:
			if data.Status == StatusCompleted {
				assert.Equal(t, "relay.csv", data.FileName)
				assert.Equal(t, 2, data.Counts["expenses"])
			}
			if data.Status == StatusFailed {
				assert.Equal(t, "no parser found", data.Error)
			}
		case SessionEvent:
			assert.Equal(t, StatusCompleted, data.Status)
			assert.Equal(t, 2, data.Stats["expenses"])
			assert.Equal(t, 1, data.Stats["failed"])
		}
	}
	assert.Equal(t, []EventType{
		EventTypeFile,
		EventTypeFile, EventTypeProgress,
		EventTypeFile, EventTypeProgress,
		EventTypeComplete,
	}, types)
	assert.True(t, session.Done())
}

func TestSession_FinishWithError(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newHub())
	session := tracker.Begin(ctx, "import-10")
	client := tracker.Hub().Register(ctx, "import-10")

	session.Finish(true, "import failed")

	select {
	case event := <-client.Events:
		require.Equal(t, EventTypeError, event.Type)
		assert.Equal(t, "import failed", event.Data.(ErrorEvent).Message)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error event")
	}

	snap := session.Snapshot().Data.(SessionEvent)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "import failed", snap.Error)
	assert.NotNil(t, snap.CompletedAt)
}

func TestTracker_ForgetsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newHub())
	now := time.Now()
	tracker.now = func() time.Time { return now }

	old := tracker.Begin(ctx, "old")
	old.Finish(false, "")
	running := tracker.Begin(ctx, "running")

	_, ok := tracker.Get("old")
	assert.True(t, ok, "recently finished sessions stay")

	// Finish stamps wall-clock time; move the tracker past the TTL
	tracker.now = func() time.Time { return time.Now().Add(2 * sessionTTL) }
	tracker.Begin(ctx, "new")

	_, ok = tracker.Get("old")
	assert.False(t, ok)
	got, ok := tracker.Get("running")
	require.True(t, ok)
	assert.Same(t, running, got)
	assert.False(t, got.Done())
}
