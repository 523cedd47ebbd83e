package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestTracker(t *testing.T) {
	t.Run("Should track a run until it finishes", func(t *testing.T) {
		tracker := NewTracker()
		fetcher := &scriptedFetcher{responses: []scriptedResponse{
			{body: pendingBody},
			{body: `{"task_id":"T1","task_status":"SUCCESS","task_result":{"max_outlet_distance":1}}`},
		}}
		poller := NewInteractivePoller(fetcher, time.Millisecond, Callbacks[CatchmentResult]{})

		run, err := Track(tracker, poller, NewHandle("T1"))
		require.NoError(t, err)
		waitDone(t, run)

		got, ok := tracker.Get("T1")
		require.True(t, ok)
		assert.False(t, got.Busy())

		snap := got.Snapshot()
		assert.Equal(t, StatusSuccess, snap.Status)
		assert.Equal(t, "interactive", snap.Variant)
		assert.NotEmpty(t, snap.Lines)
		require.NotNil(t, snap.Outcome)
		assert.Equal(t, 2, snap.Outcome.Polls)
	})

	t.Run("Should refuse to poll the same task twice", func(t *testing.T) {
		tracker := NewTracker()
		fetcher := &scriptedFetcher{responses: []scriptedResponse{{body: pendingBody}}}

		_, err := Track(tracker, NewInteractivePoller(fetcher, time.Millisecond, Callbacks[json.RawMessage]{}), NewHandle("T1"))
		require.NoError(t, err)

		_, err = Track(tracker, NewInteractivePoller(fetcher, time.Millisecond, Callbacks[json.RawMessage]{}), NewHandle("T1"))
		assert.Error(t, err)

		require.NoError(t, tracker.Shutdown(context.Background()))
	})

	t.Run("Should cancel a run", func(t *testing.T) {
		tracker := NewTracker()
		fetcher := &scriptedFetcher{responses: []scriptedResponse{{body: pendingBody}}}

		run, err := Track(tracker, NewArtifactPoller(fetcher, time.Millisecond, Callbacks[json.RawMessage]{}), NewHandle("T3"))
		require.NoError(t, err)

		require.NoError(t, tracker.Cancel("T3"))
		waitDone(t, run)

		_, finished, runErr := run.Result()
		assert.True(t, finished)
		assert.ErrorIs(t, runErr, context.Canceled)

		assert.Error(t, tracker.Cancel("missing"))
	})

	t.Run("Should sweep consumed and expired runs only", func(t *testing.T) {
		tracker := NewTracker()
		done := &scriptedFetcher{responses: []scriptedResponse{{body: `{"task_id":"x","task_status":"FAILURE","task_result":null}`}}}
		pending := &scriptedFetcher{responses: []scriptedResponse{{body: pendingBody}}}

		consumed, err := Track(tracker, NewInteractivePoller(done, time.Millisecond, Callbacks[json.RawMessage]{}), NewHandle("consumed"))
		require.NoError(t, err)
		kept, err := Track(tracker, NewInteractivePoller(done, time.Millisecond, Callbacks[json.RawMessage]{}), NewHandle("kept"))
		require.NoError(t, err)
		_, err = Track(tracker, NewInteractivePoller(pending, time.Millisecond, Callbacks[json.RawMessage]{}), NewHandle("running"))
		require.NoError(t, err)

		waitDone(t, consumed)
		waitDone(t, kept)
		assert.True(t, tracker.Consume("consumed"))
		assert.False(t, tracker.Consume("running"))

		assert.Equal(t, 1, tracker.Sweep(time.Hour))
		_, ok := tracker.Get("consumed")
		assert.False(t, ok)
		_, ok = tracker.Get("kept")
		assert.True(t, ok)

		// zero retention expires every finished run
		assert.Equal(t, 1, tracker.Sweep(0))
		assert.Equal(t, 1, tracker.Len())

		require.NoError(t, tracker.Shutdown(context.Background()))
	})
}

func TestLayerSet(t *testing.T) {
	t.Run("Should replace a layer with the same name", func(t *testing.T) {
		layers := NewLayerSet()
		layers.ReplaceLayer(Layer{Name: "catchment", TaskID: "T1"})
		layers.ReplaceLayer(Layer{Name: "rivernetwork", TaskID: "T1"})
		layers.ReplaceLayer(Layer{Name: "catchment", TaskID: "T2"})

		list := layers.List()
		require.Len(t, list, 2)
		assert.Equal(t, "rivernetwork", list[0].Name)
		assert.Equal(t, "catchment", list[1].Name)
		assert.Equal(t, "T2", list[1].TaskID)

		layer, ok := layers.Get("catchment")
		require.True(t, ok)
		assert.Equal(t, "T2", layer.TaskID)
	})
}

func TestProgressLog(t *testing.T) {
	t.Run("Should render RFC1123 UTC lines", func(t *testing.T) {
		log := NewProgressLog()
		log.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

		log.Append("PENDING", `"queued"`)
		log.Append("", "Starting")

		assert.Equal(t, []string{
			`Wed, 01 May 2024 12:00:00 UTC PENDING "queued"`,
			"Wed, 01 May 2024 12:00:00 UTC Starting",
		}, log.Lines())
	})

	t.Run("Should stay chronological when the clock steps back", func(t *testing.T) {
		log := NewProgressLog()
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		times := []time.Time{base, base.Add(-time.Minute)}
		i := 0
		log.now = func() time.Time { ts := times[i]; i++; return ts }

		log.Append("PENDING", "")
		log.Append("PENDING", "")

		entries := log.Entries()
		assert.Equal(t, entries[0].Time, entries[1].Time)
	})
}
