package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedResponse struct {
	body string
	err  error
}

// scriptedFetcher replays responses in order and repeats the last one
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
	taskIDs   []string
}

func (f *scriptedFetcher) FetchStatus(ctx context.Context, taskID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.taskIDs = append(f.taskIDs, taskID)
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	r := f.responses[idx]
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.body), nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const pendingBody = `{"task_id":"T1","task_status":"PENDING","task_result":null}`

func TestInteractivePoller(t *testing.T) {
	t.Run("Should deliver the SUCCESS payload after pending polls", func(t *testing.T) {
		fetcher := &scriptedFetcher{responses: []scriptedResponse{
			{body: pendingBody},
			{body: pendingBody},
			{body: `{"task_id":"T1","task_status":"SUCCESS","task_result":{"northing":1200000,"easting":2600000,"max_outlet_distance":123.4,"geometry":{"type":"Polygon"},"rivernetwork":null}}`},
		}}

		var results []CatchmentResult
		var busy []bool
		poller := NewInteractivePoller(fetcher, time.Millisecond, Callbacks[CatchmentResult]{
			OnResult: func(h Handle, result CatchmentResult) {
				assert.Equal(t, "T1", h.ID)
				results = append(results, result)
			},
			OnError: func(h Handle, payload json.RawMessage) {
				t.Errorf("unexpected error callback: %s", payload)
			},
			OnBusy: func(b bool) { busy = append(busy, b) },
		})

		outcome, err := poller.Run(context.Background(), NewHandle("T1"))
		require.NoError(t, err)

		assert.Equal(t, StatusSuccess, outcome.Status)
		assert.Equal(t, 3, outcome.Polls)
		require.Len(t, results, 1)
		assert.Equal(t, 123.4, results[0].MaxOutletDistance)
		assert.JSONEq(t, `{"type":"Polygon"}`, string(results[0].Geometry))
		assert.Equal(t, []bool{true, false}, busy)

		entries := poller.Progress().Entries()
		require.GreaterOrEqual(t, len(entries), 3)
		for i := 1; i < len(entries); i++ {
			assert.False(t, entries[i].Time.Before(entries[i-1].Time), "entries must be chronological")
		}
		assert.Equal(t, "Starting", entries[0].Detail)
		assert.Equal(t, "PENDING", entries[1].Status)
		assert.Equal(t, "PENDING", entries[2].Status)
		assert.Equal(t, "SUCCESS", entries[len(entries)-1].Status)
	})

	t.Run("Should stop on FAILURE and hand over the payload", func(t *testing.T) {
		fetcher := &scriptedFetcher{responses: []scriptedResponse{
			{body: pendingBody},
			{body: `{"task_id":"T1","task_status":"FAILURE","task_result":{"text":"outlet outside of Switzerland"}}`},
		}}

		var payloads []string
		poller := NewInteractivePoller(fetcher, time.Millisecond, Callbacks[CatchmentResult]{
			OnResult: func(Handle, CatchmentResult) { t.Error("unexpected result callback") },
			OnError:  func(h Handle, payload json.RawMessage) { payloads = append(payloads, string(payload)) },
		})

		outcome, err := poller.Run(context.Background(), NewHandle("T1"))
		require.NoError(t, err)

		assert.Equal(t, StatusFailure, outcome.Status)
		require.Len(t, payloads, 1)
		assert.JSONEq(t, `{"text":"outlet outside of Switzerland"}`, payloads[0])
		assert.Equal(t, 2, fetcher.Calls())

		lines := poller.Progress().Lines()
		assert.Contains(t, lines[len(lines)-1], `FAILURE "outlet outside of Switzerland"`)
	})

	t.Run("Should swallow transport errors and malformed bodies", func(t *testing.T) {
		fetcher := &scriptedFetcher{responses: []scriptedResponse{
			{err: errors.New("connection refused")},
			{body: "<html>bad gateway</html>"},
			{body: `{"task_id":"T1","task_status":"STARTED","task_result":{"text":"routing"}}`},
			{body: `{"task_id":"T1","task_status":"SUCCESS","task_result":{"max_outlet_distance":5}}`},
		}}

		poller := NewInteractivePoller(fetcher, time.Millisecond, Callbacks[CatchmentResult]{})

		outcome, err := poller.Run(context.Background(), NewHandle("T1"))
		require.NoError(t, err)

		assert.Equal(t, StatusSuccess, outcome.Status)
		assert.Equal(t, 4, outcome.Polls)

		entries := poller.Progress().Entries()
		require.Len(t, entries, 3)
		assert.Equal(t, "STARTED", entries[1].Status)
		assert.Equal(t, `"routing"`, entries[1].Detail)
	})

	t.Run("Should stop when the context is cancelled", func(t *testing.T) {
		fetcher := &scriptedFetcher{responses: []scriptedResponse{{body: pendingBody}}}

		var mu sync.Mutex
		var busy []bool
		poller := NewInteractivePoller(fetcher, time.Millisecond, Callbacks[CatchmentResult]{
			OnBusy: func(b bool) {
				mu.Lock()
				busy = append(busy, b)
				mu.Unlock()
			},
		})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			for fetcher.Calls() < 3 {
				time.Sleep(time.Millisecond)
			}
			cancel()
		}()

		_, err := poller.Run(ctx, NewHandle("T1"))
		assert.ErrorIs(t, err, context.Canceled)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []bool{true, false}, busy)
	})

	t.Run("Should report an undecodable SUCCESS result as an error", func(t *testing.T) {
		fetcher := &scriptedFetcher{responses: []scriptedResponse{
			{body: `{"task_id":"T1","task_status":"SUCCESS","task_result":"not an object"}`},
		}}

		called := false
		poller := NewInteractivePoller(fetcher, time.Millisecond, Callbacks[CatchmentResult]{
			OnError: func(Handle, json.RawMessage) { called = true },
		})

		outcome, err := poller.Run(context.Background(), NewHandle("T1"))
		assert.Error(t, err)
		assert.Equal(t, StatusFailure, outcome.Status)
		assert.True(t, called)
	})
}

func TestArtifactPoller(t *testing.T) {
	t.Run("Should treat a non-JSON response after a good poll as artifact ready", func(t *testing.T) {
		fetcher := &scriptedFetcher{responses: []scriptedResponse{
			{body: pendingBody},
			{body: "PK\x03\x04 zipped shapefile"},
		}}

		var refs []ArtifactRef
		poller := NewArtifactPoller(fetcher, time.Millisecond, Callbacks[json.RawMessage]{
			OnArtifact: func(ref ArtifactRef) { refs = append(refs, ref) },
		})

		outcome, err := poller.Run(context.Background(), NewHandle("T2"))
		require.NoError(t, err)

		assert.Equal(t, StatusArtifactReady, outcome.Status)
		require.NotNil(t, outcome.Artifact)
		assert.Equal(t, ArtifactRef{TaskID: "T2", URL: "file/T2"}, *outcome.Artifact)
		assert.Equal(t, []ArtifactRef{{TaskID: "T2", URL: "file/T2"}}, refs)

		lines := poller.Progress().Lines()
		assert.Contains(t, lines[len(lines)-1], "Download result: file/T2")
	})

	t.Run("Should keep polling on a non-JSON response before any good poll", func(t *testing.T) {
		fetcher := &scriptedFetcher{responses: []scriptedResponse{
			{body: "upstream starting"},
			{body: pendingBody},
			{body: "PK\x03\x04"},
		}}

		poller := NewArtifactPoller(fetcher, time.Millisecond, Callbacks[json.RawMessage]{})

		outcome, err := poller.Run(context.Background(), NewHandle("T2"))
		require.NoError(t, err)

		assert.Equal(t, StatusArtifactReady, outcome.Status)
		assert.Equal(t, 3, outcome.Polls)
	})

	t.Run("Should stop on FAILURE", func(t *testing.T) {
		fetcher := &scriptedFetcher{responses: []scriptedResponse{
			{body: `{"task_id":"T2","task_status":"FAILURE","task_result":{"text":"invalid shapefile"}}`},
		}}

		poller := NewArtifactPoller(fetcher, time.Millisecond, Callbacks[json.RawMessage]{})

		outcome, err := poller.Run(context.Background(), NewHandle("T2"))
		require.NoError(t, err)
		assert.Equal(t, StatusFailure, outcome.Status)
		assert.Nil(t, outcome.Artifact)
	})

	t.Run("Should not use the artifact heuristic in the interactive variant", func(t *testing.T) {
		fetcher := &scriptedFetcher{responses: []scriptedResponse{
			{body: pendingBody},
			{body: "PK\x03\x04"},
			{body: `{"task_id":"T1","task_status":"SUCCESS","task_result":null}`},
		}}

		poller := NewInteractivePoller(fetcher, time.Millisecond, Callbacks[json.RawMessage]{})

		outcome, err := poller.Run(context.Background(), NewHandle("T1"))
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, outcome.Status)
		assert.Equal(t, 3, outcome.Polls)
	})
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, ParseStatus("SUCCESS"))
	assert.Equal(t, StatusFailure, ParseStatus("failure"))
	for _, raw := range []string{"PENDING", "STARTED", "RETRY", "PROGRESS", ""} {
		assert.Equal(t, StatusPending, ParseStatus(raw), raw)
	}
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusArtifactReady.Terminal())
}
