package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrocalc/internal/services/tasks"
)

func trackStatic(t *testing.T, body string) *tasks.Run {
	t.Helper()
	fetcher := tasks.StatusFetcherFunc(func(ctx context.Context, taskID string) ([]byte, error) {
		return []byte(body), nil
	})
	tracker := tasks.NewTracker()
	t.Cleanup(func() { _ = tracker.Shutdown(context.Background()) })

	run, err := tasks.Track(tracker, tasks.NewInteractivePoller(fetcher, time.Millisecond, tasks.Callbacks[json.RawMessage]{}), tasks.NewHandle("T1"))
	require.NoError(t, err)
	return run
}

func TestFollow(t *testing.T) {
	t.Run("Should return once the task succeeds", func(t *testing.T) {
		run := trackStatic(t, `{"task_id":"T1","task_status":"SUCCESS","task_result":{"ok":true}}`)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, follow(ctx, run))
	})

	t.Run("Should report a failed task", func(t *testing.T) {
		run := trackStatic(t, `{"task_id":"T1","task_status":"FAILURE","task_result":"boom"}`)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.Error(t, follow(ctx, run))
	})
}

func TestJoin(t *testing.T) {
	t.Run("Should join ids and annualities", func(t *testing.T) {
		assert.Equal(t, "1,2,3", joinUints([]uint{1, 2, 3}))
		assert.Equal(t, "2.3,20,100", joinFloats([]float64{2.3, 20, 100}))
		assert.Equal(t, "", joinFloats(nil))
	})
}

func runJobs(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := jobsCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestJobsCommands(t *testing.T) {
	t.Run("Should list the housekeeping jobs created at startup", func(t *testing.T) {
		t.Setenv("HYDROCALC_DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "jobs.db"))

		out, err := runJobs(t, "list")
		require.NoError(t, err)
		assert.Contains(t, out, "task-sweep")
		assert.Contains(t, out, "0 */5 * * * *")
	})

	t.Run("Should delete a job by name", func(t *testing.T) {
		t.Setenv("HYDROCALC_DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "jobs.db"))

		out, err := runJobs(t, "delete", "task-sweep")
		require.NoError(t, err)
		assert.Contains(t, out, "deleted job task-sweep")
	})

	t.Run("Should fail on an unknown job", func(t *testing.T) {
		t.Setenv("HYDROCALC_DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "jobs.db"))

		_, err := runJobs(t, "delete", "nope")
		assert.ErrorContains(t, err, "not found")
	})
}
