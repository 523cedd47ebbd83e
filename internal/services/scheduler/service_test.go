package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrocalc/internal/database"
	"hydrocalc/internal/models"
)

func TestNormalizeCron(t *testing.T) {
	t.Run("Should convert 5-field to 6-field cron", func(t *testing.T) {
		tests := []struct {
			name     string
			input    string
			expected string
		}{
			{
				name:     "Daily at 2 AM",
				input:    "0 2 * * *",
				expected: "0 0 2 * * *",
			},
			{
				name:     "Every 15 minutes",
				input:    "*/15 * * * *",
				expected: "0 */15 * * * *",
			},
			{
				name:     "Every Monday at 9 AM",
				input:    "0 9 * * 1",
				expected: "0 0 9 * * 1",
			},
			{
				name:     "First day of month at midnight",
				input:    "0 0 1 * *",
				expected: "0 0 0 1 * *",
			},
			{
				name:     "Every 5 minutes",
				input:    "*/5 * * * *",
				expected: "0 */5 * * * *",
			},
			{
				name:     "At 3:30 PM every day",
				input:    "30 15 * * *",
				expected: "0 30 15 * * *",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			})
		}
	})

	t.Run("Should keep 6-field cron unchanged", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{
				name:  "6-field daily at 2 AM",
				input: "0 0 2 * * *",
			},
			{
				name:  "6-field every 15 minutes",
				input: "0 */15 * * * *",
			},
			{
				name:  "6-field with seconds",
				input: "30 0 2 * * 1",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.input, result)
			})
		}
	})

	t.Run("Should fail with invalid field count", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{
				name:  "Too few fields (4)",
				input: "0 2 * *",
			},
			{
				name:  "Too many fields (7)",
				input: "0 0 2 * * * 2025",
			},
			{
				name:  "Empty string",
				input: "",
			},
			{
				name:  "Single field",
				input: "*",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := normalizeCron(tt.input)
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid cron expression")
			})
		}
	})

	t.Run("Should handle cron with extra whitespace", func(t *testing.T) {
		input := "  0   2   *   *   *  "
		// The function trims leading/trailing but keeps internal whitespace structure
		expected := "0 0   2   *   *   *"

		result, err := normalizeCron(input)
		require.NoError(t, err)
		assert.Equal(t, expected, result)
	})
}


type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (f *fakeSweeper) Sweep(retention time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, retention)
	return 2
}

func (f *fakeSweeper) Calls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.calls...)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(context.Background(), database.OpenTestDB(t))
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

func TestUpsertJob(t *testing.T) {
	t.Run("Should reject unknown job types", func(t *testing.T) {
		s := newTestService(t)

		_, err := s.UpsertJob(UpsertJobRequest{Name: "nightly", JobType: "transfer", Cron: "0 2 * * *", Enabled: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown job type")
	})

	t.Run("Should require name, type and cron", func(t *testing.T) {
		s := newTestService(t)

		_, err := s.UpsertJob(UpsertJobRequest{JobType: JobTypeTaskSweep})
		assert.Error(t, err)
	})

	t.Run("Should reject an invalid cron expression", func(t *testing.T) {
		s := newTestService(t)
		s.RegisterHandler(JobTypeTaskSweep, TaskSweepJob(&fakeSweeper{}, time.Minute))

		_, err := s.UpsertJob(UpsertJobRequest{Name: "sweep", JobType: JobTypeTaskSweep, Cron: "61 * * * *", Enabled: true})
		assert.Error(t, err)
	})

	t.Run("Should update an existing job by name", func(t *testing.T) {
		s := newTestService(t)
		s.RegisterHandler(JobTypeTaskSweep, TaskSweepJob(&fakeSweeper{}, time.Minute))

		first, err := s.UpsertJob(UpsertJobRequest{Name: "sweep", JobType: JobTypeTaskSweep, Cron: "*/5 * * * *", Enabled: true})
		require.NoError(t, err)
		assert.True(t, s.Scheduled(first))

		second, err := s.UpsertJob(UpsertJobRequest{Name: "sweep", JobType: JobTypeTaskSweep, Cron: "0 * * * *", Enabled: false})
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.False(t, s.Scheduled(first))

		jobs, err := s.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "0 0 * * * *", jobs[0].Cron)
		assert.False(t, jobs[0].Enabled)
		assert.NotNil(t, jobs[0].NextRun)
		assert.Nil(t, jobs[0].LastRunAt)
	})
}

func TestDeleteJob(t *testing.T) {
	t.Run("Should unschedule and remove the job", func(t *testing.T) {
		s := newTestService(t)
		id, err := s.EnsureTaskSweep(&fakeSweeper{}, "*/5 * * * *", time.Minute)
		require.NoError(t, err)

		require.NoError(t, s.DeleteJob(id))
		assert.False(t, s.Scheduled(id))

		jobs, err := s.ListJobs()
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("Should delete a job by name", func(t *testing.T) {
		s := newTestService(t)
		id, err := s.EnsureTaskSweep(&fakeSweeper{}, "*/5 * * * *", time.Minute)
		require.NoError(t, err)

		require.NoError(t, s.DeleteJob(JobTypeTaskSweep))
		assert.False(t, s.Scheduled(id))
	})

	t.Run("Should report an unknown job", func(t *testing.T) {
		s := newTestService(t)

		err := s.DeleteJob("nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestTaskSweep(t *testing.T) {
	t.Run("Should register the sweep job with a normalized cron", func(t *testing.T) {
		s := newTestService(t)

		id, err := s.EnsureTaskSweep(&fakeSweeper{}, "*/5 * * * *", 15*time.Minute)
		require.NoError(t, err)
		assert.True(t, s.Scheduled(id))

		jobs, err := s.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, JobTypeTaskSweep, jobs[0].JobType)
		assert.Equal(t, "0 */5 * * * *", jobs[0].Cron)
	})

	t.Run("Should sweep with the persisted retention when executed", func(t *testing.T) {
		s := newTestService(t)
		sweeper := &fakeSweeper{}

		id, err := s.EnsureTaskSweep(sweeper, "*/5 * * * *", 15*time.Minute)
		require.NoError(t, err)

		s.executeJob(id)
		assert.Equal(t, []time.Duration{15 * time.Minute}, sweeper.Calls())

		jobs, err := s.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.NotNil(t, jobs[0].LastRunAt)
	})

	t.Run("Should fall back to the default retention", func(t *testing.T) {
		sweeper := &fakeSweeper{}
		job := TaskSweepJob(sweeper, time.Hour)

		require.NoError(t, job(context.Background(), nil))
		require.NoError(t, job(context.Background(), map[string]interface{}{"retention": "90s"}))
		assert.Equal(t, []time.Duration{time.Hour, 90 * time.Second}, sweeper.Calls())
	})

	t.Run("Should reject an invalid retention", func(t *testing.T) {
		sweeper := &fakeSweeper{}
		job := TaskSweepJob(sweeper, time.Hour)

		err := job(context.Background(), map[string]interface{}{"retention": "soon"})
		assert.Error(t, err)
		assert.Empty(t, sweeper.Calls())
	})
}

type fakePruner struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
}

func (f *fakePruner) Prune(ctx context.Context, retention time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, retention)
	return 1, f.err
}

func (f *fakePruner) Calls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.calls...)
}

func TestArtifactPrune(t *testing.T) {
	t.Run("Should register the prune job next to the sweep", func(t *testing.T) {
		s := newTestService(t)

		_, err := s.EnsureTaskSweep(&fakeSweeper{}, "*/5 * * * *", 15*time.Minute)
		require.NoError(t, err)
		id, err := s.EnsureArtifactPrune(&fakePruner{}, "0 3 * * *", 24*time.Hour)
		require.NoError(t, err)
		assert.True(t, s.Scheduled(id))

		jobs, err := s.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		types := []string{jobs[0].JobType, jobs[1].JobType}
		assert.ElementsMatch(t, []string{JobTypeTaskSweep, JobTypeArtifactPrune}, types)
	})

	t.Run("Should prune with the persisted retention when executed", func(t *testing.T) {
		s := newTestService(t)
		pruner := &fakePruner{}

		id, err := s.EnsureArtifactPrune(pruner, "0 3 * * *", 24*time.Hour)
		require.NoError(t, err)

		s.executeJob(id)
		assert.Equal(t, []time.Duration{24 * time.Hour}, pruner.Calls())
	})

	t.Run("Should report a failed delete", func(t *testing.T) {
		pruner := &fakePruner{err: errors.New("bucket unavailable")}
		job := ArtifactPruneJob(pruner, time.Hour)

		assert.ErrorContains(t, job(context.Background(), nil), "bucket unavailable")
		assert.Equal(t, []time.Duration{time.Hour}, pruner.Calls())
	})

	t.Run("Should reject an invalid retention", func(t *testing.T) {
		pruner := &fakePruner{}
		job := ArtifactPruneJob(pruner, time.Hour)

		assert.Error(t, job(context.Background(), map[string]interface{}{"retention": "later"}))
		assert.Empty(t, pruner.Calls())
	})
}
