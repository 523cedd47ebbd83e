package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Sweeper drops finished task runs older than a retention
type Sweeper interface {
	Sweep(retention time.Duration) int
}

// Pruner deletes mirrored artifacts older than a retention
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int, error)
}

// TaskSweepJob returns the handler of the task-sweep job. The payload may
// override the retention with a "retention" duration string.
func TaskSweepJob(sweeper Sweeper, retention time.Duration) JobFunc {
	return func(ctx context.Context, payload map[string]interface{}) error {
		keep, err := payloadRetention(payload, retention)
		if err != nil {
			return err
		}

		if removed := sweeper.Sweep(keep); removed > 0 {
			log.Printf("[INFO] task-sweep removed %d finished task runs", removed)
		}
		return nil
	}
}

// ArtifactPruneJob returns the handler of the artifact-prune job. The payload
// may override the retention like the task-sweep payload.
func ArtifactPruneJob(pruner Pruner, retention time.Duration) JobFunc {
	return func(ctx context.Context, payload map[string]interface{}) error {
		keep, err := payloadRetention(payload, retention)
		if err != nil {
			return err
		}

		removed, err := pruner.Prune(ctx, keep)
		if removed > 0 {
			log.Printf("[INFO] artifact-prune removed %d mirrored artifacts", removed)
		}
		return err
	}
}

func payloadRetention(payload map[string]interface{}, fallback time.Duration) (time.Duration, error) {
	raw, ok := payload["retention"].(string)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid retention %q: %w", raw, err)
	}
	return d, nil
}

// EnsureTaskSweep registers the task-sweep handler and upserts its job
func (s *Service) EnsureTaskSweep(sweeper Sweeper, cronExpr string, retention time.Duration) (string, error) {
	s.RegisterHandler(JobTypeTaskSweep, TaskSweepJob(sweeper, retention))
	return s.UpsertJob(UpsertJobRequest{
		Name:    JobTypeTaskSweep,
		JobType: JobTypeTaskSweep,
		Cron:    cronExpr,
		Enabled: true,
		Payload: RetentionPayload{Retention: retention.String()},
	})
}

// EnsureArtifactPrune registers the artifact-prune handler and upserts its job
func (s *Service) EnsureArtifactPrune(pruner Pruner, cronExpr string, retention time.Duration) (string, error) {
	s.RegisterHandler(JobTypeArtifactPrune, ArtifactPruneJob(pruner, retention))
	return s.UpsertJob(UpsertJobRequest{
		Name:    JobTypeArtifactPrune,
		JobType: JobTypeArtifactPrune,
		Cron:    cronExpr,
		Enabled: true,
		Payload: RetentionPayload{Retention: retention.String()},
	})
}
