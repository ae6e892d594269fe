// Package jobqueue is a durable delayed-job queue stored in the service
// database. Jobs are keyed: enqueueing an existing key is a no-op, and a
// pending job can be cancelled by key before it runs.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medication-reminder-backend/config"
	"medication-reminder-backend/internal/model"
)

// ErrNotFound is returned by Get when no job has the key.
var ErrNotFound = errors.New("job not found")

// Job is the view of a claimed row handed to a Handler.
type Job struct {
	ID      int64
	Queue   string
	Key     string
	Payload []byte
	Attempt int
	// MaxAttempts is the attempt budget fixed when the job was enqueued.
	MaxAttempts int
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload of job %s: %w", j.Key, err)
	}
	return nil
}

// Queue is one named logical queue sharing the scheduled_jobs table.
type Queue struct {
	db     *gorm.DB
	name   string
	cfg    config.QueueConfig
	shared config.QueuesConfig
	clk    clockwork.Clock
	log    *zap.Logger
}

// New creates a queue handle. Nothing is started until a Worker runs.
func New(db *gorm.DB, name string, cfg config.QueueConfig, shared config.QueuesConfig, clk clockwork.Clock, log *zap.Logger) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if shared.BatchSize <= 0 {
		shared.BatchSize = 50
	}
	if shared.PollInterval <= 0 {
		shared.PollInterval = time.Second
	}
	if shared.Lease <= 0 {
		shared.Lease = time.Minute
	}
	if shared.JobTimeout <= 0 {
		shared.JobTimeout = 30 * time.Second
	}
	return &Queue{
		db:     db,
		name:   name,
		cfg:    cfg,
		shared: shared,
		clk:    clk,
		log:    log.With(zap.String("queue", name)),
	}
}

func (q *Queue) Name() string {
	return q.name
}

// Enqueue stores a job that becomes due after delay. A negative delay is
// treated as zero. It returns false without error when a job with the same
// key already exists in any state.
func (q *Queue) Enqueue(ctx context.Context, key string, payload any, delay time.Duration) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode payload for job %s: %w", key, err)
	}
	if delay < 0 {
		delay = 0
	}

	now := q.clk.Now().UTC()
	job := &model.ScheduledJob{
		Queue:       q.name,
		Key:         key,
		Payload:     raw,
		Status:      model.JobPending,
		RunAt:       now.Add(delay),
		MaxAttempts: q.cfg.MaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	res := q.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "job_key"}}, DoNothing: true}).
		Create(job)
	if res.Error != nil {
		return false, fmt.Errorf("failed to enqueue job %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		duplicateTotal.WithLabelValues(q.name).Inc()
		q.log.Debug("job already enqueued", zap.String("key", key))
		return false, nil
	}

	enqueuedTotal.WithLabelValues(q.name).Inc()
	q.log.Debug("job enqueued", zap.String("key", key), zap.Duration("delay", delay))
	return true, nil
}

// Cancel removes a pending job from consideration. It returns false when the
// key is unknown or the job already started or finished.
func (q *Queue) Cancel(ctx context.Context, key string) (bool, error) {
	res := q.db.WithContext(ctx).
		Model(&model.ScheduledJob{}).
		Where("job_key = ? AND queue = ? AND status = ?", key, q.name, model.JobPending).
		Updates(map[string]any{"status": model.JobCancelled, "updated_at": q.clk.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to cancel job %s: %w", key, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Get returns the stored row for key.
func (q *Queue) Get(ctx context.Context, key string) (*model.ScheduledJob, error) {
	var job model.ScheduledJob
	err := q.db.WithContext(ctx).Where("job_key = ? AND queue = ?", key, q.name).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", key, err)
	}
	return &job, nil
}

// claimDue leases up to BatchSize due jobs. A running job whose lease
// expired is claimed again, so delivery is at-least-once.
func (q *Queue) claimDue(ctx context.Context) ([]Job, error) {
	now := q.clk.Now().UTC()

	var candidates []model.ScheduledJob
	if err := q.db.WithContext(ctx).
		Where("queue = ?", q.name).
		Where("(status = ? AND run_at <= ?) OR (status = ? AND locked_until < ?)",
			model.JobPending, now, model.JobRunning, now).
		Order("run_at, id").
		Limit(q.shared.BatchSize).
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to select due jobs: %w", err)
	}

	lockedUntil := now.Add(q.shared.Lease)
	claimed := make([]Job, 0, len(candidates))
	for _, c := range candidates {
		res := q.db.WithContext(ctx).
			Model(&model.ScheduledJob{}).
			Where("id = ? AND status = ? AND attempt = ?", c.ID, c.Status, c.Attempt).
			Updates(map[string]any{
				"status":       model.JobRunning,
				"locked_until": lockedUntil,
				"attempt":      c.Attempt + 1,
				"updated_at":   now,
			})
		if res.Error != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", c.Key, res.Error)
		}
		if res.RowsAffected == 0 {
			// Another worker got there first.
			continue
		}
		if c.Status == model.JobRunning {
			q.log.Warn("reclaiming job with expired lease", zap.String("key", c.Key), zap.Int("attempt", c.Attempt))
		}
		claimed = append(claimed, Job{
			ID:          c.ID,
			Queue:       c.Queue,
			Key:         c.Key,
			Payload:     c.Payload,
			Attempt:     c.Attempt + 1,
			MaxAttempts: c.MaxAttempts,
		})
	}
	return claimed, nil
}

func (q *Queue) markDone(ctx context.Context, job Job) error {
	return q.db.WithContext(ctx).
		Model(&model.ScheduledJob{}).
		Where("id = ? AND status = ? AND attempt = ?", job.ID, model.JobRunning, job.Attempt).
		Updates(map[string]any{
			"status":       model.JobDone,
			"locked_until": nil,
			"last_error":   "",
			"updated_at":   q.clk.Now().UTC(),
		}).Error
}

// markFailed either reschedules the job with backoff or, once attempts are
// exhausted, parks it as failed. It reports whether a retry was scheduled.
func (q *Queue) markFailed(ctx context.Context, job Job, cause error) (bool, error) {
	now := q.clk.Now().UTC()
	updates := map[string]any{
		"locked_until": nil,
		"last_error":   cause.Error(),
		"updated_at":   now,
	}

	retry := job.Attempt < job.MaxAttempts
	if retry {
		updates["status"] = model.JobPending
		updates["run_at"] = now.Add(retryDelay(q.cfg.BackoffInitial, job.Attempt))
	} else {
		updates["status"] = model.JobFailed
	}

	err := q.db.WithContext(ctx).
		Model(&model.ScheduledJob{}).
		Where("id = ? AND status = ? AND attempt = ?", job.ID, model.JobRunning, job.Attempt).
		Updates(updates).Error
	return retry, err
}
