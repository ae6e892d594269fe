// Package sweep materializes and schedules each user's doses for the day,
// on a daily trigger and on demand.
package sweep

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"medication-reminder-backend/internal/apperr"
	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/reminder"
	"medication-reminder-backend/internal/store"
)

// UserResult counts what one run did for a user. Failed counts doses that
// could not be created or scheduled; the rest of the user's doses still ran.
type UserResult struct {
	UserID  string `json:"user_id"`
	Created int    `json:"created"`
	Queued  int    `json:"queued"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// UserFailure is a user whose run could not complete.
type UserFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// Summary aggregates a run over all users.
type Summary struct {
	UsersProcessed int           `json:"users_processed"`
	TotalQueued    int           `json:"total_queued"`
	TotalSkipped   int           `json:"total_skipped"`
	Failures       []UserFailure `json:"failures,omitempty"`
}

// Coordinator runs the materialize-then-schedule pass.
type Coordinator struct {
	store       store.Store
	mat         *reminder.Materializer
	sched       *reminder.Scheduler
	concurrency int
	userTimeout time.Duration
	log         *zap.Logger
}

func NewCoordinator(st store.Store, mat *reminder.Materializer, sched *reminder.Scheduler, concurrency int, userTimeout time.Duration, log *zap.Logger) *Coordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{
		store:       st,
		mat:         mat,
		sched:       sched,
		concurrency: concurrency,
		userTimeout: userTimeout,
		log:         log,
	}
}

// RunForUser materializes today's doses for every active medication of the
// user and schedules reminders for the pending ones. Existing pending doses
// that are still upcoming are scheduled again, which is a no-op unless an
// earlier enqueue failed.
func (c *Coordinator) RunForUser(ctx context.Context, userID string) (UserResult, error) {
	const op = "sweep.RunForUser"
	result := UserResult{UserID: userID}

	if strings.TrimSpace(userID) == "" {
		return result, apperr.InvalidInput(op, "user id is required")
	}
	log := c.log.With(zap.String("user_id", userID))

	meds, err := c.store.ListActiveMedications(ctx, userID)
	if err != nil {
		return result, apperr.Transient(op, err)
	}

	today := c.mat.Today()
	for i := range meds {
		med := &meds[i]
		doses, err := c.mat.Materialize(med, today)
		if err != nil {
			result.Failed++
			log.Error("failed to materialize doses", zap.String("medication_id", med.ID), zap.Error(err))
			continue
		}

		for j := range doses {
			dose := &doses[j]
			created, err := c.store.CreateDoseIfAbsent(ctx, dose)
			if err != nil {
				result.Failed++
				log.Error("failed to create dose", zap.String("medication_id", med.ID), zap.Error(err))
				continue
			}
			if created {
				result.Created++
			}

			if dose.Status != model.DosePending {
				result.Skipped++
				continue
			}
			if !created {
				// A pending dose from an earlier run whose time has come is
				// owned by its reminder and missed-check jobs.
				if delay, err := c.sched.Delay(dose); err != nil || delay <= 0 {
					result.Skipped++
					continue
				}
			}

			enqueued, err := c.sched.Schedule(ctx, dose, med)
			if err != nil {
				result.Failed++
				continue
			}
			if enqueued {
				result.Queued++
			} else {
				result.Skipped++
			}
		}
	}

	doseOutcomes.WithLabelValues("queued").Add(float64(result.Queued))
	doseOutcomes.WithLabelValues("skipped").Add(float64(result.Skipped))
	doseOutcomes.WithLabelValues("failed").Add(float64(result.Failed))
	log.Info("user run complete",
		zap.Int("created", result.Created),
		zap.Int("queued", result.Queued),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// RunForAllUsers runs RunForUser for every user with active medications,
// at most concurrency users at a time. A user's failure is recorded in the
// summary and never stops the others.
func (c *Coordinator) RunForAllUsers(ctx context.Context) (Summary, error) {
	const op = "sweep.RunForAllUsers"
	start := time.Now()

	users, err := c.store.ListUserIDs(ctx)
	if err != nil {
		return Summary{}, apperr.Transient(op, err)
	}
	c.log.Info("starting dose sweep", zap.Int("users", len(users)))

	var (
		mu      sync.Mutex
		summary Summary
	)
	var eg errgroup.Group
	sem := semaphore.NewWeighted(int64(c.concurrency))

	for _, userID := range users {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			summary.Failures = append(summary.Failures, UserFailure{UserID: userID, Error: fmt.Sprintf("not started: %v", err)})
			mu.Unlock()
			continue
		}

		eg.Go(func() error {
			defer sem.Release(1)

			userCtx := ctx
			if c.userTimeout > 0 {
				var cancel context.CancelFunc
				userCtx, cancel = context.WithTimeout(ctx, c.userTimeout)
				defer cancel()
			}

			res, err := c.RunForUser(userCtx, userID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.log.Error("user run failed", zap.String("user_id", userID), zap.Error(err))
				summary.Failures = append(summary.Failures, UserFailure{UserID: userID, Error: err.Error()})
				return nil
			}
			summary.UsersProcessed++
			summary.TotalQueued += res.Queued
			summary.TotalSkipped += res.Skipped
			return nil
		})
	}
	_ = eg.Wait()

	sweepRuns.Inc()
	sweepUserFailures.Add(float64(len(summary.Failures)))
	c.log.Info("dose sweep complete",
		zap.Int("users_processed", summary.UsersProcessed),
		zap.Int("total_queued", summary.TotalQueued),
		zap.Int("failures", len(summary.Failures)),
		zap.Duration("took", time.Since(start)))
	return summary, nil
}
