package sweep

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"medication-reminder-backend/config"
)

// Service triggers the all-user run on a cron schedule.
type Service struct {
	cfg   config.SchedulerConfig
	coord *Coordinator
	log   *zap.Logger
}

// NewService validates the cron expression up front.
func NewService(cfg config.SchedulerConfig, coord *Coordinator, log *zap.Logger) (*Service, error) {
	if _, err := cron.ParseStandard(cfg.DailyCron); err != nil {
		return nil, fmt.Errorf("invalid daily cron %q: %w", cfg.DailyCron, err)
	}
	return &Service{cfg: cfg, coord: coord, log: log}, nil
}

// Run starts the daily trigger, optionally runs once immediately, and
// blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	opts := []cron.Option{}
	if s.cfg.Location != nil {
		opts = append(opts, cron.WithLocation(s.cfg.Location))
	}
	c := cron.New(opts...)
	if _, err := c.AddFunc(s.cfg.DailyCron, func() { s.RunOnce(ctx) }); err != nil {
		s.log.Error("failed to register daily sweep", zap.Error(err))
		return
	}

	s.log.Info("starting sweep service", zap.String("cron", s.cfg.DailyCron), zap.Bool("run_on_start", s.cfg.RunOnStart))
	c.Start()

	if s.cfg.RunOnStart {
		s.RunOnce(ctx)
	}

	<-ctx.Done()
	s.log.Info("sweep service shutting down")
	<-c.Stop().Done()
}

// RunOnce performs a single all-user run.
func (s *Service) RunOnce(ctx context.Context) Summary {
	if ctx.Err() != nil {
		return Summary{}
	}
	summary, err := s.coord.RunForAllUsers(ctx)
	if err != nil {
		s.log.Error("dose sweep failed", zap.Error(err))
	}
	return summary
}
