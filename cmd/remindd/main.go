package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"medication-reminder-backend/config"
	"medication-reminder-backend/internal/agenda"
	"medication-reminder-backend/internal/api"
	"medication-reminder-backend/internal/db"
	"medication-reminder-backend/internal/intake"
	"medication-reminder-backend/internal/jobqueue"
	"medication-reminder-backend/internal/logger"
	"medication-reminder-backend/internal/mw"
	"medication-reminder-backend/internal/notification"
	"medication-reminder-backend/internal/reminder"
	"medication-reminder-backend/internal/store"
	"medication-reminder-backend/internal/sweep"
)

func main() {
	// A missing .env is fine; the process environment is used as is.
	_ = godotenv.Load()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("configuration loaded", zap.String("path", configPath))

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped with error", zap.Error(err))
	}
	log.Info("service gracefully stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	appStore := store.NewGormStore(gormDB)
	clk := clockwork.NewRealClock()
	loc := cfg.Scheduler.Location

	notifications := jobqueue.New(gormDB, reminder.NotificationQueue, cfg.Queues.Notification, cfg.Queues, clk, log)
	missedChecks := jobqueue.New(gormDB, reminder.MissedCheckQueue, cfg.Queues.MissedCheck, cfg.Queues, clk, log)

	webpushOptions := notification.Options(cfg.Push)
	push := notification.NewWebPush(appStore, webpushOptions, log.Named("webpush"))
	if !push.Configured() {
		log.Warn("VAPID keys are not configured, reminders will not be pushed")
	}
	email := notification.NewEmailAlerter(cfg.Email)
	if email == nil {
		log.Info("SendGrid is not configured, missed-dose e-mails are disabled")
	}
	notifier := notification.NewService(appStore, push, email, log.Named("notifier"))

	dispatcher := reminder.NewDispatcher(notifier, missedChecks, cfg.Scheduler.LateGrace, cfg.Push.Timeout, log.Named("dispatcher"))
	checker := reminder.NewMissedChecker(appStore, notifier, clk, log.Named("missed-check"))
	scheduler := reminder.NewScheduler(appStore, notifications, clk, loc, log.Named("scheduler"))
	coord := sweep.NewCoordinator(appStore, reminder.NewMaterializer(clk, loc), scheduler,
		cfg.Scheduler.SweepConcurrency, cfg.Scheduler.UserTimeout, log.Named("sweep"))

	sweepSvc, err := sweep.NewService(cfg.Scheduler, coord, log.Named("sweep"))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reminderWorker := notifications.NewWorker(dispatcher.Handle)
	missedWorker := missedChecks.NewWorker(checker.Handle)
	reminderWorker.Start(ctx)
	missedWorker.Start(ctx)

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweepSvc.Run(ctx)
	}()

	handler := api.NewHandler(api.Deps{
		Store:     appStore,
		Recorder:  intake.NewRecorder(appStore, missedChecks, clk, loc, cfg.Scheduler.LateThreshold, log.Named("intake")),
		Agenda:    agenda.NewService(appStore, clk, loc, log.Named("agenda")),
		Coord:     coord,
		WebPush:   webpushOptions,
		Responses: mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second),
		Log:       log.Named("api"),
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server),

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Block until a signal is received or the server dies.
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping services")
	case runErr = <-serveErr:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown", zap.Error(err))
	}

	reminderWorker.Wait()
	missedWorker.Wait()
	<-sweepDone
	return runErr
}
