// Package app builds the pipeline's long-lived services from configuration
// and runs them until the process is told to stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/api"
	"github.com/BhekumusaEric/apply4me-sub001/internal/clock/system"
	"github.com/BhekumusaEric/apply4me-sub001/internal/config"
	"github.com/BhekumusaEric/apply4me-sub001/internal/deadline"
	"github.com/BhekumusaEric/apply4me-sub001/internal/dedup"
	"github.com/BhekumusaEric/apply4me-sub001/internal/id/uuid"
	"github.com/BhekumusaEric/apply4me-sub001/internal/notify"
	"github.com/BhekumusaEric/apply4me-sub001/internal/pipeline"
	"github.com/BhekumusaEric/apply4me-sub001/internal/scheduler"
	"github.com/BhekumusaEric/apply4me-sub001/internal/synchronizer"
)

const (
	shutdownTimeout = 10 * time.Second
	defaultTopic    = "run-summaries"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	scheduler *scheduler.Scheduler
	sync      *synchronizer.Synchronizer
	apiServer *api.Server
	// closers release clients in reverse order of creation.
	closers []func()
}

// Build creates the application's dependencies and registers every
// configured task with the scheduler.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies",
		zap.Int("sources", len(cfg.Sources)),
		zap.Int("tasks", len(cfg.Scheduler.Tasks)),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("transport", cfg.Notify.Transport),
	)

	clock := system.NewIn(cfg.Scheduler.Timezone)
	ids := uuid.New()

	stores, err := a.setupStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	scr, err := a.setupScraper(ctx, clock)
	if err != nil {
		a.Close()
		return nil, err
	}
	notifier, err := a.setupNotifier(clock, stores.ledger)
	if err != nil {
		a.Close()
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	hub, health, err := a.setupProgress()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sync = synchronizer.New(stores.entities, dedup.New(logger), ids, clock, logger)
	pipe := pipeline.New(pipeline.Deps{
		Scraper:      scr,
		Classifier:   deadline.New(clock, logger),
		Synchronizer: a.sync,
		Repo:         stores.entities,
		Notifier:     notifier,
		Resolver:     notify.NewStaticResolver(cfg.Subscribers),
		Publisher:    publisher,
		Progress:     hub,
		Clock:        clock,
	}, pipeline.Config{
		Sources:        cfg.Sources,
		ReminderWindow: cfg.ReminderWindow(),
		Topic:          summaryTopic(cfg),
	}, logger)

	a.scheduler = scheduler.New(stores.runs, ids, clock, scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		QueueDepth:     cfg.Scheduler.QueueDepth,
		DefaultTimeout: cfg.DefaultTimeout(),
		Location:       clock.Location(),
	}, logger)
	for _, spec := range cfg.Scheduler.Tasks {
		runner, err := pipe.Runner(spec)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("build task runner: %w", err)
		}
		if err := a.scheduler.Register(spec, runner); err != nil {
			a.Close()
			return nil, fmt.Errorf("register task: %w", err)
		}
	}

	a.apiServer = api.NewServer(a.scheduler, stores.runs, stores.entities, clock, logger).
		WithSourceHealth(health)
	return a, nil
}

// Scheduler exposes the task registry for the CLI.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Tasks lists the registered tasks in id order.
func (a *App) Tasks() []scheduler.Task { return a.scheduler.Tasks() }

// Handler returns the ops HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// RunTask triggers one task and waits for it, with the workers running only
// for the duration of the call.
func (a *App) RunTask(ctx context.Context, taskID string) (scheduler.Result, error) {
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.scheduler.Run(workerCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	res, err := a.scheduler.TriggerAndWait(ctx, taskID)
	if err != nil {
		return res, fmt.Errorf("run task %s: %w", taskID, err)
	}
	return res, nil
}

// Sweep runs the duplicate sweep outside the scheduler.
func (a *App) Sweep(ctx context.Context) (synchronizer.SweepResult, error) {
	return a.sync.Sweep(ctx)
}

// Run starts the workers, the cron clock and the ops server, and blocks
// until the context is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.logger.Info("scheduler workers started", zap.Int("workers", a.cfg.Scheduler.Workers))
		a.scheduler.Run(ctx)
	}()

	clockDone := make(chan struct{})
	if a.cfg.Scheduler.ClockEnabled {
		clk, err := scheduler.NewClock(a.scheduler)
		if err != nil {
			stop()
			<-workersDone
			return fmt.Errorf("start cron clock: %w", err)
		}
		go func() {
			defer close(clockDone)
			clk.Run(ctx)
		}()
	} else {
		close(clockDone)
		a.logger.Info("cron clock disabled; tasks run only when triggered")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-clockDone
	<-workersDone
	a.Close()
	return nil
}

// Close releases every client Build opened. It is safe to call twice.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func summaryTopic(cfg config.Config) string {
	if cfg.PubSub.Topic != "" {
		return cfg.PubSub.Topic
	}
	return defaultTopic
}
