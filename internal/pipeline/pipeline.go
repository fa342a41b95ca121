// Package pipeline holds the task bodies the scheduler runs: discovery per
// source category, deadline reminders, the weekly digest and maintenance.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/deadline"
	"github.com/BhekumusaEric/apply4me-sub001/internal/notify"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/progress"
	"github.com/BhekumusaEric/apply4me-sub001/internal/scheduler"
	"github.com/BhekumusaEric/apply4me-sub001/internal/scraper"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
	"github.com/BhekumusaEric/apply4me-sub001/internal/synchronizer"
)

const (
	defaultReminderWindow = 7 * 24 * time.Hour
	digestLookback        = 7 * 24 * time.Hour
	digestUpcoming        = 14 * 24 * time.Hour
)

// Config tunes the task bodies.
type Config struct {
	Sources        []opportunity.SourceDescriptor
	ReminderWindow time.Duration
	// Topic receives every RunSummary when a publisher is configured.
	Topic string
}

// Pipeline wires the components each task needs.
type Pipeline struct {
	scraper    *scraper.Scraper
	classifier *deadline.Classifier
	sync       *synchronizer.Synchronizer
	repo       store.EntityRepository
	notifier   *notify.Notifier
	resolver   opportunity.SubscriberResolver
	publisher  opportunity.Publisher
	progress   progress.Emitter
	clock      opportunity.Clock
	cfg        Config
	logger     *zap.Logger
}

// Deps groups the collaborators of a Pipeline.
type Deps struct {
	Scraper      *scraper.Scraper
	Classifier   *deadline.Classifier
	Synchronizer *synchronizer.Synchronizer
	Repo         store.EntityRepository
	Notifier     *notify.Notifier
	Resolver     opportunity.SubscriberResolver
	Publisher    opportunity.Publisher
	Progress     progress.Emitter
	Clock        opportunity.Clock
}

// New constructs a Pipeline. Notifier, Resolver, Publisher and Progress may
// be nil.
func New(deps Deps, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = defaultReminderWindow
	}
	return &Pipeline{
		scraper:    deps.Scraper,
		classifier: deps.Classifier,
		sync:       deps.Synchronizer,
		repo:       deps.Repo,
		notifier:   deps.Notifier,
		resolver:   deps.Resolver,
		publisher:  deps.Publisher,
		progress:   deps.Progress,
		clock:      deps.Clock,
		cfg:        cfg,
		logger:     logger.Named("pipeline"),
	}
}

// Runner returns the task body for spec, chosen by type and category.
func (p *Pipeline) Runner(spec scheduler.TaskSpec) (scheduler.Runner, error) {
	switch spec.Type {
	case scheduler.TypeScraping:
		category := opportunity.Category(spec.Category)
		if category != opportunity.CategoryInstitution && category != opportunity.CategoryBursary {
			return nil, fmt.Errorf("task %s: unknown scraping category %q", spec.ID, spec.Category)
		}
		return p.wrap(func(ctx context.Context, s *RunSummary) error {
			return p.discover(ctx, category, s)
		}), nil
	case scheduler.TypeNotification:
		switch opportunity.NotificationKind(spec.Category) {
		case opportunity.NotifyDeadlineReminder:
			return p.wrap(p.remind), nil
		case opportunity.NotifyWeeklyDigest:
			return p.wrap(p.digest), nil
		default:
			return nil, fmt.Errorf("task %s: unknown notification category %q", spec.ID, spec.Category)
		}
	case scheduler.TypeMaintenance:
		return p.wrap(p.maintain), nil
	default:
		return nil, fmt.Errorf("task %s: unknown type %q", spec.ID, spec.Type)
	}
}

// wrap stamps the summary, publishes it and hands it back to the scheduler.
func (p *Pipeline) wrap(body func(ctx context.Context, s *RunSummary) error) scheduler.Runner {
	return scheduler.RunnerFunc(func(ctx context.Context, task scheduler.Task) (any, error) {
		s := &RunSummary{
			TaskID:    task.ID,
			RunID:     task.LastRunID,
			Category:  task.Category,
			StartedAt: p.clock.Now(),
		}
		p.emit(progress.Event{Stage: progress.StageRunStart}, s)
		err := body(ctx, s)
		s.FinishedAt = p.clock.Now()
		done := progress.Event{Stage: progress.StageRunDone, Dur: s.FinishedAt.Sub(s.StartedAt)}
		if err != nil {
			done.Stage, done.Note = progress.StageRunError, err.Error()
		}
		p.emit(done, s)
		p.publish(ctx, s)
		return s, err
	})
}

// emit stamps evt with the run identity and hands it to the progress hub.
func (p *Pipeline) emit(evt progress.Event, s *RunSummary) {
	if p.progress == nil {
		return
	}
	evt.RunID, evt.TaskID = s.RunID, s.TaskID
	if evt.TS.IsZero() {
		evt.TS = p.clock.Now()
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	p.progress.Emit(evt)
}

func (p *Pipeline) publish(ctx context.Context, s *RunSummary) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	id, err := p.publisher.Publish(context.WithoutCancel(ctx), p.cfg.Topic, s)
	if err != nil {
		p.logger.Warn("publish run summary", zap.String("task_id", s.TaskID), zap.Error(err))
		return
	}
	p.logger.Debug("run summary published", zap.String("task_id", s.TaskID), zap.String("message_id", id))
}

func (p *Pipeline) notify(
	ctx context.Context,
	kind opportunity.NotificationKind,
	payload []opportunity.Entity,
	s *RunSummary,
) {
	if p.notifier == nil || p.resolver == nil || len(payload) == 0 {
		return
	}
	out, err := p.notifier.Dispatch(ctx, kind, payload, p.resolver)
	if err != nil {
		s.fail(err.Error())
		return
	}
	s.Notifications.Add(out)
}
