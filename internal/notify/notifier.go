// Package notify renders and delivers subscriber notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/metrics"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// Config controls message rendering.
type Config struct {
	AppName string
}

// Outcome counts what happened to one event. Sent and Failed count
// recipients. Skipped counts payload entities dropped because they were
// already announced under the same scope.
type Outcome struct {
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Add folds o2 into o.
func (o *Outcome) Add(o2 Outcome) {
	o.Sent += o2.Sent
	o.Failed += o2.Failed
	o.Skipped += o2.Skipped
	o.Errors = append(o.Errors, o2.Errors...)
}

// Notifier fans one event out to its recipients, one message each.
type Notifier struct {
	transport Transport
	ledger    store.NotificationLedger
	clock     opportunity.Clock
	cfg       Config
	render    *renderer
	logger    *zap.Logger
}

// New constructs a Notifier. Templates are parsed once here.
func New(transport Transport, clock opportunity.Clock, cfg Config, logger *zap.Logger) (*Notifier, error) {
	if transport == nil {
		return nil, errors.New("notify transport is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AppName == "" {
		cfg.AppName = "Apply4Me"
	}
	r, err := newRenderer()
	if err != nil {
		return nil, err
	}
	return &Notifier{
		transport: transport,
		clock:     clock,
		cfg:       cfg,
		render:    r,
		logger:    logger.Named("notify"),
	}, nil
}

// WithLedger makes delivery idempotent across runs.
func (n *Notifier) WithLedger(ledger store.NotificationLedger) *Notifier {
	n.ledger = ledger
	return n
}

// Dispatch resolves recipients for kind at call time and notifies them.
func (n *Notifier) Dispatch(
	ctx context.Context,
	kind opportunity.NotificationKind,
	payload []opportunity.Entity,
	resolver opportunity.SubscriberResolver,
) (Outcome, error) {
	return n.dispatch(ctx, opportunity.NotificationEvent{Kind: kind, Payload: payload}, resolver)
}

// DispatchDigest sends the weekly digest of fresh entities and upcoming deadlines.
func (n *Notifier) DispatchDigest(
	ctx context.Context,
	fresh, upcoming []opportunity.Entity,
	resolver opportunity.SubscriberResolver,
) (Outcome, error) {
	return n.dispatch(ctx, opportunity.NotificationEvent{
		Kind:     opportunity.NotifyWeeklyDigest,
		Payload:  fresh,
		Upcoming: upcoming,
	}, resolver)
}

func (n *Notifier) dispatch(
	ctx context.Context,
	event opportunity.NotificationEvent,
	resolver opportunity.SubscriberResolver,
) (Outcome, error) {
	if len(event.Payload) == 0 && len(event.Upcoming) == 0 {
		return Outcome{}, nil
	}
	recipients, err := resolver.Resolve(ctx, event.Kind)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve %s subscribers: %w", event.Kind, err)
	}
	event.Recipients = recipients
	return n.Notify(ctx, event), nil
}

// Notify sends one message per recipient aggregating every payload entity.
// A failed recipient never stops the others.
func (n *Notifier) Notify(ctx context.Context, event opportunity.NotificationEvent) Outcome {
	var out Outcome
	now := n.clock.Now()
	logger := n.logger.With(zap.String("kind", string(event.Kind)))

	payload := n.unannounced(ctx, event.Kind, event.Payload, now, &out)
	pendingUpcoming := 0
	if event.Kind == opportunity.NotifyWeeklyDigest {
		// A digest rerun in the same week has nothing new to say.
		pendingUpcoming = len(n.unannounced(ctx, event.Kind, event.Upcoming, now, nil))
	}
	if len(payload) == 0 && pendingUpcoming == 0 {
		return out
	}
	if len(event.Recipients) == 0 {
		logger.Debug("no recipients")
		return out
	}

	data := templateData{
		AppName:     n.cfg.AppName,
		GeneratedOn: now.Format("2 January 2006"),
	}
	for _, e := range payload {
		v := viewOf(e, now)
		data.Urgent = data.Urgent || v.Urgent
		data.Entities = append(data.Entities, v)
	}
	for _, e := range event.Upcoming {
		data.Upcoming = append(data.Upcoming, viewOf(e, now))
	}

	for _, r := range event.Recipients {
		if err := ctx.Err(); err != nil {
			out.Failed += len(event.Recipients) - out.Sent - out.Failed
			out.Errors = append(out.Errors, err.Error())
			break
		}
		data.Recipient = r.DisplayName
		if data.Recipient == "" {
			data.Recipient = r.Address
		}
		msg, err := n.render.render(event.Kind, data)
		if err == nil {
			msg.To, msg.ToName = r.Address, r.DisplayName
			err = n.transport.Send(ctx, msg)
		}
		if err != nil {
			deliveryErr := &opportunity.NotificationDeliveryError{Recipient: r.Address, Kind: event.Kind, Cause: err}
			logger.Warn("notification delivery failed", zap.Error(deliveryErr))
			metrics.ObserveNotification(string(event.Kind), "failed")
			out.Failed++
			out.Errors = append(out.Errors, deliveryErr.Error())
			continue
		}
		metrics.ObserveNotification(string(event.Kind), "sent")
		out.Sent++
	}

	if out.Sent > 0 {
		n.markAnnounced(ctx, event.Kind, payload, now)
		if event.Kind == opportunity.NotifyWeeklyDigest {
			n.markAnnounced(ctx, event.Kind, event.Upcoming, now)
		}
	}
	logger.Info("notification fan-out complete",
		zap.Int("entities", len(payload)),
		zap.Int("sent", out.Sent),
		zap.Int("failed", out.Failed),
		zap.Int("skipped", out.Skipped),
	)
	return out
}

func (n *Notifier) unannounced(
	ctx context.Context,
	kind opportunity.NotificationKind,
	payload []opportunity.Entity,
	now time.Time,
	out *Outcome,
) []opportunity.Entity {
	if n.ledger == nil {
		return payload
	}
	kept := make([]opportunity.Entity, 0, len(payload))
	for _, e := range payload {
		done, err := n.ledger.WasNotified(ctx, e.ID, Scope(kind, e, now))
		if err != nil {
			// Sending twice beats never sending.
			n.logger.Warn("ledger lookup failed", zap.String("entity_id", e.ID), zap.Error(err))
		}
		if done {
			if out != nil {
				out.Skipped++
				metrics.ObserveNotification(string(kind), "skipped")
			}
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func (n *Notifier) markAnnounced(ctx context.Context, kind opportunity.NotificationKind, payload []opportunity.Entity, now time.Time) {
	if n.ledger == nil {
		return
	}
	for _, e := range payload {
		if err := n.ledger.MarkNotified(ctx, e.ID, Scope(kind, e, now), now); err != nil {
			n.logger.Warn("ledger mark failed", zap.String("entity_id", e.ID), zap.Error(err))
		}
	}
}

// Scope is the ledger scope an entity is announced under: the kind for new
// entity alerts, the closing date for reminders and the ISO week for digests.
func Scope(kind opportunity.NotificationKind, e opportunity.Entity, now time.Time) string {
	switch kind {
	case opportunity.NotifyDeadlineReminder:
		if e.ClosesAt != nil {
			return string(kind) + ":" + e.ClosesAt.Format("2006-01-02")
		}
		return string(kind)
	case opportunity.NotifyWeeklyDigest:
		y, w := now.ISOWeek()
		return fmt.Sprintf("%s:%d-W%02d", kind, y, w)
	default:
		return string(kind)
	}
}
