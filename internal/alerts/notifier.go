package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/riskgate/internal/circuitbreaker"
	"github.com/mbd888/riskgate/internal/idgen"
)

const publishTimeout = 5 * time.Second

// Notifier stores alerts and forwards them to publishers. Storage errors
// are returned; publisher errors are logged and counted only. A publisher
// that keeps failing is skipped until its breaker cools down.
type Notifier struct {
	store      Store
	publishers []namedPublisher
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
	now        func() time.Time
}

type namedPublisher struct {
	name string
	Publisher
}

// Named is implemented by publishers that label their breaker and logs.
type Named interface {
	Name() string
}

// NewNotifier creates a notifier over store.
func NewNotifier(store Store, logger *slog.Logger, publishers ...Publisher) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		store:   store,
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  logger,
		now:     time.Now,
	}
	for _, p := range publishers {
		n.AddPublisher(p)
	}
	return n
}

// AddPublisher registers another live channel.
func (n *Notifier) AddPublisher(p Publisher) {
	name := fmt.Sprintf("publisher-%d", len(n.publishers))
	if nm, ok := p.(Named); ok {
		name = nm.Name()
	}
	n.publishers = append(n.publishers, namedPublisher{name: name, Publisher: p})
}

// Raise stores a and publishes it. ID and DetectedAt are filled if empty.
func (n *Notifier) Raise(ctx context.Context, a *Alert) (*Alert, error) {
	if n == nil {
		return a, nil
	}
	in := a.clone()
	if in.ID == "" {
		in.ID = idgen.New()
	}
	if in.DetectedAt.IsZero() {
		in.DetectedAt = n.now().UTC()
	}
	if in.Severity == "" {
		in.Severity = SeverityMedium
	}
	if err := n.store.Create(ctx, in); err != nil {
		alertErrors.WithLabelValues("store").Inc()
		return nil, fmt.Errorf("store alert: %w", err)
	}
	alertsRaised.WithLabelValues(string(in.AlertType), string(in.Severity)).Inc()

	for _, p := range n.publishers {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err := n.breaker.Do("alerts."+p.name, func() error {
			return p.Publish(pctx, in.clone())
		})
		cancel()
		switch {
		case errors.Is(err, circuitbreaker.ErrOpen):
			alertErrors.WithLabelValues("publish_skipped").Inc()
			n.logger.Debug("alert publisher circuit open", "publisher", p.name, "alert_id", in.ID)
		case err != nil:
			alertErrors.WithLabelValues("publish").Inc()
			n.logger.Warn("alert publish failed", "publisher", p.name, "alert_id", in.ID, "type", in.AlertType, "error", err)
		}
	}
	return in, nil
}

// Acknowledge marks an alert as handled by an admin.
func (n *Notifier) Acknowledge(ctx context.Context, id, by string) (*Alert, error) {
	return n.store.Acknowledge(ctx, id, by, n.now().UTC())
}

// List returns alerts newest first.
func (n *Notifier) List(ctx context.Context, f Filter) ([]*Alert, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return n.store.List(ctx, f)
}

// Counts returns totals for the dashboard.
func (n *Notifier) Counts(ctx context.Context, since time.Time) (*Counts, error) {
	return n.store.Counts(ctx, since)
}

// Score is a convenience for the optional RiskScore field.
func Score(v float64) *float64 { return &v }
