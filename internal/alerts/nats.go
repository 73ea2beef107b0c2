package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConn is the subset of *nats.Conn the publisher needs.
type NATSConn interface {
	Publish(subj string, data []byte) error
}

// NATSConfig configures the NATS connection used for alert fan-out.
type NATSConfig struct {
	URL            string
	ConnectionName string
	SubjectPrefix  string
	MaxReconnects  int
	ReconnectWait  time.Duration
}

// ConnectNATS dials NATS with reconnect logging.
func ConnectNATS(cfg NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	if cfg.ConnectionName == "" {
		cfg.ConnectionName = "riskgate"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// NATSPublisher publishes alerts as JSON on <prefix>.<type>, for example
// "riskgate.alerts.USER_SUSPENDED".
type NATSPublisher struct {
	conn   NATSConn
	prefix string
}

// NewNATSPublisher creates a publisher. An empty prefix defaults to
// "riskgate.alerts".
func NewNATSPublisher(conn NATSConn, prefix string) *NATSPublisher {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = "riskgate.alerts"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Name implements Named.
func (p *NATSPublisher) Name() string { return "nats" }

// Subject returns the subject an alert type is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, a *Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := p.conn.Publish(p.Subject(a.AlertType), data); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.ID, err)
	}
	return nil
}
