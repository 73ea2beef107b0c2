// Package alerts records security alerts and fans them out to live
// subscribers.
package alerts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("alert not found")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
)

// Type identifies what raised an alert.
type Type string

const (
	TypeUserSuspended   Type = "USER_SUSPENDED"
	TypeBlockedTransfer Type = "BLOCKED_TRANSFER"
	TypeStatusChanged   Type = "STATUS_CHANGED"
)

// Severity uses the same scale as risk levels.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one raised alert.
type Alert struct {
	ID             string         `json:"id"`
	WalletAddress  string         `json:"walletAddress"`
	AlertType      Type           `json:"alertType"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	RiskScore      *float64       `json:"riskScore,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	DetectedAt     time.Time      `json:"detectedAt"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedAt *time.Time     `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string         `json:"acknowledgedBy,omitempty"`
}

func (a *Alert) clone() *Alert {
	c := *a
	if a.RiskScore != nil {
		s := *a.RiskScore
		c.RiskScore = &s
	}
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Filter narrows List.
type Filter struct {
	Type               Type
	WalletAddress      string
	Severity           Severity
	UnacknowledgedOnly bool
	Since              time.Time
	Limit              int
	Offset             int
}

// Counts summarizes alerts for the dashboard.
type Counts struct {
	Total          int64              `json:"total"`
	Unacknowledged int64              `json:"unacknowledged"`
	Recent         int64              `json:"recent"` // detected at or after the requested cutoff
	ByType         map[Type]int64     `json:"byType"`
	BySeverity     map[Severity]int64 `json:"bySeverity"`
}

// Store persists alerts.
type Store interface {
	Create(ctx context.Context, a *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	List(ctx context.Context, f Filter) ([]*Alert, error)
	Acknowledge(ctx context.Context, id, by string, at time.Time) (*Alert, error)
	Counts(ctx context.Context, since time.Time) (*Counts, error)
}

// Publisher delivers alerts to a live channel.
type Publisher interface {
	Publish(ctx context.Context, a *Alert) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, a *Alert) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, a *Alert) error { return f(ctx, a) }
