// Package notification delivers alerts about screening picks to external
// channels (log, webhook, Telegram).
package notification

import (
	"context"
	"errors"
	"log/slog"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Pick is one actionable symbol of a screen.
type Pick struct {
	Symbol     string  `json:"symbol"`
	Signal     string  `json:"signal"`
	Price      float64 `json:"price"`
	Confidence float64 `json:"confidence"`
	RiskScore  float64 `json:"risk_score"`
}

// Alert represents a notification to be sent. Message is the plain-text
// rendering; Picks carries the same content for channels that want
// structure.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Timeframe string     `json:"timeframe,omitempty"`
	Picks     []Pick     `json:"picks,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.Info("alert", "level", alert.Level, "title", alert.Title, "picks", len(alert.Picks), "message", alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
