package alert

import (
	"context"
	"errors"
	"fmt"
)

// Notification reports the outcome of one publish attempt.
type Notification struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	DraftID string `json:"draft_id"`
	TweetID string `json:"tweet_id,omitempty"`
	Status  string `json:"status"`
	URL     string `json:"url,omitempty"`
}

// Failed reports whether the attempt did not publish.
func (n *Notification) Failed() bool {
	return n.Status != "success"
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func icon(n *Notification) string {
	if n.Failed() {
		return "⚠️"
	}
	return "✅"
}
