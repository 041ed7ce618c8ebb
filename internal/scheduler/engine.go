package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/voicepost/internal/store"
)

// Engine decides which drafts are due and owns the schedule fields.
type Engine struct {
	store store.Store
	rule  StrategyRule
}

// NewEngine creates an engine. A zero rule falls back to DefaultStrategy.
func NewEngine(s store.Store, rule StrategyRule) *Engine {
	if rule.IsZero() {
		rule = DefaultStrategy()
	}
	return &Engine{store: s, rule: rule}
}

// Rule returns the strategy rule in use.
func (e *Engine) Rule() StrategyRule {
	return e.rule
}

// Schedule sets a draft to be published at the given time.
func (e *Engine) Schedule(ctx context.Context, id, at string) error {
	normalized, err := ParseTime(at)
	if err != nil {
		return err
	}
	ok, err := e.store.SetSchedule(ctx, id, normalized)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Unschedule returns a scheduled draft to pending.
func (e *Engine) Unschedule(ctx context.Context, id string) error {
	ok, err := e.store.SetSchedule(ctx, id, "")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unschedule %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DuePosts returns scheduled drafts whose time is at or before now, in
// table order. Stored times are local wall clock, so now is converted to
// local before the string comparison.
func (e *Engine) DuePosts(ctx context.Context, now time.Time) ([]store.Draft, error) {
	scheduled, err := e.store.ListByStatus(ctx, store.StatusScheduled)
	if err != nil {
		return nil, err
	}
	cutoff := now.Local().Format(store.TimestampLayout)

	var due []store.Draft
	for _, d := range scheduled {
		if d.ScheduledTime != "" && d.ScheduledTime <= cutoff {
			due = append(due, d)
		}
	}
	return due, nil
}

// ListScheduled returns every scheduled draft.
func (e *Engine) ListScheduled(ctx context.Context) ([]store.Draft, error) {
	return e.store.ListByStatus(ctx, store.StatusScheduled)
}

// NextPendingDraft returns the oldest pending draft, or nil if there is none.
func (e *Engine) NextPendingDraft(ctx context.Context) (*store.Draft, error) {
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return &pending[0], nil
}

// IsStrategySlot reports whether now falls in a strategy slot of the
// engine's rule.
func (e *Engine) IsStrategySlot(now time.Time) bool {
	return e.rule.Contains(now)
}

var scheduleLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime validates an ISO-8601 schedule time and returns it in
// store.ScheduleLayout. Times with an offset are converted to the local
// wall clock; naive times are kept as written.
func ParseTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", store.Validationf("scheduled time is required")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.Local().Format(store.ScheduleLayout), nil
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(store.ScheduleLayout), nil
		}
	}
	return "", store.Validationf("invalid scheduled time %q: want ISO-8601 such as 2006-01-02T15:04:05", s)
}
