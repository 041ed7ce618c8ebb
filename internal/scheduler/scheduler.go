package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/elonfeng/voicepost/internal/media"
	"github.com/elonfeng/voicepost/internal/store"
	"github.com/elonfeng/voicepost/pkg/alert"
	"github.com/elonfeng/voicepost/pkg/publish"
)

// DefaultCron ticks every minute, which the strategy drift window needs.
const DefaultCron = "* * * * *"

// Options configures a Driver. Zero values are usable.
type Options struct {
	Alerts          *alert.Manager
	Media           *media.Library
	Metrics         *Metrics
	Logger          *slog.Logger
	StrategyEnabled bool
	Cron            string
}

// Driver publishes due drafts and reports every attempt. Ticks and manual
// publishes run one at a time.
type Driver struct {
	mu        sync.Mutex
	store     store.Store
	engine    *Engine
	publisher publish.Publisher
	alerts    *alert.Manager
	media     *media.Library
	metrics   *Metrics
	logger    *slog.Logger
	slots     bool
	cronSpec  string
	now       func() time.Time
}

// NewDriver creates a driver.
func NewDriver(s store.Store, e *Engine, p publish.Publisher, opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	spec := opts.Cron
	if spec == "" {
		spec = DefaultCron
	}
	return &Driver{
		store:     s,
		engine:    e,
		publisher: p,
		alerts:    opts.Alerts,
		media:     opts.Media,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "driver"),
		slots:     opts.StrategyEnabled,
		cronSpec:  spec,
		now:       time.Now,
	}
}

// Outcome is the result of one publish attempt.
type Outcome struct {
	DraftID string
	Status  string
	TweetID string
	Err     error
}

// OK reports whether the post went out and was recorded.
func (o Outcome) OK() bool {
	return o.Status == store.AttemptSuccess && o.Err == nil
}

// Summary describes one tick.
type Summary struct {
	Due      int
	Slot     bool
	Posted   int
	Failed   int
	Outcomes []Outcome
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.OK() {
		s.Posted++
	} else {
		s.Failed++
	}
}

// Tick publishes every due post. When nothing is due and now is a strategy
// slot, it publishes the oldest pending draft instead. Only store read
// failures are returned as errors; publish failures are in the summary.
func (d *Driver) Tick(ctx context.Context, now time.Time) (Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var summary Summary

	due, err := d.engine.DuePosts(ctx, now)
	if err != nil {
		return summary, fmt.Errorf("load due posts: %w", err)
	}
	summary.Due = len(due)

	for _, draft := range due {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.add(d.publish(ctx, draft))
	}

	if len(due) == 0 && d.slots && d.engine.IsStrategySlot(now) {
		summary.Slot = true
		next, err := d.engine.NextPendingDraft(ctx)
		if err != nil {
			return summary, fmt.Errorf("load next pending draft: %w", err)
		}
		if next != nil {
			d.logger.Info("strategy slot", "draft", next.ID)
			summary.add(d.publish(ctx, *next))
		}
	}

	d.metrics.observeTick(now)
	return summary, nil
}

// PublishDraft approves and posts one draft immediately.
func (d *Driver) PublishDraft(ctx context.Context, id string) (Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	draft, err := d.store.Get(ctx, id)
	if err != nil {
		return Outcome{DraftID: id}, err
	}
	if draft.Status == store.StatusPosted {
		return Outcome{DraftID: id}, store.Validationf("draft %s is already posted", id)
	}
	return d.publish(ctx, *draft), nil
}

// Run ticks once, then on the cron schedule until ctx is cancelled. A
// scheduled tick is skipped while the previous one is still publishing.
func (d *Driver) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{d.logger})))
	if _, err := c.AddFunc(d.cronSpec, func() { d.runTick(ctx) }); err != nil {
		return fmt.Errorf("parse cron %q: %w", d.cronSpec, err)
	}

	d.runTick(ctx)
	c.Start()
	d.logger.Info("running", "cron", d.cronSpec, "strategy_slots", d.slots)

	<-ctx.Done()
	<-c.Stop().Done()
	d.logger.Info("stopped")
	return ctx.Err()
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron "+msg, append(keysAndValues, "error", err)...)
}

func (d *Driver) runTick(ctx context.Context) {
	summary, err := d.Tick(ctx, d.now())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Error("tick failed", "error", err)
		}
		return
	}
	if summary.Due > 0 || summary.Slot {
		d.logger.Info("tick", "due", summary.Due, "slot", summary.Slot,
			"posted", summary.Posted, "failed", summary.Failed)
	}
}

func (d *Driver) publish(ctx context.Context, draft store.Draft) Outcome {
	out := Outcome{DraftID: draft.ID}
	logger := d.logger.With("draft", draft.ID)

	req := publish.Request{Text: draft.Text}
	if draft.IsRetweet {
		req.QuoteTweetID = draft.OriginalTweetID
	}

	var err error
	if draft.MediaPath != "" {
		req.MediaPath, err = d.checkMedia(draft.MediaPath)
	}
	if err == nil {
		var res *publish.Result
		res, err = d.publisher.Publish(ctx, req)
		if err == nil {
			out.TweetID = res.TweetID
		}
	}

	switch {
	case err == nil:
		out.Status = store.AttemptSuccess
	case publish.IsRejected(err):
		out.Status = store.AttemptFailed
		out.Err = err
	default:
		out.Status = store.AttemptError
		out.Err = err
	}
	d.metrics.observeAttempt(out.Status)

	if out.Status == store.AttemptSuccess {
		posted := &store.PostedText{Text: draft.Text, MediaPath: draft.MediaPath}
		if err := d.store.MarkPosted(ctx, draft.ID, out.TweetID, posted); err != nil {
			logger.Error("record posted", "tweet", out.TweetID, "error", err)
			out.Err = err
		}
	}

	attempt := store.Attempt{
		DraftID: draft.ID,
		Status:  out.Status,
		TweetID: out.TweetID,
		Text:    draft.Text,
	}
	if out.Err != nil {
		attempt.Error = out.Err.Error()
	}
	if err := d.store.LogAttempt(ctx, attempt); err != nil {
		logger.Error("log attempt", "error", err)
		out.Err = errors.Join(out.Err, err)
	}

	if out.Status == store.AttemptSuccess {
		logger.Info("posted", "tweet", out.TweetID)
		if req.MediaPath != "" {
			if dst, err := media.Archive(req.MediaPath, d.now()); err != nil {
				logger.Warn("archive media", "path", req.MediaPath, "error", err)
			} else {
				logger.Debug("archived media", "path", dst)
			}
		}
	} else {
		logger.Warn("publish failed", "status", out.Status, "error", out.Err)
	}

	d.notify(ctx, draft, out)
	return out
}

// checkMedia confines the attachment to the media library, or only checks
// its type when no library is configured.
func (d *Driver) checkMedia(path string) (string, error) {
	if d.media != nil {
		return d.media.Check(path)
	}
	if _, err := media.Kind(path); err != nil {
		return "", err
	}
	return path, nil
}

func (d *Driver) notify(ctx context.Context, draft store.Draft, out Outcome) {
	if !d.alerts.HasNotifiers() {
		return
	}

	n := &alert.Notification{
		DraftID: draft.ID,
		TweetID: out.TweetID,
		Status:  out.Status,
		Body:    store.AttemptText(draft.Text),
	}
	if out.Status == store.AttemptSuccess {
		n.Title = "Posted draft " + draft.ID
		n.URL = "https://x.com/i/status/" + out.TweetID
	} else {
		n.Title = "Publish failed for draft " + draft.ID
		if out.Err != nil {
			n.Body = out.Err.Error()
		}
	}

	if err := d.alerts.Broadcast(ctx, n); err != nil {
		d.logger.Warn("alert", "draft", draft.ID, "error", err)
	}
}
