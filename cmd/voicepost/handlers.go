package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elonfeng/voicepost/internal/config"
	"github.com/elonfeng/voicepost/internal/media"
	"github.com/elonfeng/voicepost/internal/scheduler"
	"github.com/elonfeng/voicepost/internal/store"
	"github.com/elonfeng/voicepost/pkg/alert"
	"github.com/elonfeng/voicepost/pkg/generate"
	"github.com/elonfeng/voicepost/pkg/publish"
	"github.com/elonfeng/voicepost/pkg/server"
	"github.com/elonfeng/voicepost/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if llmProvider != "" {
		if err := cfg.LLM.Use(llmProvider, llmModel); err != nil {
			return nil, err
		}
	} else if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// app holds what most commands need.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     store.Store
	engine *scheduler.Engine
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	db, err := store.Open(cfg.Storage.Backend, cfg.Storage.Paths(), cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rule, err := cfg.Schedule.Strategy.Rule()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		engine: scheduler.NewEngine(db, rule),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) mediaLibrary() (*media.Library, error) {
	return media.New(a.cfg.Media.SafeDir)
}

func (a *app) twitter() (*publish.Twitter, error) {
	creds := a.cfg.Twitter.Credentials()
	if !creds.Configured() {
		return nil, errors.New("twitter credentials are not configured (set TWITTER_* in the environment or .env)")
	}
	return publish.NewTwitter(creds, a.cfg.Twitter.APIBase, a.cfg.Twitter.UploadBase), nil
}

func (a *app) publisher() (publish.Publisher, error) {
	return a.twitter()
}

func (a *app) generator() (*generate.LLM, error) {
	if a.cfg.LLM.APIKey == "" {
		return nil, errors.New("llm api key is not configured (set GEMINI_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	}
	return generate.NewLLM(
		a.cfg.LLM.Provider,
		a.cfg.LLM.Model,
		a.cfg.LLM.APIKey,
		a.cfg.LLM.BaseURL,
		a.cfg.LLM.VoiceProfilePath,
	), nil
}

func (a *app) driver(reg prometheus.Registerer) (*scheduler.Driver, error) {
	pub, err := a.publisher()
	if err != nil {
		return nil, err
	}
	lib, err := a.mediaLibrary()
	if err != nil {
		return nil, err
	}
	return scheduler.NewDriver(a.db, a.engine, pub, scheduler.Options{
		Alerts:          buildAlertManager(a.cfg),
		Media:           lib,
		Metrics:         scheduler.NewMetrics(reg),
		Logger:          a.logger,
		StrategyEnabled: a.cfg.Schedule.Strategy.Enabled,
		Cron:            a.cfg.Schedule.Cron,
	}), nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

type addOptions struct {
	text  string
	media string
	notes string
	quote string
}

func runDraftAdd(ctx context.Context, opts addOptions) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	mediaPath := opts.media
	if mediaPath != "" {
		lib, err := a.mediaLibrary()
		if err != nil {
			return err
		}
		if mediaPath, err = lib.Check(mediaPath); err != nil {
			return err
		}
	}

	id, err := a.db.Create(ctx, store.NewDraft{
		Text:            opts.text,
		MediaPath:       mediaPath,
		Notes:           opts.notes,
		IsRetweet:       opts.quote != "",
		OriginalTweetID: opts.quote,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runDraftList(ctx context.Context, status string, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var drafts []store.Draft
	if status == "" {
		drafts, err = a.db.ListAll(ctx)
	} else {
		st := store.Status(status)
		if !st.Valid() {
			return fmt.Errorf("unknown status %q", status)
		}
		drafts, err = a.db.ListByStatus(ctx, st)
	}
	if err != nil {
		return err
	}
	return printDrafts(os.Stdout, drafts, jsonOutput)
}

func runDraftShow(ctx context.Context, id string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.db.Get(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func runDraftScheduled(ctx context.Context, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	drafts, err := a.engine.ListScheduled(ctx)
	if err != nil {
		return err
	}
	return printDrafts(os.Stdout, drafts, jsonOutput)
}

func runDraftExport(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := a.db.ExportSafe(ctx)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runSchedule(ctx context.Context, id, at string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Schedule(ctx, id, at); err != nil {
		return err
	}
	d, err := a.db.Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s scheduled for %s\n", id, d.ScheduledTime)
	return nil
}

func runUnschedule(ctx context.Context, id string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Unschedule(ctx, id); err != nil {
		return err
	}
	fmt.Printf("%s is pending\n", id)
	return nil
}

func runDue(ctx context.Context, at string) error {
	now, err := parseAt(at)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	drafts, err := a.engine.DuePosts(ctx, now)
	if err != nil {
		return err
	}
	if len(drafts) == 0 {
		fmt.Println("nothing due")
		return nil
	}
	return printDrafts(os.Stdout, drafts, false)
}

func runPost(ctx context.Context, id string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.driver(nil)
	if err != nil {
		return err
	}
	out, err := d.PublishDraft(ctx, id)
	if err != nil {
		return err
	}
	printOutcome(os.Stdout, out)
	if !out.OK() {
		return fmt.Errorf("publish %s: %s", id, out.Status)
	}
	return nil
}

func runPublishDue(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.driver(nil)
	if err != nil {
		return err
	}
	summary, err := d.Tick(ctx, time.Now())
	if err != nil {
		return err
	}

	if len(summary.Outcomes) == 0 {
		fmt.Println("nothing to publish")
	}
	for _, out := range summary.Outcomes {
		printOutcome(os.Stdout, out)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d attempts failed", summary.Failed, len(summary.Outcomes))
	}
	return nil
}

func runSlot(at string) error {
	now, err := parseAt(at)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rule, err := cfg.Schedule.Strategy.Rule()
	if err != nil {
		return err
	}

	if rule.Contains(now) {
		color.Green("%s is a strategy slot", now.Format(time.RFC3339))
	} else {
		fmt.Printf("%s is not a strategy slot\n", now.Format(time.RFC3339))
	}
	return nil
}

func runGenerate(ctx context.Context, topic string, count int, save bool, quote string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	llm, err := a.generator()
	if err != nil {
		return err
	}

	var texts []string
	if quote != "" {
		comment, err := llm.QuoteComment(ctx, topic)
		if err != nil {
			return err
		}
		texts = []string{comment}
	} else {
		if texts, err = llm.Generate(ctx, topic, count); err != nil {
			return err
		}
	}

	for _, text := range texts {
		if !save {
			fmt.Println(text)
			continue
		}
		id, err := a.db.Create(ctx, store.NewDraft{
			Text:            text,
			Model:           llm.Model(),
			Notes:           topicNote(topic),
			IsRetweet:       quote != "",
			OriginalTweetID: quote,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", id, text)
	}
	return nil
}

func runIngest(ctx context.Context, count, limit int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Feeds) == 0 {
		return errors.New("no feeds configured")
	}
	llm, err := a.generator()
	if err != nil {
		return err
	}

	rss := source.NewRSS(a.cfg.Feeds, source.NewFilter(a.cfg.Filter.Include, a.cfg.Filter.Exclude), 0, a.logger)
	entries, err := rss.Collect(ctx)
	if err != nil {
		return err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	created := 0
	for _, entry := range entries {
		texts, err := llm.Generate(ctx, entry.Topic(), count)
		if err != nil {
			a.logger.Warn("generate failed", "feed", entry.Feed, "title", entry.Title, "error", err)
			continue
		}
		for _, text := range texts {
			if _, err := a.db.Create(ctx, store.NewDraft{
				Text:  text,
				Model: llm.Model(),
				Notes: entry.URL,
			}); err != nil {
				return err
			}
			created++
		}
	}

	fmt.Printf("created %d drafts from %d entries\n", created, len(entries))
	return nil
}

func runVoice(ctx context.Context, samplesPath, user string, count int, importPath string) error {
	given := 0
	for _, v := range []string{samplesPath, user, importPath} {
		if v != "" {
			given++
		}
	}
	if given != 1 {
		return errors.New("give exactly one of a samples file, --user or --import")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	llm, err := a.generator()
	if err != nil {
		return err
	}

	if importPath != "" {
		data, err := os.ReadFile(importPath)
		if err != nil {
			return err
		}
		if err := llm.ImportProfile(string(data)); err != nil {
			return err
		}
		fmt.Println("voice profile imported")
		return nil
	}

	var samples []string
	if user != "" {
		tw, err := a.twitter()
		if err != nil {
			return err
		}
		if samples, err = tw.UserTweets(ctx, user, count); err != nil {
			return err
		}
		if len(samples) == 0 {
			return fmt.Errorf("no posts found for %s", user)
		}
	} else if samples, err = readSamples(samplesPath); err != nil {
		return err
	}

	profile, err := llm.AnalyzeStyle(ctx, samples)
	if err != nil {
		return err
	}
	fmt.Println(profile)
	return nil
}

// readSamples returns the non-blank lines of path.
func readSamples(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			samples = append(samples, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return samples, nil
}

func runRetweets(ctx context.Context, query string, count int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tw, err := a.twitter()
	if err != nil {
		return err
	}
	llm, err := a.generator()
	if err != nil {
		return err
	}

	ids, err := draftQuotes(ctx, a.db, tw, llm, query, count, a.logger)
	if err != nil {
		return err
	}
	fmt.Printf("created %d quote drafts\n", len(ids))
	return nil
}

func runScan(ctx context.Context, dir string, options int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lib, err := a.mediaLibrary()
	if err != nil {
		return err
	}
	llm, err := a.generator()
	if err != nil {
		return err
	}

	ids, err := draftImages(ctx, a.db, lib, llm, dir, options, a.logger)
	if err != nil {
		return err
	}
	fmt.Printf("created %d image drafts\n", len(ids))
	return nil
}

type tweetSearcher interface {
	SearchRecent(ctx context.Context, query string, count int) ([]publish.Tweet, error)
}

type quoteWriter interface {
	QuoteComment(ctx context.Context, original string) (string, error)
	Model() string
}

type imageWriter interface {
	FromImage(ctx context.Context, path string, count int) ([]string, error)
	Model() string
}

// draftQuotes searches recent posts and stores a quote comment for each as
// a pending retweet draft. Posts the model fails on are skipped.
func draftQuotes(ctx context.Context, db store.Store, search tweetSearcher, w quoteWriter, query string, count int, logger *slog.Logger) ([]string, error) {
	found, err := search.SearchRecent(ctx, query, count)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no posts match %q", query)
	}

	var ids []string
	for _, t := range found {
		comment, err := w.QuoteComment(ctx, t.Text)
		if err != nil {
			logger.Warn("quote comment failed", "tweet", t.ID, "error", err)
			continue
		}
		id, err := db.Create(ctx, store.NewDraft{
			Text:            comment,
			Model:           w.Model(),
			Notes:           retweetNote(t),
			IsRetweet:       true,
			OriginalTweetID: t.ID,
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// draftImages stores options drafts for every image in dir, each with the
// image attached. Images the model fails on are skipped.
func draftImages(ctx context.Context, db store.Store, lib *media.Library, w imageWriter, dir string, options int, logger *slog.Logger) ([]string, error) {
	images, err := lib.Scan(dir)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}

	var ids []string
	for _, path := range images {
		name := filepath.Base(path)
		texts, err := w.FromImage(ctx, path, options)
		if err != nil {
			logger.Warn("image drafts failed", "image", name, "error", err)
			continue
		}
		for i, text := range texts {
			id, err := db.Create(ctx, store.NewDraft{
				Text:      text,
				MediaPath: path,
				Model:     w.Model(),
				Notes:     fmt.Sprintf("Option %d generated from image: %s", i+1, name),
			})
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func topicNote(topic string) string {
	return "Generated for topic: " + topic
}

func retweetNote(t publish.Tweet) string {
	text := []rune(t.Text)
	if len(text) > 30 {
		text = text[:30]
	}
	return fmt.Sprintf("Retweet of %s: %s...", t.AuthorID, string(text))
}

func runServe(port int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.serve(ctx, port, nil, prometheus.NewRegistry())
}

func runDaemon(port int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	d, err := a.driver(reg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := d.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("driver stopped", "error", err)
			cancel()
		}
	}()

	return a.serve(ctx, port, d, reg)
}

func (a *app) serve(ctx context.Context, port int, d *scheduler.Driver, reg *prometheus.Registry) error {
	if port == 0 {
		port = a.cfg.Server.Port
	}
	lib, err := a.mediaLibrary()
	if err != nil {
		return err
	}
	srv := server.New(a.db, a.engine, server.Options{
		Driver:   d,
		Media:    lib,
		Gatherer: reg,
		Port:     port,
		Logger:   a.logger,
	})
	err = srv.ListenAndServe(ctx)
	a.logger.Info("shut down")
	return err
}

func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC 3339: %w", err)
	}
	return t, nil
}

var statusColors = map[store.Status]func(format string, a ...any) string{
	store.StatusPending:   color.YellowString,
	store.StatusScheduled: color.CyanString,
	store.StatusPosted:    color.GreenString,
}

func printDrafts(out io.Writer, drafts []store.Draft, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if drafts == nil {
			drafts = []store.Draft{}
		}
		return enc.Encode(drafts)
	}

	if len(drafts) == 0 {
		fmt.Fprintln(out, "no drafts")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSCHEDULED\tMEDIA\tTEXT")
	for _, d := range drafts {
		status := string(d.Status)
		if paint, ok := statusColors[d.Status]; ok {
			status = paint("%s", d.Status)
		}
		attached := ""
		if d.MediaPath != "" {
			attached = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.ID, status, d.ScheduledTime, attached, store.AttemptText(strings.ReplaceAll(d.Text, "\n", " ")))
	}
	return w.Flush()
}

func printOutcome(out io.Writer, o scheduler.Outcome) {
	if o.OK() {
		fmt.Fprintf(out, "%s %s tweet %s\n", color.GreenString("posted"), o.DraftID, o.TweetID)
		return
	}
	fmt.Fprintf(out, "%s %s: %v\n", color.RedString(o.Status), o.DraftID, o.Err)
}
