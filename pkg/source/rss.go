package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// Feed is a named RSS/Atom feed URL.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// RSS collects recent entries from RSS/Atom feeds.
type RSS struct {
	client *http.Client
	parser *gofeed.Parser
	feeds  []Feed
	filter *Filter
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRSS creates a feed collector. Entries older than maxAge are skipped;
// zero means 24 hours.
func NewRSS(feeds []Feed, filter *Filter, maxAge time.Duration, logger *slog.Logger) *RSS {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RSS{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		feeds:  feeds,
		filter: filter,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

func (r *RSS) Name() string { return "rss" }

// Collect fetches every feed. A failing feed is logged and skipped; an
// error is returned only when all feeds fail.
func (r *RSS) Collect(ctx context.Context) ([]Entry, error) {
	var all []Entry
	var errs []error

	for _, feed := range r.feeds {
		entries, err := r.collectFeed(ctx, feed)
		if err != nil {
			r.logger.Warn("rss feed failed", "feed", feed.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		all = append(all, entries...)
	}

	if len(errs) > 0 && len(errs) == len(r.feeds) {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

func (r *RSS) collectFeed(ctx context.Context, feed Feed) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "voicepost/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feed.Name, err)
	}

	now := r.now().UTC()
	cutoff := now.Add(-r.maxAge)

	var entries []Entry
	for _, item := range parsed.Items {
		published := now
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}
		if published.Before(cutoff) {
			continue
		}
		if !r.filter.Match(item.Title + " " + item.Description) {
			continue
		}

		link := item.Link
		if link == "" && len(item.Links) > 0 {
			link = item.Links[0]
		}

		entries = append(entries, Entry{
			Feed:      feed.Name,
			GUID:      item.GUID,
			Title:     item.Title,
			URL:       link,
			Summary:   truncate(item.Description, 500),
			Published: published,
		})
	}

	return entries, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
