package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/voicepost/internal/media"
	"github.com/elonfeng/voicepost/internal/scheduler"
	"github.com/elonfeng/voicepost/internal/store"
	"github.com/elonfeng/voicepost/pkg/publish"
)

func TestPrintDrafts(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	require.NoError(t, printDrafts(&buf, nil, false))
	assert.Equal(t, "no drafts\n", buf.String())

	buf.Reset()
	drafts := []store.Draft{
		{ID: "aaaa1111", Status: store.StatusScheduled, ScheduledTime: "2026-02-02T10:00:00", Text: "line one\nline two"},
		{ID: "bbbb2222", Status: store.StatusPending, MediaPath: "a.png", Text: strings.Repeat("x", 80)},
	}
	require.NoError(t, printDrafts(&buf, drafts, false))
	out := buf.String()
	assert.Contains(t, out, "aaaa1111")
	assert.Contains(t, out, "line one line two")
	assert.Contains(t, out, strings.Repeat("x", 50)+"...")

	buf.Reset()
	require.NoError(t, printDrafts(&buf, nil, true))
	assert.Equal(t, "[]\n", buf.String())
}

func TestPrintOutcome(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printOutcome(&buf, scheduler.Outcome{DraftID: "d1", Status: store.AttemptSuccess, TweetID: "9"})
	assert.Equal(t, "posted d1 tweet 9\n", buf.String())

	buf.Reset()
	printOutcome(&buf, scheduler.Outcome{DraftID: "d2", Status: store.AttemptFailed, Err: errors.New("403")})
	assert.Equal(t, "failed d2: 403\n", buf.String())
}

func TestParseAt(t *testing.T) {
	got, err := parseAt("2026-02-04T14:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 14, got.Hour())

	_, err = parseAt("2026-02-04")
	assert.Error(t, err)
}

func TestRootCmd_HasCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"draft", "schedule", "unschedule", "due", "post", "publish-due", "slot", "generate", "ingest", "retweets", "scan", "voice", "serve", "run"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSearch struct {
	tweets []publish.Tweet
	query  string
	count  int
}

func (f *fakeSearch) SearchRecent(_ context.Context, query string, count int) ([]publish.Tweet, error) {
	f.query, f.count = query, count
	return f.tweets, nil
}

type fakeWriter struct {
	fail map[string]bool
}

func (fakeWriter) Model() string { return "fake-model" }

func (w fakeWriter) QuoteComment(_ context.Context, original string) (string, error) {
	if w.fail[original] {
		return "", errors.New("model unavailable")
	}
	return "take on " + original, nil
}

func (w fakeWriter) FromImage(_ context.Context, path string, count int) ([]string, error) {
	name := filepath.Base(path)
	if w.fail[name] {
		return nil, errors.New("model unavailable")
	}
	var out []string
	for i := range count {
		out = append(out, name+" option "+string(rune('a'+i)))
	}
	return out, nil
}

func newTestStore(t *testing.T) *store.CSVStore {
	t.Helper()
	s, err := store.NewCSV(store.DefaultPaths(t.TempDir()))
	require.NoError(t, err)
	return s
}

func TestDraftQuotes(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	search := &fakeSearch{tweets: []publish.Tweet{
		{ID: "101", AuthorID: "u1", Text: "a fairly long post about compilers and their many passes"},
		{ID: "102", AuthorID: "u2", Text: "skip me"},
		{ID: "103", AuthorID: "u3", Text: "short"},
	}}
	w := fakeWriter{fail: map[string]bool{"skip me": true}}

	ids, err := draftQuotes(ctx, db, search, w, "compilers", 5, quiet)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "compilers", search.query)
	assert.Equal(t, 5, search.count)

	d, err := db.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "take on a fairly long post about compilers and their many passes", d.Text)
	assert.True(t, d.IsRetweet)
	assert.Equal(t, "101", d.OriginalTweetID)
	assert.Equal(t, "fake-model", d.ModelUsed)
	assert.Equal(t, "Retweet of u1: a fairly long post about compi...", d.Notes)
	assert.Equal(t, store.StatusPending, d.Status)

	d, err = db.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "103", d.OriginalTweetID)
	assert.Equal(t, "Retweet of u3: short...", d.Notes)
}

func TestDraftQuotes_NoResults(t *testing.T) {
	_, err := draftQuotes(context.Background(), newTestStore(t), &fakeSearch{}, fakeWriter{}, "nothing", 5, quiet)
	assert.ErrorContains(t, err, "no posts match")
}

func TestDraftImages(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	root := t.TempDir()
	lib, err := media.New(root)
	require.NoError(t, err)
	dir := filepath.Join(root, "shots")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"beach.jpg", "broken.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	w := fakeWriter{fail: map[string]bool{"broken.png": true}}
	ids, err := draftImages(ctx, db, lib, w, dir, 3, quiet)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	for i, id := range ids {
		d, err := db.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "beach.jpg"), d.MediaPath)
		assert.Equal(t, "beach.jpg option "+string(rune('a'+i)), d.Text)
		assert.Equal(t, "Option "+string(rune('1'+i))+" generated from image: beach.jpg", d.Notes)
	}

	_, err = draftImages(ctx, db, lib, w, t.TempDir(), 3, quiet)
	assert.ErrorIs(t, err, media.ErrOutsideRoot)

	empty := filepath.Join(root, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))
	_, err = draftImages(ctx, db, lib, w, empty, 3, quiet)
	assert.ErrorContains(t, err, "no images found")
}

func TestTopicNoteKeepsFullTopic(t *testing.T) {
	topic := strings.Repeat("long topic ", 20)
	assert.Equal(t, "Generated for topic: "+topic, topicNote(topic))
}

func TestRunVoice_RequiresOneSource(t *testing.T) {
	ctx := context.Background()
	assert.ErrorContains(t, runVoice(ctx, "", "", 20, ""), "exactly one")
	assert.ErrorContains(t, runVoice(ctx, "samples.txt", "gopher", 20, ""), "exactly one")
}
