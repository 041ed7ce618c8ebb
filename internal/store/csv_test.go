package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVStore_CreateWritesHeaderOnce(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)

	a, err := s.Create(ctx, NewDraft{Text: "a", IsRetweet: true, OriginalTweetID: "9"})
	require.NoError(t, err)
	b, err := s.Create(ctx, NewDraft{Text: "b", Model: "openai:gpt-4o-mini"})
	require.NoError(t, err)

	records := readCSV(t, paths.Drafts)
	require.Len(t, records, 3)
	assert.Equal(t, DraftColumns, records[0])
	assert.Equal(t, a, records[1][0])
	assert.Equal(t, "True", records[1][8])
	assert.Equal(t, "9", records[1][9])
	assert.Equal(t, b, records[2][0])
	assert.Equal(t, "openai:gpt-4o-mini", records[2][3])
	assert.Equal(t, "False", records[2][8])
}

func TestCSVStore_CreateIntoEmptyFile(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)
	require.NoError(t, os.WriteFile(paths.Drafts, nil, 0o644))

	_, err := s.Create(ctx, NewDraft{Text: "a"})
	require.NoError(t, err)

	records := readCSV(t, paths.Drafts)
	require.Len(t, records, 2)
	assert.Equal(t, DraftColumns, records[0])
}

func TestCSVStore_UpdateMissingIDLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)
	_, err := s.Create(ctx, NewDraft{Text: "a"})
	require.NoError(t, err)

	before, err := os.ReadFile(paths.Drafts)
	require.NoError(t, err)
	info, err := os.Stat(paths.Drafts)
	require.NoError(t, err)

	ok, err := s.UpdateStatus(ctx, "missing", StatusPosted)
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := os.ReadFile(paths.Drafts)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	info2, err := os.Stat(paths.Drafts)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), info2.ModTime())
	assertNoTempFiles(t, filepath.Dir(paths.Drafts))
}

func TestCSVStore_UpdateWithoutTable(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)

	ok, err := s.UpdateStatus(ctx, "abc", StatusPosted)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(paths.Drafts)
	assert.True(t, os.IsNotExist(err))
}

func TestCSVStore_RewritePreservesUnknownColumns(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)

	raw := "id,text,status,priority\n" +
		"aaaa1111,first,pending,high\n" +
		"bbbb2222,second,pending,low\n"
	require.NoError(t, os.WriteFile(paths.Drafts, []byte(raw), 0o644))

	ok, err := s.SetSchedule(ctx, "bbbb2222", "2026-02-02T06:00:00")
	require.NoError(t, err)
	assert.True(t, ok)

	records := readCSV(t, paths.Drafts)
	require.Len(t, records, 3)
	header := records[0]
	assert.Equal(t, []string{"id", "text", "status", "priority"}, header[:4])
	for _, col := range DraftColumns {
		assert.Contains(t, header, col)
	}
	assert.Equal(t, "high", records[1][3])
	assert.Equal(t, "low", records[2][3])
	assert.Equal(t, "scheduled", records[2][2])

	d, err := s.Get(ctx, "bbbb2222")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-02T06:00:00", d.ScheduledTime)
	assert.Equal(t, "second", d.Text)
}

func TestCSVStore_CreateWidensOlderTable(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)

	raw := "id,text,media_path,model_used,status,created_at,scheduled_time,notes\n" +
		"aaaa1111,old,,manual,pending,2026-01-01T00:00:00.000000,,\n"
	require.NoError(t, os.WriteFile(paths.Drafts, []byte(raw), 0o644))

	id, err := s.Create(ctx, NewDraft{Text: "quote", IsRetweet: true, OriginalTweetID: "42"})
	require.NoError(t, err)

	records := readCSV(t, paths.Drafts)
	require.Len(t, records, 3)
	assert.Equal(t, DraftColumns, records[0])
	assert.Equal(t, "old", records[1][1])
	assert.Len(t, records[1], len(DraftColumns))

	d, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, d.IsRetweet)
	assert.Equal(t, "42", d.OriginalTweetID)

	old, err := s.Get(ctx, "aaaa1111")
	require.NoError(t, err)
	assert.False(t, old.IsRetweet)
	assertNoTempFiles(t, filepath.Dir(paths.Drafts))
}

func TestCSVStore_MalformedTableAbortsRewrite(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)

	raw := strings.Join(DraftColumns, ",") + "\n" +
		"aaaa1111,he\"llo,,manual,pending,2026-01-01T00:00:00.000000,,,False,\n"
	require.NoError(t, os.WriteFile(paths.Drafts, []byte(raw), 0o644))

	_, err := s.UpdateStatus(ctx, "aaaa1111", StatusPosted)
	require.Error(t, err)
	assert.True(t, IsIO(err))
	assert.NotErrorIs(t, err, ErrNotFound)

	after, err := os.ReadFile(paths.Drafts)
	require.NoError(t, err)
	assert.Equal(t, raw, string(after))
	assertNoTempFiles(t, filepath.Dir(paths.Drafts))
}

func TestCSVStore_ExportWithoutTable(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)

	path, err := s.ExportSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, paths.Export, path)

	records := readCSV(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, DraftColumns, records[0])
	_, err = os.Stat(paths.Drafts)
	assert.True(t, os.IsNotExist(err))
}

func TestCSVStore_ExportLeavesRawTable(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)
	payload := "=cmd|' /C calc'!A0"

	malicious, err := s.Create(ctx, NewDraft{Text: "Malicious", Notes: payload})
	require.NoError(t, err)
	mention, err := s.Create(ctx, NewDraft{Text: "@mentioning someone", Notes: "Normal"})
	require.NoError(t, err)

	before, err := os.ReadFile(paths.Drafts)
	require.NoError(t, err)

	path, err := s.ExportSafe(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, paths.Drafts, path)

	raw := readCSV(t, paths.Drafts)
	assert.Equal(t, payload, raw[1][7])

	exported := readCSV(t, path)
	require.Len(t, exported, 3)
	assert.Equal(t, malicious, exported[1][0])
	assert.Equal(t, "'"+payload, exported[1][7])
	assert.Equal(t, mention, exported[2][0])
	assert.Equal(t, "'@mentioning someone", exported[2][1])
	assert.Equal(t, "Normal", exported[2][7])

	after, err := os.ReadFile(paths.Drafts)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCSVStore_ParsesLowercaseBool(t *testing.T) {
	ctx := context.Background()
	s, paths := newCSVStore(t)
	raw := strings.Join(DraftColumns, ",") + "\n" +
		"aaaa1111,hi,,manual,pending,2026-01-01T00:00:00.000000,,,true,77\n"
	require.NoError(t, os.WriteFile(paths.Drafts, []byte(raw), 0o644))

	d, err := s.Get(ctx, "aaaa1111")
	require.NoError(t, err)
	assert.True(t, d.IsRetweet)
	assert.Equal(t, "77", d.OriginalTweetID)
}

func TestCSVStore_MarkPostedUnknownIDStillLogs(t *testing.T) {
	ctx := context.Background()
	s, _ := newCSVStore(t)

	require.NoError(t, s.MarkPosted(ctx, "ghost", "1", nil))
	posted, err := s.ListPosted(ctx)
	require.NoError(t, err)
	require.Len(t, posted, 1)
	assert.Equal(t, "ghost", posted[0].DraftID)
	assert.Empty(t, posted[0].Text)
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "leftover temp file %s", e.Name())
	}
}
