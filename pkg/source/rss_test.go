package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)


func item(guid, title, desc string, published time.Time) string {
	return fmt.Sprintf(`<item><guid>%s</guid><title>%s</title><link>https://example.com/%s</link><description>%s</description><pubDate>%s</pubDate></item>`,
		guid, title, guid, desc, published.Format(time.RFC1123Z))
}

func newTestRSS(feeds []Feed, filter *Filter) *RSS {
	r := NewRSS(feeds, filter, 24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = func() time.Time { return fixedNow }
	return r
}

func TestRSS_Collect(t *testing.T) {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>` +
		item("1", "New Go release", "generics everywhere", fixedNow.Add(-time.Hour)) +
		item("2", "Old news", "go go go", fixedNow.Add(-48*time.Hour)) +
		item("3", "Crypto pump", "go to the moon", fixedNow.Add(-time.Hour)) +
		item("4", "Gardening tips", "tomatoes", fixedNow.Add(-time.Hour)) +
		`</channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "voicepost/1.0", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	rss := newTestRSS([]Feed{{Name: "golang", URL: srv.URL}}, NewFilter([]string{"go"}, []string{"crypto"}))
	entries, err := rss.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "golang", e.Feed)
	assert.Equal(t, "1", e.GUID)
	assert.Equal(t, "https://example.com/1", e.URL)
	assert.Equal(t, "New Go release\n\ngenerics everywhere", e.Topic())
}

func TestRSS_FailingFeeds(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`+
			item("a", "hello", "", fixedNow)+`</channel></rss>`)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	rss := newTestRSS([]Feed{{Name: "bad", URL: bad.URL}, {Name: "good", URL: good.URL}}, nil)
	entries, err := rss.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	rss = newTestRSS([]Feed{{Name: "bad", URL: bad.URL}}, nil)
	_, err = rss.Collect(context.Background())
	assert.ErrorContains(t, err, "status 500")
}

func TestFilter_Match(t *testing.T) {
	f := NewFilter([]string{"Go", " "}, []string{"Crypto"})
	assert.True(t, f.Match("GOLANG 1.26"))
	assert.False(t, f.Match("go crypto"))
	assert.False(t, f.Match("rust"))

	all := NewFilter(nil, []string{"spam"})
	assert.True(t, all.Match("anything"))
	assert.False(t, all.Match("SPAM offer"))

	var none *Filter
	assert.True(t, none.Match("x"))
}

func TestEntry_TopicWithoutSummary(t *testing.T) {
	assert.Equal(t, "title", Entry{Title: "title"}.Topic())
}
