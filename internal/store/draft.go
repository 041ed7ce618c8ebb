package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a draft.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusPosted    Status = "posted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusPosted:
		return true
	}
	return false
}

// Attempt outcomes recorded in the attempt log.
const (
	AttemptSuccess = "success"
	AttemptFailed  = "failed"
	AttemptError   = "error"
)

// TimestampLayout is the naive ISO-8601 layout used for generated timestamps.
// Values in one layout sort lexicographically in chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// ScheduleLayout is the layout scheduled times are normalized to.
const ScheduleLayout = "2006-01-02T15:04:05"

// Column headers of the backing tables.
var (
	DraftColumns   = []string{"id", "text", "media_path", "model_used", "status", "created_at", "scheduled_time", "notes", "is_retweet", "original_tweet_id"}
	PostedColumns  = []string{"id", "text", "media_path", "posted_at", "tweet_id"}
	AttemptColumns = []string{"timestamp", "draft_id", "status", "tweet_id", "error", "text"}
)

// Draft is a candidate post.
type Draft struct {
	ID              string `json:"id" db:"id"`
	Text            string `json:"text" db:"text"`
	MediaPath       string `json:"media_path" db:"media_path"`
	ModelUsed       string `json:"model_used" db:"model_used"`
	Status          Status `json:"status" db:"status"`
	CreatedAt       string `json:"created_at" db:"created_at"`
	ScheduledTime   string `json:"scheduled_time" db:"scheduled_time"`
	Notes           string `json:"notes" db:"notes"`
	IsRetweet       bool   `json:"is_retweet" db:"is_retweet"`
	OriginalTweetID string `json:"original_tweet_id" db:"original_tweet_id"`

	// extra holds columns of an existing table this version does not know.
	extra map[string]string
}

// NewDraft holds the caller-supplied fields of a draft being created.
type NewDraft struct {
	Text            string
	MediaPath       string
	Model           string // defaults to "manual"
	Notes           string
	IsRetweet       bool
	OriginalTweetID string // kept only when IsRetweet is set
}

// PostedRecord is an append-only fact about a successful publication.
type PostedRecord struct {
	DraftID   string `json:"draft_id" db:"draft_id"`
	Text      string `json:"text" db:"text"`
	MediaPath string `json:"media_path" db:"media_path"`
	PostedAt  string `json:"posted_at" db:"posted_at"`
	TweetID   string `json:"tweet_id" db:"tweet_id"`
}

// Attempt is one row of the publish attempt log.
type Attempt struct {
	Timestamp string `json:"timestamp" db:"timestamp"`
	DraftID   string `json:"draft_id" db:"draft_id"`
	Status    string `json:"status" db:"status"`
	TweetID   string `json:"tweet_id" db:"tweet_id"`
	Error     string `json:"error" db:"error"`
	Text      string `json:"text" db:"text"`
}

// PostedText lets MarkPosted skip re-reading the draft.
type PostedText struct {
	Text      string
	MediaPath string
}

// CanTransition reports whether a draft may move from one status to another.
// Nothing leaves posted; re-applying the current status is allowed.
func CanTransition(from, to Status) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusScheduled || to == StatusPosted
	case StatusScheduled:
		return to == StatusPending || to == StatusPosted
	}
	return false
}

// AttemptText truncates text for the attempt log.
func AttemptText(text string) string {
	r := []rune(text)
	if len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return text
}

func newDraftID() string {
	return uuid.NewString()[:8]
}

func now() string {
	return time.Now().Format(TimestampLayout)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func (n NewDraft) build() Draft {
	model := n.Model
	if model == "" {
		model = "manual"
	}
	d := Draft{
		ID:        newDraftID(),
		Text:      n.Text,
		MediaPath: n.MediaPath,
		ModelUsed: model,
		Status:    StatusPending,
		CreatedAt: now(),
		Notes:     n.Notes,
		IsRetweet: n.IsRetweet,
	}
	if n.IsRetweet {
		d.OriginalTweetID = n.OriginalTweetID
	}
	return d
}

// field returns the serialized value of a named column.
func (d *Draft) field(col string) string {
	switch col {
	case "id":
		return d.ID
	case "text":
		return d.Text
	case "media_path":
		return d.MediaPath
	case "model_used":
		return d.ModelUsed
	case "status":
		return string(d.Status)
	case "created_at":
		return d.CreatedAt
	case "scheduled_time":
		return d.ScheduledTime
	case "notes":
		return d.Notes
	case "is_retweet":
		return formatBool(d.IsRetweet)
	case "original_tweet_id":
		return d.OriginalTweetID
	}
	return d.extra[col]
}

func (d *Draft) setField(col, v string) {
	switch col {
	case "id":
		d.ID = v
	case "text":
		d.Text = v
	case "media_path":
		d.MediaPath = v
	case "model_used":
		d.ModelUsed = v
	case "status":
		d.Status = Status(v)
	case "created_at":
		d.CreatedAt = v
	case "scheduled_time":
		d.ScheduledTime = v
	case "notes":
		d.Notes = v
	case "is_retweet":
		d.IsRetweet = parseBool(v)
	case "original_tweet_id":
		d.OriginalTweetID = v
	default:
		if d.extra == nil {
			d.extra = make(map[string]string)
		}
		d.extra[col] = v
	}
}

// record serializes d in the given column order.
func (d *Draft) record(header []string) []string {
	rec := make([]string, len(header))
	for i, col := range header {
		rec[i] = d.field(col)
	}
	return rec
}

func draftFromRecord(header, rec []string) Draft {
	var d Draft
	for i, col := range header {
		if i < len(rec) {
			d.setField(col, rec[i])
		}
	}
	return d
}

// apply moves d to status, keeping scheduled_time set only while scheduled.
func (d *Draft) apply(status Status, scheduledTime string) {
	d.Status = status
	if status == StatusScheduled {
		d.ScheduledTime = scheduledTime
	} else {
		d.ScheduledTime = ""
	}
}

func (p PostedRecord) record() []string {
	return []string{p.DraftID, p.Text, p.MediaPath, p.PostedAt, p.TweetID}
}

func (a Attempt) record() []string {
	return []string{a.Timestamp, a.DraftID, a.Status, a.TweetID, a.Error, a.Text}
}
