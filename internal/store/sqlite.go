package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const draftSelect = `SELECT id, text, media_path, model_used, status, created_at, scheduled_time, notes, is_retweet, original_tweet_id FROM drafts`

// SQLiteStore implements Store using SQLite. Each mutation runs in its own
// transaction, which gives the same all-or-nothing visibility as the CSV
// rename.
type SQLiteStore struct {
	db         *sqlx.DB
	exportPath string
}

// NewSQLite opens a SQLite database and runs migrations.
func NewSQLite(path, exportPath string) (*SQLiteStore, error) {
	if exportPath == "" {
		return nil, fmt.Errorf("sqlite store: export path is required")
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, exportPath: exportPath}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, n NewDraft) (string, error) {
	d := n.build()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, text, media_path, model_used, status, created_at, scheduled_time, notes, is_retweet, original_tweet_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Text, d.MediaPath, d.ModelUsed, string(d.Status), d.CreatedAt, d.ScheduledTime, d.Notes, d.IsRetweet, d.OriginalTweetID)
	if err != nil {
		return "", fmt.Errorf("insert draft: %w", dbErr(err))
	}
	return d.ID, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Draft, error) {
	var d Draft
	err := s.db.GetContext(ctx, &d, draftSelect+" WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft %s: %w", id, dbErr(err))
	}
	return &d, nil
}

func (s *SQLiteStore) ListPending(ctx context.Context) ([]Draft, error) {
	return s.ListByStatus(ctx, StatusPending)
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status Status) ([]Draft, error) {
	var drafts []Draft
	if err := s.db.SelectContext(ctx, &drafts, draftSelect+" WHERE status = ? ORDER BY seq", string(status)); err != nil {
		return nil, fmt.Errorf("list %s drafts: %w", status, dbErr(err))
	}
	return drafts, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]Draft, error) {
	var drafts []Draft
	if err := s.db.SelectContext(ctx, &drafts, draftSelect+" ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("list drafts: %w", dbErr(err))
	}
	return drafts, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status Status) (bool, error) {
	if status == StatusScheduled {
		return false, Validationf("status %s requires a scheduled time", status)
	}
	if !status.Valid() {
		return false, Validationf("unknown status %q", status)
	}
	return s.transition(ctx, id, status, "")
}

func (s *SQLiteStore) SetSchedule(ctx context.Context, id, scheduledTime string) (bool, error) {
	status := StatusScheduled
	if scheduledTime == "" {
		status = StatusPending
	}
	return s.transition(ctx, id, status, scheduledTime)
}

func (s *SQLiteStore) transition(ctx context.Context, id string, status Status, scheduledTime string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", dbErr(err))
	}
	defer tx.Rollback()

	var current Status
	err = tx.GetContext(ctx, &current, "SELECT status FROM drafts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read draft %s: %w", id, dbErr(err))
	}
	if !CanTransition(current, status) {
		return false, Validationf("draft %s is %s and cannot become %s", id, current, status)
	}

	d := Draft{Status: current}
	d.apply(status, scheduledTime)
	if _, err := tx.ExecContext(ctx, "UPDATE drafts SET status = ?, scheduled_time = ? WHERE id = ?",
		string(d.Status), d.ScheduledTime, id); err != nil {
		return false, fmt.Errorf("update draft %s: %w", id, dbErr(err))
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit draft %s: %w", id, dbErr(err))
	}
	return true, nil
}

func (s *SQLiteStore) MarkPosted(ctx context.Context, id, tweetID string, posted *PostedText) error {
	if _, err := s.UpdateStatus(ctx, id, StatusPosted); err != nil {
		return fmt.Errorf("mark %s posted: %w", id, err)
	}

	rec := PostedRecord{DraftID: id, TweetID: tweetID, PostedAt: now()}
	if posted != nil {
		rec.Text, rec.MediaPath = posted.Text, posted.MediaPath
	} else {
		d, err := s.Get(ctx, id)
		switch {
		case err == nil:
			rec.Text, rec.MediaPath = d.Text, d.MediaPath
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("mark %s posted: %w", id, err)
		}
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO posted_history (draft_id, text, media_path, posted_at, tweet_id)
		VALUES (:draft_id, :text, :media_path, :posted_at, :tweet_id)
	`, rec)
	if err != nil {
		return fmt.Errorf("log posted %s: %w", id, dbErr(err))
	}
	return nil
}

func (s *SQLiteStore) LogAttempt(ctx context.Context, a Attempt) error {
	if a.Timestamp == "" {
		a.Timestamp = now()
	}
	a.Text = AttemptText(a.Text)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO post_log (timestamp, draft_id, status, tweet_id, error, text)
		VALUES (:timestamp, :draft_id, :status, :tweet_id, :error, :text)
	`, a)
	if err != nil {
		return fmt.Errorf("log attempt %s: %w", a.DraftID, dbErr(err))
	}
	return nil
}

func (s *SQLiteStore) ListPosted(ctx context.Context) ([]PostedRecord, error) {
	var out []PostedRecord
	err := s.db.SelectContext(ctx, &out,
		"SELECT draft_id, text, media_path, posted_at, tweet_id FROM posted_history ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("list posted: %w", dbErr(err))
	}
	return out, nil
}

func (s *SQLiteStore) ListAttempts(ctx context.Context) ([]Attempt, error) {
	var out []Attempt
	err := s.db.SelectContext(ctx, &out,
		"SELECT timestamp, draft_id, status, tweet_id, error, text FROM post_log ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", dbErr(err))
	}
	return out, nil
}

func (s *SQLiteStore) ExportSafe(ctx context.Context) (string, error) {
	drafts, err := s.ListAll(ctx)
	if err != nil {
		return "", err
	}
	rows := make([][]string, len(drafts))
	for i := range drafts {
		rows[i] = SanitizeRecord(drafts[i].record(DraftColumns))
	}
	if err := writeTableAtomic(s.exportPath, DraftColumns, rows); err != nil {
		return "", err
	}
	return s.exportPath, nil
}

// dbErr marks a database failure so callers can tell it from ErrNotFound.
func dbErr(err error) error {
	return &IOError{Op: "query", Path: "sqlite", Err: err}
}
