package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// CSVStore implements Store over header-first CSV files.
type CSVStore struct {
	paths Paths
	// mu serializes writers inside this process. There is no cross-process
	// lock: a single external driver is assumed.
	mu sync.Mutex
}

// NewCSV returns a store over the given tables. Files are created lazily.
func NewCSV(paths Paths) (*CSVStore, error) {
	if paths.Drafts == "" || paths.Posted == "" || paths.Attempts == "" || paths.Export == "" {
		return nil, fmt.Errorf("csv store: all table paths are required")
	}
	if paths.Export == paths.Drafts {
		return nil, fmt.Errorf("csv store: export path must differ from drafts table")
	}
	return &CSVStore{paths: paths}, nil
}

// Paths returns the tables this store writes.
func (s *CSVStore) Paths() Paths {
	return s.paths
}

func (s *CSVStore) Close() error {
	return nil
}

func (s *CSVStore) Create(ctx context.Context, n NewDraft) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, err := readHeader(s.paths.Drafts)
	if err != nil {
		return "", err
	}
	if header == nil {
		header = DraftColumns
	}

	d := n.build()
	if full := unionHeader(header, DraftColumns); len(full) > len(header) {
		if err := s.widen(full, d.record(full)); err != nil {
			return "", err
		}
		return d.ID, nil
	}
	if err := appendRecord(s.paths.Drafts, header, d.record(header)); err != nil {
		return "", err
	}
	return d.ID, nil
}

// widen rewrites an older table under header, which adds the canonical
// columns it lacks, and appends rec. Existing rows get empty cells.
func (s *CSVStore) widen(header, rec []string) error {
	t, err := readTable(s.paths.Drafts)
	if err != nil {
		return err
	}
	var rows [][]string
	if t != nil {
		rows = make([][]string, 0, len(t.rows)+1)
		for _, r := range t.rows {
			rows = append(rows, pad(r, len(header)))
		}
	}
	rows = append(rows, rec)
	return writeTableAtomic(s.paths.Drafts, header, rows)
}

func (s *CSVStore) Get(ctx context.Context, id string) (*Draft, error) {
	var found *Draft
	err := scanTable(s.paths.Drafts, func(header, rec []string) bool {
		d := draftFromRecord(header, rec)
		if d.ID == id {
			found = &d
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *CSVStore) ListPending(ctx context.Context) ([]Draft, error) {
	return s.ListByStatus(ctx, StatusPending)
}

func (s *CSVStore) ListByStatus(ctx context.Context, status Status) ([]Draft, error) {
	var drafts []Draft
	err := scanTable(s.paths.Drafts, func(header, rec []string) bool {
		d := draftFromRecord(header, rec)
		if d.Status == status {
			drafts = append(drafts, d)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

func (s *CSVStore) ListAll(ctx context.Context) ([]Draft, error) {
	var drafts []Draft
	err := scanTable(s.paths.Drafts, func(header, rec []string) bool {
		drafts = append(drafts, draftFromRecord(header, rec))
		return true
	})
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

func (s *CSVStore) UpdateStatus(ctx context.Context, id string, status Status) (bool, error) {
	if status == StatusScheduled {
		return false, Validationf("status %s requires a scheduled time", status)
	}
	if !status.Valid() {
		return false, Validationf("unknown status %q", status)
	}
	return s.rewrite(id, func(d *Draft) error {
		if !CanTransition(d.Status, status) {
			return Validationf("draft %s is %s and cannot become %s", d.ID, d.Status, status)
		}
		d.apply(status, "")
		return nil
	})
}

func (s *CSVStore) SetSchedule(ctx context.Context, id, scheduledTime string) (bool, error) {
	status := StatusScheduled
	if scheduledTime == "" {
		status = StatusPending
	}
	return s.rewrite(id, func(d *Draft) error {
		if !CanTransition(d.Status, status) {
			return Validationf("draft %s is %s and cannot become %s", d.ID, d.Status, status)
		}
		d.apply(status, scheduledTime)
		return nil
	})
}

// rewrite applies fn to the first row with id and replaces the table.
// Rows other than the target are copied verbatim. When the id or the table
// is missing, nothing is written.
func (s *CSVStore) rewrite(id string, fn func(*Draft) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := readTable(s.paths.Drafts)
	if err != nil {
		return false, err
	}
	if t == nil || t.header == nil {
		return false, nil
	}

	header := unionHeader(t.header, DraftColumns)
	idCol := -1
	for i, col := range t.header {
		if col == "id" {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		return false, &IOError{Op: "read", Path: s.paths.Drafts, Err: errors.New("table has no id column")}
	}

	target := -1
	for i, rec := range t.rows {
		if idCol < len(rec) && rec[idCol] == id {
			target = i
			break
		}
	}
	if target < 0 {
		return false, nil
	}

	d := draftFromRecord(t.header, t.rows[target])
	if err := fn(&d); err != nil {
		return false, err
	}

	rows := make([][]string, len(t.rows))
	for i, rec := range t.rows {
		if i == target {
			rows[i] = d.record(header)
			continue
		}
		rows[i] = pad(rec, len(header))
	}

	if err := writeTableAtomic(s.paths.Drafts, header, rows); err != nil {
		return false, err
	}
	return true, nil
}

// MarkPosted moves a draft to posted, then appends to the posting log. If
// the append fails the status change stays persisted. A missing id still
// produces a log row with empty text.
func (s *CSVStore) MarkPosted(ctx context.Context, id, tweetID string, posted *PostedText) error {
	if _, err := s.UpdateStatus(ctx, id, StatusPosted); err != nil {
		return fmt.Errorf("mark %s posted: %w", id, err)
	}

	rec := PostedRecord{DraftID: id, TweetID: tweetID}
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
	rec.PostedAt = now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendRecord(s.paths.Posted, PostedColumns, rec.record()); err != nil {
		return fmt.Errorf("log posted %s: %w", id, err)
	}
	return nil
}

func (s *CSVStore) LogAttempt(ctx context.Context, a Attempt) error {
	if a.Timestamp == "" {
		a.Timestamp = now()
	}
	a.Text = AttemptText(a.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendRecord(s.paths.Attempts, AttemptColumns, a.record())
}

func (s *CSVStore) ListPosted(ctx context.Context) ([]PostedRecord, error) {
	var out []PostedRecord
	err := scanTable(s.paths.Posted, func(header, rec []string) bool {
		rec = pad(rec, len(PostedColumns))
		out = append(out, PostedRecord{DraftID: rec[0], Text: rec[1], MediaPath: rec[2], PostedAt: rec[3], TweetID: rec[4]})
		return true
	})
	return out, err
}

func (s *CSVStore) ListAttempts(ctx context.Context) ([]Attempt, error) {
	var out []Attempt
	err := scanTable(s.paths.Attempts, func(header, rec []string) bool {
		rec = pad(rec, len(AttemptColumns))
		out = append(out, Attempt{Timestamp: rec[0], DraftID: rec[1], Status: rec[2], TweetID: rec[3], Error: rec[4], Text: rec[5]})
		return true
	})
	return out, err
}

// ExportSafe copies the raw draft table with every field sanitized. A
// missing table exports as a header-only file.
func (s *CSVStore) ExportSafe(ctx context.Context) (string, error) {
	t, err := readTable(s.paths.Drafts)
	if err != nil {
		return "", err
	}
	header := DraftColumns
	var rows [][]string
	if t != nil && t.header != nil {
		header = t.header
		rows = make([][]string, len(t.rows))
		for i, rec := range t.rows {
			rows[i] = SanitizeRecord(rec)
		}
	}
	if err := writeTableAtomic(s.paths.Export, header, rows); err != nil {
		return "", err
	}
	return s.paths.Export, nil
}
