package store

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
    seq               INTEGER PRIMARY KEY AUTOINCREMENT,
    id                TEXT NOT NULL UNIQUE,
    text              TEXT NOT NULL,
    media_path        TEXT NOT NULL DEFAULT '',
    model_used        TEXT NOT NULL DEFAULT 'manual',
    status            TEXT NOT NULL DEFAULT 'pending',
    created_at        TEXT NOT NULL,
    scheduled_time    TEXT NOT NULL DEFAULT '',
    notes             TEXT NOT NULL DEFAULT '',
    is_retweet        BOOLEAN NOT NULL DEFAULT 0,
    original_tweet_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
CREATE INDEX IF NOT EXISTS idx_drafts_scheduled ON drafts(status, scheduled_time);

CREATE TABLE IF NOT EXISTS posted_history (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    draft_id   TEXT NOT NULL,
    text       TEXT NOT NULL DEFAULT '',
    media_path TEXT NOT NULL DEFAULT '',
    posted_at  TEXT NOT NULL,
    tweet_id   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_posted_draft ON posted_history(draft_id);

CREATE TABLE IF NOT EXISTS post_log (
    seq       INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    draft_id  TEXT NOT NULL DEFAULT '',
    status    TEXT NOT NULL,
    tweet_id  TEXT NOT NULL DEFAULT '',
    error     TEXT NOT NULL DEFAULT '',
    text      TEXT NOT NULL DEFAULT ''
);
`
