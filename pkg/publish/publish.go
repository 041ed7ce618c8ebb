package publish

import (
	"context"
	"errors"
	"fmt"
)

// Request is one post to publish.
type Request struct {
	Text         string `json:"text"`
	MediaPath    string `json:"media_path,omitempty"`
	QuoteTweetID string `json:"quote_tweet_id,omitempty"`
}

// Result is what the platform returned for a published post.
type Result struct {
	TweetID string `json:"tweet_id"`
}

// Publisher sends posts to a social network.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, req Request) (*Result, error)
}

// RejectedError is returned when the platform answered but refused the post.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("platform rejected post: status %d: %s", e.StatusCode, e.Body)
}

// IsRejected returns true if err is a platform rejection rather than a
// transport or local failure.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
