package source

import (
	"context"
	"time"
)

// Entry is a recent feed item usable as a generation topic.
type Entry struct {
	Feed      string    `json:"feed"`
	GUID      string    `json:"guid"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Summary   string    `json:"summary"`
	Published time.Time `json:"published"`
}

// Topic returns the text handed to the generator.
func (e Entry) Topic() string {
	if e.Summary == "" {
		return e.Title
	}
	return e.Title + "\n\n" + e.Summary
}

// Source yields topic entries.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]Entry, error)
}
