package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Tweet is a post read back from the API.
type Tweet struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
}

// SearchRecent returns up to count posts from the last week matching query.
// The API serves between 10 and 100 results per request.
func (t *Twitter) SearchRecent(ctx context.Context, query string, count int) ([]Tweet, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(clamp(count, 10, 100)))
	params.Set("tweet.fields", "author_id,created_at,public_metrics")

	var result struct {
		Data []Tweet `json:"data"`
	}
	if err := t.getJSON(ctx, "/2/tweets/search/recent", params, &result); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if count > 0 && len(result.Data) > count {
		result.Data = result.Data[:count]
	}
	return result.Data, nil
}

// UserTweets returns the text of a user's recent original posts, excluding
// retweets and replies.
func (t *Twitter) UserTweets(ctx context.Context, username string, count int) ([]string, error) {
	id, err := t.userID(ctx, username)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(clamp(count, 5, 100)))
	params.Set("exclude", "retweets,replies")

	var result struct {
		Data []Tweet `json:"data"`
	}
	if err := t.getJSON(ctx, "/2/users/"+url.PathEscape(id)+"/tweets", params, &result); err != nil {
		return nil, fmt.Errorf("timeline of %s: %w", username, err)
	}

	texts := make([]string, 0, len(result.Data))
	for _, tw := range result.Data {
		texts = append(texts, tw.Text)
	}
	if count > 0 && len(texts) > count {
		texts = texts[:count]
	}
	return texts, nil
}

// userID looks up and caches the numeric id of username.
func (t *Twitter) userID(ctx context.Context, username string) (string, error) {
	t.mu.Lock()
	id, ok := t.userIDs[username]
	t.mu.Unlock()
	if ok {
		return id, nil
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := t.getJSON(ctx, "/2/users/by/username/"+url.PathEscape(username), nil, &result); err != nil {
		return "", fmt.Errorf("look up %s: %w", username, err)
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("look up %s: no user id in response", username)
	}

	t.mu.Lock()
	t.userIDs[username] = result.Data.ID
	t.mu.Unlock()
	return result.Data.ID, nil
}

func (t *Twitter) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := t.apiBase + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &RejectedError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
