package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/h2non/filetype"
)

const (
	defaultAPIBase    = "https://api.twitter.com"
	defaultUploadBase = "https://upload.twitter.com"
)

// Credentials are the OAuth 1.0a user-context keys for the posting account.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Configured reports whether all keys are set.
func (c Credentials) Configured() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// Twitter publishes posts through the X/Twitter API and reads posts back
// for quote drafts and voice analysis.
type Twitter struct {
	client     *http.Client
	apiBase    string
	uploadBase string

	mu      sync.Mutex
	userIDs map[string]string
}

// NewTwitter creates a publisher that signs requests with OAuth1. Empty
// base URLs fall back to the public API hosts.
func NewTwitter(creds Credentials, apiBase, uploadBase string) *Twitter {
	config := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)

	client := config.Client(oauth1.NoContext, token)
	client.Timeout = 60 * time.Second

	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if uploadBase == "" {
		uploadBase = defaultUploadBase
	}
	return &Twitter{
		client:     client,
		apiBase:    apiBase,
		uploadBase: uploadBase,
		userIDs:    make(map[string]string),
	}
}

func (t *Twitter) Name() string { return "twitter" }

// Publish uploads the attachment, if any, then creates the post.
func (t *Twitter) Publish(ctx context.Context, req Request) (*Result, error) {
	payload := map[string]any{"text": req.Text}

	if req.MediaPath != "" {
		mediaID, err := t.uploadMedia(ctx, req.MediaPath)
		if err != nil {
			return nil, err
		}
		payload["media"] = map[string]any{"media_ids": []string{mediaID}}
	}
	if req.QuoteTweetID != "" {
		payload["quote_tweet_id"] = req.QuoteTweetID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tweet: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiBase+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tweet request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post tweet: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tweet response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode tweet response: %w", err)
	}
	if result.Data.ID == "" {
		return nil, fmt.Errorf("tweet response has no id")
	}
	return &Result{TweetID: result.Data.ID}, nil
}

// uploadMedia sends a file to the v1.1 simple upload endpoint.
func (t *Twitter) uploadMedia(ctx context.Context, path string) (string, error) {
	category, err := mediaCategory(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fw, err := form.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create media form: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("copy media %s: %w", path, err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close media form: %w", err)
	}

	url := t.uploadBase + "/1.1/media/upload.json?media_category=" + category
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RejectedError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.MediaIDString == "" {
		return "", fmt.Errorf("upload response has no media id")
	}
	return result.MediaIDString, nil
}

// mediaCategory picks the upload category from the file's magic bytes.
// Only images fit the simple upload endpoint.
func mediaCategory(path string) (string, error) {
	kind, err := filetype.MatchFile(path)
	if err != nil {
		return "", fmt.Errorf("read media %s: %w", path, err)
	}
	switch {
	case kind.Extension == "gif":
		return "tweet_gif", nil
	case kind.MIME.Type == "image":
		return "tweet_image", nil
	}
	return "", fmt.Errorf("media %s: type %q cannot be uploaded", path, kind.MIME.Value)
}
