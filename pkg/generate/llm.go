package generate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
)

const systemPrompt = `You are a ghostwriter for a specific persona. Here is their voice profile:
<voice_profile>
%s
</voice_profile>

Constraints:
- Strictly follow the voice profile (tone, emojis, formatting).
- Do not include hashtags unless the voice profile explicitly uses them.
- Under 280 characters.
- Output ONLY the tweets, one per line (or separated by a clear delimiter like ---).
- Do not number them.`

const topicPrompt = `Task: Write %d distinct tweets about the topic in the <topic> tags.

<topic>
%s
</topic>`

const quoteSystemPrompt = `You are a ghostwriter for a specific persona. Here is their voice profile:
<voice_profile>
%s
</voice_profile>

Constraints:
- Strictly follow the voice profile.
- Add value, agreement, or a dominant take on the original tweet.
- Under 280 characters.
- Output ONLY the comment text.`

const quotePrompt = `Task: Write a Quote Tweet comment for the tweet in the <original_tweet> tags.

<original_tweet>
%s
</original_tweet>`

const imageSystemPrompt = `You are a ghostwriter for a specific persona. Here is their voice profile:
<voice_profile>
%s
</voice_profile>

Constraints:
- Strictly follow the voice profile (tone, emojis, formatting).
- Describe what you see in the image but through the lens of the persona.
- Under 280 characters.
- Output ONLY the tweets, one per line.`

const imagePrompt = `Task: Analyze the provided image and write %d distinct tweets based on it.`

const stylePrompt = `Analyze the following tweets to understand the author's voice, style, and persona.
Pay attention to:
1. Tone (e.g., dominant, casual, professional, sarcastic)
2. Formatting (e.g., capitalization, line breaks, emoji usage)
3. Vocabulary (e.g., specific slang, jargon)
4. Themes (e.g., wrestling, fitness, coding)

Tweets:
%s

Output a concise "Voice Profile" description that can be used to instruct an AI to generate new tweets in this exact style.`

// NoProfile is used in prompts when no voice profile has been written yet.
const NoProfile = "No voice profile found. Please run analyze first."

// Generator writes draft posts.
type Generator interface {
	Generate(ctx context.Context, topic string, count int) ([]string, error)
}

// Providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// LLM generates drafts in the account's voice through OpenAI, Anthropic or
// Gemini.
type LLM struct {
	client      *http.Client
	provider    string
	model       string
	apiKey      string
	baseURL     string
	profilePath string
}

// NewLLM creates a generator. profilePath is where the voice profile is
// read from and written to.
func NewLLM(provider, model, apiKey, baseURL, profilePath string) *LLM {
	if model == "" {
		switch provider {
		case ProviderAnthropic:
			model = "claude-3-haiku-20240307"
		case ProviderGemini:
			model = "gemini-1.5-flash"
		default:
			model = "gpt-4o-mini"
		}
	}
	return &LLM{
		client:      &http.Client{Timeout: 60 * time.Second},
		provider:    provider,
		model:       model,
		apiKey:      apiKey,
		baseURL:     baseURL,
		profilePath: profilePath,
	}
}

// Model returns the model name recorded as a draft's provenance.
func (l *LLM) Model() string {
	return l.model
}

// Provider returns the configured provider name.
func (l *LLM) Provider() string {
	if l.provider == "" {
		return ProviderOpenAI
	}
	return l.provider
}

// VoiceProfile returns the stored profile, or NoProfile if none exists.
func (l *LLM) VoiceProfile() string {
	if l.profilePath == "" {
		return NoProfile
	}
	data, err := os.ReadFile(l.profilePath)
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return NoProfile
	}
	return string(data)
}

// Generate writes count distinct drafts about topic.
func (l *LLM) Generate(ctx context.Context, topic string, count int) ([]string, error) {
	if count <= 0 {
		count = 1
	}
	system := fmt.Sprintf(systemPrompt, l.VoiceProfile())
	raw, err := l.call(ctx, system, fmt.Sprintf(topicPrompt, count, topic), nil)
	if err != nil {
		return nil, err
	}
	drafts := ParseDrafts(raw, count)
	if len(drafts) == 0 {
		return nil, fmt.Errorf("llm returned no drafts")
	}
	return drafts, nil
}

// FromImage writes count drafts describing the image at path.
func (l *LLM) FromImage(ctx context.Context, path string, count int) ([]string, error) {
	if count <= 0 {
		count = 1
	}
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	system := fmt.Sprintf(imageSystemPrompt, l.VoiceProfile())
	raw, err := l.call(ctx, system, fmt.Sprintf(imagePrompt, count), img)
	if err != nil {
		return nil, err
	}
	drafts := ParseDrafts(raw, count)
	if len(drafts) == 0 {
		return nil, fmt.Errorf("llm returned no drafts for %s", filepath.Base(path))
	}
	return drafts, nil
}

// QuoteComment writes a comment for quoting another post.
func (l *LLM) QuoteComment(ctx context.Context, original string) (string, error) {
	system := fmt.Sprintf(quoteSystemPrompt, l.VoiceProfile())
	raw, err := l.call(ctx, system, fmt.Sprintf(quotePrompt, original), nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// AnalyzeStyle derives a voice profile from sample posts and saves it.
func (l *LLM) AnalyzeStyle(ctx context.Context, samples []string) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("no sample posts to analyze")
	}
	encoded, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal samples: %w", err)
	}
	profile, err := l.call(ctx, "", fmt.Sprintf(stylePrompt, encoded), nil)
	if err != nil {
		return "", err
	}
	profile = strings.TrimSpace(profile)
	if err := l.ImportProfile(profile); err != nil {
		return "", err
	}
	return profile, nil
}

// ImportProfile replaces the stored voice profile with content.
func (l *LLM) ImportProfile(content string) error {
	if l.profilePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.profilePath), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	if err := os.WriteFile(l.profilePath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write voice profile: %w", err)
	}
	return nil
}

// ParseDrafts splits a model response into at most count drafts. Blank
// lines and "---" separators are dropped, as is leading "1." or "1)"
// numbering.
func ParseDrafts(raw string, count int) []string {
	var drafts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}
		if len(line) >= 2 && line[0] >= '0' && line[0] <= '9' && (line[1] == '.' || line[1] == ')') {
			line = strings.TrimSpace(line[2:])
			if line == "" {
				continue
			}
		}
		drafts = append(drafts, line)
	}
	if count > 0 && len(drafts) > count {
		drafts = drafts[:count]
	}
	return drafts
}

// image is an inline image attachment, base64 encoded.
type image struct {
	mime string
	data string
}

func loadImage(path string) (*image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	kind, err := filetype.Match(data)
	if err != nil || kind.MIME.Type != "image" {
		return nil, fmt.Errorf("%s is not an image", filepath.Base(path))
	}
	return &image{mime: kind.MIME.Value, data: base64.StdEncoding.EncodeToString(data)}, nil
}

func (l *LLM) call(ctx context.Context, system, prompt string, img *image) (string, error) {
	switch l.provider {
	case ProviderAnthropic:
		return l.callAnthropic(ctx, system, prompt, img)
	case ProviderGemini:
		return l.callGemini(ctx, system, prompt, img)
	default:
		return l.callOpenAI(ctx, system, prompt, img)
	}
}

func (l *LLM) callOpenAI(ctx context.Context, system, prompt string, img *image) (string, error) {
	baseURL := l.baseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	var messages []map[string]any
	if system != "" {
		messages = append(messages, map[string]any{"role": "system", "content": system})
	}
	if img != nil {
		messages = append(messages, map[string]any{"role": "user", "content": []map[string]any{
			{"type": "text", "text": prompt},
			{"type": "image_url", "image_url": map[string]string{
				"url": "data:" + img.mime + ";base64," + img.data,
			}},
		}})
	} else {
		messages = append(messages, map[string]any{"role": "user", "content": prompt})
	}

	payload := map[string]any{
		"model":    l.model,
		"messages": messages,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (l *LLM) callAnthropic(ctx context.Context, system, prompt string, img *image) (string, error) {
	baseURL := l.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	var content any = prompt
	if img != nil {
		content = []map[string]any{
			{"type": "image", "source": map[string]string{
				"type":       "base64",
				"media_type": img.mime,
				"data":       img.data,
			}},
			{"type": "text", "text": prompt},
		}
	}
	payload := map[string]any{
		"model":      l.model,
		"max_tokens": 1000,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}
	if system != "" {
		payload["system"] = system
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

func (l *LLM) callGemini(ctx context.Context, system, prompt string, img *image) (string, error) {
	baseURL := l.baseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	parts := []map[string]any{{"text": prompt}}
	if img != nil {
		parts = append(parts, map[string]any{"inline_data": map[string]string{
			"mime_type": img.mime,
			"data":      img.data,
		}})
	}
	payload := map[string]any{
		"contents": []map[string]any{{"role": "user", "parts": parts}},
	}
	if system != "" {
		payload["system_instruction"] = map[string]any{
			"parts": []map[string]string{{"text": system}},
		}
	}

	body, _ := json.Marshal(payload)
	url := baseURL + "/v1beta/models/" + l.model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("gemini status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}

	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates returned")
	}
	var text strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}
