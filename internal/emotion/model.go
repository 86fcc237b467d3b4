package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Rexmeta/RoleplayBot-sub003/internal/reliability"
)

const classifyTimeout = 6 * time.Second

// ModelConfig configures the lightweight secondary model used for the first
// step of the classification chain.
type ModelConfig struct {
	APIKey  string
	BaseURL string
	ModelID string
}

// ModelClassifier asks a small chat-completions model for a structured label
// and falls back to the deterministic keyword tables on any failure.
type ModelClassifier struct {
	cfg    ModelConfig
	client *http.Client
}

func NewModelClassifier(cfg ModelConfig) *ModelClassifier {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "gpt-4o-mini"
	}
	return &ModelClassifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: classifyTimeout,
		},
	}
}

func (c *ModelClassifier) Classify(ctx context.Context, text, speaker, language string) Result {
	res, err := c.callModel(ctx, text, speaker, language)
	if err != nil {
		return FallbackClassify(text, language)
	}
	return res
}

func (c *ModelClassifier) callModel(ctx context.Context, text, speaker, language string) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, fmt.Errorf("no api key")
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("empty text")
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Label the emotion of this %s utterance by %s. Reply with JSON only: "+
			`{"emotion":"<neutral|happy|sad|angry|surprised|curious|anxious|tired|disappointed|confused>","reason":"<short reason>"}`+
			"\n\nUtterance: %s", language, speaker, text)

	payload, err := json.Marshal(map[string]any{
		"model":       c.cfg.ModelID,
		"temperature": 0,
		"max_tokens":  120,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	send := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		return c.client.Do(req)
	}

	res, err := send()
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	if reliability.IsRetryableHTTPStatus(res.StatusCode) {
		// One retry covers transient overload. Anything past that falls back
		// to the keyword tables; labels are advisory and not worth queueing.
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		res, err = send()
		if err != nil {
			return Result{}, fmt.Errorf("retry request: %w", err)
		}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Result{}, fmt.Errorf("classifier status %d: %s", res.StatusCode, string(body))
	}

	var reply struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return Result{}, fmt.Errorf("decode reply: %w", err)
	}
	if len(reply.Choices) == 0 {
		return Result{}, fmt.Errorf("empty reply")
	}
	return parseStructuredReply(reply.Choices[0].Message.Content)
}

// parseStructuredReply extracts the JSON object from the model reply,
// tolerating surrounding prose or code fences.
func parseStructuredReply(content string) (Result, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("no json object in reply")
	}

	var out Result
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return Result{}, fmt.Errorf("parse reply: %w", err)
	}
	out.Emotion = Label(strings.ToLower(strings.TrimSpace(string(out.Emotion))))
	if !ValidLabel(string(out.Emotion)) {
		return Result{}, fmt.Errorf("label %q outside taxonomy", out.Emotion)
	}
	if strings.TrimSpace(out.Reason) == "" {
		out.Reason = "model classification"
	}
	return out, nil
}
