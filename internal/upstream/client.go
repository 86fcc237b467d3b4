package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Rexmeta/RoleplayBot-sub003/internal/reliability"
)

// ErrUnavailable means the vendor endpoint is not configured. This is a
// construction-time failure that disables the realtime feature service-wide.
var ErrUnavailable = errors.New("upstream realtime endpoint not configured")

type Config struct {
	APIKey    string
	WSBaseURL string
	ModelID   string
}

// Client dials the vendor realtime endpoint over websocket.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.openai.com/v1/realtime"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "gpt-4o-realtime-preview"
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) Connect(ctx context.Context, params ConnectParams) (Channel, error) {
	u, err := url.Parse(c.cfg.WSBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	q := u.Query()
	q.Set("model", c.cfg.ModelID)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial upstream websocket: %w", err)
	}

	ch := &wsChannel{
		conn:   conn,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go ch.readLoop()

	if err := ch.configure(params); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("configure upstream session: %w", err)
	}
	return ch, nil
}

type wsChannel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan Event
	// done is closed on teardown so a full events buffer can never strand
	// the readLoop goroutine once the consumer is gone.
	done chan struct{}
}

func (ch *wsChannel) configure(params ConnectParams) error {
	payload := map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"audio", "text"},
			"instructions":        params.Instructions,
			"voice":               params.Voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"input_audio_transcription": map[string]any{
				"model":    "whisper-1",
				"language": params.TargetLanguage,
			},
			// Turn boundaries are client-driven; the browser commits audio
			// explicitly.
			"turn_detection": nil,
		},
	}
	if strings.TrimSpace(params.ResumeToken) != "" {
		payload["session"].(map[string]any)["resumption_token"] = params.ResumeToken
	}
	return ch.writeJSON(payload)
}

func (ch *wsChannel) AppendAudio(_ context.Context, audioBase64 string) error {
	return ch.writeJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": audioBase64,
	})
}

func (ch *wsChannel) CommitAudio(_ context.Context) error {
	return ch.writeJSON(map[string]any{"type": "input_audio_buffer.commit"})
}

func (ch *wsChannel) CreateResponse(_ context.Context) error {
	return ch.writeJSON(map[string]any{"type": "response.create"})
}

func (ch *wsChannel) CancelResponse(_ context.Context) error {
	return ch.writeJSON(map[string]any{"type": "response.cancel"})
}

func (ch *wsChannel) SendUserText(_ context.Context, text string) error {
	return ch.sendTextItem("user", text)
}

func (ch *wsChannel) SendSystemText(_ context.Context, text string) error {
	return ch.sendTextItem("system", text)
}

func (ch *wsChannel) sendTextItem(role, text string) error {
	return ch.writeJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": role,
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

func (ch *wsChannel) Events() <-chan Event { return ch.events }

func (ch *wsChannel) Close() error {
	var retErr error
	ch.closeOnce.Do(func() {
		close(ch.done)
		retErr = ch.conn.Close()
	})
	return retErr
}

// emit delivers one event to the consumer. It reports false when the channel
// was torn down instead of blocking on a buffer nobody drains.
func (ch *wsChannel) emit(ev Event) bool {
	select {
	case ch.events <- ev:
		return true
	case <-ch.done:
		return false
	}
}

func (ch *wsChannel) writeJSON(payload map[string]any) error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return ch.conn.WriteJSON(payload)
}

// readLoop translates raw vendor frames into the neutral event set. It is the
// only sender on the events channel and closes it on exit, after the terminal
// EventClosed.
func (ch *wsChannel) readLoop() {
	defer func() {
		ch.closeOnce.Do(func() {
			close(ch.done)
			_ = ch.conn.Close()
		})
		close(ch.events)
	}()

	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}
			ch.emit(Event{
				Type:      EventClosed,
				CloseCode: code,
				Detail:    err.Error(),
				Retryable: reliability.IsRetryableCloseCode(code),
			})
			return
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}

		var ev Event
		switch asString(raw["type"]) {
		case "session.created":
			// Settings are not applied yet; wait for session.updated.
			continue
		case "session.updated":
			ev = Event{Type: EventConfigured}
		case "response.audio.delta":
			ev = Event{Type: EventAudioDelta, AudioBase64: asString(raw["delta"])}
		case "response.audio_transcript.delta":
			ev = Event{Type: EventOutputTranscriptDelta, Text: asString(raw["delta"])}
		case "conversation.item.input_audio_transcription.delta":
			ev = Event{Type: EventInputTranscriptDelta, Text: asString(raw["delta"])}
		case "conversation.item.input_audio_transcription.completed":
			ev = Event{Type: EventInputTranscriptDone, Text: asString(raw["transcript"])}
		case "response.done":
			ev = Event{Type: EventTurnComplete}
		case "session.expiring":
			ev = Event{Type: EventSessionExpiring, RemainingMS: asInt64(raw["remaining_ms"])}
		case "session.resumption":
			ev = Event{Type: EventResumptionToken, Token: asString(raw["token"])}
		case "error":
			code, detail := errorFields(raw)
			ev = Event{
				Type:      EventError,
				Code:      code,
				Detail:    detail,
				Retryable: reliability.IsRetryableUpstreamErrorCode(code),
			}
		default:
			// Unknown vendor frames are ignored; the protocol grows
			// without breaking us.
			continue
		}
		if !ch.emit(ev) {
			return
		}
	}
}

func errorFields(raw map[string]any) (code, detail string) {
	if inner, ok := raw["error"].(map[string]any); ok {
		return asString(inner["code"]), asString(inner["message"])
	}
	return asString(raw["code"]), asString(raw["message"])
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	default:
		return 0
	}
}
