package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants on the client channel.
type MessageType string

// Inbound client messages.
const (
	TypeAudioAppend     MessageType = "audio-append"
	TypeAudioCommit     MessageType = "audio-commit"
	TypeRequestResponse MessageType = "request-response"
	TypeTextMessage     MessageType = "text-message"
	TypeReady           MessageType = "ready"
	TypeCancel          MessageType = "cancel"
)

// Outbound client events.
const (
	TypeSessionReady           MessageType = "session.ready"
	TypeSessionConfigured      MessageType = "session.configured"
	TypeAudioDelta             MessageType = "audio.delta"
	TypeUserTranscriptionDelta MessageType = "user.transcription.delta"
	TypeAITranscriptionDelta   MessageType = "ai.transcription.delta"
	TypeAITranscriptionDone    MessageType = "ai.transcription.done"
	TypeUserTranscription      MessageType = "user.transcription"
	TypeResponseDone           MessageType = "response.done"
	TypeResponseInterrupted    MessageType = "response.interrupted"
	TypeResponseReady          MessageType = "response.ready"
	TypeSessionWarning         MessageType = "session.warning"
	TypeSessionReconnecting    MessageType = "session.reconnecting"
	TypeSessionReconnected     MessageType = "session.reconnected"
	TypeError                  MessageType = "error"
	TypeSessionTerminated      MessageType = "session.terminated"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type AudioAppend struct {
	Type        MessageType `json:"type"`
	AudioBase64 string      `json:"audioBase64"`
}

type AudioCommit struct {
	Type MessageType `json:"type"`
}

type RequestResponse struct {
	Type MessageType `json:"type"`
}

type TextMessage struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

// HistoryMessage is one prior turn replayed by a resuming client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Ready struct {
	Type             MessageType      `json:"type"`
	IsResuming       bool             `json:"isResuming,omitempty"`
	PreviousMessages []HistoryMessage `json:"previousMessages,omitempty"`
}

type Cancel struct {
	Type MessageType `json:"type"`
}

type SessionReady struct {
	Type MessageType `json:"type"`
}

type SessionConfigured struct {
	Type  MessageType `json:"type"`
	Voice string      `json:"voice,omitempty"`
}

type AudioDelta struct {
	Type    MessageType `json:"type"`
	Data    string      `json:"data"`
	TurnSeq int         `json:"turnSeq"`
}

type UserTranscriptionDelta struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type AITranscriptionDelta struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type AITranscriptionDone struct {
	Type          MessageType `json:"type"`
	Text          string      `json:"text"`
	Emotion       string      `json:"emotion"`
	EmotionReason string      `json:"emotionReason"`
	Interrupted   bool        `json:"interrupted,omitempty"`
}

type UserTranscription struct {
	Type       MessageType `json:"type"`
	Transcript string      `json:"transcript"`
}

type ResponseDone struct {
	Type MessageType `json:"type"`
}

type ResponseInterrupted struct {
	Type MessageType `json:"type"`
}

type ResponseReady struct {
	Type    MessageType `json:"type"`
	TurnSeq int         `json:"turnSeq"`
}

type SessionWarning struct {
	Type     MessageType `json:"type"`
	Message  string      `json:"message"`
	TimeLeft int64       `json:"timeLeft"`
}

type SessionReconnecting struct {
	Type        MessageType `json:"type"`
	Attempt     int         `json:"attempt"`
	MaxAttempts int         `json:"maxAttempts"`
}

type SessionReconnected struct {
	Type MessageType `json:"type"`
}

type ErrorEvent struct {
	Type        MessageType `json:"type"`
	Error       string      `json:"error"`
	Recoverable bool        `json:"recoverable"`
}

type SessionTerminated struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

// ParseClientMessage decodes and validates one inbound client frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeAudioAppend:
		var msg AudioAppend
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.AudioBase64 == "" {
			return nil, errors.New("invalid audio-append: missing audioBase64")
		}
		return msg, nil
	case TypeAudioCommit:
		return AudioCommit{Type: env.Type}, nil
	case TypeRequestResponse:
		return RequestResponse{Type: env.Type}, nil
	case TypeTextMessage:
		var msg TextMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Content == "" {
			return nil, errors.New("invalid text-message: missing content")
		}
		return msg, nil
	case TypeReady:
		var msg Ready
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeCancel:
		return Cancel{Type: env.Type}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
