// Package usage is the append-only sink for per-session billing records.
package usage

import (
	"context"
	"time"
)

// Record captures what one finished session consumed. Written exactly once
// per session, on teardown.
type Record struct {
	SessionID       string    `json:"session_id"`
	ConversationID  string    `json:"conversation_id"`
	UserID          string    `json:"user_id"`
	ScenarioID      string    `json:"scenario_id"`
	PersonaID       string    `json:"persona_id"`
	DurationSeconds int64     `json:"duration_seconds"`
	UserChars       int       `json:"user_chars"`
	AIChars         int       `json:"ai_chars"`
	Turns           int       `json:"turns"`
	EndReason       string    `json:"end_reason"`
	EndedAt         time.Time `json:"ended_at"`
}

// Sink accepts usage records.
type Sink interface {
	Track(ctx context.Context, record Record) error
	Close() error
}
