package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rexmeta/RoleplayBot-sub003/internal/protocol"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusActive       Status = "active"
	StatusReconnecting Status = "reconnecting"
	StatusTerminated   Status = "terminated"
)

// UpstreamHandle is the part of the vendor connection the session owns:
// enough to release it on teardown without importing the bridge package.
type UpstreamHandle interface {
	Close() error
}

// ReconnectState tracks the bounded automatic reconnection loop.
type ReconnectState struct {
	Token          string
	Attempts       int
	IsReconnecting bool
}

// Params carries everything needed to admit a new session.
type Params struct {
	ConversationID string
	ScenarioID     string
	PersonaID      string
	UserID         string
	TargetLanguage string
	Voice          string
	// Instructions is the fully rendered persona/scenario system prompt.
	Instructions string
}

// Session is the per-conversation record. All turn-state fields are owned by
// the single orchestrator goroutine driving the session; mu guards only the
// fields the registry sweeper and status reporting read concurrently
// (activity time, status, connected flag).
type Session struct {
	ID             string
	ConversationID string
	ScenarioID     string
	PersonaID      string
	UserID         string

	// TargetLanguage is fixed for the session lifetime and drives filtering.
	TargetLanguage string
	// SelectedVoice is assigned once on the first upstream connect and
	// reused verbatim across reconnects.
	SelectedVoice string
	Instructions  string

	TurnSeq          int
	CancelledTurnSeq int
	IsInterrupted    bool

	CurrentAITranscript  string
	UserTranscriptBuffer string
	UserTranscriptChars  int
	AITranscriptChars    int

	Reconnect ReconnectState

	HasTriggeredFirstGreeting bool
	HasReceivedFirstResponse  bool
	GreetingRetries           int

	// PendingReady buffers a client ready signal that arrived while the
	// upstream was reconnecting; it is replayed on the fresh channel.
	PendingReady *protocol.Ready

	Upstream UpstreamHandle

	StartedAt time.Time

	mu             sync.Mutex
	status         Status
	lastActivityAt time.Time
	connected      bool
	closeReason    string

	teardownOnce sync.Once
}

func newSession(p Params) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             uuid.NewString(),
		ConversationID: p.ConversationID,
		ScenarioID:     p.ScenarioID,
		PersonaID:      p.PersonaID,
		UserID:         p.UserID,
		TargetLanguage: p.TargetLanguage,
		SelectedVoice:  p.Voice,
		Instructions:   p.Instructions,
		StartedAt:      now,
		status:         StatusConnecting,
		lastActivityAt: now,
	}
}

// Touch records activity so the inactivity sweep leaves the session alone.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now().UTC()
	s.mu.Unlock()
}

// IdleSince returns how long the session has been without activity.
func (s *Session) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivityAt)
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// CloseReason reports why teardown ran, or "" while the session is live.
// The orchestrator relays it to a client that outlives the session.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

func (s *Session) setCloseReason(reason string) {
	s.mu.Lock()
	s.closeReason = reason
	s.mu.Unlock()
}

// runTeardown executes fn at most once across every teardown path
// (explicit close, sweep, fatal reconnect failure).
func (s *Session) runTeardown(fn func()) {
	s.teardownOnce.Do(fn)
}
