// Package upstream owns the duplex connection to the vendor realtime
// endpoint. It translates vendor frames into a neutral event set so session
// logic can be driven and tested against a fake channel.
package upstream

import "context"

type EventType string

const (
	// EventConfigured confirms the vendor accepted the session settings.
	EventConfigured EventType = "configured"
	// EventAudioDelta carries one base64 audio fragment of AI speech.
	EventAudioDelta EventType = "audio_delta"
	// EventInputTranscriptDelta is a partial transcription of user audio.
	EventInputTranscriptDelta EventType = "input_transcript_delta"
	// EventInputTranscriptDone is the finalized user transcription.
	EventInputTranscriptDone EventType = "input_transcript_done"
	// EventOutputTranscriptDelta is a fragment of the AI speech transcript.
	EventOutputTranscriptDelta EventType = "output_transcript_delta"
	// EventTurnComplete marks the end of one AI response turn.
	EventTurnComplete EventType = "turn_complete"
	// EventSessionExpiring warns that the vendor will close the session.
	EventSessionExpiring EventType = "session_expiring"
	// EventResumptionToken delivers a token for session continuity.
	EventResumptionToken EventType = "resumption_token"
	// EventError is a vendor-reported error inside an open connection.
	EventError EventType = "error"
	// EventClosed is the terminal event; CloseCode carries the ws code.
	EventClosed EventType = "closed"
)

type Event struct {
	Type        EventType
	AudioBase64 string
	Text        string
	Code        string
	Detail      string
	RemainingMS int64
	Token       string
	CloseCode   int
	Retryable   bool
}

// Channel is one live duplex connection to the vendor. Implementations must
// close Events() exactly once after emitting EventClosed.
type Channel interface {
	AppendAudio(ctx context.Context, audioBase64 string) error
	CommitAudio(ctx context.Context) error
	CreateResponse(ctx context.Context) error
	CancelResponse(ctx context.Context) error
	SendUserText(ctx context.Context, text string) error
	SendSystemText(ctx context.Context, text string) error
	Events() <-chan Event
	Close() error
}

// ConnectParams carries per-connection vendor session settings.
type ConnectParams struct {
	Instructions   string
	Voice          string
	TargetLanguage string
	ResumeToken    string
}

// Connector establishes vendor connections. The orchestrator takes this
// interface so reconnection logic runs against a fake in tests.
type Connector interface {
	Connect(ctx context.Context, params ConnectParams) (Channel, error)
}
