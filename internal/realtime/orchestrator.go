// Package realtime drives one roleplay voice session: it owns the upstream
// vendor channel, reacts to client control messages, and turns vendor events
// into the outbound client vocabulary.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Rexmeta/RoleplayBot-sub003/internal/emotion"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/observability"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/protocol"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/reliability"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/session"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/textfilter"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/upstream"
)

// Scheduler abstracts timer creation so reconnection and greeting retries can
// be driven by a fake clock in tests.
type Scheduler interface {
	After(d time.Duration) <-chan time.Time
}

type realScheduler struct{}

func (realScheduler) After(d time.Duration) <-chan time.Time { return time.After(d) }

const (
	defaultGreetingGrace      = 3 * time.Second
	defaultGreetingRetryAfter = 6 * time.Second
	defaultMaxGreetingRetries = 3
	defaultReconnectBase      = 1 * time.Second
	defaultReconnectCap       = 30 * time.Second
	defaultMaxReconnects      = 3
	defaultMaxTranscriptChars = 200_000
	outboundSendTimeout       = 5 * time.Second
)

// Escalating prompts for personas that do not open the conversation on their
// own. Index is the retry count already spent.
var greetingTriggers = []string{
	"Begin the roleplay now. Greet the trainee in character and open the scenario.",
	"You have not spoken yet. Greet the trainee right now, in character, with one or two sentences.",
	"Say a short hello to the trainee immediately and ask your first question.",
	"Greet the trainee with a single short sentence now.",
}

const resumeInstruction = "The connection was briefly interrupted and is now restored. " +
	"Continue the roleplay exactly where it left off. Do not greet the trainee again or restart the scenario."

// terminal reasons reported in session.terminated.
const (
	ReasonClientDisconnected = "client_disconnected"
	ReasonUpstreamClosed     = "upstream_closed"
	ReasonUpstreamFailure    = "upstream_failure"
	ReasonTranscriptOverflow = "transcript_overflow"
)

var (
	errFatalUpstream = errors.New("upstream connection failed permanently")
	errClientGone    = errors.New("client disconnected during reconnect")
	errSessionClosed = errors.New("session closed during reconnect")
)

type Orchestrator struct {
	registry   *session.Registry
	connector  upstream.Connector
	classifier emotion.Classifier
	metrics    *observability.Metrics
	window     *observability.LatencyWindow
	log        *logrus.Logger
	sched      Scheduler

	greetingGrace      time.Duration
	greetingRetryAfter time.Duration
	maxGreetingRetries int
	reconnectBase      time.Duration
	maxReconnects      int
	maxTranscriptChars int
}

// Option tweaks orchestrator behavior; used mainly by tests to inject a fake
// scheduler and shrink timeouts.
type Option func(*Orchestrator)

func WithScheduler(s Scheduler) Option {
	return func(o *Orchestrator) { o.sched = s }
}

func WithGreetingTimings(grace, retryAfter time.Duration) Option {
	return func(o *Orchestrator) {
		o.greetingGrace = grace
		o.greetingRetryAfter = retryAfter
	}
}

func WithReconnectBase(base time.Duration) Option {
	return func(o *Orchestrator) { o.reconnectBase = base }
}

func WithTranscriptCap(chars int) Option {
	return func(o *Orchestrator) { o.maxTranscriptChars = chars }
}

func NewOrchestrator(
	registry *session.Registry,
	connector upstream.Connector,
	classifier emotion.Classifier,
	metrics *observability.Metrics,
	window *observability.LatencyWindow,
	log *logrus.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		registry:           registry,
		connector:          connector,
		classifier:         classifier,
		metrics:            metrics,
		window:             window,
		log:                log,
		sched:              realScheduler{},
		greetingGrace:      defaultGreetingGrace,
		greetingRetryAfter: defaultGreetingRetryAfter,
		maxGreetingRetries: defaultMaxGreetingRetries,
		reconnectBase:      defaultReconnectBase,
		maxReconnects:      defaultMaxReconnects,
		maxTranscriptChars: defaultMaxTranscriptChars,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunConnection drives a session lifecycle for one client websocket
// connection. It returns when the client goes away, the upstream closes for
// good, or the session is torn down by another path (sweep, explicit close).
func (o *Orchestrator) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	ch, err := o.connector.Connect(ctx, upstream.ConnectParams{
		Instructions:   s.Instructions,
		Voice:          s.SelectedVoice,
		TargetLanguage: s.TargetLanguage,
	})
	if err != nil {
		o.metrics.UpstreamErrors.WithLabelValues("connect_failed").Inc()
		o.send(ctx, outbound, protocol.ErrorEvent{
			Type:        protocol.TypeError,
			Error:       "upstream connection failed",
			Recoverable: false,
		})
		o.terminate(ctx, s, outbound, ReasonUpstreamFailure)
		return fmt.Errorf("connect upstream: %w", err)
	}
	s.Upstream = ch
	s.SetConnected(true)
	s.SetStatus(session.StatusActive)
	o.metrics.SessionEvents.WithLabelValues("upstream_connected").Inc()

	o.send(ctx, outbound, protocol.SessionReady{Type: protocol.TypeSessionReady})

	events := ch.Events()

	var (
		// graceCh fires the first greeting if the client never sends ready.
		graceCh = o.sched.After(o.greetingGrace)
		// retryCh re-fires the greeting trigger while no response arrives.
		retryCh <-chan time.Time

		commitAt time.Time
		// resumedEarly marks a turn whose playback resumed before its
		// turn-completion, so audio frames carry the next sequence number.
		resumedEarly bool
		// metaFlagged is set while the current output fragment filtered to
		// nothing (leaked reasoning, stage directions); its paired audio is
		// suppressed so the client never hears text it will never see.
		metaFlagged bool
	)

	for {
		select {
		case <-ctx.Done():
			o.registry.Close(s.ID, ReasonClientDisconnected)
			return nil

		case <-graceCh:
			graceCh = nil
			if !s.HasTriggeredFirstGreeting {
				retryCh = o.triggerGreeting(ctx, ch, s)
			}

		case <-retryCh:
			retryCh = nil
			if s.HasReceivedFirstResponse {
				break
			}
			if s.GreetingRetries >= o.maxGreetingRetries {
				o.send(ctx, outbound, protocol.SessionWarning{
					Type:    protocol.TypeSessionWarning,
					Message: "Your roleplay partner is staying quiet. Go ahead and speak first.",
				})
				break
			}
			s.GreetingRetries++
			o.window.ObserveIndicator(observability.IndicatorGreetingRetry)
			retryCh = o.triggerGreeting(ctx, ch, s)

		case msg, ok := <-inbound:
			if !ok {
				o.registry.Close(s.ID, ReasonClientDisconnected)
				return nil
			}
			s.Touch()
			switch m := msg.(type) {
			case protocol.AudioAppend:
				if err := ch.AppendAudio(ctx, m.AudioBase64); err != nil {
					o.sendRecoverable(ctx, outbound, "audio forwarding failed")
				}
			case protocol.AudioCommit:
				commitAt = time.Now()
				if err := ch.CommitAudio(ctx); err != nil {
					o.sendRecoverable(ctx, outbound, "audio commit failed")
				}
			case protocol.RequestResponse:
				if err := ch.CreateResponse(ctx); err != nil {
					o.sendRecoverable(ctx, outbound, "response request failed")
				}
			case protocol.TextMessage:
				if err := ch.SendUserText(ctx, m.Content); err != nil {
					o.sendRecoverable(ctx, outbound, "text forwarding failed")
					break
				}
				if err := ch.CreateResponse(ctx); err != nil {
					o.sendRecoverable(ctx, outbound, "response request failed")
				}
			case protocol.Ready:
				graceCh = nil
				retryCh = o.handleReady(ctx, ch, s, m)
			case protocol.Cancel:
				o.handleBargeIn(ctx, ch, s, outbound)
				resumedEarly = false
				metaFlagged = false
			default:
				o.log.WithField("session_id", s.ID).Warn("unhandled client message type")
			}

		case ev, ok := <-events:
			if !ok {
				// The channel producer always emits EventClosed before
				// closing; a bare close means the handle was released
				// by a concurrent teardown (sweep, explicit end). The
				// client is still connected and gets told why.
				if s.Status() == session.StatusTerminated {
					o.notifyTerminated(ctx, s, outbound)
					return nil
				}
				o.terminate(ctx, s, outbound, ReasonUpstreamClosed)
				return nil
			}
			switch ev.Type {
			case upstream.EventConfigured:
				o.send(ctx, outbound, protocol.SessionConfigured{
					Type:  protocol.TypeSessionConfigured,
					Voice: s.SelectedVoice,
				})

			case upstream.EventAudioDelta:
				if s.IsInterrupted {
					o.window.ObserveIndicator(observability.IndicatorStaleAudioDrop)
					break
				}
				if metaFlagged {
					o.window.ObserveIndicator(observability.IndicatorMetaAudioDrop)
					break
				}
				if !commitAt.IsZero() {
					d := time.Since(commitAt)
					o.metrics.ObserveFirstAudioLatency(d)
					o.window.Observe(observability.StageCommitToFirstAudio, float64(d.Milliseconds()))
					commitAt = time.Time{}
				}
				if s.HasTriggeredFirstGreeting && !s.HasReceivedFirstResponse {
					d := time.Since(s.StartedAt)
					o.metrics.ObserveFirstGreetingLatency(d)
					o.window.Observe(observability.StageFirstGreeting, float64(d.Milliseconds()))
				}
				s.HasReceivedFirstResponse = true
				o.send(ctx, outbound, protocol.AudioDelta{
					Type:    protocol.TypeAudioDelta,
					Data:    ev.AudioBase64,
					TurnSeq: o.audioTag(s, resumedEarly),
				})

			case upstream.EventOutputTranscriptDelta:
				s.CurrentAITranscript += ev.Text
				s.AITranscriptChars += len(ev.Text)
				filtered := textfilter.Clean(ev.Text, s.TargetLanguage)
				if filtered == "" {
					if strings.TrimSpace(ev.Text) != "" {
						metaFlagged = true
					}
				} else {
					metaFlagged = false
					s.HasReceivedFirstResponse = true
					if s.IsInterrupted {
						// A fresh audible fragment means the next turn has
						// started; resume playback without waiting for the
						// turn boundary.
						s.IsInterrupted = false
						resumedEarly = true
						o.send(ctx, outbound, protocol.ResponseReady{
							Type:    protocol.TypeResponseReady,
							TurnSeq: s.TurnSeq + 1,
						})
					}
					o.send(ctx, outbound, protocol.AITranscriptionDelta{
						Type: protocol.TypeAITranscriptionDelta,
						Text: filtered,
					})
				}
				if o.overflowed(s) {
					o.terminate(ctx, s, outbound, ReasonTranscriptOverflow)
					return nil
				}

			case upstream.EventInputTranscriptDelta:
				s.UserTranscriptBuffer += ev.Text
				s.UserTranscriptChars += len(ev.Text)
				filtered := textfilter.Clean(ev.Text, s.TargetLanguage)
				if filtered != "" {
					o.send(ctx, outbound, protocol.UserTranscriptionDelta{
						Type: protocol.TypeUserTranscriptionDelta,
						Text: filtered,
					})
				}
				if o.overflowed(s) {
					o.terminate(ctx, s, outbound, ReasonTranscriptOverflow)
					return nil
				}

			case upstream.EventInputTranscriptDone:
				transcript := ev.Text
				if transcript == "" {
					transcript = s.UserTranscriptBuffer
				}
				filtered := textfilter.Clean(transcript, s.TargetLanguage)
				if filtered != "" {
					o.send(ctx, outbound, protocol.UserTranscription{
						Type:       protocol.TypeUserTranscription,
						Transcript: filtered,
					})
				}
				s.UserTranscriptBuffer = ""

			case upstream.EventTurnComplete:
				s.TurnSeq++
				resumedEarly = false
				metaFlagged = false
				if s.IsInterrupted && s.TurnSeq > s.CancelledTurnSeq {
					s.IsInterrupted = false
					o.send(ctx, outbound, protocol.ResponseReady{
						Type:    protocol.TypeResponseReady,
						TurnSeq: s.TurnSeq,
					})
				}
				if s.UserTranscriptBuffer != "" {
					if filtered := textfilter.Clean(s.UserTranscriptBuffer, s.TargetLanguage); filtered != "" {
						o.send(ctx, outbound, protocol.UserTranscription{
							Type:       protocol.TypeUserTranscription,
							Transcript: filtered,
						})
					}
					s.UserTranscriptBuffer = ""
				}
				if transcript := textfilter.Clean(s.CurrentAITranscript, s.TargetLanguage); transcript != "" {
					o.dispatchEmotion(ctx, s, outbound, transcript, false)
				}
				s.CurrentAITranscript = ""
				o.send(ctx, outbound, protocol.ResponseDone{Type: protocol.TypeResponseDone})

			case upstream.EventSessionExpiring:
				o.send(ctx, outbound, protocol.SessionWarning{
					Type:     protocol.TypeSessionWarning,
					Message:  "This session is about to expire.",
					TimeLeft: ev.RemainingMS,
				})

			case upstream.EventResumptionToken:
				s.Reconnect.Token = ev.Token

			case upstream.EventError:
				o.metrics.UpstreamErrors.WithLabelValues(nonEmpty(ev.Code, "unknown")).Inc()
				o.log.WithFields(logrus.Fields{
					"session_id": s.ID,
					"code":       ev.Code,
				}).Warn("upstream error event")
				o.send(ctx, outbound, protocol.ErrorEvent{
					Type:        protocol.TypeError,
					Error:       nonEmpty(ev.Detail, "upstream error"),
					Recoverable: ev.Retryable,
				})

			case upstream.EventClosed:
				if s.Status() == session.StatusTerminated {
					// Teardown from another path already released us; the
					// client still needs to hear about it.
					o.notifyTerminated(ctx, s, outbound)
					return nil
				}
				if !ev.Retryable {
					o.terminate(ctx, s, outbound, ReasonUpstreamClosed)
					return nil
				}
				next, err := o.reconnect(ctx, s, inbound, outbound)
				switch {
				case err == nil:
				case errors.Is(err, errSessionClosed):
					o.notifyTerminated(ctx, s, outbound)
					return nil
				case errors.Is(err, errClientGone), errors.Is(err, context.Canceled):
					o.registry.Close(s.ID, ReasonClientDisconnected)
					return nil
				default:
					o.send(ctx, outbound, protocol.ErrorEvent{
						Type:        protocol.TypeError,
						Error:       "connection to the roleplay service was lost",
						Recoverable: false,
					})
					o.terminate(ctx, s, outbound, ReasonUpstreamFailure)
					return err
				}
				ch = next
				events = ch.Events()
				s.Upstream = ch
				resumedEarly = false
				metaFlagged = false
				retryCh = o.afterReconnect(ctx, ch, s, outbound)
			}
		}
	}
}

// audioTag is the turn sequence stamped on outbound audio frames. During an
// early resume the in-flight turn already belongs to the next sequence value.
func (o *Orchestrator) audioTag(s *session.Session, resumedEarly bool) int {
	if resumedEarly {
		return s.TurnSeq + 1
	}
	return s.TurnSeq
}

func (o *Orchestrator) overflowed(s *session.Session) bool {
	return s.UserTranscriptChars+s.AITranscriptChars > o.maxTranscriptChars
}

// handleReady reacts to the client's readiness signal: either replay prior
// context when resuming, or arm the first-greeting protocol.
func (o *Orchestrator) handleReady(ctx context.Context, ch upstream.Channel, s *session.Session, m protocol.Ready) <-chan time.Time {
	if m.IsResuming && len(m.PreviousMessages) > 0 {
		o.replayHistory(ctx, ch, s, m.PreviousMessages)
		s.HasTriggeredFirstGreeting = true
		return nil
	}
	if s.HasTriggeredFirstGreeting {
		return nil
	}
	return o.triggerGreeting(ctx, ch, s)
}

func (o *Orchestrator) triggerGreeting(ctx context.Context, ch upstream.Channel, s *session.Session) <-chan time.Time {
	idx := s.GreetingRetries
	if idx >= len(greetingTriggers) {
		idx = len(greetingTriggers) - 1
	}
	s.HasTriggeredFirstGreeting = true
	if err := ch.SendSystemText(ctx, greetingTriggers[idx]); err != nil {
		o.log.WithError(err).WithField("session_id", s.ID).Warn("greeting trigger send failed")
		return nil
	}
	if err := ch.CreateResponse(ctx); err != nil {
		o.log.WithError(err).WithField("session_id", s.ID).Warn("greeting response request failed")
		return nil
	}
	o.metrics.SessionEvents.WithLabelValues("greeting_triggered").Inc()
	return o.sched.After(o.greetingRetryAfter)
}

// replayHistory condenses the client-supplied prior turns into one context
// message and forces a turn end so the persona picks the conversation back up.
func (o *Orchestrator) replayHistory(ctx context.Context, ch upstream.Channel, s *session.Session, history []protocol.HistoryMessage) {
	var b strings.Builder
	b.WriteString("Conversation so far, oldest first:\n")
	for _, h := range history {
		b.WriteString(h.Role)
		b.WriteString(": ")
		b.WriteString(h.Content)
		b.WriteString("\n")
	}
	b.WriteString(resumeInstruction)
	if err := ch.SendSystemText(ctx, b.String()); err != nil {
		o.log.WithError(err).WithField("session_id", s.ID).Warn("history replay failed")
		return
	}
	if err := ch.CreateResponse(ctx); err != nil {
		o.log.WithError(err).WithField("session_id", s.ID).Warn("resume response request failed")
	}
}

// handleBargeIn processes a client cancel: suppress further playback of the
// interrupted turn and flush what the persona managed to say.
func (o *Orchestrator) handleBargeIn(ctx context.Context, ch upstream.Channel, s *session.Session, outbound chan<- any) {
	s.IsInterrupted = true
	s.CancelledTurnSeq = s.TurnSeq
	o.window.ObserveIndicator(observability.IndicatorBargeIn)
	o.metrics.SessionEvents.WithLabelValues("barge_in").Inc()

	if err := ch.CancelResponse(ctx); err != nil {
		o.log.WithError(err).WithField("session_id", s.ID).Warn("upstream cancel failed")
	}

	if partial := textfilter.Clean(s.CurrentAITranscript, s.TargetLanguage); partial != "" {
		o.dispatchEmotion(ctx, s, outbound, partial, true)
	}
	s.CurrentAITranscript = ""
	s.UserTranscriptBuffer = ""

	o.send(ctx, outbound, protocol.ResponseInterrupted{Type: protocol.TypeResponseInterrupted})
}

// dispatchEmotion labels a finalized utterance in the background so
// classification latency never delays audio or text delivery.
func (o *Orchestrator) dispatchEmotion(ctx context.Context, s *session.Session, outbound chan<- any, transcript string, interrupted bool) {
	go func() {
		start := time.Now()
		result := o.classifier.Classify(ctx, transcript, "assistant", s.TargetLanguage)
		o.window.Observe(observability.StageEmotionClassify, float64(time.Since(start).Milliseconds()))
		o.send(ctx, outbound, protocol.AITranscriptionDone{
			Type:          protocol.TypeAITranscriptionDone,
			Text:          transcript,
			Emotion:       string(result.Emotion),
			EmotionReason: result.Reason,
			Interrupted:   interrupted,
		})
	}()
}

// reconnect runs the bounded backoff loop after a transient upstream close.
// It returns the fresh channel, or an error once attempts are exhausted.
// Client traffic keeps being serviced during the backoff waits: a racing
// ready signal is parked on the session for afterReconnect to replay, and a
// closed inbound channel aborts the loop.
func (o *Orchestrator) reconnect(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) (upstream.Channel, error) {
	s.SetStatus(session.StatusReconnecting)
	s.SetConnected(false)
	s.Reconnect.IsReconnecting = true
	start := time.Now()

	for attempt := 1; attempt <= o.maxReconnects; attempt++ {
		s.Reconnect.Attempts = attempt
		o.window.ObserveIndicator(observability.IndicatorReconnectAttempt)
		o.send(ctx, outbound, protocol.SessionReconnecting{
			Type:        protocol.TypeSessionReconnecting,
			Attempt:     attempt,
			MaxAttempts: o.maxReconnects,
		})

		wait := reliability.ExponentialBackoff(attempt, o.reconnectBase, defaultReconnectCap)
		waitCh := o.sched.After(wait)
	backoff:
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case msg, ok := <-inbound:
				if !ok {
					return nil, errClientGone
				}
				s.Touch()
				if ready, isReady := msg.(protocol.Ready); isReady {
					s.PendingReady = &ready
				}
				// Audio and text have nowhere to go while the upstream is
				// down; the client retries after session.reconnected.
			case <-waitCh:
				break backoff
			}
		}
		if s.Status() == session.StatusTerminated {
			return nil, errSessionClosed
		}

		ch, err := o.connector.Connect(ctx, upstream.ConnectParams{
			Instructions:   s.Instructions,
			Voice:          s.SelectedVoice,
			TargetLanguage: s.TargetLanguage,
			ResumeToken:    s.Reconnect.Token,
		})
		if err != nil {
			o.metrics.Reconnects.WithLabelValues("failure").Inc()
			o.log.WithError(err).WithFields(logrus.Fields{
				"session_id": s.ID,
				"attempt":    attempt,
			}).Warn("upstream reconnect failed")
			continue
		}

		o.metrics.Reconnects.WithLabelValues("success").Inc()
		o.window.Observe(observability.StageReconnectRecovery, float64(time.Since(start).Milliseconds()))
		s.SetStatus(session.StatusActive)
		s.SetConnected(true)
		s.Reconnect.IsReconnecting = false
		s.Reconnect.Attempts = 0
		o.send(ctx, outbound, protocol.SessionReconnected{Type: protocol.TypeSessionReconnected})
		return ch, nil
	}

	o.metrics.Reconnects.WithLabelValues("exhausted").Inc()
	return nil, errFatalUpstream
}

// afterReconnect restores conversational context on the fresh channel. A
// ready signal that raced the outage is replayed here.
func (o *Orchestrator) afterReconnect(ctx context.Context, ch upstream.Channel, s *session.Session, outbound chan<- any) <-chan time.Time {
	if pending := s.PendingReady; pending != nil {
		s.PendingReady = nil
		return o.handleReady(ctx, ch, s, *pending)
	}
	if s.TurnSeq > 0 {
		if err := ch.SendSystemText(ctx, resumeInstruction); err != nil {
			o.log.WithError(err).WithField("session_id", s.ID).Warn("resume instruction send failed")
			return nil
		}
		if err := ch.CreateResponse(ctx); err != nil {
			o.log.WithError(err).WithField("session_id", s.ID).Warn("resume response request failed")
		}
		return nil
	}
	// Nothing happened before the outage; start over with a greeting.
	s.HasTriggeredFirstGreeting = false
	return o.triggerGreeting(ctx, ch, s)
}

// notifyTerminated relays a teardown that happened on the registry side
// (inactivity sweep, explicit end) to the still-connected client.
func (o *Orchestrator) notifyTerminated(ctx context.Context, s *session.Session, outbound chan<- any) {
	o.send(ctx, outbound, protocol.SessionTerminated{
		Type:   protocol.TypeSessionTerminated,
		Reason: nonEmpty(s.CloseReason(), ReasonUpstreamClosed),
	})
}

func (o *Orchestrator) terminate(ctx context.Context, s *session.Session, outbound chan<- any, reason string) {
	o.send(ctx, outbound, protocol.SessionTerminated{
		Type:   protocol.TypeSessionTerminated,
		Reason: reason,
	})
	o.registry.Close(s.ID, reason)
}

func (o *Orchestrator) sendRecoverable(ctx context.Context, outbound chan<- any, msg string) {
	o.send(ctx, outbound, protocol.ErrorEvent{
		Type:        protocol.TypeError,
		Error:       msg,
		Recoverable: true,
	})
}

// send delivers an outbound event, giving a slow client a bounded grace
// period before the message is dropped.
func (o *Orchestrator) send(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
		return
	case <-ctx.Done():
		return
	default:
	}
	timer := time.NewTimer(outboundSendTimeout)
	defer timer.Stop()
	select {
	case outbound <- msg:
	case <-ctx.Done():
	case <-timer.C:
		o.metrics.SessionEvents.WithLabelValues("outbound_dropped").Inc()
	}
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
