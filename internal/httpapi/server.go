package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Rexmeta/RoleplayBot-sub003/internal/config"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/content"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/observability"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/protocol"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/session"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/users"
)

type Orchestrator interface {
	RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
}

type Server struct {
	cfg          config.Config
	registry     *session.Registry
	orchestrator Orchestrator
	contentStore content.Store
	directory    users.Directory
	metrics      *observability.Metrics
	window       *observability.LatencyWindow
	log          *logrus.Logger
	upgrader     websocket.Upgrader
}

func New(
	cfg config.Config,
	registry *session.Registry,
	orchestrator Orchestrator,
	contentStore content.Store,
	directory users.Directory,
	metrics *observability.Metrics,
	window *observability.LatencyWindow,
	log *logrus.Logger,
) *Server {
	return &Server{
		cfg:          cfg,
		registry:     registry,
		orchestrator: orchestrator,
		contentStore: contentStore,
		directory:    directory,
		metrics:      metrics,
		window:       window,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot drive a trainee's mic
				// session if the service is exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/roleplay/session", s.handleCreateSession)
	r.Post("/v1/roleplay/session/{id}/end", s.handleEndSession)
	r.Get("/v1/roleplay/session/ws", s.handleSessionWS)
	r.Get("/v1/roleplay/status", s.handleStatus)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, "upstream_unavailable", "realtime endpoint not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

type createSessionRequest struct {
	ConversationID string `json:"conversationId"`
	ScenarioID     string `json:"scenarioId"`
	PersonaID      string `json:"personaId"`
	UserID         string `json:"userId"`
}

type createSessionResponse struct {
	SessionID       string    `json:"sessionId"`
	ConversationID  string    `json:"conversationId"`
	TargetLanguage  string    `json:"targetLanguage"`
	Voice           string    `json:"voice"`
	StartedAt       time.Time `json:"startedAt"`
	InactivityTTLMS int64     `json:"inactivityTtlMs"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, "upstream_unavailable", "the voice roleplay feature is not configured")
		return
	}

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ScenarioID) == "" || strings.TrimSpace(req.PersonaID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "scenarioId and personaId are required")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	scenario, err := s.contentStore.Scenario(r.Context(), req.ScenarioID)
	if err != nil {
		respondNotFoundOrError(w, err, "scenario_not_found")
		return
	}
	persona, err := s.contentStore.Persona(r.Context(), req.PersonaID)
	if err != nil {
		respondNotFoundOrError(w, err, "persona_not_found")
		return
	}
	traineeName, err := s.directory.DisplayName(r.Context(), req.UserID)
	if err != nil {
		// Prompts simply omit the name when the lookup fails.
		s.log.WithError(err).WithField("user_id", req.UserID).Warn("display name lookup failed")
		traineeName = ""
	}

	sess, err := s.registry.Create(session.Params{
		ConversationID: req.ConversationID,
		ScenarioID:     scenario.ID,
		PersonaID:      persona.ID,
		UserID:         req.UserID,
		TargetLanguage: scenario.TargetLanguage,
		Voice:          persona.Voice,
		Instructions:   content.BuildInstructions(scenario, persona, traineeName),
	})
	if errors.Is(err, session.ErrCapacityExceeded) {
		s.metrics.AdmissionRejections.Inc()
		report := s.registry.StatusReport()
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":       "service busy, retry later",
			"code":        "capacity_exceeded",
			"utilization": report.Utilization,
		})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}

	s.metrics.ActiveSessions.Set(float64(s.registry.Size()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:       sess.ID,
		ConversationID:  sess.ConversationID,
		TargetLanguage:  sess.TargetLanguage,
		Voice:           sess.SelectedVoice,
		StartedAt:       sess.StartedAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	if !s.registry.Close(id, "client_ended") {
		respondError(w, http.StatusNotFound, "session_not_found", "no such session")
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.registry.Size()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, map[string]any{"status": "ended"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": s.registry.StatusReport(),
		"latency":  s.window.Snapshot(),
	})
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, "upstream_unavailable", "the voice roleplay feature is not configured")
		return
	}

	sess, ok := s.registry.Get(sessionID)
	if !ok {
		respondError(w, http.StatusNotFound, "session_not_found", "no such session")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		_ = s.orchestrator.RunConnection(ctx, sess, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			// Malformed frames never terminate the session.
			s.log.WithError(err).WithField("session_id", sessionID).Warn("malformed client message")
			s.metrics.WSMessages.WithLabelValues("inbound", "malformed").Inc()
			select {
			case outbound <- protocol.ErrorEvent{
				Type:        protocol.TypeError,
				Error:       "invalid message: " + err.Error(),
				Recoverable: true,
			}:
			default:
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondNotFoundOrError(w http.ResponseWriter, err error, code string) {
	if errors.Is(err, content.ErrNotFound) {
		respondError(w, http.StatusNotFound, code, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "content_store_error", err.Error())
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.AudioAppend:
		return m.Type, true
	case protocol.AudioCommit:
		return m.Type, true
	case protocol.RequestResponse:
		return m.Type, true
	case protocol.TextMessage:
		return m.Type, true
	case protocol.Ready:
		return m.Type, true
	case protocol.Cancel:
		return m.Type, true
	case protocol.SessionReady:
		return m.Type, true
	case protocol.SessionConfigured:
		return m.Type, true
	case protocol.AudioDelta:
		return m.Type, true
	case protocol.UserTranscriptionDelta:
		return m.Type, true
	case protocol.AITranscriptionDelta:
		return m.Type, true
	case protocol.AITranscriptionDone:
		return m.Type, true
	case protocol.UserTranscription:
		return m.Type, true
	case protocol.ResponseDone:
		return m.Type, true
	case protocol.ResponseInterrupted:
		return m.Type, true
	case protocol.ResponseReady:
		return m.Type, true
	case protocol.SessionWarning:
		return m.Type, true
	case protocol.SessionReconnecting:
		return m.Type, true
	case protocol.SessionReconnected:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	case protocol.SessionTerminated:
		return m.Type, true
	default:
		return "", false
	}
}
