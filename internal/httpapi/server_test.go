package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Rexmeta/RoleplayBot-sub003/internal/config"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/content"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/observability"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/protocol"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/session"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/users"
)

// echoOrchestrator greets immediately and echoes text messages back as AI
// transcript deltas, enough to exercise the websocket pumps end to end.
type echoOrchestrator struct{}

func (echoOrchestrator) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	outbound <- protocol.SessionReady{Type: protocol.TypeSessionReady}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			if text, isText := msg.(protocol.TextMessage); isText {
				outbound <- protocol.AITranscriptionDelta{
					Type: protocol.TypeAITranscriptionDelta,
					Text: text.Content,
				}
			}
		}
	}
}

func newTestServer(t *testing.T, capacity int) (*Server, *session.Registry) {
	t.Helper()

	cfg := config.Config{
		MaxConcurrentSessions:    capacity,
		SessionInactivityTimeout: 10 * time.Minute,
	}
	registry := session.NewRegistry(capacity, cfg.SessionInactivityTimeout)
	metrics := observability.NewMetrics(fmt.Sprintf("roleplay_test_api_%d", time.Now().UnixNano()))
	window := observability.NewLatencyWindow(64)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store, err := content.NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("content store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	directory, err := users.NewDirectory(context.Background(), "")
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	t.Cleanup(func() { _ = directory.Close() })

	srv := New(cfg, registry, echoOrchestrator{}, store, directory, metrics, window, log)
	return srv, registry
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestCreateAndEndSession(t *testing.T) {
	srv, _ := newTestServer(t, 4)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/roleplay/session", map[string]string{
		"conversationId": "conv-1",
		"scenarioId":     "late-report",
		"personaId":      "team-lead-kim",
		"userId":         "u-42",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	sessionID, _ := body["sessionId"].(string)
	if sessionID == "" {
		t.Fatal("create response missing sessionId")
	}
	if body["targetLanguage"] != "ko" {
		t.Fatalf("targetLanguage = %v, want ko", body["targetLanguage"])
	}
	if body["voice"] != "alloy" {
		t.Fatalf("voice = %v, want alloy", body["voice"])
	}

	resp = postJSON(t, ts.URL+"/v1/roleplay/session/"+sessionID+"/end", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/roleplay/session/"+sessionID+"/end", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second end status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateSessionValidation(t *testing.T) {
	srv, _ := newTestServer(t, 4)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/roleplay/session", map[string]string{
		"personaId": "team-lead-kim",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing scenarioId status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/roleplay/session", map[string]string{
		"scenarioId": "no-such-scenario",
		"personaId":  "team-lead-kim",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown scenario status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["code"] != "scenario_not_found" {
		t.Fatalf("code = %v, want scenario_not_found", body["code"])
	}
}

func TestCreateSessionRejectsAtCapacity(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req := map[string]string{
		"scenarioId": "late-report",
		"personaId":  "team-lead-kim",
	}
	resp := postJSON(t, ts.URL+"/v1/roleplay/session", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/roleplay/session", req)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("second create status = %d, want 503", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["code"] != "capacity_exceeded" {
		t.Fatalf("code = %v, want capacity_exceeded", body["code"])
	}
	if _, ok := body["utilization"].(float64); !ok {
		t.Fatalf("utilization missing from rejection body: %v", body)
	}
}

func TestStatusAnonymizesSessionIDs(t *testing.T) {
	srv, registry := newTestServer(t, 4)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sess, err := registry.Create(session.Params{ScenarioID: "late-report", PersonaID: "team-lead-kim"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/roleplay/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), sess.ID) {
		t.Fatal("status report leaks the full session id")
	}
	if !strings.Contains(string(raw), sess.ID[:8]) {
		t.Fatal("status report missing the session id prefix")
	}
	if _, ok := body["latency"]; !ok {
		t.Fatal("status report missing latency snapshot")
	}
}

func TestReadyzReportsMissingOrchestrator(t *testing.T) {
	srv, _ := newTestServer(t, 4)
	srv.orchestrator = nil
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET readyz: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/roleplay/session", map[string]string{
		"scenarioId": "late-report",
		"personaId":  "team-lead-kim",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("create without orchestrator status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSessionWebsocketRoundTrip(t *testing.T) {
	srv, registry := newTestServer(t, 4)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sess, err := registry.Create(session.Params{ScenarioID: "late-report", PersonaID: "team-lead-kim"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/roleplay/session/ws?session_id=" + sess.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready map[string]any
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	if ready["type"] != string(protocol.TypeSessionReady) {
		t.Fatalf("first frame type = %v, want %s", ready["type"], protocol.TypeSessionReady)
	}

	// Malformed frames earn a recoverable error, never a disconnect.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"no-such-type"}`)); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	var errFrame map[string]any
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if errFrame["type"] != string(protocol.TypeError) || errFrame["recoverable"] != true {
		t.Fatalf("error frame = %v", errFrame)
	}

	if err := conn.WriteJSON(protocol.TextMessage{Type: protocol.TypeTextMessage, Content: "hello"}); err != nil {
		t.Fatalf("write text: %v", err)
	}
	var echo map[string]any
	if err := conn.ReadJSON(&echo); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if echo["type"] != string(protocol.TypeAITranscriptionDelta) || echo["text"] != "hello" {
		t.Fatalf("echo frame = %v", echo)
	}
}

func TestSessionWebsocketUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, 4)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/roleplay/session/ws?session_id=nope")
	if err != nil {
		t.Fatalf("GET ws: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}
