package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/identity"
	"quiz-proctor-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

type testServer struct {
	server   *httptest.Server
	auth     *identity.Authenticator
	progress *memory.ProgressRecorder
}

func newTestServer(t *testing.T, policy app.Policy) *testServer {
	t.Helper()
	progress := memory.NewProgressRecorder()
	service := app.NewSessionService(memory.NewSessionStore(), memory.NewStaticQuestionStore(sampleBank()), progress, policy)
	auth := identity.NewAuthenticator("test-secret", time.Hour)
	router := NewRouter(NewWSHandler(service, auth), NewProgressHandler(service), auth, nil)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{server: server, auth: auth, progress: progress}
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + s.server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketQuizFlow(t *testing.T) {
	s := newTestServer(t, app.Policy{})
	token, err := s.auth.Issue("u1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	conn := s.dial(t, "topicId=topic-1&token="+token)

	snap := readState(t, conn, domain.StateNotStarted)
	if snap.Total != 2 {
		t.Fatalf("expected 2 questions, got %d", snap.Total)
	}

	send(t, conn, "start", nil)
	cmd := readUntil(t, conn, "fullscreen")
	if cmd["action"] != "request" {
		t.Fatalf("expected full-screen request, got %v", cmd)
	}
	snap = readState(t, conn, domain.StateInProgress)
	if snap.Question == nil || snap.Question.ID != "q1" {
		t.Fatalf("expected first question, got %+v", snap.Question)
	}

	send(t, conn, "fullscreen", map[string]any{"active": true})
	send(t, conn, "select", map[string]any{"optionId": "o2"})
	send(t, conn, "next", nil)
	send(t, conn, "select", map[string]any{"questionId": "q2", "optionId": "o3"})
	send(t, conn, "submit", nil)

	// results are broadcast before the exit command is sent, so accept either order
	var exited bool
	var result *domain.Result
	for i := 0; i < 20 && (!exited || result == nil); i++ {
		msg := readRaw(t, conn)
		switch msg.Type {
		case "fullscreen":
			var cmd fullScreenCommand
			_ = json.Unmarshal(msg.Payload, &cmd)
			exited = exited || cmd.Action == "exit"
		case "state":
			var state domain.Snapshot
			_ = json.Unmarshal(msg.Payload, &state)
			if state.State == domain.StateResults {
				result = state.Result
			}
		}
	}
	if !exited {
		t.Fatalf("expected full-screen exit")
	}
	if result == nil || result.Score != 2 || !result.Passed {
		t.Fatalf("expected passing 2/2 result, got %+v", result)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(s.progress.Attempts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	attempts := s.progress.Attempts()
	if len(attempts) != 1 || attempts[0].UserID != "u1" || attempts[0].Score != 2 {
		t.Fatalf("expected one recorded attempt, got %+v", attempts)
	}

	req, _ := http.NewRequest(http.MethodGet, s.server.URL+"/progress", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("progress request: %v", err)
	}
	defer resp.Body.Close()
	var body progressResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if body.UserID != "u1" || len(body.CompletedTopics) != 1 || body.CompletedTopics[0] != "topic-1" {
		t.Fatalf("unexpected progress %+v", body)
	}
}

func TestWebSocketViolationFlow(t *testing.T) {
	s := newTestServer(t, app.Policy{})
	conn := s.dial(t, "topicId=topic-1")

	readState(t, conn, domain.StateNotStarted)
	send(t, conn, "start", nil)
	readState(t, conn, domain.StateInProgress)

	send(t, conn, "fullscreen", map[string]any{"active": false})
	send(t, conn, "fullscreen", map[string]any{"active": false})
	readState(t, conn, domain.StateViolationPending)

	send(t, conn, "next", nil)
	if msg := readUntil(t, conn, "error"); msg["message"] == "" {
		t.Fatalf("expected navigation error during violation")
	}

	send(t, conn, "acknowledge", nil)
	readState(t, conn, domain.StateCancelled)
	if len(s.progress.Attempts()) != 0 {
		t.Fatalf("expected no attempt after violation")
	}
}

func TestWebSocketStrictStartNeedsBrowserConfirmation(t *testing.T) {
	s := newTestServer(t, app.Policy{RequireFullScreen: true})
	conn := s.dial(t, "topicId=topic-1")

	readState(t, conn, domain.StateNotStarted)
	send(t, conn, "start", nil)
	if cmd := readUntil(t, conn, "fullscreen"); cmd["action"] != "request" {
		t.Fatalf("expected full-screen request, got %v", cmd)
	}
	send(t, conn, "fullscreen", map[string]any{"active": false})

	for {
		msg := readRaw(t, conn)
		if msg.Type == "error" {
			break
		}
		if msg.Type == "state" {
			var snap domain.Snapshot
			_ = json.Unmarshal(msg.Payload, &snap)
			if snap.State != domain.StateNotStarted {
				t.Fatalf("refused full-screen must not start the quiz, got %s", snap.State)
			}
		}
	}

	// still not started, so a second attempt that the browser grants goes through
	send(t, conn, "start", nil)
	readUntil(t, conn, "fullscreen")
	send(t, conn, "fullscreen", map[string]any{"active": true})
	snap := readState(t, conn, domain.StateInProgress)
	if !snap.FullScreen {
		t.Fatalf("expected full-screen in snapshot")
	}
}

func TestScreenCommandsDoNotBlockOnFullBuffer(t *testing.T) {
	conn := &connection{
		send:       make(chan outboundMessage[any]),
		writerDone: make(chan struct{}),
	}
	screen := wsScreen{conn: conn, timeout: 20 * time.Millisecond}

	start := time.Now()
	if err := screen.ExitFullScreen(context.Background()); !errors.Is(err, errSendTimeout) {
		t.Fatalf("expected send timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("exit blocked for %s", elapsed)
	}

	close(conn.writerDone)
	if err := screen.RequestFullScreen(context.Background()); !errors.Is(err, errConnectionClosed) {
		t.Fatalf("expected closed connection, got %v", err)
	}
}

func TestWebSocketEmptyTopic(t *testing.T) {
	s := newTestServer(t, app.Policy{})
	conn := s.dial(t, "topicId=missing")

	snap := readState(t, conn, domain.StateEmpty)
	if snap.Failure == "" {
		t.Fatalf("expected failure reason")
	}
	send(t, conn, "start", nil)
	readUntil(t, conn, "error")
}

func TestWebSocketRequiresTopic(t *testing.T) {
	s := newTestServer(t, app.Policy{})
	resp, err := http.Get(s.server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProgressRequiresToken(t *testing.T) {
	s := newTestServer(t, app.Policy{})
	resp, err := http.Get(s.server.URL + "/progress")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readRaw(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	var msg rawMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

// readUntil skips messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readRaw(t, conn)
		if msg.Type != msgType {
			continue
		}
		var payload map[string]any
		_ = json.Unmarshal(msg.Payload, &payload)
		return payload
	}
	t.Fatalf("no %s message received", msgType)
	return nil
}

// readState skips messages until a snapshot in the wanted state arrives.
func readState(t *testing.T, conn *websocket.Conn, want domain.State) domain.Snapshot {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readRaw(t, conn)
		if msg.Type != "state" {
			continue
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if snap.State == want {
			return snap
		}
	}
	t.Fatalf("state %s never reached", want)
	return domain.Snapshot{}
}

func sampleBank() domain.QuestionBank {
	return domain.QuestionBank{Topics: []domain.BankTopic{{
		ID:    "topic-1",
		Title: "Arithmetic",
		Questions: []domain.BankQuestion{
			{ID: "q1", Text: "What is 2 + 2?", Options: []domain.BankOption{
				{ID: "o1", Text: "3"},
				{ID: "o2", Text: "4", Correct: true},
			}},
			{ID: "q2", Text: "What is 3 + 3?", Options: []domain.BankOption{
				{ID: "o3", Text: "6", Correct: true},
				{ID: "o4", Text: "7"},
			}},
		},
	}}}
}
