package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/identity"
	"github.com/gorilla/websocket"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendTimeout      = errors.New("send buffer full")
)

const screenCommandTimeout = time.Second

type WSHandler struct {
	service  *app.SessionService
	auth     *identity.Authenticator
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, auth *identity.Authenticator) *WSHandler {
	return &WSHandler{
		service: service,
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

type fullScreenPayload struct {
	Active bool `json:"active"`
}

type fullScreenCommand struct {
	Action string `json:"action"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// connection serializes writes to a websocket through a single writer goroutine.
type connection struct {
	send       chan outboundMessage[any]
	writerDone chan struct{}
}

func (c *connection) push(msgType string, payload any) error {
	select {
	case c.send <- outboundMessage[any]{Type: msgType, Payload: payload}:
		return nil
	case <-c.writerDone:
		return errConnectionClosed
	}
}

// pushWithin is push bounded by timeout, for writers that must not stall behind a slow client.
func (c *connection) pushWithin(msgType string, payload any, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.send <- outboundMessage[any]{Type: msgType, Payload: payload}:
		return nil
	case <-c.writerDone:
		return errConnectionClosed
	case <-timer.C:
		return errSendTimeout
	}
}

// wsScreen relays full-screen commands to the browser. Delivery is the only
// thing it can confirm; the browser reports the outcome as a fullscreen message.
type wsScreen struct {
	conn    *connection
	timeout time.Duration
}

func (s wsScreen) RequestFullScreen(context.Context) error {
	return s.conn.pushWithin("fullscreen", fullScreenCommand{Action: "request"}, s.timeout)
}

func (s wsScreen) ExitFullScreen(context.Context) error {
	return s.conn.pushWithin("fullscreen", fullScreenCommand{Action: "exit"}, s.timeout)
}

// AwaitsConfirmation marks the browser as granting full-screen asynchronously.
func (wsScreen) AwaitsConfirmation() {}

// ServeWS upgrades HTTP requests to websockets and drives one quiz session per connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	topicID := r.URL.Query().Get("topicId")
	if topicID == "" {
		http.Error(w, "missing topicId", http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = identity.BearerToken(r)
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	conn := &connection{
		send:       make(chan outboundMessage[any], 16),
		writerDone: make(chan struct{}),
	}
	go func() {
		defer close(conn.writerDone)
		for msg := range conn.send {
			if err := ws.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	screen := wsScreen{conn: conn, timeout: screenCommandTimeout}
	session, err := h.service.Open(ctx, topicID, h.auth.Token(token), screen)
	if err != nil {
		log.Printf("ws session for topic %s: %v", topicID, err)
	}

	updates, cancel := session.Subscribe()
	updatesDone := make(chan struct{})
	go func() {
		defer close(updatesDone)
		for snap := range updates {
			if err := conn.push("state", snap); err != nil {
				return
			}
		}
	}()

	var inflight sync.WaitGroup
	h.readLoop(ctx, ws, conn, session, &inflight)

	stop()
	cancel()
	h.service.Close(session.ID())
	inflight.Wait()
	<-updatesDone
	close(conn.send)
	<-conn.writerDone
}

func (h *WSHandler) readLoop(ctx context.Context, ws *websocket.Conn, conn *connection, session *app.Controller, inflight *sync.WaitGroup) {
	for {
		var inbound inboundMessage
		if err := ws.ReadJSON(&inbound); err != nil {
			return
		}

		var err error
		switch inbound.Type {
		case "start":
			// Start may wait for the browser's fullscreen reply, which this loop must keep reading
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				if err := session.Start(ctx); err != nil {
					_ = conn.push("error", errorPayload{Message: err.Error()})
				}
			}()
		case "select":
			var payload selectPayload
			if jsonErr := json.Unmarshal(inbound.Payload, &payload); jsonErr != nil {
				err = errors.New("invalid select payload")
				break
			}
			if payload.QuestionID == "" {
				err = session.SelectCurrent(payload.OptionID)
			} else {
				err = session.Select(payload.QuestionID, payload.OptionID)
			}
		case "next":
			_, err = session.Advance()
		case "prev":
			_, err = session.Retreat()
		case "submit":
			_, err = session.Submit(ctx)
		case "fullscreen":
			var payload fullScreenPayload
			if jsonErr := json.Unmarshal(inbound.Payload, &payload); jsonErr != nil {
				err = errors.New("invalid fullscreen payload")
				break
			}
			session.FullScreenChanged(payload.Active)
		case "acknowledge":
			if err = session.AcknowledgeViolation(); err == nil {
				// the taker is sent back to the topic list; this session is over
				return
			}
		default:
			err = errors.New("unsupported message type")
		}

		if err != nil {
			if pushErr := conn.push("error", errorPayload{Message: err.Error()}); pushErr != nil {
				return
			}
		}
	}
}
