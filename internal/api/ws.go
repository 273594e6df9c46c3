package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abhisek/studybuddy/internal/gateway"
	"github.com/abhisek/studybuddy/internal/llm"
	"github.com/abhisek/studybuddy/internal/observability"
)

// Event types on the chat socket.
const (
	EventMessage    = "message"
	EventChunk      = "chunk"
	EventSafetyFlag = "safety_flag"
	EventError      = "error"
	EventFinal      = "final"
	EventInvalid    = "invalid"
)

const (
	wsReadLimit    = 64 << 10
	wsIdleTimeout  = 5 * time.Minute
	wsWriteTimeout = 10 * time.Second
)

// ClientMessage is sent by the UI.
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Event is sent to the UI. A send produces zero or more chunk and
// safety_flag events, at most one error event, then exactly one final
// event whose Result is authoritative.
type Event struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	Flags    []string            `json:"flags,omitempty"`
	ErrorTag llm.ErrorTag        `json:"errorTag,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Result   *gateway.SendResult `json:"result,omitempty"`
}

// wsWriter serializes writes; chunks arrive on the model goroutine.
type wsWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	metrics *observability.Metrics
	logger  *zap.Logger
}

func (w *wsWriter) send(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := w.conn.WriteJSON(ev); err != nil {
		w.logger.Debug("websocket write failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	w.metrics.ObserveWSMessage("outbound", ev.Type)
}

func (s *Server) streamChat(c *gin.Context) {
	childID := c.Param("id")
	if _, found := s.conversation(c); !found {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("child_id", childID))
	logger.Info("chat socket connected")
	w := &wsWriter{conn: conn, metrics: s.metrics, logger: logger}
	ctx := c.Request.Context()

	conn.SetReadLimit(wsReadLimit)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var in ClientMessage
		if err := json.Unmarshal(data, &in); err != nil || in.Type != EventMessage {
			w.send(Event{Type: EventInvalid, Detail: `expected {"type":"message","text":"..."}`})
			continue
		}
		s.metrics.ObserveWSMessage("inbound", in.Type)

		res, err := s.manager.Send(ctx, childID, in.Text, gateway.SendOptions{
			OnChunk: func(chunk string) {
				w.send(Event{Type: EventChunk, Text: chunk})
			},
			OnSafetyFlag: func(flags []string) {
				w.send(Event{Type: EventSafetyFlag, Flags: flags})
			},
			OnError: func(err error) {
				w.send(Event{Type: EventError, ErrorTag: llm.Tag(err)})
			},
		})
		if err != nil {
			w.send(Event{Type: EventInvalid, Detail: sendErrorDetail(err)})
			if errors.Is(err, gateway.ErrUnknownConversation) {
				break
			}
			continue
		}
		w.send(Event{Type: EventFinal, Result: res})
	}
	logger.Info("chat socket closed")
}

func sendErrorDetail(err error) string {
	switch {
	case errors.Is(err, gateway.ErrUnknownConversation):
		return "conversation not open"
	case errors.Is(err, gateway.ErrEmptyMessage):
		return "text is required"
	}
	return err.Error()
}

// sameOrigin accepts non-browser clients (no Origin header) and browser
// pages served from the same host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
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
}
