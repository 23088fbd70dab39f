package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	summaryParser "github.com/zhouzirui/medichat/backend/internal/analysis/summary"
	"github.com/zhouzirui/medichat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/medichat/backend/internal/service/chat"
	"github.com/zhouzirui/medichat/backend/internal/service/prompt"
)

const (
	defaultReadTimeout = 60 * time.Second
	pingPeriod         = 9 * defaultReadTimeout / 10
)

// Assistant is the part of the chat service the socket needs.
type Assistant interface {
	Reply(ctx context.Context, message, history string) (chatService.Reply, error)
	Summarize(ctx context.Context, messages []chat.Message) (summaryParser.Result, error)
}

// Handler serves chat turns over a WebSocket. Frames on one connection are
// handled strictly one after another, so replies keep submission order.
type Handler struct {
	assistant    Assistant
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	pingInterval time.Duration
}

// New creates the WebSocket handler.
func New(assistant Assistant, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		assistant: assistant,
		logger:    logger.Named("handler.ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout:  defaultReadTimeout,
		pingInterval: pingPeriod,
	}
}

// RegisterRoutes mounts GET /chat/ws.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

// Message types accepted and produced on the socket.
const (
	TypeChat    = "chat"
	TypeSummary = "summary"
	TypeReply   = "reply"
	TypeError   = "error"
)

// inboundMessage frames without an id get a generated one so replies can
// always be correlated.
type inboundMessage struct {
	Type                string         `json:"type"`
	ID                  string         `json:"id"`
	Message             string         `json:"message"`
	ConversationHistory string         `json:"conversationHistory"`
	Messages            []chat.Message `json:"messages"`
}

type outgoingMessage struct {
	Type      string                 `json:"type"`
	ID        string                 `json:"id,omitempty"`
	Response  string                 `json:"response,omitempty"`
	Emergency bool                   `json:"emergency,omitempty"`
	Summary   *chat.DiagnosisSummary `json:"summary,omitempty"`
	Source    string                 `json:"source,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// connectionState is the transcript accumulated on one socket. It lives only
// as long as the connection.
type connectionState struct {
	transcript []chat.Message
}

func (s *connectionState) record(role chat.Role, content string) {
	s.transcript = append(s.transcript, chat.NewMessage(role, content))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	writes := make(chan outgoingMessage, 8)
	done := make(chan struct{})
	go h.writeLoop(ctx, conn, writes, done)
	defer func() {
		close(writes)
		<-done
	}()

	state := &connectionState{}
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		// A turn may outlast the read deadline while the model retries.
		_ = conn.SetReadDeadline(time.Time{})

		select {
		case writes <- h.handleMessage(ctx, state, &msg):
		case <-done:
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

// writeLoop owns every write on conn, pings included.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, writes <-chan outgoingMessage, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-writes:
			if !ok {
				return
			}
			msg.Timestamp = time.Now().Unix()
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("write failed", zap.Error(err))
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, state *connectionState, msg *inboundMessage) outgoingMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	switch msg.Type {
	case TypeChat:
		return h.handleChat(ctx, state, msg)
	case TypeSummary:
		return h.handleSummary(ctx, state, msg)
	default:
		return outgoingMessage{Type: TypeError, ID: msg.ID, Error: "unsupported message type: " + msg.Type}
	}
}

func (h *Handler) handleChat(ctx context.Context, state *connectionState, msg *inboundMessage) outgoingMessage {
	history := msg.ConversationHistory
	if history == "" {
		history = prompt.Transcript(state.transcript)
	}

	reply, err := h.assistant.Reply(ctx, msg.Message, history)
	if err != nil {
		return h.failure(msg.ID, err, chatService.ChatApology)
	}

	state.record(chat.RoleUser, msg.Message)
	state.record(chat.RoleAssistant, reply.Text)
	return outgoingMessage{Type: TypeReply, ID: msg.ID, Response: reply.Text, Emergency: reply.Emergency}
}

func (h *Handler) handleSummary(ctx context.Context, state *connectionState, msg *inboundMessage) outgoingMessage {
	messages := msg.Messages
	if len(messages) == 0 {
		messages = state.transcript
	}

	result, err := h.assistant.Summarize(ctx, messages)
	if err != nil {
		return h.failure(msg.ID, err, chatService.SummaryFailure)
	}
	return outgoingMessage{Type: TypeSummary, ID: msg.ID, Summary: &result.Summary, Source: string(result.Source)}
}

func (h *Handler) failure(id string, err error, fallback string) outgoingMessage {
	var validationErr *chatService.ValidationError
	if errors.As(err, &validationErr) {
		return outgoingMessage{Type: TypeError, ID: id, Error: validationErr.Message}
	}
	h.logger.Error("socket turn failed", zap.String("id", id), zap.Error(err))
	return outgoingMessage{Type: TypeError, ID: id, Error: fallback}
}
