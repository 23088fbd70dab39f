package stream

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/medichat/backend/internal/service/chat"
	"github.com/zhouzirui/medichat/backend/pkg/utils"
)

// StreamReplier streams the answer to one chat turn.
type StreamReplier interface {
	StreamReply(ctx context.Context, message, history string) (chatService.StreamingReply, error)
}

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	chatSvc StreamReplier
	logger  *zap.Logger
}

// New creates a new stream handler
func New(chatSvc StreamReplier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger.Named("handler.stream")}
}

// RegisterRoutes mounts GET /chat/stream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/stream", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	Emergency bool   `json:"emergency,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	history := r.URL.Query().Get("history")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	out, err := h.chatSvc.StreamReply(r.Context(), message, history)
	if err != nil {
		var validationErr *chatService.ValidationError
		if errors.As(err, &validationErr) {
			utils.RespondError(w, http.StatusBadRequest, validationErr.Message)
			return
		}
		h.logger.Error("stream request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, chatService.ChatApology)
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "start"})

	if out.Emergency != nil {
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "message", Content: out.Emergency.Text, Emergency: true})
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "end", Finished: true})
		return
	}

	if _, err := h.relay(w, flusher, out.Chunks); err != nil {
		h.logger.Error("stream interrupted", zap.Error(err))
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "error", Error: chatService.ChatApology})
		return
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "end", Finished: true})
}

// relay forwards deltas and finishes with the concatenated message.
func (h *Handler) relay(w http.ResponseWriter, flusher http.Flusher, chunks *schema.StreamReader[*schema.Message]) (*schema.Message, error) {
	defer chunks.Close()

	collected := make([]*schema.Message, 0, 8)
	for {
		chunk, err := chunks.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}

		collected = append(collected, chunk)
		if chunk.Content != "" {
			utils.SendSSEChunk(w, flusher, StreamResponse{Event: "delta", Content: chunk.Content})
		}
	}

	if len(collected) == 0 {
		return nil, errors.New("stream produced no output")
	}

	response, err := schema.ConcatMessages(collected)
	if err != nil {
		return nil, err
	}
	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "message", Content: response.Content})
	return response, nil
}
