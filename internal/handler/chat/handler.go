package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/medichat/backend/internal/service/chat"
	"github.com/zhouzirui/medichat/backend/pkg/utils"
)

// Replier answers a single chat turn.
type Replier interface {
	Reply(ctx context.Context, message, history string) (chatService.Reply, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc Replier
	logger  *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc Replier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger.Named("handler.chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type chatRequest struct {
	Message             string `json:"message"`
	ConversationHistory string `json:"conversationHistory"`
}

type chatResponse struct {
	Response  string   `json:"response"`
	Error     string   `json:"error,omitempty"`
	Emergency bool     `json:"emergency,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
}

// handleChat 处理单轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		respondChatError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chatSvc.Reply(r.Context(), payload.Message, payload.ConversationHistory)
	if err != nil {
		var validationErr *chatService.ValidationError
		if errors.As(err, &validationErr) {
			respondChatError(w, http.StatusBadRequest, validationErr.Message)
			return
		}
		h.logger.Error("chat request failed", zap.Error(err))
		respondChatError(w, http.StatusInternalServerError, chatService.ChatApology)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{
		Response:  reply.Text,
		Emergency: reply.Emergency,
		Keywords:  reply.Keywords,
	})
}

// respondChatError mirrors the message into "response" so the UI can render
// it as an assistant turn.
func respondChatError(w http.ResponseWriter, status int, message string) {
	utils.RespondJSON(w, status, chatResponse{Response: message, Error: message})
}
