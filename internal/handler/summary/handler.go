package summary

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	summaryParser "github.com/zhouzirui/medichat/backend/internal/analysis/summary"
	"github.com/zhouzirui/medichat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/medichat/backend/internal/service/chat"
	"github.com/zhouzirui/medichat/backend/pkg/utils"
)

// SourceHeader tells clients whether the summary came from JSON or from the
// text fallback.
const SourceHeader = "X-Summary-Source"

// Summarizer builds a DiagnosisSummary from a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, messages []chat.Message) (summaryParser.Result, error)
}

// Handler 摘要服务的HTTP处理器
type Handler struct {
	summarizer Summarizer
	logger     *zap.Logger
}

// New 创建摘要处理器
func New(summarizer Summarizer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{summarizer: summarizer, logger: logger.Named("handler.summary")}
}

// RegisterRoutes 注册摘要相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/summary", h.handleSummary)
	r.Get("/summary/schema", h.handleSchema)
}

type summaryRequest struct {
	Messages []chat.Message `json:"messages"`
}

type summaryResponse struct {
	Summary chat.DiagnosisSummary `json:"summary"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	var payload summaryRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.summarizer.Summarize(r.Context(), payload.Messages)
	if err != nil {
		var validationErr *chatService.ValidationError
		if errors.As(err, &validationErr) {
			utils.RespondError(w, http.StatusBadRequest, validationErr.Message)
			return
		}
		h.logger.Error("summary request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, chatService.SummaryFailure)
		return
	}

	w.Header().Set(SourceHeader, string(result.Source))
	utils.RespondJSON(w, http.StatusOK, summaryResponse{Summary: result.Summary})
}

func (h *Handler) handleSchema(w http.ResponseWriter, _ *http.Request) {
	schema, err := summaryParser.Schema()
	if err != nil {
		h.logger.Error("failed to build summary schema", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "schema unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, schema)
}
