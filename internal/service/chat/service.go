package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/medichat/backend/internal/analysis/emergency"
	"github.com/zhouzirui/medichat/backend/internal/analysis/summary"
	"github.com/zhouzirui/medichat/backend/internal/model/chat"
	"github.com/zhouzirui/medichat/backend/internal/service/inference"
	"github.com/zhouzirui/medichat/backend/internal/service/prompt"
)

// User-facing texts for failed inference. Provider errors never reach users.
const (
	ChatApology    = "I apologize, but I encountered an error. Please try again or consult with a healthcare professional if this is urgent."
	SummaryFailure = "Unable to generate summary. Please try again."
)

// ValidationError is a malformed request; its message is safe to echo.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrMessageRequired  = &ValidationError{Message: "Message is required"}
	ErrMessagesRequired = &ValidationError{Message: "Messages array is required"}

	// ErrInferenceUnavailable is wrapped in an InferenceError when no model
	// backend was configured.
	ErrInferenceUnavailable = errors.New("no inference backend configured")
)

// Generator produces model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, params inference.Params) (string, error)
}

// Streamer is implemented by generators that can stream chunks.
type Streamer interface {
	Stream(ctx context.Context, prompt string, params inference.Params) (*schema.StreamReader[*schema.Message], error)
}

type keywordReporter interface {
	Matched(text string) []string
}

// Options holds the optional collaborators of Service.
type Options struct {
	Guard  emergency.Matcher
	Parser *summary.Parser
	Logger *zap.Logger
}

// Service runs the guard → prompt → inference pipeline. It keeps no state
// between requests.
type Service struct {
	generator Generator
	guard     emergency.Matcher
	parser    *summary.Parser
	logger    *zap.Logger
}

// NewService wires the pipeline. generator may be nil, in which case every
// non-emergency request fails with ErrInferenceUnavailable.
func NewService(generator Generator, opts Options) *Service {
	svc := &Service{
		generator: generator,
		guard:     opts.Guard,
		parser:    opts.Parser,
		logger:    opts.Logger,
	}
	if svc.guard == nil {
		svc.guard = emergency.Default()
	}
	if svc.parser == nil {
		svc.parser = summary.NewParser(summary.ModeSectioned)
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	svc.logger = svc.logger.Named("chat")
	return svc
}

// Reply is the outcome of one chat turn.
type Reply struct {
	Text      string
	Emergency bool
	Keywords  []string
}

// Reply answers one patient message. Emergency messages never reach the model.
func (s *Service) Reply(ctx context.Context, message, history string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrMessageRequired
	}

	if reply, ok := s.checkEmergency(message); ok {
		return reply, nil
	}

	if s.generator == nil {
		return Reply{}, &inference.InferenceError{Op: inference.ChatParams.Name, Err: ErrInferenceUnavailable}
	}

	text, err := s.generator.Generate(ctx, prompt.Conversation(message, history), inference.ChatParams)
	if err != nil {
		s.logger.Error("chat inference failed", zap.Error(err))
		return Reply{}, asInferenceError(inference.ChatParams.Name, err)
	}

	s.logger.Info("chat reply generated", zap.Int("length", len(text)))
	return Reply{Text: text}, nil
}

// StreamingReply carries either an emergency reply or a live chunk stream.
type StreamingReply struct {
	Emergency *Reply
	Chunks    *schema.StreamReader[*schema.Message]
}

// StreamReply applies the same guard as Reply and streams model output.
func (s *Service) StreamReply(ctx context.Context, message, history string) (StreamingReply, error) {
	if strings.TrimSpace(message) == "" {
		return StreamingReply{}, ErrMessageRequired
	}

	if reply, ok := s.checkEmergency(message); ok {
		return StreamingReply{Emergency: &reply}, nil
	}

	streamer, ok := s.generator.(Streamer)
	if !ok {
		return StreamingReply{}, &inference.InferenceError{Op: inference.ChatParams.Name, Err: ErrInferenceUnavailable}
	}

	chunks, err := streamer.Stream(ctx, prompt.Conversation(message, history), inference.ChatParams)
	if err != nil {
		s.logger.Error("chat stream failed", zap.Error(err))
		return StreamingReply{}, asInferenceError(inference.ChatParams.Name, err)
	}
	return StreamingReply{Chunks: chunks}, nil
}

func (s *Service) checkEmergency(message string) (Reply, bool) {
	if !s.guard.Matches(message) {
		return Reply{}, false
	}

	var keywords []string
	if reporter, ok := s.guard.(keywordReporter); ok {
		keywords = reporter.Matched(message)
	}
	s.logger.Warn("emergency keywords matched, skipping inference", zap.Strings("keywords", keywords))
	return Reply{Text: emergency.EmergencyResponse, Emergency: true, Keywords: keywords}, true
}

// Summarize asks the model for a JSON summary of the transcript. Once the
// inference call succeeds it cannot fail.
func (s *Service) Summarize(ctx context.Context, messages []chat.Message) (summary.Result, error) {
	if len(messages) == 0 {
		return summary.Result{}, ErrMessagesRequired
	}
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return summary.Result{}, &ValidationError{
				Message: fmt.Sprintf("messages[%d].role must be %q or %q", i, chat.RoleUser, chat.RoleAssistant),
			}
		}
	}

	if s.generator == nil {
		return summary.Result{}, &inference.InferenceError{Op: inference.SummaryParams.Name, Err: ErrInferenceUnavailable}
	}

	raw, err := s.generator.Generate(ctx, prompt.Summary(prompt.Transcript(messages)), inference.SummaryParams)
	if err != nil {
		s.logger.Error("summary inference failed", zap.Error(err))
		return summary.Result{}, asInferenceError(inference.SummaryParams.Name, err)
	}

	result := s.parser.Parse(raw)
	if result.Source == summary.Fallback {
		s.logger.Info("summary json rejected, used text fallback",
			zap.String("mode", s.parser.Mode().String()),
			zap.Error(result.DecodeErr))
	}
	return result, nil
}

func asInferenceError(op string, err error) error {
	var inferErr *inference.InferenceError
	if errors.As(err, &inferErr) {
		return err
	}
	return &inference.InferenceError{Op: op, Attempts: 1, Err: err}
}
