// Package inference calls the hosted text-generation model behind an eino
// chain with a per-attempt timeout and a bounded retry.
package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const (
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 1
	defaultRetryDelay = 500 * time.Millisecond
)

// Options tune the retry policy. Zero values select the defaults; a negative
// MaxRetries disables retries.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Client issues exactly one logical inference per call.
type Client struct {
	chain      compose.Runnable[map[string]any, *schema.Message]
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewClient compiles a chain around chatModel. The model is injected so tests
// can substitute a stub backend.
func NewClient(ctx context.Context, chatModel model.ChatModel, opts Options) (*Client, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	// The whole prompt is rendered upstream and passed as one user turn.
	template := prompt.FromMessages(schema.FString, schema.UserMessage("{prompt}"))

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile inference chain: %w", err)
	}

	c := &Client{
		chain:      runnable,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxRetries == 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("inference")
	return c, nil
}

// Generate returns the model text for prompt or an *InferenceError.
func (c *Client) Generate(ctx context.Context, text string, params Params) (string, error) {
	attempts := c.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		started := time.Now()
		out, err := c.invoke(ctx, text, params)
		if err == nil {
			c.logger.Debug("generated",
				zap.String("op", params.Name),
				zap.Int("attempt", attempt),
				zap.Int("length", len(out)),
				zap.Duration("elapsed", time.Since(started)))
			return out, nil
		}

		lastErr = err
		if attempt == attempts || !isTransient(ctx, err) {
			return "", &InferenceError{Op: params.Name, Attempts: attempt, Err: lastErr}
		}

		c.logger.Warn("transient inference failure, retrying",
			zap.String("op", params.Name),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return "", &InferenceError{Op: params.Name, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(c.retryDelay):
		}
	}

	return "", &InferenceError{Op: params.Name, Attempts: attempts, Err: lastErr}
}

func (c *Client) invoke(ctx context.Context, text string, params Params) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.chain.Invoke(attemptCtx, templateInput(text), compose.WithChatModelOption(params.options()...))
	if err != nil {
		return "", err
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyResponse
	}
	return msg.Content, nil
}

// Stream opens a streamed generation bounded by the client timeout. It is not
// retried because chunks may already have reached the client. The deadline is
// released once the returned reader is drained or closed.
func (c *Client) Stream(ctx context.Context, text string, params Params) (*schema.StreamReader[*schema.Message], error) {
	streamCtx, cancel := context.WithTimeout(ctx, c.timeout)

	upstream, err := c.chain.Stream(streamCtx, templateInput(text), compose.WithChatModelOption(params.options()...))
	if err != nil {
		cancel()
		return nil, &InferenceError{Op: params.Name, Attempts: 1, Err: err}
	}

	reader, writer := schema.Pipe[*schema.Message](8)
	go func() {
		defer cancel()
		defer writer.Close()
		defer upstream.Close()

		for {
			chunk, recvErr := upstream.Recv()
			if errors.Is(recvErr, io.EOF) {
				return
			}
			if recvErr != nil {
				writer.Send(nil, &InferenceError{Op: params.Name, Attempts: 1, Err: recvErr})
				return
			}
			if closed := writer.Send(chunk, nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

func templateInput(text string) map[string]any {
	return map[string]any{"prompt": text}
}
