package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	DefaultHuggingFaceModel   = "aaditya/Llama3-OpenBioLLM-70B"
	DefaultHuggingFaceBaseURL = "https://api-inference.huggingface.co"
)

// HuggingFaceConfig 描述 Hugging Face 文本生成接口的连接参数。
type HuggingFaceConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// HuggingFace adapts the text-generation task API to eino's ChatModel so it
// can sit in the same chain as the other providers. Chat messages are
// flattened into a single prompt.
type HuggingFace struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

var _ model.ChatModel = (*HuggingFace)(nil)

// NewHuggingFace validates cfg and fills defaults.
func NewHuggingFace(cfg HuggingFaceConfig) (*HuggingFace, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("huggingface api key is required")
	}

	hf := &HuggingFace{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  cfg.HTTPClient,
	}
	if hf.model == "" {
		hf.model = DefaultHuggingFaceModel
	}
	if hf.baseURL == "" {
		hf.baseURL = DefaultHuggingFaceBaseURL
	}
	if hf.client == nil {
		hf.client = http.DefaultClient
	}
	return hf, nil
}

type hfParameters struct {
	MaxNewTokens      *int     `json:"max_new_tokens,omitempty"`
	Temperature       *float32 `json:"temperature,omitempty"`
	TopP              *float32 `json:"top_p,omitempty"`
	RepetitionPenalty *float32 `json:"repetition_penalty,omitempty"`
	DoSample          bool     `json:"do_sample"`
	ReturnFullText    bool     `json:"return_full_text"`
	Stop              []string `json:"stop,omitempty"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

type hfError struct {
	Error string `json:"error"`
}

// Generate performs one text-generation request.
func (h *HuggingFace) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{}, opts...)
	sampling := model.GetImplSpecificOptions(&samplingOptions{}, opts...)

	modelID := h.model
	if common.Model != nil && *common.Model != "" {
		modelID = *common.Model
	}

	body, err := json.Marshal(hfRequest{
		Inputs: flattenMessages(input),
		Parameters: hfParameters{
			MaxNewTokens:      common.MaxTokens,
			Temperature:       common.Temperature,
			TopP:              common.TopP,
			RepetitionPenalty: sampling.RepetitionPenalty,
			DoSample:          true,
			ReturnFullText:    false,
			Stop:              common.Stop,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode huggingface request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/models/"+modelID, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build huggingface request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read huggingface response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	text, err := decodeGeneration(raw)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

// maxErrorBody caps how much of a non-JSON error body is kept for logs.
const maxErrorBody = 256

func errorMessage(raw []byte) string {
	var apiErr hfError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	body := strings.TrimSpace(string(raw))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return body
}

// Stream has no incremental transport here; the full reply is delivered as a
// single chunk.
func (h *HuggingFace) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := h.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is a no-op: the text-generation task has no tool calling.
func (h *HuggingFace) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

// The task API answers with either a one-element array or a bare object.
func decodeGeneration(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []hfGeneration
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", fmt.Errorf("decode huggingface response: %w", err)
		}
		if len(items) == 0 {
			return "", ErrEmptyResponse
		}
		return items[0].GeneratedText, nil
	}

	var single struct {
		hfGeneration
		hfError
	}
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("decode huggingface response: %w", err)
	}
	if single.Error != "" {
		return "", fmt.Errorf("huggingface error: %s", single.Error)
	}
	return single.GeneratedText, nil
}

func flattenMessages(input []*schema.Message) string {
	parts := make([]string, 0, len(input))
	for _, msg := range input {
		if msg == nil || msg.Content == "" {
			continue
		}
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, "\n\n")
}
