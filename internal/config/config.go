package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/medichat/backend/internal/analysis/summary"
	"github.com/zhouzirui/medichat/backend/internal/service/inference"
)

// Provider names accepted by INFERENCE_PROVIDER.
const (
	ProviderHuggingFace = "huggingface"
	ProviderArk         = "ark"
	ProviderOpenAI      = "openai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Inference InferenceConfig
	Guard     GuardConfig
	Summary   SummaryConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	inferenceCfg, err := loadInferenceConfig()
	if err != nil {
		return nil, err
	}

	summaryCfg, err := loadSummaryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Inference: inferenceCfg,
		Guard:     GuardConfig{KeywordsFile: strings.TrimSpace(os.Getenv("EMERGENCY_KEYWORDS_FILE"))},
		Summary:   summaryCfg,
		Log:       loadLogConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// InferenceConfig 描述大模型相关配置。
type InferenceConfig struct {
	Provider string

	HuggingFaceAPIKey  string
	HuggingFaceModel   string
	HuggingFaceBaseURL string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	Timeout    time.Duration
	MaxRetries int
}

// Enabled 表示所选 provider 是否提供了必需的凭证。
func (c InferenceConfig) Enabled() bool {
	switch c.Provider {
	case ProviderHuggingFace:
		return c.HuggingFaceAPIKey != ""
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	case ProviderOpenAI:
		return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
	default:
		return false
	}
}

// ClientOptions maps the retry settings onto the inference client.
func (c InferenceConfig) ClientOptions() inference.Options {
	return inference.Options{
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
	}
}

// NewChatModel 使用配置创建一个模型实例。
func (c InferenceConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("credentials for inference provider %q are missing", c.Provider)
	}

	switch c.Provider {
	case ProviderHuggingFace:
		hf, err := inference.NewHuggingFace(inference.HuggingFaceConfig{
			APIKey:  c.HuggingFaceAPIKey,
			Model:   c.HuggingFaceModel,
			BaseURL: c.HuggingFaceBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return hf, nil
	case ProviderOpenAI:
		oa, err := inference.NewOpenAI(inference.OpenAIConfig{
			APIKey:  c.OpenAIAPIKey,
			Model:   c.OpenAIModel,
			BaseURL: c.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return oa, nil
	default:
		cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:   c.ArkBaseURL,
			Region:    c.ArkRegion,
			APIKey:    c.ArkAPIKey,
			AccessKey: c.ArkAccessKey,
			SecretKey: c.ArkSecretKey,
			Model:     c.ArkModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		return cm, nil
	}
}

func loadInferenceConfig() (InferenceConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("INFERENCE_PROVIDER", ProviderHuggingFace))
	switch provider {
	case ProviderHuggingFace, ProviderArk, ProviderOpenAI:
	default:
		return InferenceConfig{}, fmt.Errorf("invalid INFERENCE_PROVIDER value %q", provider)
	}

	timeout := inference.DefaultTimeout
	if seconds, err := parseOptionalIntEnv("INFERENCE_TIMEOUT_SECONDS"); err != nil {
		return InferenceConfig{}, err
	} else if seconds != nil {
		if *seconds < 1 {
			return InferenceConfig{}, fmt.Errorf("INFERENCE_TIMEOUT_SECONDS must be positive, got %d", *seconds)
		}
		timeout = time.Duration(*seconds) * time.Second
	}

	maxRetries := inference.DefaultMaxRetries
	if override, err := parseOptionalIntEnv("INFERENCE_MAX_RETRIES"); err != nil {
		return InferenceConfig{}, err
	} else if override != nil {
		if *override <= 0 {
			// 0 表示关闭重试。
			maxRetries = -1
		} else {
			maxRetries = *override
		}
	}

	return InferenceConfig{
		Provider:           provider,
		HuggingFaceAPIKey:  strings.TrimSpace(os.Getenv("HUGGINGFACE_API_KEY")),
		HuggingFaceModel:   getEnvOrDefault("HF_MODEL", inference.DefaultHuggingFaceModel),
		HuggingFaceBaseURL: getEnvOrDefault("HF_BASE_URL", inference.DefaultHuggingFaceBaseURL),
		ArkAPIKey:          strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:       strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:       strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:           strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:         getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:          getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:        strings.TrimSpace(os.Getenv("OPENAI_MODEL")),
		OpenAIBaseURL:      strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Timeout:            timeout,
		MaxRetries:         maxRetries,
	}, nil
}

// GuardConfig 描述紧急关键词配置。为空时使用内置列表。
type GuardConfig struct {
	KeywordsFile string
}

// SummaryConfig 描述摘要解析配置。
type SummaryConfig struct {
	FallbackMode summary.Mode
}

func loadSummaryConfig() (SummaryConfig, error) {
	mode, err := summary.ParseMode(os.Getenv("SUMMARY_FALLBACK_MODE"))
	if err != nil {
		return SummaryConfig{}, fmt.Errorf("invalid SUMMARY_FALLBACK_MODE: %w", err)
	}
	return SummaryConfig{FallbackMode: mode}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Development bool
	Level       string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Development: strings.EqualFold(getEnvOrDefault("LOG_FORMAT", "json"), "console"),
		Level:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
