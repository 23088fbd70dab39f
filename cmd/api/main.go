package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zhouzirui/medichat/backend/internal/analysis/emergency"
	"github.com/zhouzirui/medichat/backend/internal/analysis/summary"
	"github.com/zhouzirui/medichat/backend/internal/config"
	"github.com/zhouzirui/medichat/backend/internal/handler"
	"github.com/zhouzirui/medichat/backend/internal/service/chat"
	"github.com/zhouzirui/medichat/backend/internal/service/inference"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, using process environment", zap.Error(envErr))
	}

	guard := emergency.Default()
	if cfg.Guard.KeywordsFile != "" {
		guard, err = emergency.LoadKeywordFile(cfg.Guard.KeywordsFile)
		if err != nil {
			logger.Fatal("failed to load emergency keywords", zap.String("path", cfg.Guard.KeywordsFile), zap.Error(err))
		}
	}
	logger.Info("emergency guard ready", zap.Int("keywords", len(guard.Keywords())))

	var generator chat.Generator
	if cfg.Inference.Enabled() {
		client, err := newInferenceClient(ctx, cfg.Inference, logger)
		if err != nil {
			logger.Warn("failed to initialize inference client, continuing without model", zap.Error(err))
		} else {
			generator = client
			logger.Info("inference client initialized", zap.String("provider", cfg.Inference.Provider))
		}
	} else {
		logger.Warn("inference credentials not configured, chat and summary will fail",
			zap.String("provider", cfg.Inference.Provider))
	}

	chatService := chat.NewService(generator, chat.Options{
		Guard:  guard,
		Parser: summary.NewParser(cfg.Summary.FallbackMode),
		Logger: logger,
	})

	router := handler.NewRouter(chatService, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func newInferenceClient(ctx context.Context, cfg config.InferenceConfig, logger *zap.Logger) (*inference.Client, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}

	opts := cfg.ClientOptions()
	opts.Logger = logger
	return inference.NewClient(ctx, chatModel, opts)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("medichat backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
