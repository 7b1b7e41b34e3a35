package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"chat-relay/handler"
	"chat-relay/internal/integrations/gemini"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/repository"
	"chat-relay/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	cfg := loadConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel})))

	ctx := context.Background()

	// ---- AWS clients (only when a source lives in AWS) ----
	var (
		params   *paramstore.Client
		profiles *repository.Client
	)
	if cfg.needsAWS() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		params, err = paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		if cfg.businessTable != "" {
			profiles, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.businessTable)
			if err != nil {
				slog.Error("failed to create profile client", "err", err)
				os.Exit(1)
			}
		}
	}

	// ---- Business profile (read once) ----
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	business, source, err := loadBusinessConfig(loadCtx, cfg, nilIfEmpty(profiles), nilIfEmptyParams(params))
	cancel()
	if err != nil {
		slog.Error("failed to load business profile", "err", err)
		os.Exit(1)
	}

	// ---- Upstream client ----
	opts := []gemini.Option{
		gemini.WithBaseURL(cfg.geminiBaseURL),
		gemini.WithModel(cfg.geminiModel),
		gemini.WithTimeout(cfg.upstreamTimeout),
		gemini.WithAPIKey(cfg.geminiAPIKey),
	}
	if cfg.paramPrefix != "" && params != nil {
		opts = append(opts, gemini.WithParamStore(params, cfg.paramPrefix))
	}
	geminiClient, err := gemini.NewClient(opts...)
	if err != nil {
		slog.Error("failed to create Gemini client", "err", err)
		os.Exit(1)
	}
	if !geminiClient.HasCredentialSource() {
		slog.Warn("no Gemini API key configured; upstream calls will fail authentication")
	}

	// ---- Handler ----
	chatService, err := usecase.NewChatService(geminiClient, business, cfg.upstreamTimeout, slog.Default())
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(chatService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	slog.Info("chat relay starting",
		"company", business.CompanyName,
		"business_type", business.BusinessType,
		"profile_source", source,
		"model", cfg.geminiModel,
	)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		lambda.Start(h.Handle)
		return
	}
	runLocal(cfg, h)
}

func runLocal(cfg config, h *handler.Handler) {
	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           handler.NewRouter(h, cfg.staticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.upstreamTimeout+5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("shutdown", "err", err)
		}
	}()

	slog.Info("local server listening", "addr", cfg.listenAddr, "static_dir", cfg.staticDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
	slog.Info("local server stopped")
}

// nilIfEmpty keeps a nil *repository.Client from becoming a non-nil interface.
func nilIfEmpty(c *repository.Client) profileGetter {
	if c == nil {
		return nil
	}
	return c
}

func nilIfEmptyParams(c *paramstore.Client) paramstore.Getter {
	if c == nil {
		return nil
	}
	return c
}
