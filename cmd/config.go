package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/integrations/paramstore"
)

type config struct {
	geminiAPIKey    string
	geminiModel     string
	geminiBaseURL   string
	paramPrefix     string
	upstreamTimeout time.Duration
	businessTable   string
	businessID      string
	businessParam   string
	listenAddr      string
	staticDir       string
	logLevel        slog.Level
}

func loadConfig() config {
	return config{
		geminiAPIKey:    envStr("GEMINI_API_KEY", ""),
		geminiModel:     envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		geminiBaseURL:   envStr("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		paramPrefix:     strings.TrimRight(envStr("PARAM_PREFIX", ""), "/"),
		upstreamTimeout: time.Duration(envInt("UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
		businessTable:   envStr("BUSINESS_TABLE", ""),
		businessID:      envStr("BUSINESS_ID", ""),
		businessParam:   envStr("BUSINESS_CONFIG_PARAM", ""),
		listenAddr:      envStr("LISTEN_ADDR", ":5000"),
		staticDir:       envStr("STATIC_DIR", "."),
		logLevel:        parseLevel(envStr("LOG_LEVEL", "info")),
	}
}

// needsAWS reports whether any configured source lives in AWS.
func (c config) needsAWS() bool {
	return c.paramPrefix != "" || c.businessTable != "" || c.businessParam != ""
}

type profileGetter interface {
	GetBusinessConfig(ctx context.Context, businessID string) (domain.BusinessConfig, error)
}

// loadBusinessConfig picks the profile source: DynamoDB table, then SSM
// parameter, then the built-in default. It returns the source name for the
// startup log.
func loadBusinessConfig(ctx context.Context, cfg config, profiles profileGetter, params paramstore.Getter) (domain.BusinessConfig, string, error) {
	var (
		business domain.BusinessConfig
		source   string
	)
	switch {
	case cfg.businessTable != "":
		if cfg.businessID == "" {
			return domain.BusinessConfig{}, "", errors.New("BUSINESS_ID is required with BUSINESS_TABLE")
		}
		if profiles == nil {
			return domain.BusinessConfig{}, "", errors.New("no profile reader for BUSINESS_TABLE")
		}
		b, err := profiles.GetBusinessConfig(ctx, cfg.businessID)
		if err != nil {
			return domain.BusinessConfig{}, "", err
		}
		business, source = b, "dynamodb"
	case cfg.businessParam != "":
		if params == nil {
			return domain.BusinessConfig{}, "", errors.New("no parameter store for BUSINESS_CONFIG_PARAM")
		}
		if err := paramstore.GetJSON(ctx, params, cfg.businessParam, &business); err != nil {
			return domain.BusinessConfig{}, "", err
		}
		source = "ssm"
	default:
		business, source = domain.DefaultBusinessConfig(), "builtin"
	}

	if err := business.Validate(); err != nil {
		return domain.BusinessConfig{}, "", fmt.Errorf("%s profile: %w", source, err)
	}
	return business, source, nil
}

func envStr(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
