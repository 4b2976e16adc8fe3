// Package config centralises environment-backed configuration for the
// podcast orchestrator: worker pool sizes, cache TTLs, retention policy
// defaults, and the AWS-backed secret loading used at startup.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Config holds the environment-backed runtime configuration for the
// orchestrator: worker pool sizes, cache TTLs, retention policy, and the
// AWS resources (table, bucket, region) it talks to.
type Config struct {
	Port int

	// TaskWorkers bounds the number of pipeline jobs running concurrently.
	TaskWorkers int
	// TTSWorkers bounds concurrent per-turn TTS synthesis calls across all tasks.
	TTSWorkers int
	// LLMWorkers bounds concurrent LLM calls across all tasks.
	LLMWorkers int

	VoiceCacheTTL time.Duration

	CleanupDefaultPolicy string

	WebhookMaxRetries int

	// OutputRoot is a filesystem path or object-storage base URI
	// ("s3://bucket/prefix") under which per-task directories are created.
	OutputRoot string

	TableName    string
	S3Bucket     string
	CDNBaseURL   string
	AWSRegion    string
	SecretPrefix string
}

// DefaultConfig returns a Config populated from environment variables,
// falling back to sensible defaults for local/single-process use.
func DefaultConfig() Config {
	return Config{
		Port:                 envInt("PORT", 8000),
		TaskWorkers:          envInt("TASK_WORKERS", 4),
		TTSWorkers:           envInt("TTS_WORKERS", 16),
		LLMWorkers:           envInt("LLM_WORKERS", 18),
		VoiceCacheTTL:        time.Duration(envInt("VOICE_CACHE_TTL_SECONDS", 86400)) * time.Second,
		CleanupDefaultPolicy: envOr("CLEANUP_DEFAULT_POLICY", "manual"),
		WebhookMaxRetries:    envInt("WEBHOOK_MAX_RETRIES", 3),
		OutputRoot:           envOr("OUTPUT_ROOT", "./output"),
		TableName:            envOr("DYNAMODB_TABLE", "podcaster-tasks"),
		S3Bucket:             envOr("S3_BUCKET", ""),
		CDNBaseURL:           envOr("CDN_BASE_URL", ""),
		AWSRegion:            envOr("AWS_REGION", "us-east-1"),
		SecretPrefix:         envOr("SECRET_PREFIX", "/podcaster/"),
	}
}

// LoadSecrets fetches provider API keys from Secrets Manager and sets them
// as environment variables, skipping any already present. Failures are
// logged, not fatal: the server falls back to whatever is already in the
// environment.
func LoadSecrets(ctx context.Context, awsCfg aws.Config, prefix string, logger *slog.Logger) error {
	client := secretsmanager.NewFromConfig(awsCfg)

	secrets := map[string]string{
		"ANTHROPIC_API_KEY":   prefix + "ANTHROPIC_API_KEY",
		"GEMINI_API_KEY":      prefix + "GEMINI_API_KEY",
		"ELEVENLABS_API_KEY":  prefix + "ELEVENLABS_API_KEY",
		"WEBHOOK_SIGNING_KEY": prefix + "WEBHOOK_SIGNING_KEY",
	}

	for envVar, secretID := range secrets {
		if os.Getenv(envVar) != "" {
			continue
		}
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		if err != nil {
			logger.Info("secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			os.Setenv(envVar, *result.SecretString)
			logger.Info("loaded secret", "secret_id", secretID)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ParseDuration wraps time.ParseDuration errors with the offending env var name, used
// by callers that validate config at startup rather than at first use.
func ParseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return d, nil
}
