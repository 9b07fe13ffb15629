package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

var allKeys = []string{
	"SERVER_ADDR", "DEFAULT_MODEL_ID", "LLM_MODEL_CONFIGS",
	"OPTIMIZER_DEFAULT_BUDGET", "OPTIMIZER_RESERVE_TOKENS",
	"CIRCUIT_BREAK_THRESHOLD", "CIRCUIT_BREAK_DURATION_MS", "CONNECTOR_TIMEOUT_MS",
	"VECTOR_BACKEND", "DATABASE_URL", "QDRANT_URL", "QDRANT_COLLECTION", "REDIS_URL",
	"S3_BUCKET", "S3_ENDPOINT", "S3_REGION",
	"LOG_LEVEL", "LOG_PATH", "OTEL_SERVICE_NAME", "SERVICE_VERSION", "ENVIRONMENT",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "CLICKHOUSE_DSN", "KAFKA_BROKERS",
	"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY",
}

func TestLoadAppliesDefaultsWithNoEnv(t *testing.T) {
	clearEnv(t, allKeys...)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 100000, cfg.Optimizer.DefaultBudget)
	require.Equal(t, 800, cfg.Optimizer.ReserveTokens)
	require.Equal(t, 5, cfg.Dispatcher.CircuitBreakerThreshold)
	require.Equal(t, 30000, cfg.Dispatcher.CircuitBreakDurationMS)
	require.Equal(t, 30000, cfg.Dispatcher.ConnectorTimeoutMS)
	require.Equal(t, VectorBackendMemory, cfg.VectorBackend)
	require.Equal(t, "info", cfg.Observability.LogLevel)
	require.Equal(t, "contextnexus", cfg.Observability.ServiceName)
	require.Empty(t, cfg.Models)
}

func TestLoadParsesModelConfigs(t *testing.T) {
	clearEnv(t, allKeys...)
	os.Setenv("DEFAULT_MODEL_ID", "claude-sonnet")
	os.Setenv("LLM_MODEL_CONFIGS", `[
		{"id":"claude-sonnet","weight":2,"maxConcurrent":4,"failoverModels":["gpt-4o"]},
		{"id":"gpt-4o","weight":1,"maxConcurrent":2}
	]`)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Models, 2)
	require.Equal(t, "claude-sonnet", cfg.Models[0].ID)
	require.Equal(t, 2.0, cfg.Models[0].Weight)
	require.Equal(t, 4, cfg.Models[0].MaxConcurrent)
	require.Equal(t, []string{"gpt-4o"}, cfg.Models[0].FailoverModels)
	require.Equal(t, 2, cfg.Models[1].MaxConcurrent)
}

func TestLoadRejectsMalformedModelConfigs(t *testing.T) {
	clearEnv(t, allKeys...)
	os.Setenv("DEFAULT_MODEL_ID", "x")
	os.Setenv("LLM_MODEL_CONFIGS", `not json`)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresDefaultModelIDWhenModelsSet(t *testing.T) {
	clearEnv(t, allKeys...)
	os.Setenv("LLM_MODEL_CONFIGS", `[{"id":"a"}]`)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresDatabaseURLForPostgresBackend(t *testing.T) {
	clearEnv(t, allKeys...)
	os.Setenv("VECTOR_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresQdrantURLForQdrantBackend(t *testing.T) {
	clearEnv(t, allKeys...)
	os.Setenv("VECTOR_BACKEND", "qdrant")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownVectorBackend(t *testing.T) {
	clearEnv(t, allKeys...)
	os.Setenv("VECTOR_BACKEND", "sqlite")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaultsZeroOrNegativeWeightAndConcurrency(t *testing.T) {
	clearEnv(t, allKeys...)
	os.Setenv("DEFAULT_MODEL_ID", "m")
	os.Setenv("LLM_MODEL_CONFIGS", `[{"id":"m","weight":0,"maxConcurrent":-1}]`)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 1.0, cfg.Models[0].Weight)
	require.Equal(t, 1, cfg.Models[0].MaxConcurrent)
}
