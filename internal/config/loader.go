package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"contextnexus/internal/core"
)

// Load reads configuration from environment variables (optionally .env).
// Matches the teacher's Overload-then-read-then-default shape: .env
// values take precedence over pre-existing OS environment variables so
// a developer's local file deterministically controls behavior.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Optimizer: OptimizerConfig{
			DefaultBudget: 100000,
			ReserveTokens: 800,
		},
		Dispatcher: DispatcherConfig{
			CircuitBreakerThreshold: 5,
			CircuitBreakDurationMS:  30000,
			ConnectorTimeoutMS:      30000,
		},
		VectorBackend: VectorBackendMemory,
	}

	cfg.Server.Addr = firstNonEmpty(strings.TrimSpace(os.Getenv("SERVER_ADDR")), ":8080")
	cfg.DefaultModelID = strings.TrimSpace(os.Getenv("DEFAULT_MODEL_ID"))

	if v := strings.TrimSpace(os.Getenv("LLM_MODEL_CONFIGS")); v != "" {
		models, err := parseModelConfigs(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse LLM_MODEL_CONFIGS: %w", err)
		}
		cfg.Models = models
	}

	if v := strings.TrimSpace(os.Getenv("OPTIMIZER_DEFAULT_BUDGET")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Optimizer.DefaultBudget = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPTIMIZER_RESERVE_TOKENS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Optimizer.ReserveTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CIRCUIT_BREAK_THRESHOLD")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Dispatcher.CircuitBreakerThreshold = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CIRCUIT_BREAK_DURATION_MS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Dispatcher.CircuitBreakDurationMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CONNECTOR_TIMEOUT_MS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Dispatcher.ConnectorTimeoutMS = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("VECTOR_BACKEND")); v != "" {
		cfg.VectorBackend = VectorBackend(strings.ToLower(v))
	}
	cfg.Database.URL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.Qdrant.URL = strings.TrimSpace(os.Getenv("QDRANT_URL"))
	cfg.Qdrant.Collection = firstNonEmpty(strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")), "contextnexus_embeddings")
	cfg.Cache.URL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.ObjectStore.Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET"))
	cfg.ObjectStore.Endpoint = strings.TrimSpace(os.Getenv("S3_ENDPOINT"))
	cfg.ObjectStore.Region = strings.TrimSpace(os.Getenv("S3_REGION"))
	cfg.ObjectStore.AccessKey = strings.TrimSpace(os.Getenv("S3_ACCESS_KEY"))
	cfg.ObjectStore.SecretKey = strings.TrimSpace(os.Getenv("S3_SECRET_KEY"))
	cfg.ObjectStore.Prefix = strings.TrimSpace(os.Getenv("S3_PREFIX"))
	cfg.ObjectStore.UsePathStyle = strings.EqualFold(strings.TrimSpace(os.Getenv("S3_USE_PATH_STYLE")), "true")
	cfg.ObjectStore.TLSInsecureSkipVerify = strings.EqualFold(strings.TrimSpace(os.Getenv("S3_TLS_INSECURE_SKIP_VERIFY")), "true")
	cfg.ObjectStore.SSE.Mode = strings.TrimSpace(os.Getenv("S3_SSE_MODE"))
	cfg.ObjectStore.SSE.KMSKeyID = strings.TrimSpace(os.Getenv("S3_SSE_KMS_KEY_ID"))

	cfg.Observability.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")
	cfg.Observability.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.Observability.ServiceName = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "contextnexus")
	cfg.Observability.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Observability.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	cfg.Observability.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.Observability.ClickHouse.DSN = strings.TrimSpace(os.Getenv("CLICKHOUSE_DSN"))
	cfg.Observability.ClickHouse.Database = strings.TrimSpace(os.Getenv("CLICKHOUSE_DATABASE"))
	cfg.Observability.ClickHouse.MetricsTable = firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_METRICS_TABLE")), "metrics")
	cfg.Observability.ClickHouse.TracesTable = firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_TRACES_TABLE")), "traces")
	cfg.Observability.ClickHouse.LogsTable = firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_LOGS_TABLE")), "logs")
	cfg.Observability.ClickHouse.TimestampColumn = firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_TIMESTAMP_COLUMN")), "TimeUnix")
	cfg.Observability.ClickHouse.ValueColumn = firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_VALUE_COLUMN")), "Value")
	cfg.Observability.ClickHouse.ModelAttributeKey = firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_MODEL_ATTRIBUTE_KEY")), "model_id")
	cfg.Observability.ClickHouse.PromptMetricName = firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_PROMPT_METRIC_NAME")), "contextnexus.dispatch.prompt_tokens")
	cfg.Observability.ClickHouse.CompletionMetricName = firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_COMPLETION_METRIC_NAME")), "contextnexus.dispatch.completion_tokens")
	cfg.Observability.ClickHouse.TimeoutSeconds = intFromEnv("CLICKHOUSE_TIMEOUT_SECONDS", 5)
	cfg.Observability.ClickHouse.LookbackHours = intFromEnv("CLICKHOUSE_LOOKBACK_HOURS", 24)

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Events.Brokers = parseCommaSeparatedList(v)
	}

	cfg.LLMProviders.AnthropicAPIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.LLMProviders.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.LLMProviders.GoogleAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.VectorBackend {
	case VectorBackendMemory, VectorBackendPostgres, VectorBackendQdrant:
	default:
		return fmt.Errorf("VECTOR_BACKEND must be one of memory|postgres|qdrant, got %q", c.VectorBackend)
	}
	if c.VectorBackend == VectorBackendPostgres && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when VECTOR_BACKEND=postgres")
	}
	if c.VectorBackend == VectorBackendQdrant && c.Qdrant.URL == "" {
		return fmt.Errorf("QDRANT_URL is required when VECTOR_BACKEND=qdrant")
	}
	if len(c.Models) > 0 && c.DefaultModelID == "" {
		return fmt.Errorf("DEFAULT_MODEL_ID is required when LLM_MODEL_CONFIGS is set")
	}
	return nil
}

// parseModelConfigs decodes the LLM_MODEL_CONFIGS JSON list into
// core.ModelConfig values.
func parseModelConfigs(raw string) ([]core.ModelConfig, error) {
	var entries []struct {
		ID             string   `json:"id"`
		Provider       string   `json:"provider"`
		Model          string   `json:"model"`
		Weight         float64  `json:"weight"`
		MaxConcurrent  int      `json:"maxConcurrent"`
		FailoverModels []string `json:"failoverModels"`
		CostPerToken   float64  `json:"costPerToken"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	out := make([]core.ModelConfig, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("model config entry missing id")
		}
		weight := e.Weight
		if weight <= 0 {
			weight = 1
		}
		maxConcurrent := e.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 1
		}
		out = append(out, core.ModelConfig{
			ID:             e.ID,
			Provider:       firstNonEmpty(strings.ToLower(strings.TrimSpace(e.Provider)), inferProvider(e.ID)),
			Model:          firstNonEmpty(strings.TrimSpace(e.Model), e.ID),
			Weight:         weight,
			MaxConcurrent:  maxConcurrent,
			FailoverModels: e.FailoverModels,
			CostPerToken:   e.CostPerToken,
		})
	}
	return out, nil
}

// inferProvider guesses a connector family from a model id when the
// LLM_MODEL_CONFIGS entry omits an explicit "provider" field, so a config
// written before Provider existed keeps working.
func inferProvider(id string) string {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "claude"):
		return "anthropic"
	case strings.Contains(lower, "gemini"):
		return "google"
	default:
		return "openai"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseCommaSeparatedList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := parseInt(v); err == nil {
			return n
		}
	}
	return def
}
