// Package config loads ContextNexus's runtime configuration from the
// process environment (optionally layered with a .env file), following
// the teacher's env-var-first pattern: read, validate, default, never a
// structured config file for the core service surface.
package config

import "contextnexus/internal/core"

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string
}

// OptimizerConfig carries the §4.4 default option values, overridable per
// request.
type OptimizerConfig struct {
	DefaultBudget int
	ReserveTokens int
}

// DispatcherConfig carries the §4.8/§5 circuit breaker and timeout knobs.
type DispatcherConfig struct {
	CircuitBreakerThreshold int
	CircuitBreakDurationMS  int
	ConnectorTimeoutMS      int
}

// VectorBackend selects which repository.VectorRepository implementation
// the service wires at startup.
type VectorBackend string

const (
	VectorBackendMemory   VectorBackend = "memory"
	VectorBackendPostgres VectorBackend = "postgres"
	VectorBackendQdrant   VectorBackend = "qdrant"
)

// DatabaseConfig holds the Postgres DSN used for content/context storage
// and, when VectorBackend is "postgres", embeddings too.
type DatabaseConfig struct {
	URL string
}

// QdrantConfig holds connection details for the alternate vector backend.
type QdrantConfig struct {
	URL        string
	Collection string
}

// CacheConfig holds the Redis DSN used for query-embedding and
// ModelStats read-through caching.
type CacheConfig struct {
	URL string
}

// S3SSEConfig controls server-side encryption on object store writes.
type S3SSEConfig struct {
	Mode     string
	KMSKeyID string
}

// S3Config holds the S3-compatible bucket configuration used to
// materialize content bodies stored externally.
type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	AccessKey             string
	SecretKey             string
	Prefix                string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// ObjectStoreConfig is an alias kept for call sites that only need the
// bucket shape; NewS3Store takes S3Config directly.
type ObjectStoreConfig = S3Config

// ClickHouseConfig holds the settings for the ClickHouse sink used for
// durable metrics/traces/logs independent of in-process OTel export.
type ClickHouseConfig struct {
	DSN                 string
	Database            string
	TimeoutSeconds       int
	LookbackHours        int
	MetricsTable        string
	TracesTable         string
	LogsTable           string
	TimestampColumn     string
	ValueColumn         string
	ModelAttributeKey   string
	PromptMetricName     string
	CompletionMetricName string
}

// ObsConfig holds OTel exporter settings plus the ClickHouse secondary sink.
type ObsConfig struct {
	LogLevel       string
	LogPath        string
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
	ClickHouse     ClickHouseConfig
}

// ObservabilityConfig is an alias kept for readability at call sites that
// build the whole observability stack at once.
type ObservabilityConfig = ObsConfig

// EventsConfig holds the Kafka broker list for context.optimized and
// dispatch.completed events.
type EventsConfig struct {
	Brokers []string
}

// LLMProviderConfig holds the credentials the registry connectors need.
type LLMProviderConfig struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
}

// Config is the fully resolved runtime configuration.
type Config struct {
	Server         ServerConfig
	Models         []core.ModelConfig
	DefaultModelID string
	Optimizer      OptimizerConfig
	Dispatcher     DispatcherConfig
	VectorBackend  VectorBackend
	Database       DatabaseConfig
	Qdrant         QdrantConfig
	Cache          CacheConfig
	ObjectStore    ObjectStoreConfig
	Observability  ObservabilityConfig
	Events         EventsConfig
	LLMProviders   LLMProviderConfig
}
