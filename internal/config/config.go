// Package config loads the static configuration for the thoth ingestion
// core: the source registry, storage backends, and the ingestion control
// plane's tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rs/zerolog/log"
)

// S3SSEConfig configures server-side encryption for an S3Config.
type S3SSEConfig struct {
	Mode     string `yaml:"mode,omitempty"` // "", "sse-s3", "sse-kms"
	KMSKeyID string `yaml:"kms_key_id,omitempty"`
}

// S3Config configures an object-storage backend reachable via the AWS SDK
// (AWS S3 or an S3-compatible service such as MinIO or GCS's S3 shim).
type S3Config struct {
	Bucket                string      `yaml:"bucket"`
	Region                string      `yaml:"region"`
	Prefix                string      `yaml:"prefix,omitempty"`
	Endpoint              string      `yaml:"endpoint,omitempty"`
	UsePathStyle          bool        `yaml:"use_path_style,omitempty"`
	AccessKey             string      `yaml:"access_key,omitempty"`
	SecretKey             string      `yaml:"secret_key,omitempty"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify,omitempty"`
	SSE                   S3SSEConfig `yaml:"sse,omitempty"`
}

// SourceConfig identifies one ingestible corpus.
type SourceConfig struct {
	Name              string   `yaml:"name"`
	CollectionName    string   `yaml:"collection_name"`
	ObjectPrefix      string   `yaml:"object_prefix"`
	SupportedFormats  []string `yaml:"supported_formats"`
	Description       string   `yaml:"description,omitempty"`
	RepoURL           string   `yaml:"repo_url,omitempty"`
	LocalClonePath    string   `yaml:"local_clone_path,omitempty"`
}

// StorageConfig selects and configures the VectorStore's base URI.
type StorageConfig struct {
	// BaseURI is either a local directory or an object-storage URI of the
	// form "scheme://bucket/path". When BaseURI is empty and the
	// OBJECT_STORE_BUCKET environment variable is set, it becomes
	// "s3://{bucket}"; S3.Prefix is not folded into it (objectstore.OpenURI
	// applies S3.Prefix as a key prefix when the store is opened).
	BaseURI string   `yaml:"base_uri"`
	S3      S3Config `yaml:"s3,omitempty"`
}

// TaskQueueConfig configures the batch task queue's transport and
// callback identity.
type TaskQueueConfig struct {
	Brokers             []string `yaml:"brokers,omitempty"`
	CommandsTopic       string   `yaml:"commands_topic"`
	GroupID             string   `yaml:"group_id"`
	WorkerCount         int      `yaml:"worker_count"`
	BatchWorkerURL      string   `yaml:"batch_worker_url,omitempty"`
	ServiceAccountEmail string   `yaml:"service_account_email,omitempty"`
	DedupeRedisAddr     string   `yaml:"dedupe_redis_addr,omitempty"`
	DedupeTTLSeconds    int      `yaml:"dedupe_ttl_seconds,omitempty"`
}

// IsConfigured reports whether enough settings are present to enqueue
// batches at all; when false the orchestrator uses its direct path.
func (t TaskQueueConfig) IsConfigured() bool {
	if t.BatchWorkerURL == "" {
		return false
	}
	// Brokers without a topic cannot publish; no brokers at all selects
	// the HTTP-callback path to BatchWorkerURL.
	return len(t.Brokers) == 0 || t.CommandsTopic != ""
}

// JobStoreConfig selects the job store's backing store.
type JobStoreConfig struct {
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
	// RetentionDays > 0 enables periodic deletion of terminal jobs older
	// than the cutoff. Zero disables cleanup.
	RetentionDays int `yaml:"retention_days,omitempty"`
}

// QdrantConfig optionally enables Qdrant-assisted similarity search.
type QdrantConfig struct {
	URL string `yaml:"url,omitempty"`
}

// EmbeddingConfig selects the embedder implementation. When Endpoint is
// empty, the process-wide embedder falls back to the deterministic local
// implementation (useful for tests and offline operation).
type EmbeddingConfig struct {
	Endpoint     string            `yaml:"endpoint,omitempty"`
	Model        string            `yaml:"model,omitempty"`
	Dimension    int               `yaml:"dimension,omitempty"`
	APIKey       string            `yaml:"api_key,omitempty"`
	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty"`
}

// ClickHouseConfig optionally enables the ingestion-metrics sink.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Database string `yaml:"database,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
	ServiceName string `yaml:"service_name"`
}

// Config is the top-level configuration document.
type Config struct {
	Host       string                  `yaml:"host"`
	Port       int                     `yaml:"port"`
	LogPath    string                  `yaml:"log_path,omitempty"`
	LogLevel   string                  `yaml:"log_level,omitempty"`
	LogFormat  string                  `yaml:"log_format,omitempty"`
	BatchSize  int                     `yaml:"batch_size"`
	Sources    map[string]SourceConfig `yaml:"sources"`
	Storage    StorageConfig           `yaml:"storage"`
	TaskQueue  TaskQueueConfig         `yaml:"task_queue"`
	JobStore   JobStoreConfig          `yaml:"job_store"`
	Embedding  EmbeddingConfig         `yaml:"embedding,omitempty"`
	Qdrant     QdrantConfig            `yaml:"qdrant,omitempty"`
	ClickHouse ClickHouseConfig        `yaml:"clickhouse,omitempty"`
	OTel       TelemetryConfig         `yaml:"otel"`
}

const (
	defaultBatchSize   = 100
	defaultWorkerCount = 4
	defaultDedupeTTL   = 300
)

// Load reads the configuration from a YAML file, applies defaults, and
// layers environment overrides on top (THOTH_SOURCE_{NAME}_OBJECT_PREFIX,
// THOTH_SOURCE_{NAME}_COLLECTION, OBJECT_STORE_BUCKET, BATCH_SIZE, and
// friends).
func Load(filename string) (*Config, error) {
	var cfg Config

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	log.Info().Int("sources", len(cfg.Sources)).Str("storage_base_uri", cfg.Storage.BaseURI).Msg("configuration loaded")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
		log.Info().Int("batch_size", defaultBatchSize).Msg("using default batch size")
	}
	if cfg.TaskQueue.WorkerCount <= 0 {
		cfg.TaskQueue.WorkerCount = defaultWorkerCount
	}
	if cfg.TaskQueue.DedupeTTLSeconds <= 0 {
		cfg.TaskQueue.DedupeTTLSeconds = defaultDedupeTTL
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "thoth-orchestrator"
	}
	if cfg.Embedding.Dimension <= 0 {
		cfg.Embedding.Dimension = 256
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port <= 0 {
		cfg.Port = 8085
	}
	if cfg.Sources == nil {
		cfg.Sources = map[string]SourceConfig{}
	}
	for name, src := range cfg.Sources {
		if src.Name == "" {
			src.Name = name
		}
		if len(src.SupportedFormats) == 0 {
			src.SupportedFormats = []string{".md", ".markdown", ".mdown", ".txt", ".text", ".pdf", ".docx"}
		}
		cfg.Sources[name] = src
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		cfg.LogFormat = "json"
	}
}

// applyEnvOverrides layers the recognized environment variables over the
// YAML-loaded values.
func applyEnvOverrides(cfg *Config) {
	if bucket := os.Getenv("OBJECT_STORE_BUCKET"); bucket != "" {
		cfg.Storage.S3.Bucket = bucket
		if cfg.Storage.BaseURI == "" {
			cfg.Storage.BaseURI = "s3://" + bucket
		}
	}
	if proj := os.Getenv("OBJECT_STORE_PROJECT"); proj != "" {
		_ = proj // carried for parity; the S3-based backend has no project concept
	}
	if loc := os.Getenv("TASK_QUEUE_LOCATION"); loc != "" {
		_ = loc // Kafka has no region concept; retained for env-surface parity
	}
	if name := os.Getenv("TASK_QUEUE_NAME"); name != "" {
		cfg.TaskQueue.CommandsTopic = name
	}
	if url := os.Getenv("BATCH_WORKER_URL"); url != "" {
		cfg.TaskQueue.BatchWorkerURL = url
	}
	if email := os.Getenv("SERVICE_ACCOUNT_EMAIL"); email != "" {
		cfg.TaskQueue.ServiceAccountEmail = email
	}
	if bs := os.Getenv("BATCH_SIZE"); bs != "" {
		if n, err := strconv.Atoi(bs); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	for name, src := range cfg.Sources {
		envName := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if v := os.Getenv("THOTH_SOURCE_" + envName + "_OBJECT_PREFIX"); v != "" {
			src.ObjectPrefix = v
		}
		if v := os.Getenv("THOTH_SOURCE_" + envName + "_COLLECTION"); v != "" {
			src.CollectionName = v
		}
		cfg.Sources[name] = src
	}
}

// Registry provides lookup and validation over the configured sources.
// Construct once via NewRegistry and share the pointer, rather than
// re-parsing config on every request.
type Registry struct {
	sources map[string]SourceConfig
}

// NewRegistry builds a Registry from the loaded sources, requiring
// collection_name and object_prefix to be pairwise unique across them.
func NewRegistry(sources map[string]SourceConfig) (*Registry, error) {
	seenCollections := make(map[string]string, len(sources))
	seenPrefixes := make(map[string]string, len(sources))
	for name, src := range sources {
		if other, ok := seenCollections[src.CollectionName]; ok {
			return nil, fmt.Errorf("duplicate collection_name %q used by sources %q and %q", src.CollectionName, other, name)
		}
		seenCollections[src.CollectionName] = name
		if other, ok := seenPrefixes[src.ObjectPrefix]; ok {
			return nil, fmt.Errorf("duplicate object_prefix %q used by sources %q and %q", src.ObjectPrefix, other, name)
		}
		seenPrefixes[src.ObjectPrefix] = name
	}
	return &Registry{sources: sources}, nil
}

// Get returns the named source, or false if unknown.
func (r *Registry) Get(name string) (SourceConfig, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// ByCollection finds the source whose collection_name matches, used by
// the batch worker when only a collection_name is known.
func (r *Registry) ByCollection(collectionName string) (SourceConfig, bool) {
	for _, s := range r.sources {
		if s.CollectionName == collectionName {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// ListNames returns the known source names, for BadSource error messages.
func (r *Registry) ListNames() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	return names
}
