package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cvmatcher/internal/errors"
)

// Config holds all application configuration
// Secret precedence order:
// 1. Vault (if configured) - Highest priority
// 2. Config File values
// 3. Environment Variables (CVMATCHER_EMBEDDING_APIKEY, etc., also read from .env)
// 4. Default values - Lowest priority
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	VectorStore   VectorStoreConfig   `mapstructure:"vectorStore"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Server        ServerConfig        `mapstructure:"server"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel          string   `mapstructure:"logLevel"`
	DefaultFormat     string   `mapstructure:"defaultFormat"`
	SupportedFormats  []string `mapstructure:"supportedFormats"`
	MaxFileSize       int64    `mapstructure:"maxFileSize"`
	MaxUploadFiles    int      `mapstructure:"maxUploadFiles"`
	UploadDir         string   `mapstructure:"uploadDir"` // Scratch space for spooled uploads
	AllowedExtensions []string `mapstructure:"allowedExtensions"`
}

// EmbeddingConfig selects and tunes the sentence-embedding provider
type EmbeddingConfig struct {
	Provider       string               `mapstructure:"provider"` // "gemini" or "openai" (any OpenAI-compatible server, e.g. Ollama)
	Model          string               `mapstructure:"model"`
	Host           string               `mapstructure:"host"` // Base URL override for the openai and gemini providers
	APIKey         string               `mapstructure:"apiKey"`
	Dimensions     int                  `mapstructure:"dimensions"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	MaxRetries     int                  `mapstructure:"maxRetries"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// VectorStoreConfig holds vector database configuration
type VectorStoreConfig struct {
	Backend         string               `mapstructure:"backend"` // "qdrant", "pgvector" or "badger"
	Collection      string               `mapstructure:"collection"`
	Dimensions      int                  `mapstructure:"dimensions"`
	Distance        string               `mapstructure:"distance"`
	StartupAttempts int                  `mapstructure:"startupAttempts"`
	StartupDelay    time.Duration        `mapstructure:"startupDelay"`
	Qdrant          QdrantConfig         `mapstructure:"qdrant"`
	PGVector        PGVectorConfig       `mapstructure:"pgvector"`
	Badger          BadgerConfig         `mapstructure:"badger"`
	CircuitBreaker  CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// QdrantConfig holds Qdrant gRPC connection settings
type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"apiKey"`
	UseTLS bool   `mapstructure:"useTLS"`
}

// PGVectorConfig holds Postgres connection settings
type PGVectorConfig struct {
	DSN string `mapstructure:"dsn"`
}

// BadgerConfig holds embedded store settings
type BadgerConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"inMemory"`
}

// ArchiveConfig holds the S3-compatible raw document archive settings
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"useSSL"`
}

// IngestConfig tunes upload processing
type IngestConfig struct {
	Workers       int           `mapstructure:"workers"`
	PreviewLength int           `mapstructure:"previewLength"`
	SearchLimit   int           `mapstructure:"searchLimit"`
	ListLimit     int           `mapstructure:"listLimit"`
	WatchDebounce time.Duration `mapstructure:"watchDebounce"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`

	TLS TLSConfig `mapstructure:"tls"`

	// API Authentication
	APIKeys []string `mapstructure:"apiKeys"`

	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

// TLSConfig holds TLS/mTLS configuration
type TLSConfig struct {
	Mode     string `mapstructure:"mode"` // "disabled", "server", "mutual"
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`

	// PEM content, filled from Vault
	CertContent string `mapstructure:"certContent"`
	KeyContent  string `mapstructure:"keyContent"`
	CAContent   string `mapstructure:"caContent"`

	MinVersion       string `mapstructure:"minVersion"`       // "1.2", "1.3"
	ClientAuthPolicy string `mapstructure:"clientAuthPolicy"` // "require", "request", "verify"
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requestsPerMin"`
	BurstCapacity  int  `mapstructure:"burstCapacity"`
	ByIP           bool `mapstructure:"byIP"`
	ByAPIKey       bool `mapstructure:"byAPIKey"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	ServiceName     string            `mapstructure:"serviceName"`
	ServiceVersion  string            `mapstructure:"serviceVersion"`
	ServiceInstance string            `mapstructure:"serviceInstance"`
	Tracing         TracingConfig     `mapstructure:"tracing"`
	Metrics         MetricsConfig     `mapstructure:"metrics"`
	Console         ConsoleConfig     `mapstructure:"console"`
	Prometheus      PrometheusConfig  `mapstructure:"prometheus"`
	OTLP            OTLPConfig        `mapstructure:"otlp"`
	HealthCheck     HealthCheckConfig `mapstructure:"healthCheck"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	SampleRate float64 `mapstructure:"sampleRate"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CollectionInterval time.Duration `mapstructure:"collectionInterval"`
}

// ConsoleConfig holds console output configuration
type ConsoleConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	PrettyPrint bool `mapstructure:"prettyPrint"`
}

// PrometheusConfig holds Prometheus configuration
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Port     string `mapstructure:"port"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// HealthCheckConfig holds health check configuration
type HealthCheckConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadConfig loads configuration from .env, environment variables and a config file
func LoadConfig() (*Config, error) {
	log.Println("[CONFIG] Starting configuration loading process")

	if err := godotenv.Load(); err == nil {
		log.Println("[CONFIG] Loaded environment overrides from .env")
	}

	v := viper.New()
	setDefaults(v)
	log.Println("[CONFIG] Applied default configuration values")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	log.Printf("[CONFIG] Configured environment variable handling with prefix '%s'", envPrefix)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/cvmatcher/")
	v.AddConfigPath("$HOME/.cvmatcher")
	v.AddConfigPath(".")

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to read config file", err)
		}
		log.Println("[CONFIG] No config file found, using defaults and environment variables")
	} else {
		configFileUsed = v.ConfigFileUsed()
		log.Printf("[CONFIG] Successfully loaded config file: %s", configFileUsed)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to unmarshal config", err)
	}

	config.applyFallbacks()
	config.logConfigurationSources(configFileUsed)

	// Secrets may still be missing until Vault is read; the caller validates then.
	if !config.Vault.Enabled {
		if err := config.Validate(); err != nil {
			return nil, err
		}
	}

	log.Println("[CONFIG] Configuration loading completed successfully")
	return &config, nil
}

const envPrefix = "CVMATCHER"

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...), nil)
	}

	switch c.Embedding.Provider {
	case ProviderGemini:
		if c.Embedding.APIKey == "" {
			return invalid("embedding API key is required for the gemini provider (set CVMATCHER_EMBEDDING_APIKEY)")
		}
	case ProviderOpenAI:
		if c.Embedding.Host == "" {
			return invalid("embedding host is required for the openai provider")
		}
	case ProviderMock:
	default:
		return invalid("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	if c.Embedding.Timeout <= 0 {
		return invalid("embedding timeout must be positive")
	}

	if c.VectorStore.Dimensions <= 0 {
		return invalid("vector dimensions must be positive")
	}
	if c.Embedding.Dimensions != 0 && c.Embedding.Dimensions != c.VectorStore.Dimensions {
		return invalid("embedding dimensions (%d) do not match vector store dimensions (%d)",
			c.Embedding.Dimensions, c.VectorStore.Dimensions)
	}
	if c.VectorStore.Collection == "" {
		return invalid("vector store collection name is required")
	}
	if c.VectorStore.StartupAttempts < 1 {
		return invalid("vector store startupAttempts must be at least 1")
	}
	switch c.VectorStore.Backend {
	case BackendQdrant:
		if c.VectorStore.Qdrant.Host == "" || c.VectorStore.Qdrant.Port <= 0 {
			return invalid("qdrant host and port are required")
		}
	case BackendPGVector:
		if c.VectorStore.PGVector.DSN == "" {
			return invalid("pgvector dsn is required")
		}
	case BackendBadger:
		if c.VectorStore.Badger.Path == "" && !c.VectorStore.Badger.InMemory {
			return invalid("badger path is required unless inMemory is set")
		}
	default:
		return invalid("unsupported vector store backend: %s", c.VectorStore.Backend)
	}

	if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.Bucket == "") {
		return invalid("archive endpoint and bucket are required when the archive is enabled")
	}

	if c.Ingest.Workers < 1 {
		return invalid("ingest workers must be at least 1")
	}
	if len(c.App.AllowedExtensions) == 0 {
		return invalid("at least one allowed extension is required")
	}

	if c.Server.Port == "" {
		return invalid("server port is required")
	}

	validFormats := make(map[string]bool)
	for _, format := range c.App.SupportedFormats {
		validFormats[format] = true
	}
	if !validFormats[c.App.DefaultFormat] {
		return invalid("invalid default format: %s", c.App.DefaultFormat)
	}

	if err := c.ValidateTLSConfig(); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "TLS configuration error", err)
	}

	return nil
}

// Embedding providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Vector store backends
const (
	BackendQdrant   = "qdrant"
	BackendPGVector = "pgvector"
	BackendBadger   = "badger"
)
