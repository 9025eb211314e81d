package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "json")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 10*1024*1024) // 10MB per document
	v.SetDefault("app.maxUploadFiles", 50)
	v.SetDefault("app.uploadDir", "tmp")
	v.SetDefault("app.allowedExtensions", []string{"pdf", "docx", "txt"})

	// Embedding Configuration
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.host", "http://localhost:11434/v1")
	v.SetDefault("embedding.apiKey", "")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.maxRetries", 2)
	v.SetDefault("embedding.circuitBreaker.enabled", true)
	v.SetDefault("embedding.circuitBreaker.maxRequests", 3)
	v.SetDefault("embedding.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("embedding.circuitBreaker.timeout", 30*time.Second)
	v.SetDefault("embedding.circuitBreaker.minRequests", 5)
	v.SetDefault("embedding.circuitBreaker.failureThreshold", 0.6)

	// Vector Store Configuration
	v.SetDefault("vectorStore.backend", "qdrant")
	v.SetDefault("vectorStore.collection", "cv_vectors")
	v.SetDefault("vectorStore.dimensions", 384)
	v.SetDefault("vectorStore.distance", "cosine")
	v.SetDefault("vectorStore.startupAttempts", 10)
	v.SetDefault("vectorStore.startupDelay", 3*time.Second)
	v.SetDefault("vectorStore.qdrant.host", "localhost")
	v.SetDefault("vectorStore.qdrant.port", 6334) // gRPC port
	v.SetDefault("vectorStore.qdrant.apiKey", "")
	v.SetDefault("vectorStore.qdrant.useTLS", false)
	v.SetDefault("vectorStore.pgvector.dsn", "")
	v.SetDefault("vectorStore.badger.path", "data/vectors")
	v.SetDefault("vectorStore.badger.inMemory", false)
	v.SetDefault("vectorStore.circuitBreaker.enabled", true)
	v.SetDefault("vectorStore.circuitBreaker.maxRequests", 3)
	v.SetDefault("vectorStore.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("vectorStore.circuitBreaker.timeout", 15*time.Second)
	v.SetDefault("vectorStore.circuitBreaker.minRequests", 5)
	v.SetDefault("vectorStore.circuitBreaker.failureThreshold", 0.6)

	// Archive Configuration
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.endpoint", "localhost:9000")
	v.SetDefault("archive.accessKey", "")
	v.SetDefault("archive.secretKey", "")
	v.SetDefault("archive.bucket", "cv-documents")
	v.SetDefault("archive.prefix", "uploads")
	v.SetDefault("archive.useSSL", false)

	// Ingest Configuration
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.previewLength", 200)
	v.SetDefault("ingest.searchLimit", 5)
	v.SetDefault("ingest.listLimit", 100)
	v.SetDefault("ingest.watchDebounce", 500*time.Millisecond)

	// Server Configuration
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.readTimeout", 60*time.Second)
	v.SetDefault("server.writeTimeout", 120*time.Second) // batch uploads embed every file
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.tls.mode", "disabled")
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.caFile", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.tls.clientAuthPolicy", "require")
	v.SetDefault("server.apiKeys", []string{})
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 60)
	v.SetDefault("server.rateLimit.burstCapacity", 10)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.embeddingKey", "")
	v.SetDefault("vault.secrets.vectorStore", "")
	v.SetDefault("vault.secrets.archive", "")
	v.SetDefault("vault.secrets.tlsCerts", "")

	// Observability Configuration
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "cvmatcher")
	v.SetDefault("observability.serviceVersion", "")
	v.SetDefault("observability.serviceInstance", "")
	v.SetDefault("observability.tracing.enabled", true)
	v.SetDefault("observability.tracing.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.console.enabled", false)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", true)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.healthCheck.timeout", 5*time.Second)
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode; a failure here is a programming error.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}
