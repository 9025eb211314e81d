package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"cvmatcher/internal/utils"
)

// applyFallbacks fills values that depend on other settings or the environment
func (c *Config) applyFallbacks() {
	c.applyServerAPIKeyFallbacks()
	c.applyEmbeddingFallbacks()
	c.applyTLSDefaults()
	c.applyObservabilityDefaults()
	c.App.AllowedExtensions = normalizeExtensions(c.App.AllowedExtensions)
}

// applyServerAPIKeyFallbacks accepts a comma-separated key list from the environment
func (c *Config) applyServerAPIKeyFallbacks() {
	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv(envPrefix + "_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = splitAndTrim(apiKeysEnv)
		}
	}
}

// applyEmbeddingFallbacks honours the conventional provider key variables
func (c *Config) applyEmbeddingFallbacks() {
	if c.Embedding.APIKey != "" {
		return
	}
	switch c.Embedding.Provider {
	case ProviderGemini:
		c.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
	case ProviderOpenAI:
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func (c *Config) applyTLSDefaults() {
	if c.Server.TLS.Mode == "mutual" && c.Server.TLS.ClientAuthPolicy == "" {
		c.Server.TLS.ClientAuthPolicy = "require"
	}
	if c.Server.TLS.MinVersion == "" && c.Server.TLS.Mode != "disabled" {
		c.Server.TLS.MinVersion = "1.2"
	}
}

func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

// normalizeExtensions lowercases extensions and strips leading dots
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		if ext = utils.NormalizeExtension(ext); ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	log.Println("[CONFIG] === Configuration Sources Summary ===")

	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		envPrefix + "_EMBEDDING_PROVIDER",
		envPrefix + "_EMBEDDING_MODEL",
		envPrefix + "_EMBEDDING_APIKEY",
		envPrefix + "_VECTORSTORE_BACKEND",
		envPrefix + "_VECTORSTORE_QDRANT_HOST",
		envPrefix + "_VECTORSTORE_PGVECTOR_DSN",
		envPrefix + "_ARCHIVE_ENABLED",
		envPrefix + "_SERVER_PORT",
		envPrefix + "_SERVER_HOST",
		envPrefix + "_APP_LOGLEVEL",
		envPrefix + "_VAULT_ENABLED",
		"GEMINI_API_KEY",
		"OPENAI_API_KEY",
	}

	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if isSensitive(envVar) {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Println("[CONFIG] === Key Configuration Values ===")
	log.Printf("[CONFIG] Embedding: provider=%s model=%s dimensions=%d", c.Embedding.Provider, c.Embedding.Model, c.Embedding.Dimensions)
	if c.Embedding.APIKey != "" {
		log.Println("[CONFIG] Embedding API Key: ***CONFIGURED***")
	} else {
		log.Println("[CONFIG] Embedding API Key: ***NOT SET***")
	}
	log.Printf("[CONFIG] Vector Store: backend=%s collection=%s distance=%s", c.VectorStore.Backend, c.VectorStore.Collection, c.VectorStore.Distance)
	log.Printf("[CONFIG] Archive Enabled: %t", c.Archive.Enabled)
	log.Printf("[CONFIG] Server: %s:%s (TLS %s)", c.Server.Host, c.Server.Port, c.Server.TLS.Mode)
	log.Printf("[CONFIG] Log Level: %s", c.App.LogLevel)
	log.Printf("[CONFIG] Vault Enabled: %t", c.Vault.Enabled)
	log.Printf("[CONFIG] Observability Enabled: %t", c.Observability.Enabled)
	log.Println("[CONFIG] =====================================")
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "key") || strings.Contains(lower, "dsn") || strings.Contains(lower, "secret")
}
