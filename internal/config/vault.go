package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/vault/api"

	"cvmatcher/internal/errors"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets defines KVv2 paths for each secret group. Empty paths are skipped.
type VaultSecrets struct {
	APIKeys      string `mapstructure:"apiKeys"`      // key "keys", comma-separated
	EmbeddingKey string `mapstructure:"embeddingKey"` // key "api_key"
	VectorStore  string `mapstructure:"vectorStore"`  // keys "api_key" (qdrant), "dsn" (pgvector)
	Archive      string `mapstructure:"archive"`      // keys "access_key", "secret_key"
	TLSCerts     string `mapstructure:"tlsCerts"`     // keys "cert", "key", "ca"
}

// VaultClient wraps the Vault API client
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// VaultSecret represents a secret read from Vault's KVv2 engine.
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// NewVaultClient creates a connected Vault client, or nil when Vault is disabled
func NewVaultClient(config VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	if !config.Enabled {
		return nil, nil
	}

	logger.Debug("Initializing Vault client",
		"address", config.Address,
		"namespace", config.Namespace,
		"has_token", config.Token != "")

	vaultConfig := api.DefaultConfig()
	if config.Address != "" {
		vaultConfig.Address = config.Address
	}
	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	token, err := resolveVaultToken(config)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}
	logger.Info("Connected to Vault",
		"address", vaultConfig.Address,
		"version", health.Version,
		"sealed", health.Sealed)

	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken resolves the Vault token from config or file
func resolveVaultToken(config VaultConfig) (string, error) {
	token := config.Token
	if token == "" && config.TokenFile != "" {
		tokenBytes, err := os.ReadFile(config.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(tokenBytes))
	}
	if token == "" {
		return "", fmt.Errorf("vault token is required when vault is enabled")
	}
	return token, nil
}

// GetSecretV2 retrieves a secret from a Vault KVv2 store.
func (vc *VaultClient) GetSecretV2(path string) (*VaultSecret, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client not initialized")
	}

	secret, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}
	return parseKVv2(secret.Data, path)
}

// parseKVv2 unpacks the data and metadata envelope of a KVv2 read
func parseKVv2(raw map[string]any, path string) (*VaultSecret, error) {
	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	metadata, ok := raw["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}
	versionRaw, ok := metadata["version"]
	if !ok {
		return nil, fmt.Errorf("secret metadata at %s is missing 'version' field", path)
	}
	version, err := parseVersionValue(versionRaw, path)
	if err != nil {
		return nil, err
	}
	return &VaultSecret{Data: data, Version: version}, nil
}

// parseVersionValue parses version value from various types
func parseVersionValue(versionRaw any, path string) (int64, error) {
	switch v := versionRaw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse secret version at %s: %w", path, err)
		}
		return version, nil
	default:
		return 0, fmt.Errorf("unexpected type for version at %s: %T", path, versionRaw)
	}
}

// secretBinding copies one string field of a Vault secret into the config
type secretBinding struct {
	key    string
	target *string
}

// ApplyVaultSecrets loads secrets from Vault and applies them to the config
func ApplyVaultSecrets(config *Config, logger *errors.Logger) error {
	if !config.Vault.Enabled {
		logger.Debug("Vault integration disabled, skipping secret loading")
		return nil
	}

	client, err := NewVaultClient(config.Vault, logger)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to initialize vault client", err)
	}

	secrets := config.Vault.Secrets
	if secrets.APIKeys != "" {
		var joined string
		if err := client.applySecret(secrets.APIKeys, []secretBinding{{"keys", &joined}}); err != nil {
			return err
		}
		if keys := splitAndTrim(joined); len(keys) > 0 {
			config.Server.APIKeys = keys
			logger.Info("API keys loaded from Vault", "count", len(keys))
		}
	}

	groups := []struct {
		path     string
		bindings []secretBinding
	}{
		{secrets.EmbeddingKey, []secretBinding{{"api_key", &config.Embedding.APIKey}}},
		{secrets.VectorStore, []secretBinding{
			{"api_key", &config.VectorStore.Qdrant.APIKey},
			{"dsn", &config.VectorStore.PGVector.DSN},
		}},
		{secrets.Archive, []secretBinding{
			{"access_key", &config.Archive.AccessKey},
			{"secret_key", &config.Archive.SecretKey},
		}},
		{secrets.TLSCerts, []secretBinding{
			{"cert", &config.Server.TLS.CertContent},
			{"key", &config.Server.TLS.KeyContent},
			{"ca", &config.Server.TLS.CAContent},
		}},
	}
	for _, group := range groups {
		if group.path == "" {
			continue
		}
		if err := client.applySecret(group.path, group.bindings); err != nil {
			return err
		}
	}

	logger.Info("Successfully completed applying secrets from Vault")
	return nil
}

// applySecret reads path once and copies every present, non-empty key
func (vc *VaultClient) applySecret(path string, bindings []secretBinding) error {
	secret, err := vc.GetSecretV2(path)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to load secret from vault", err).
			WithContext("path", path)
	}
	return applyBindings(secret, bindings, vc.logger, path)
}

func applyBindings(secret *VaultSecret, bindings []secretBinding, logger *errors.Logger, path string) error {
	applied := 0
	for _, b := range bindings {
		raw, ok := secret.Data[b.key]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			return fmt.Errorf("value for key '%s' is not a string in secret %s", b.key, path)
		}
		if value != "" {
			*b.target = value
			applied++
		}
	}
	logger.Debug("Vault secret applied", "path", path, "version", secret.Version, "fields", applied)
	return nil
}
