package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvmatcher/internal/errors"
)

func TestParseVersionValue(t *testing.T) {
	tests := []struct {
		name        string
		input       any
		expected    int64
		expectError bool
	}{
		{name: "int64 value", input: int64(42), expected: 42},
		{name: "float64 value", input: float64(42.0), expected: 42},
		{name: "string value", input: "42", expected: 42},
		{name: "invalid string value", input: "not-a-number", expectError: true},
		{name: "unsupported type", input: []string{"42"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseVersionValue(tt.input, "secret/data/test")

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestParseKVv2(t *testing.T) {
	t.Run("valid envelope", func(t *testing.T) {
		secret, err := parseKVv2(map[string]any{
			"data":     map[string]any{"api_key": "abc"},
			"metadata": map[string]any{"version": "3"},
		}, "secret/data/embedding")
		require.NoError(t, err)
		assert.Equal(t, int64(3), secret.Version)
		assert.Equal(t, "abc", secret.Data["api_key"])
	})

	t.Run("missing data", func(t *testing.T) {
		_, err := parseKVv2(map[string]any{"metadata": map[string]any{"version": 1}}, "p")
		assert.ErrorContains(t, err, "missing 'data' field")
	})

	t.Run("missing metadata", func(t *testing.T) {
		_, err := parseKVv2(map[string]any{"data": map[string]any{}}, "p")
		assert.ErrorContains(t, err, "missing 'metadata' field")
	})

	t.Run("missing version", func(t *testing.T) {
		_, err := parseKVv2(map[string]any{"data": map[string]any{}, "metadata": map[string]any{}}, "p")
		assert.ErrorContains(t, err, "missing 'version' field")
	})
}

func TestApplyBindings(t *testing.T) {
	cfg := &Config{}
	cfg.VectorStore.PGVector.DSN = "postgres://keep"

	secret := &VaultSecret{
		Data: map[string]any{
			"api_key": "qdrant-key",
			"dsn":     "",
		},
		Version: 1,
	}
	err := applyBindings(secret, []secretBinding{
		{"api_key", &cfg.VectorStore.Qdrant.APIKey},
		{"dsn", &cfg.VectorStore.PGVector.DSN},
	}, errors.Discard(), "secret/data/vector")

	require.NoError(t, err)
	assert.Equal(t, "qdrant-key", cfg.VectorStore.Qdrant.APIKey)
	assert.Equal(t, "postgres://keep", cfg.VectorStore.PGVector.DSN, "empty vault values must not clear config")
}

func TestApplyBindingsRejectsNonString(t *testing.T) {
	var target string
	secret := &VaultSecret{Data: map[string]any{"api_key": 12}}
	err := applyBindings(secret, []secretBinding{{"api_key", &target}}, errors.Discard(), "p")
	assert.ErrorContains(t, err, "is not a string")
}

func TestResolveVaultToken(t *testing.T) {
	t.Run("inline token", func(t *testing.T) {
		token, err := resolveVaultToken(VaultConfig{Token: "s.abc"})
		require.NoError(t, err)
		assert.Equal(t, "s.abc", token)
	})

	t.Run("token file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("  s.file\n"), 0600))

		token, err := resolveVaultToken(VaultConfig{TokenFile: path})
		require.NoError(t, err)
		assert.Equal(t, "s.file", token)
	})

	t.Run("missing token file", func(t *testing.T) {
		_, err := resolveVaultToken(VaultConfig{TokenFile: filepath.Join(t.TempDir(), "nope")})
		assert.ErrorContains(t, err, "failed to read vault token file")
	})

	t.Run("no token", func(t *testing.T) {
		_, err := resolveVaultToken(VaultConfig{})
		assert.ErrorContains(t, err, "vault token is required")
	})
}

func TestApplyVaultSecretsDisabled(t *testing.T) {
	cfg := Default()
	cfg.Embedding.APIKey = "from-env"

	require.NoError(t, ApplyVaultSecrets(cfg, errors.Discard()))
	assert.Equal(t, "from-env", cfg.Embedding.APIKey)
}
