package vault

import (
	"context"
	"testing"

	"fund-ledger/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClientUsesCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewClient(config.VaultConfig{Enabled: false, MountPath: "secret", SecretPath: "fund-ledger"})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.Health(ctx))

	_, err = c.GetSecrets(ctx, "service")
	assert.Error(t, err)

	require.NoError(t, c.StoreSecrets(ctx, "service", ServiceSecrets{
		DatabasePassword: "db-pass",
		JWTSecret:        "jwt-secret",
	}))
	got, err := c.GetSecrets(ctx, "service")
	require.NoError(t, err)
	assert.Equal(t, "db-pass", got.DatabasePassword)

	c.ClearCache()
	_, err = c.GetSecrets(ctx, "service")
	assert.Error(t, err)
}

func TestApplyToKeepsExplicitValues(t *testing.T) {
	ctx := context.Background()
	c, err := NewClient(config.VaultConfig{})
	require.NoError(t, err)
	require.NoError(t, c.StoreSecrets(ctx, "service", ServiceSecrets{
		DatabasePassword: "from-vault",
		JWTSecret:        "vault-jwt",
		RedisPassword:    "vault-redis",
	}))

	cfg := &config.Config{}
	cfg.AuthConfig.JWTSecret = "explicit"
	require.NoError(t, c.ApplyTo(ctx, cfg))

	assert.Equal(t, "from-vault", cfg.DatabaseConfig.Password)
	assert.Equal(t, "explicit", cfg.AuthConfig.JWTSecret)
	assert.Equal(t, "vault-redis", cfg.RedisConfig.Password)
}

func TestKVPath(t *testing.T) {
	c := &Client{config: config.VaultConfig{MountPath: "secret", SecretPath: "fund-ledger"}}
	assert.Equal(t, "fund-ledger/service", c.kvPath("service"))

	c.config.SecretPath = "fund-ledger/"
	assert.Equal(t, "fund-ledger/service", c.kvPath("service"))
}

func TestSecretsFrom(t *testing.T) {
	s := secretsFrom(map[string]interface{}{"jwt_secret": "j", "redis_password": 42})
	assert.Equal(t, "j", s.JWTSecret)
	assert.Empty(t, s.RedisPassword)
	assert.Equal(t, "j", ServiceSecrets{JWTSecret: "j"}.fields()["jwt_secret"])
}
