package vault

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"fund-ledger/config"

	"github.com/hashicorp/vault/api"
)

// ServiceSecrets are the credentials the service keeps out of its config file
type ServiceSecrets struct {
	DatabasePassword string `json:"database_password"`
	JWTSecret        string `json:"jwt_secret"`
	RedisPassword    string `json:"redis_password"`
}

func (s ServiceSecrets) fields() map[string]interface{} {
	return map[string]interface{}{
		"database_password": s.DatabasePassword,
		"jwt_secret":        s.JWTSecret,
		"redis_password":    s.RedisPassword,
	}
}

func secretsFrom(data map[string]interface{}) *ServiceSecrets {
	str := func(key string) string {
		s, _ := data[key].(string)
		return s
	}
	return &ServiceSecrets{
		DatabasePassword: str("database_password"),
		JWTSecret:        str("jwt_secret"),
		RedisPassword:    str("redis_password"),
	}
}

// Client reads service secrets from a KV v2 engine. Secrets read or written
// once are remembered for the life of the process. With Vault disabled the
// client only has that memory, which is what tests and local runs use.
type Client struct {
	kv     *api.KVv2
	sys    *api.Sys
	config config.VaultConfig

	mu     sync.RWMutex
	cached map[string]*ServiceSecrets
}

// NewClient creates a Vault client for cfg
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{config: cfg, cached: make(map[string]*ServiceSecrets)}
	if !cfg.Enabled {
		return c, nil
	}

	apiConfig := api.DefaultConfig()
	apiConfig.Address = cfg.Address
	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := apiConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c.kv = client.KVv2(cfg.MountPath)
	c.sys = client.Sys()
	return c, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) remember(name string, s *ServiceSecrets) {
	c.mu.Lock()
	c.cached[name] = s
	c.mu.Unlock()
}

func (c *Client) recall(name string) (*ServiceSecrets, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.cached[name]
	return s, ok
}

// StoreSecrets writes the named secret set
func (c *Client) StoreSecrets(ctx context.Context, name string, data ServiceSecrets) error {
	if c.IsEnabled() {
		if _, err := c.kv.Put(ctx, c.kvPath(name), data.fields()); err != nil {
			return fmt.Errorf("failed to store secrets in vault: %w", err)
		}
	}
	c.remember(name, &data)
	return nil
}

// GetSecrets reads the named secret set
func (c *Client) GetSecrets(ctx context.Context, name string) (*ServiceSecrets, error) {
	if s, ok := c.recall(name); ok {
		return s, nil
	}
	if !c.IsEnabled() {
		return nil, fmt.Errorf("secrets %q not found and vault is disabled", name)
	}

	secret, err := c.kv.Get(ctx, c.kvPath(name))
	if errors.Is(err, api.ErrSecretNotFound) || (err == nil && secret.Data == nil) {
		return nil, fmt.Errorf("secrets %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}

	s := secretsFrom(secret.Data)
	c.remember(name, s)
	return s, nil
}

// ApplyTo fills the credentials of cfg from the service secret set. Values
// already present in cfg win over Vault.
func (c *Client) ApplyTo(ctx context.Context, cfg *config.Config) error {
	s, err := c.GetSecrets(ctx, "service")
	if err != nil {
		return err
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.DatabaseConfig.Password, s.DatabasePassword)
	fill(&cfg.AuthConfig.JWTSecret, s.JWTSecret)
	fill(&cfg.RedisConfig.Password, s.RedisPassword)
	return nil
}

// ClearCache forgets every remembered secret set
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = make(map[string]*ServiceSecrets)
	c.mu.Unlock()
}

// Health fails when Vault is unreachable or sealed
func (c *Client) Health(ctx context.Context) error {
	if !c.IsEnabled() {
		return nil
	}
	health, err := c.sys.HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return errors.New("vault is sealed")
	}
	return nil
}

// kvPath is the secret path below the KV mount
func (c *Client) kvPath(name string) string {
	return path.Join(c.config.SecretPath, name)
}
