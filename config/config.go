package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"fund-ledger/internal/ledger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseConfig DatabaseConfig `json:"database"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	RedisConfig    RedisConfig    `json:"redis"`
	VaultConfig    VaultConfig    `json:"vault"`
	EngineConfig   EngineConfig   `json:"engine"`
}

// DatabaseConfig holds the ledger store connection settings
type DatabaseConfig struct {
	Driver   string `json:"driver"` // postgres or memory
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"sslmode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`  // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds verification settings for operator tokens
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path of the service secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for the summary cache
type RedisConfig struct {
	Enabled    bool          `json:"enabled"`
	Address    string        `json:"address"`
	Password   string        `json:"password"`
	DB         int           `json:"db"`
	PoolSize   int           `json:"pool_size"`
	SummaryTTL time.Duration `json:"summary_ttl"`
}

// EngineConfig holds the distribution policy
type EngineConfig struct {
	CompanyProfileID          int64           `json:"company_profile_id"`
	CompanyShare              decimal.Decimal `json:"company_share"`
	ReferralShare             decimal.Decimal `json:"referral_share"`
	DefaultPeriodYield        decimal.Decimal `json:"default_period_yield"`
	ReferralCommissionPercent decimal.Decimal `json:"referral_commission_percent"`
	Currency                  string          `json:"currency"`
}

// Policy converts the engine section into the policy the engines run with
func (c EngineConfig) Policy() ledger.Policy {
	return ledger.Policy{
		CompanyProfileID:          c.CompanyProfileID,
		CompanyShare:              c.CompanyShare,
		ReferralShare:             c.ReferralShare,
		DefaultPeriodYield:        c.DefaultPeriodYield,
		ReferralCommissionPercent: c.ReferralCommissionPercent,
		Currency:                  c.Currency,
	}
}

// Load reads .env (or ENV_FILE) and config.json (or CONFIG_FILE) when
// present, then applies environment overrides.
func Load() (*Config, error) {
	if err := LoadEnvFile(getEnvOrDefault("ENV_FILE", ".env")); err != nil {
		return nil, err
	}
	return LoadFrom(getEnvOrDefault("CONFIG_FILE", "config.json"))
}

// LoadEnvFile exports the variables of a dotenv file that are not already
// set. A missing file is not an error.
func LoadEnvFile(filename string) error {
	if err := godotenv.Load(filename); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", filename, err)
	}
	return nil
}

// LoadFrom is Load with an explicit file name
func LoadFrom(filename string) (*Config, error) {
	cfg, err := loadFromFile(filename)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// File values act as the defaults of their variables.
func applyEnvOverrides(cfg *Config) {
	// Database config
	db := &cfg.DatabaseConfig
	db.Driver = strings.ToLower(getEnvOrDefault("DB_DRIVER", orString(db.Driver, "postgres")))
	db.Host = getEnvOrDefault("DB_HOST", orString(db.Host, "localhost"))
	db.Port = getEnvIntOrDefault("DB_PORT", orInt(db.Port, 5432))
	db.User = getEnvOrDefault("DB_USER", orString(db.User, "fund_ledger"))
	db.Password = getEnvOrDefault("DB_PASSWORD", db.Password)
	db.Name = getEnvOrDefault("DB_NAME", orString(db.Name, "fund_ledger"))
	db.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(db.SSLMode, "disable"))
	db.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", orInt(db.MaxConns, 25))
	db.MinConns = getEnvIntOrDefault("DB_MIN_CONNS", orInt(db.MinConns, 5))

	// Logging config
	lc := &cfg.LoggingConfig
	lc.Level = getEnvOrDefault("LOG_LEVEL", orString(lc.Level, "INFO"))
	lc.Output = getEnvOrDefault("LOG_OUTPUT", orString(lc.Output, "stdout"))
	lc.JSONFormat = getEnvBoolOrDefault("LOG_JSON", lc.JSONFormat)
	lc.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", lc.IncludeFile)

	// Server config
	sc := &cfg.ServerConfig
	sc.Port = getEnvIntOrDefault("WEB_PORT", orInt(sc.Port, 8080))
	sc.Host = getEnvOrDefault("WEB_HOST", orString(sc.Host, "0.0.0.0"))
	sc.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(sc.AllowedOrigins, "*"))
	sc.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(sc.ReadTimeout, 30))
	sc.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(sc.WriteTimeout, 30))
	sc.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(sc.ShutdownTimeout, 10))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.Issuer = getEnvOrDefault("AUTH_ISSUER", cfg.AuthConfig.Issuer)

	// Redis config
	rc := &cfg.RedisConfig
	rc.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", rc.Enabled)
	rc.Address = getEnvOrDefault("REDIS_ADDRESS", orString(rc.Address, "localhost:6379"))
	rc.Password = getEnvOrDefault("REDIS_PASSWORD", rc.Password)
	rc.DB = getEnvIntOrDefault("REDIS_DB", rc.DB)
	rc.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(rc.PoolSize, 10))
	rc.SummaryTTL = getEnvDurationOrDefault("REDIS_SUMMARY_TTL", orDuration(rc.SummaryTTL, 10*time.Minute))

	// Vault config
	vc := &cfg.VaultConfig
	vc.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", vc.Enabled)
	vc.Address = getEnvOrDefault("VAULT_ADDR", orString(vc.Address, "http://localhost:8200"))
	vc.Token = getEnvOrDefault("VAULT_TOKEN", vc.Token)
	vc.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(vc.MountPath, "secret"))
	vc.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(vc.SecretPath, "fund-ledger"))
	vc.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", vc.TLSEnabled)
	vc.CACert = getEnvOrDefault("VAULT_CACERT", vc.CACert)

	// Engine config
	policy := ledger.DefaultPolicy()
	ec := &cfg.EngineConfig
	ec.CompanyProfileID = int64(getEnvIntOrDefault("ENGINE_COMPANY_PROFILE_ID", int(ec.CompanyProfileID)))
	ec.CompanyShare = getEnvDecimalOrDefault("ENGINE_COMPANY_SHARE", orDecimal(ec.CompanyShare, policy.CompanyShare))
	ec.ReferralShare = getEnvDecimalOrDefault("ENGINE_REFERRAL_SHARE", orDecimal(ec.ReferralShare, policy.ReferralShare))
	ec.DefaultPeriodYield = getEnvDecimalOrDefault("ENGINE_DEFAULT_PERIOD_YIELD", orDecimal(ec.DefaultPeriodYield, policy.DefaultPeriodYield))
	ec.ReferralCommissionPercent = getEnvDecimalOrDefault("ENGINE_REFERRAL_COMMISSION_PERCENT", orDecimal(ec.ReferralCommissionPercent, policy.ReferralCommissionPercent))
	ec.Currency = strings.ToUpper(getEnvOrDefault("ENGINE_CURRENCY", orString(ec.Currency, policy.Currency)))
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if err := c.EngineConfig.Policy().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	switch c.DatabaseConfig.Driver {
	case "postgres":
		if c.DatabaseConfig.Host == "" || c.DatabaseConfig.Name == "" {
			return fmt.Errorf("database: host and name are required")
		}
	case "memory":
	default:
		return fmt.Errorf("database: unknown driver %q", c.DatabaseConfig.Driver)
	}
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.ServerConfig.Port)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" && !c.VaultConfig.Enabled {
		return fmt.Errorf("auth: jwt_secret is required when auth is enabled")
	}
	if c.VaultConfig.Enabled && c.VaultConfig.Token == "" {
		return fmt.Errorf("vault: token is required when vault is enabled")
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDecimalOrDefault(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

func orDecimal(v, def decimal.Decimal) decimal.Decimal {
	if v.IsZero() {
		return def
	}
	return v
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	policy := ledger.DefaultPolicy()
	config := Config{
		DatabaseConfig: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "fund_ledger",
			Name:     "fund_ledger",
			SSLMode:  "disable",
			MaxConns: 25,
			MinConns: 5,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		RedisConfig: RedisConfig{
			Address:    "localhost:6379",
			PoolSize:   10,
			SummaryTTL: 10 * time.Minute,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "fund-ledger",
		},
		EngineConfig: EngineConfig{
			CompanyProfileID:          1,
			CompanyShare:              policy.CompanyShare,
			ReferralShare:             policy.ReferralShare,
			DefaultPeriodYield:        policy.DefaultPeriodYield,
			ReferralCommissionPercent: policy.ReferralCommissionPercent,
			Currency:                  policy.Currency,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
