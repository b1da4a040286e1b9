package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"agrocert/certification-backend/internal/ledger"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Ledger   LedgerConfig   `json:"ledger"`
	Issuance IssuanceConfig `json:"issuance"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// LedgerConfig holds the issuer's ledger connection and signing identity
type LedgerConfig struct {
	Network       string  `json:"network"`
	AccountID     string  `json:"account_id"`
	PrivateKey    string  `json:"private_key"`
	TopicID       string  `json:"topic_id"`
	MaxFeeHbar    float64 `json:"max_transaction_fee_hbar"`
	MirrorNodeURL string  `json:"mirror_node_url"`
	ExplorerURL   string  `json:"explorer_url"`
}

// IssuanceConfig tunes the issuance pipeline and resolver
type IssuanceConfig struct {
	Symbol         string        `json:"symbol"`
	StepTimeout    time.Duration `json:"step_timeout"`
	VerifyCacheTTL time.Duration `json:"verify_cache_ttl"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// LoggingConfig
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultMaxFeeHbar is the per-transaction fee ceiling when none is configured
const DefaultMaxFeeHbar = 30

// Default returns the configuration used before file and environment overrides
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Ledger: LedgerConfig{
			Network:     string(ledger.Testnet),
			MaxFeeHbar:  DefaultMaxFeeHbar,
			ExplorerURL: ledger.DefaultExplorerURL,
		},
		Issuance: IssuanceConfig{
			Symbol:         "CERT",
			StepTimeout:    30 * time.Second,
			VerifyCacheTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadEnvFiles loads .env.local then .env into the process environment.
// Variables already set are never overwritten and missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env.local", ".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

func overrideWithEnv(config *Config) error {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		config.Server.Port = p
	}

	if network := os.Getenv("HEDERA_NETWORK"); network != "" {
		config.Ledger.Network = network
	}
	if account := os.Getenv("HEDERA_ACCOUNT_ID"); account != "" {
		config.Ledger.AccountID = account
	}
	if key := os.Getenv("HEDERA_PRIVATE_KEY"); key != "" {
		config.Ledger.PrivateKey = key
	}
	if topic := os.Getenv("HEDERA_TOPIC_ID"); topic != "" {
		config.Ledger.TopicID = topic
	}
	if fee := os.Getenv("HEDERA_MAX_TRANSACTION_FEE_HBAR"); fee != "" {
		f, err := strconv.ParseFloat(fee, 64)
		if err != nil {
			return fmt.Errorf("HEDERA_MAX_TRANSACTION_FEE_HBAR: %w", err)
		}
		config.Ledger.MaxFeeHbar = f
	}
	if mirror := os.Getenv("HEDERA_MIRROR_NODE_URL"); mirror != "" {
		config.Ledger.MirrorNodeURL = mirror
	}
	if explorer := os.Getenv("HEDERA_EXPLORER_URL"); explorer != "" {
		config.Ledger.ExplorerURL = explorer
	}

	if symbol := os.Getenv("CERT_TOKEN_SYMBOL"); symbol != "" {
		config.Issuance.Symbol = symbol
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	return nil
}

// Validate checks what every command needs. Signing credentials are checked
// by ValidateIssuer since verification runs without them.
func (c *Config) Validate() error {
	if _, err := ledger.ParseNetwork(c.Ledger.Network); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Ledger.MaxFeeHbar <= 0 {
		return fmt.Errorf("max transaction fee must be positive")
	}
	if strings.TrimSpace(c.Issuance.Symbol) == "" {
		return fmt.Errorf("token symbol is required")
	}
	if c.Issuance.StepTimeout <= 0 {
		return fmt.Errorf("issuance step timeout must be positive, got %s", c.Issuance.StepTimeout)
	}
	if c.Issuance.VerifyCacheTTL < 0 {
		return fmt.Errorf("verification cache ttl must not be negative")
	}
	return nil
}

// ValidateIssuer checks the signing identity and attestation topic.
// The local network provisions its own identity and topic.
func (c *Config) ValidateIssuer() error {
	network, err := ledger.ParseNetwork(c.Ledger.Network)
	if err != nil {
		return err
	}
	if network == ledger.Local {
		return nil
	}
	var missing []string
	if c.Ledger.AccountID == "" {
		missing = append(missing, "HEDERA_ACCOUNT_ID")
	}
	if c.Ledger.PrivateKey == "" {
		missing = append(missing, "HEDERA_PRIVATE_KEY")
	}
	if c.Ledger.TopicID == "" {
		missing = append(missing, "HEDERA_TOPIC_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing issuer configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MaxFeeTinybars converts the configured fee ceiling to tinybars
func (c *LedgerConfig) MaxFeeTinybars() int64 {
	return int64(c.MaxFeeHbar * ledger.TinybarsPerHbar)
}

// MirrorURL returns the configured mirror node or the network default
func (c *LedgerConfig) MirrorURL() string {
	if c.MirrorNodeURL != "" {
		return strings.TrimRight(c.MirrorNodeURL, "/")
	}
	network, err := ledger.ParseNetwork(c.Network)
	if err != nil {
		return ""
	}
	return network.MirrorNodeURL()
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
