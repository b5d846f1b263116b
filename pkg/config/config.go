package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the bridge API server configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Ethereum  EVMChainConfig  `mapstructure:"ethereum"`
	Polygon   EVMChainConfig  `mapstructure:"polygon"`
	Arbitrum  EVMChainConfig  `mapstructure:"arbitrum"`
	StarkNet  StarkNetConfig  `mapstructure:"starknet"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	PriceFeed PriceFeedConfig `mapstructure:"price_feed"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// RedisConfig contains cache connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig contains JWT settings for API and WebSocket identity
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// EVMChainConfig contains settings for one EVM-family network
type EVMChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	BridgeContract string        `mapstructure:"bridge_contract"`
	PrivateKey     string        `mapstructure:"private_key"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxPollTime    time.Duration `mapstructure:"max_poll_time"`
}

// StarkNetConfig contains StarkNet JSON-RPC settings
type StarkNetConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	AccountAddress string        `mapstructure:"account_address"`
	BridgeContract string        `mapstructure:"bridge_contract"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxPollTime    time.Duration `mapstructure:"max_poll_time"`
}

// BridgeConfig contains lifecycle sweep settings
type BridgeConfig struct {
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	StaleWarnAge   time.Duration `mapstructure:"stale_warn_age"`
	StaleFailAge   time.Duration `mapstructure:"stale_fail_age"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size"`
}

// PriceFeedConfig contains market data client settings
type PriceFeedConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "starkbridge")

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Auth defaults
	viper.SetDefault("auth.issuer", "starkbridge")
	viper.SetDefault("auth.token_ttl", "24h")

	// Chain defaults
	for _, chain := range []string{"ethereum", "polygon", "arbitrum"} {
		viper.SetDefault(chain+".gas_limit", 150000)
		viper.SetDefault(chain+".poll_interval", "5s")
		viper.SetDefault(chain+".max_poll_time", "10m")
	}
	viper.SetDefault("starknet.poll_interval", "5s")
	viper.SetDefault("starknet.max_poll_time", "10m")

	// Bridge sweep defaults
	viper.SetDefault("bridge.sweep_interval", "1m")
	viper.SetDefault("bridge.stale_warn_age", "30m")
	viper.SetDefault("bridge.stale_fail_age", "1h")
	viper.SetDefault("bridge.sweep_batch_size", 50)

	// Price feed defaults
	viper.SetDefault("price_feed.request_timeout", "10s")
	viper.SetDefault("price_feed.refresh_interval", "5m")
	viper.SetDefault("price_feed.cache_ttl", "5m")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if config.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if config.StarkNet.RPCURL == "" {
		return fmt.Errorf("starknet.rpc_url is required")
	}
	if config.Bridge.StaleFailAge <= config.Bridge.StaleWarnAge {
		return fmt.Errorf("bridge.stale_fail_age must exceed bridge.stale_warn_age")
	}
	return nil
}

// EVMChain returns the EVM config for the named chain, if one exists.
func (c *Config) EVMChain(name string) (EVMChainConfig, bool) {
	switch name {
	case "ethereum":
		return c.Ethereum, c.Ethereum.RPCURL != ""
	case "polygon":
		return c.Polygon, c.Polygon.RPCURL != ""
	case "arbitrum":
		return c.Arbitrum, c.Arbitrum.RPCURL != ""
	}
	return EVMChainConfig{}, false
}
