package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger     Logger     `mapstructure:"logger"`
	Database   Database   `mapstructure:"database"`
	Server     Server     `mapstructure:"server"`
	Engine     Engine     `mapstructure:"engine"`
	Feeds      Feeds      `mapstructure:"feeds"`
	MarketData MarketData `mapstructure:"marketdata"`
	Skills     Skills     `mapstructure:"skills"`
	Wallet     Wallet     `mapstructure:"wallet"`
	Vault      Vault      `mapstructure:"vault"`
	Kafka      Kafka      `mapstructure:"kafka"`
	Metrics    Metrics    `mapstructure:"metrics"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Server holds the configuration for the management API.
type Server struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Engine holds the configuration for the per-agent signal scheduler.
type Engine struct {
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	// ExecuteAllSignals disables the confidence filter. Ranking still applies.
	ExecuteAllSignals    bool          `mapstructure:"execute_all_signals"`
	FeedTimeout          time.Duration `mapstructure:"feed_timeout"`
	MaxExecutionsPerTick int           `mapstructure:"max_executions_per_tick"`
}

// Feeds holds the configuration for the data feeds.
type Feeds struct {
	Price  PriceFeed  `mapstructure:"price"`
	Social SocialFeed `mapstructure:"social"`
}

// PriceFeed configures the token price poller.
type PriceFeed struct {
	BaseURL      string        `mapstructure:"base_url"`
	Tokens       []string      `mapstructure:"tokens"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// SocialFeed configures the community posts poller.
type SocialFeed struct {
	BaseURL      string        `mapstructure:"base_url"`
	ApiKey       string        `mapstructure:"api_key"`
	Communities  []string      `mapstructure:"communities"`
	Limit        int           `mapstructure:"limit"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPosts     int           `mapstructure:"max_posts"`
}

// MarketData holds the HTTP client settings shared by the feeds.
type MarketData struct {
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Skills holds trade sizing limits applied when skills execute.
type Skills struct {
	DefaultTradePercent float64 `mapstructure:"default_trade_percent"`
	MaxTradePercent     float64 `mapstructure:"max_trade_percent"`
}

// Wallet holds the configuration for the execution collaborator.
type Wallet struct {
	Mode       string `mapstructure:"mode"` // "paper" or "remote"
	QuoteToken string `mapstructure:"quote_token"`
	BaseURL    string `mapstructure:"base_url"`
	AppID      string `mapstructure:"app_id"`
	AppSecret  string `mapstructure:"app_secret"`
}

// Vault holds the default profit split for new vaults, in percent.
type Vault struct {
	InvestorSplit float64 `mapstructure:"investor_split"`
	CreatorSplit  float64 `mapstructure:"creator_split"`
	PlatformSplit float64 `mapstructure:"platform_split"`
}

// Kafka configures the trade event stream.
type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Metrics configures the prometheus endpoint.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	return
}

// SetDefaults registers the default value of every tunable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("database.dsn", "arena.db")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("engine.tick_interval", "30s")
	v.SetDefault("engine.confidence_threshold", 0.6)
	v.SetDefault("engine.execute_all_signals", false)
	v.SetDefault("engine.feed_timeout", "10s")
	v.SetDefault("engine.max_executions_per_tick", 0)

	v.SetDefault("feeds.price.base_url", "https://api.jup.ag")
	v.SetDefault("feeds.price.tokens", []string{"SOL", "BONK", "WIF", "JUP", "JTO", "PYTH", "RAY", "ORCA"})
	v.SetDefault("feeds.price.poll_interval", "60s")
	v.SetDefault("feeds.social.base_url", "https://www.moltbook.com/api/v1")
	v.SetDefault("feeds.social.communities", []string{"trading", "solana", "defi", "alpha"})
	v.SetDefault("feeds.social.limit", 20)
	v.SetDefault("feeds.social.poll_interval", "5m")
	v.SetDefault("feeds.social.max_posts", 100)

	v.SetDefault("marketdata.rate_limit", 5)       // requests per second
	v.SetDefault("marketdata.rate_limit_burst", 2) // burst size
	v.SetDefault("marketdata.timeout", "10s")

	v.SetDefault("skills.default_trade_percent", 5)
	v.SetDefault("skills.max_trade_percent", 15)

	v.SetDefault("wallet.mode", "paper")
	v.SetDefault("wallet.quote_token", "USDC")

	v.SetDefault("vault.investor_split", 70)
	v.SetDefault("vault.creator_split", 20)
	v.SetDefault("vault.platform_split", 10)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "arena.trades")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
