package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration, loaded from environment variables.
// cmd loads a .env file first via godotenv; this package only reads the
// environment.
type Config struct {
	Environment string
	LogLevel    string
	LogFormat   string

	Symbols    []string
	Timeframes []string
	Currency   string

	History struct {
		Retention int // snapshots kept per (symbol, timeframe)
		Lookback  int // candles fetched for indicator computation
	}

	Decision struct {
		ConflictPolicy string // highest-confidence | first-strategy
		MemorySize     int
		ProviderURL    string
		ProviderKey    string
		ProviderModel  string
		Timeout        time.Duration
	}

	Risk struct {
		MaxOrderNotionalPct  float64 // of buying power, per order
		MaxSymbolExposurePct float64 // of equity, per symbol
		MaxConcentrationPct  float64 // of equity, largest position
		MaxDailyLossPct      float64
		MaxDrawdownPct       float64
		MinAutoApproveConfid float64 // below this an operator must approve
	}

	Exchange struct {
		APIKey    string
		APISecret string
		Testnet   bool
		Demo      bool
		Category  string
	}

	Kafka struct {
		Brokers     string
		GroupID     string
		TopicPrefix string
	}

	Pipeline struct {
		Workers   int
		QueueSize int
	}

	Monitoring struct {
		MetricsPort int
	}
}

// Load reads configuration from the environment with sane defaults.
func Load() *Config {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		Symbols:     splitList(getEnv("SYMBOLS", "BTCUSDT")),
		Timeframes:  splitList(getEnv("TIMEFRAMES", "5m")),
		Currency:    getEnv("QUOTE_CURRENCY", "USDT"),
	}

	cfg.History.Retention = getEnvInt("HISTORY_RETENTION", 500)
	cfg.History.Lookback = getEnvInt("HISTORY_LOOKBACK", 100)

	cfg.Decision.ConflictPolicy = getEnv("DECISION_CONFLICT_POLICY", "highest-confidence")
	cfg.Decision.MemorySize = getEnvInt("DECISION_MEMORY_SIZE", 20)
	cfg.Decision.ProviderURL = getEnv("AI_PROVIDER_URL", "")
	cfg.Decision.ProviderKey = getEnv("AI_PROVIDER_API_KEY", "")
	cfg.Decision.ProviderModel = getEnv("AI_PROVIDER_MODEL", "")
	cfg.Decision.Timeout = getEnvDuration("AI_PROVIDER_TIMEOUT", 5*time.Second)

	cfg.Risk.MaxOrderNotionalPct = getEnvFloat("RISK_MAX_ORDER_NOTIONAL_PCT", 25)
	cfg.Risk.MaxSymbolExposurePct = getEnvFloat("RISK_MAX_SYMBOL_EXPOSURE_PCT", 40)
	cfg.Risk.MaxConcentrationPct = getEnvFloat("RISK_MAX_CONCENTRATION_PCT", 60)
	cfg.Risk.MaxDailyLossPct = getEnvFloat("RISK_MAX_DAILY_LOSS_PCT", 5)
	cfg.Risk.MaxDrawdownPct = getEnvFloat("RISK_MAX_DRAWDOWN_PCT", 15)
	cfg.Risk.MinAutoApproveConfid = getEnvFloat("RISK_MIN_AUTO_APPROVE_CONFIDENCE", 0.3)

	cfg.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", "")
	cfg.Exchange.APISecret = getEnv("EXCHANGE_API_SECRET", "")
	cfg.Exchange.Testnet = getEnvBool("EXCHANGE_TESTNET", true)
	cfg.Exchange.Demo = getEnvBool("EXCHANGE_DEMO", false)
	cfg.Exchange.Category = getEnv("EXCHANGE_CATEGORY", "spot")

	cfg.Kafka.Brokers = getEnv("KAFKA_BROKERS", "")
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", "tradeengine")
	cfg.Kafka.TopicPrefix = getEnv("KAFKA_TOPIC_PREFIX", "tradeengine")

	cfg.Pipeline.Workers = getEnvInt("PIPELINE_WORKERS", 4)
	cfg.Pipeline.QueueSize = getEnvInt("PIPELINE_QUEUE_SIZE", 256)

	cfg.Monitoring.MetricsPort = getEnvInt("METRICS_PORT", 8080)

	return cfg
}

// AIEnabled reports whether the AI-backed decision engine should be active.
// The variant is chosen once at startup from credential presence.
func (c *Config) AIEnabled() bool {
	return c.Decision.ProviderKey != "" && c.Decision.ProviderURL != ""
}

// KafkaEnabled reports whether events flow over Kafka instead of the
// in-process bus.
func (c *Config) KafkaEnabled() bool {
	return c.Kafka.Brokers != ""
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
