package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Channel variants selectable via ChannelVariant.
const (
	VariantBollinger        = "BOLLINGER"
	VariantLinearRegression = "LINEAR_REGRESSION"
)

// Config holds application configuration
type Config struct {
	// Instrument / feed
	Symbol      string
	Interval    string
	WSPublicURL string
	PongWait    int64
	PingPeriod  int64

	// Channel indicator
	ChannelVariant string
	Period         int
	UpperDeviation float64
	LowerDeviation float64

	// Trend-Quality indicator
	FastLength       int
	SlowLength       int
	TrendLength      int
	NoiseLength      int
	CorrectionFactor float64

	// Regime thresholds and exit adjustment
	HighThreshold float64
	LowThreshold  float64
	BetweenFactor float64

	// Position management
	MaxOrders        int
	PositionFraction float64

	// Logging configuration
	LogFile       string
	LogMaxSize    int // megabytes
	LogMaxBackups int // number of files
	LogMaxAge     int // days
	LogCompress   bool
	LogLevel      int // 0=DEBUG, 1=INFO, 2=WARNING, 3=ERROR

	// Status server configuration
	StatusAddr string

	// Daemon configuration
	DaemonMode bool

	Debug bool
}

// LoadConfig loads configuration from environment variables or uses defaults
func LoadConfig() *Config {
	return &Config{
		Symbol:      getEnv("SYMBOL", "BTCUSDT"),
		Interval:    getEnv("INTERVAL", "5"),
		WSPublicURL: getEnv("WS_PUBLIC_URL", "wss://stream.bybit.com/v5/public/linear"),
		PongWait:    70,
		PingPeriod:  30,

		ChannelVariant: getEnv("CHANNEL_VARIANT", VariantBollinger),
		Period:         getEnvAsInt("CHANNEL_PERIOD", 20),
		UpperDeviation: getEnvAsFloat("UPPER_DEVIATION", 2.0),
		LowerDeviation: getEnvAsFloat("LOWER_DEVIATION", 2.0),

		FastLength:       getEnvAsInt("FAST_LENGTH", 7),
		SlowLength:       getEnvAsInt("SLOW_LENGTH", 15),
		TrendLength:      getEnvAsInt("TREND_LENGTH", 4),
		NoiseLength:      getEnvAsInt("NOISE_LENGTH", 250),
		CorrectionFactor: getEnvAsFloat("CORRECTION_FACTOR", 2.0),

		HighThreshold: getEnvAsFloat("HIGH_THRESHOLD", 2.5),
		LowThreshold:  getEnvAsFloat("LOW_THRESHOLD", -4),
		BetweenFactor: getEnvAsFloat("BETWEEN_FACTOR", 0.0005),

		MaxOrders:        getEnvAsInt("MAX_ORDERS", 3),
		PositionFraction: getEnvAsFloat("POSITION_FRACTION", 0.5),

		LogFile:       getEnv("LOG_FILE", "logs/regime_trader.log"),
		LogMaxSize:    10,
		LogMaxBackups: 5,
		LogMaxAge:     30,
		LogCompress:   true,
		LogLevel:      1,

		StatusAddr: getEnv("STATUS_ADDR", "127.0.0.1:6061"),
		DaemonMode: getEnvAsBool("DAEMON_MODE", false),
	}
}

// fileConfig mirrors the tunable strategy parameters in a YAML file.
// Pointer fields distinguish "absent" from a legitimate zero value.
type fileConfig struct {
	Symbol         *string  `yaml:"symbol"`
	Interval       *string  `yaml:"interval"`
	ChannelVariant *string  `yaml:"channel_variant"`
	Period         *int     `yaml:"period"`
	UpperDeviation *float64 `yaml:"upper_deviation"`
	LowerDeviation *float64 `yaml:"lower_deviation"`

	FastLength       *int     `yaml:"fast_length"`
	SlowLength       *int     `yaml:"slow_length"`
	TrendLength      *int     `yaml:"trend_length"`
	NoiseLength      *int     `yaml:"noise_length"`
	CorrectionFactor *float64 `yaml:"correction_factor"`

	HighThreshold *float64 `yaml:"high_threshold"`
	LowThreshold  *float64 `yaml:"low_threshold"`
	BetweenFactor *float64 `yaml:"between_factor"`

	MaxOrders        *int     `yaml:"max_orders"`
	PositionFraction *float64 `yaml:"position_fraction"`
}

// ApplyFile overlays strategy parameters from a YAML file onto the config.
// Fields absent from the file keep their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read params file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse params file %q: %w", path, err)
	}

	setString(&c.Symbol, fc.Symbol)
	setString(&c.Interval, fc.Interval)
	setString(&c.ChannelVariant, fc.ChannelVariant)
	setInt(&c.Period, fc.Period)
	setFloat(&c.UpperDeviation, fc.UpperDeviation)
	setFloat(&c.LowerDeviation, fc.LowerDeviation)
	setInt(&c.FastLength, fc.FastLength)
	setInt(&c.SlowLength, fc.SlowLength)
	setInt(&c.TrendLength, fc.TrendLength)
	setInt(&c.NoiseLength, fc.NoiseLength)
	setFloat(&c.CorrectionFactor, fc.CorrectionFactor)
	setFloat(&c.HighThreshold, fc.HighThreshold)
	setFloat(&c.LowThreshold, fc.LowThreshold)
	setFloat(&c.BetweenFactor, fc.BetweenFactor)
	setInt(&c.MaxOrders, fc.MaxOrders)
	setFloat(&c.PositionFraction, fc.PositionFraction)
	return nil
}

// Validate rejects invalid parameter sets before any bar is processed.
func (c *Config) Validate() error {
	if c.Period <= 1 {
		return fmt.Errorf("period must be > 1, got %d", c.Period)
	}
	if c.UpperDeviation <= 0 || c.LowerDeviation <= 0 {
		return fmt.Errorf("deviation multipliers must be > 0, got upper=%v lower=%v", c.UpperDeviation, c.LowerDeviation)
	}
	if c.FastLength <= 0 || c.SlowLength <= 0 {
		return fmt.Errorf("EMA lengths must be > 0, got fast=%d slow=%d", c.FastLength, c.SlowLength)
	}
	if c.TrendLength <= 0 {
		return fmt.Errorf("trend length must be > 0, got %d", c.TrendLength)
	}
	if c.NoiseLength <= 0 {
		return fmt.Errorf("noise length must be > 0, got %d", c.NoiseLength)
	}
	if c.CorrectionFactor <= 0 {
		return fmt.Errorf("correction factor must be > 0, got %v", c.CorrectionFactor)
	}
	if c.LowThreshold >= c.HighThreshold {
		return fmt.Errorf("low threshold %v must be below high threshold %v", c.LowThreshold, c.HighThreshold)
	}
	if c.BetweenFactor < 0 {
		return fmt.Errorf("between factor must be >= 0, got %v", c.BetweenFactor)
	}
	if c.MaxOrders < 1 {
		return fmt.Errorf("max orders must be >= 1, got %d", c.MaxOrders)
	}
	if c.PositionFraction <= 0 || c.PositionFraction > 1 {
		return fmt.Errorf("position fraction must be in (0,1], got %v", c.PositionFraction)
	}
	switch c.ChannelVariant {
	case VariantBollinger, VariantLinearRegression:
	default:
		return fmt.Errorf("unknown channel variant %q", c.ChannelVariant)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

// getEnvAsBool gets an environment variable as a boolean value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	switch value {
	case "true", "1", "yes", "on", "True", "TRUE":
		return true
	default:
		return false
	}
}

func getEnvAsInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
