package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Engine   EngineConfig   `yaml:"engine"`
	Risk     RiskConfig     `yaml:"risk"`
	Oracle   OracleConfig   `yaml:"oracle"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpireHours int    `yaml:"expire_hours"`
}

// EngineConfig holds execution engine parameters.
type EngineConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	CommissionRate float64 `yaml:"commission_rate"`
}

// RiskConfig holds the default risk parameters applied to every account.
type RiskConfig struct {
	MaxPositionSizeFraction float64 `yaml:"max_position_size_fraction"`
	MaxDailyLossFraction    float64 `yaml:"max_daily_loss_fraction"`
	StopLossFraction        float64 `yaml:"stop_loss_fraction"`
	TakeProfitFraction      float64 `yaml:"take_profit_fraction"`
	TrailingStopFraction    float64 `yaml:"trailing_stop_fraction"`
	VolatilityThreshold     float64 `yaml:"volatility_threshold"`
	MaxConsecutiveLosses    int     `yaml:"max_consecutive_losses"`
}

// OracleConfig holds price oracle settings.
type OracleConfig struct {
	QuoteURL   string `yaml:"quote_url"`
	FeedURL    string `yaml:"feed_url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Override with environment variables if present
	cfg.loadFromEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.Server.Mode = v
	}

	// Database
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.DBName = v
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	// JWT
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("JWT_EXPIRE_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.JWT.ExpireHours = hours
		}
	}

	// Oracle
	if v := os.Getenv("ORACLE_QUOTE_URL"); v != "" {
		c.Oracle.QuoteURL = v
	}
	if v := os.Getenv("ORACLE_FEED_URL"); v != "" {
		c.Oracle.FeedURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Engine.InitialCapital == 0 {
		c.Engine.InitialCapital = 100000
	}
	if c.Engine.CommissionRate == 0 {
		c.Engine.CommissionRate = 0.001
	}
	if c.Oracle.TTLSeconds == 0 {
		c.Oracle.TTLSeconds = 60
	}
	if c.JWT.ExpireHours == 0 {
		c.JWT.ExpireHours = 24
	}
}

func (c *Config) validate() error {
	if c.Engine.InitialCapital < 0 {
		return errors.New("engine.initial_capital must not be negative")
	}
	if c.Engine.CommissionRate < 0 || c.Engine.CommissionRate >= 1 {
		return errors.New("engine.commission_rate must be in [0, 1)")
	}
	if c.Risk.MaxPositionSizeFraction < 0 || c.Risk.MaxPositionSizeFraction > 1 {
		return errors.New("risk.max_position_size_fraction must be in [0, 1]")
	}
	if c.Risk.MaxDailyLossFraction < 0 || c.Risk.MaxDailyLossFraction > 1 {
		return errors.New("risk.max_daily_loss_fraction must be in [0, 1]")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}
