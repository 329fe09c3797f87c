package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMongo  = "mongo"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	ServerPort     string        `mapstructure:"SERVER_PORT"`
	AppEnv         string        `mapstructure:"APP_ENV"`
	StorageDriver  string        `mapstructure:"STORAGE_DRIVER"`
	MongoUri       string        `mapstructure:"MONGO_URI"`
	MongoDatabase  string        `mapstructure:"MONGO_DATABASE"`
	PresenceDriver string        `mapstructure:"PRESENCE_DRIVER"`
	RedisUrl       string        `mapstructure:"REDIS_URL"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	JwtSecret      string        `mapstructure:"JWT_SECRET"`
	JwtExpiry      time.Duration `mapstructure:"JWT_EXPIRY"`
	BcryptCost     int           `mapstructure:"BCRYPT_COST"`
	IsLocalCors    bool          `mapstructure:"LOCAL_CORS"`
	PageLimitRooms int           `mapstructure:"PAGE_LIMIT_ROOMS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	StaticDir      string        `mapstructure:"STATIC_DIR"`
}

var defaults = map[string]any{
	"SERVER_PORT":      "5000",
	"APP_ENV":          "development",
	"STORAGE_DRIVER":   DriverMongo,
	"MONGO_URI":        "mongodb://localhost:27017/okeymobil",
	"MONGO_DATABASE":   "okeymobil",
	"PRESENCE_DRIVER":  DriverRedis,
	"REDIS_URL":        "localhost:6379",
	"REDIS_PASSWORD":   "",
	"REDIS_DB":         0,
	"JWT_SECRET":       "okeyonline-dev-secret",
	"JWT_EXPIRY":       24 * time.Hour,
	"BCRYPT_COST":      12,
	"LOCAL_CORS":       true,
	"PAGE_LIMIT_ROOMS": 20,
	"RATE_LIMIT_RPS":   20.0,
	"RATE_LIMIT_BURST": 40,
	"STATIC_DIR":       "",
}

// Setup reads an optional env file into the process environment and builds the
// config from environment variables on top of the local development defaults.
func Setup(cfgPath string) (*Config, error) {
	if cfgPath != "" {
		if err := godotenv.Load(cfgPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", cfgPath, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.PresenceDriver {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("unknown PRESENCE_DRIVER %q", c.PresenceDriver)
	}
	if c.JwtSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.PageLimitRooms <= 0 {
		c.PageLimitRooms = 20
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
