package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
	StorageConfig
	MockServerConfig
}

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIBaseURL() string
	GetDefaultSpace() string
}

type MockServerConfig interface {
	CorsConfig
	GetPort() string
	GetJWTSecret() string
	GetAccessTokenTTL() time.Duration
}

// values is the flat set of settings viper unmarshals into.
// Each field maps 1:1 onto an environment variable.
type values struct {
	Env            string        `mapstructure:"ENV"`
	AppName        string        `mapstructure:"APP_NAME"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	APIBaseURL     string        `mapstructure:"COWORKING_API_URL"`
	DefaultSpace   string        `mapstructure:"COWORKING_SPACE"`
	TickInterval   time.Duration `mapstructure:"SESSION_TICK_INTERVAL"`
	ExpiringSoon   time.Duration `mapstructure:"SESSION_EXPIRING_SOON"`
	StorageDriver  string        `mapstructure:"STORAGE_DRIVER"`
	StorageFile    string        `mapstructure:"STORAGE_FILE"`
	StorageKey     string        `mapstructure:"STORAGE_KEY"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	RedisPrefix    string        `mapstructure:"REDIS_PREFIX"`
	Port           string        `mapstructure:"PORT"`
	JWTSecret      string        `mapstructure:"MOCK_JWT_SECRET"`
	AccessTokenTTL time.Duration `mapstructure:"MOCK_ACCESS_TOKEN_TTL"`
	AllowedOrigins string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

type mainConfig struct {
	values
}

var _ Config = mainConfig{}

var defaults = map[string]any{
	"ENV":                   "DEV",
	"APP_NAME":              "Coworking Session",
	"LOG_LEVEL":             "info",
	"COWORKING_API_URL":     "http://localhost:8080",
	"COWORKING_SPACE":       "",
	"SESSION_TICK_INTERVAL": "30s",
	"SESSION_EXPIRING_SOON": "5m",
	"STORAGE_DRIVER":        StorageDriverFile,
	"STORAGE_FILE":          "./data/session.json",
	"STORAGE_KEY":           "",
	"REDIS_URL":             "",
	"REDIS_PREFIX":          "coworking",
	"PORT":                  "8080",
	"MOCK_JWT_SECRET":       "dev-secret-change-me",
	"MOCK_ACCESS_TOKEN_TTL": "1h",
	"CORS_ALLOWED_ORIGINS":  "*",
}

// New returns the configuration with every setting at its default value.
func New() Config {
	cfg, err := load(viper.New())
	if err != nil {
		// defaults are static and always decode
		panic(err)
	}
	return cfg
}

// Load reads an optional env-style config file (ignored when missing), then
// environment variables, falling back to defaults.
func Load(configFile string) (Config, error) {
	v := viper.New()
	if configFile == "" {
		configFile = ".env"
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var vals values
	if err := v.Unmarshal(&vals); err != nil {
		return nil, fmt.Errorf("[config Load] failed to decode config: %w", err)
	}

	if err := vals.validate(); err != nil {
		return nil, err
	}
	return mainConfig{values: vals}, nil
}

func (v values) validate() error {
	if v.TickInterval <= 0 || v.TickInterval > time.Minute {
		return fmt.Errorf("[config Load] SESSION_TICK_INTERVAL must be within (0, 1m], got %s", v.TickInterval)
	}
	if v.ExpiringSoon <= 0 {
		return fmt.Errorf("[config Load] SESSION_EXPIRING_SOON must be positive, got %s", v.ExpiringSoon)
	}
	switch v.StorageDriver {
	case StorageDriverMemory, StorageDriverFile:
	case StorageDriverRedis:
		if v.RedisURL == "" {
			return fmt.Errorf("[config Load] REDIS_URL is required when STORAGE_DRIVER=%s", StorageDriverRedis)
		}
	default:
		return fmt.Errorf("[config Load] unknown STORAGE_DRIVER %q", v.StorageDriver)
	}
	return nil
}
