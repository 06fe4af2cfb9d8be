package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures the server runtime parameters.
type Config struct {
	Addr             string      `mapstructure:"addr"`
	LogLevel         string      `mapstructure:"log_level"`
	DatabaseDSN      string      `mapstructure:"db_dsn"`
	RedisAddr        string      `mapstructure:"redis_addr"`
	JWTSecret        string      `mapstructure:"jwt_secret"`
	EncryptionSecret string      `mapstructure:"encryption_secret"`
	Media            MediaConfig `mapstructure:"media"`
}

// MediaConfig describes where chat attachments land on disk and how large
// a single upload may be.
type MediaConfig struct {
	Dir            string `mapstructure:"dir"`
	BaseURL        string `mapstructure:"base_url"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

const (
	defaultAddr           = ":8080"
	defaultLogLevel       = "info"
	defaultRedisAddr      = "localhost:6379"
	defaultMediaDir       = "uploads/chat-media"
	defaultMediaBaseURL   = "/uploads/chat-media"
	defaultMaxUploadBytes = 100 << 20
)

// Load reads configuration from the provided file path (if any) and the
// environment. Environment variables are prefixed with LIFEHUB_ and override
// file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIFEHUB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("addr", defaultAddr)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("db_dsn", "")
	v.SetDefault("redis_addr", defaultRedisAddr)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("encryption_secret", "")
	v.SetDefault("media.dir", defaultMediaDir)
	v.SetDefault("media.base_url", defaultMediaBaseURL)
	v.SetDefault("media.max_upload_bytes", int64(defaultMaxUploadBytes))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("db_dsn is required (LIFEHUB_DB_DSN)")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required (LIFEHUB_JWT_SECRET)")
	}
	if c.EncryptionSecret == "" {
		return errors.New("encryption_secret is required (LIFEHUB_ENCRYPTION_SECRET)")
	}
	if c.Media.MaxUploadBytes <= 0 {
		return fmt.Errorf("media.max_upload_bytes must be positive, got %d", c.Media.MaxUploadBytes)
	}
	return nil
}
