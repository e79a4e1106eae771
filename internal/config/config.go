package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Client    ClientConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Log       LogConfig
	Stub      StubConfig
}

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint64
}

type RateLimitConfig struct {
	RequestsPerSecond float64 // 0 - без ограничения
	BurstSize         int
}

type RedisConfig struct {
	Host     string // пустой - кэш выключен
	Port     string
	Password string
	CacheTTL time.Duration
}

// Enabled сообщает, настроен ли кэш
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type LogConfig struct {
	Level string
}

type StubConfig struct {
	Port      string
	RateLimit RateLimitConfig
}

// Load читает конфиг из .env-файла (если он есть) и переменных окружения.
// Переменные окружения важнее файла.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			if !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	cfg.Client.BaseURL = v.GetString("QWALA_BASE_URL")
	cfg.Client.MaxRetries = v.GetUint64("QWALA_MAX_RETRIES")
	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("QWALA_RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = v.GetInt("QWALA_RATE_LIMIT_BURST")
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Stub.Port = v.GetString("STUB_PORT")
	cfg.Stub.RateLimit.RequestsPerSecond = v.GetFloat64("STUB_RATE_LIMIT_RPS")
	cfg.Stub.RateLimit.BurstSize = v.GetInt("STUB_RATE_LIMIT_BURST")

	var err error
	if cfg.Client.Timeout, err = duration(v, "QWALA_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.Redis.CacheTTL, err = duration(v, "QWALA_CACHE_TTL"); err != nil {
		return nil, err
	}

	if cfg.RateLimit.BurstSize < 1 {
		cfg.RateLimit.BurstSize = 1
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("QWALA_BASE_URL", "http://qwa.li")
	v.SetDefault("QWALA_TIMEOUT", "10s")
	v.SetDefault("QWALA_MAX_RETRIES", 0)
	v.SetDefault("QWALA_RATE_LIMIT_RPS", 0)
	v.SetDefault("QWALA_RATE_LIMIT_BURST", 1)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("QWALA_CACHE_TTL", "24h")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STUB_PORT", "8080")
	v.SetDefault("STUB_RATE_LIMIT_RPS", 10)
	v.SetDefault("STUB_RATE_LIMIT_BURST", 20)
}

// duration разбирает строку вида "10s"; viper.GetDuration молча отдаёт 0 на мусоре
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, raw)
	}
	return d, nil
}
