package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации консоли мониторинга.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Store    StoreConfig    `mapstructure:"store"`
	History  HistoryConfig  `mapstructure:"history"`
}

// ServerConfig описывает настройки HTTP-сервера консоли.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// RedisConfig описывает подключение к Redis (L2-кэш снапшота).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig описывает подключение к PostgreSQL (история алертов/активности).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// AgentEndpointConfig — декларация одного удаленного агента.
// Convention ("GET"/"POST") на границе конфигурации превращается
// в закрытый tagged-variant внутри gateway.Registry.
type AgentEndpointConfig struct {
	ID             string `mapstructure:"id"`
	Name           string `mapstructure:"name"`
	BaseURL        string `mapstructure:"base_url"`
	Convention     string `mapstructure:"convention"`
	HealthAction   string `mapstructure:"health_action"`
	RequiresDomain bool   `mapstructure:"requires_domain"`
	Orchestrator   bool   `mapstructure:"orchestrator"`
}

// GatewayConfig содержит настройки вызовов удаленных агентов.
type GatewayConfig struct {
	CallTimeout   time.Duration         `mapstructure:"call_timeout"`
	RetryAttempts int                   `mapstructure:"retry_attempts"`
	DefaultDomain string                `mapstructure:"default_domain"`
	RateLimit     float64               `mapstructure:"rate_limit"`
	RateBurst     int                   `mapstructure:"rate_burst"`
	Agents        []AgentEndpointConfig `mapstructure:"agents"`
}

// RealtimeConfig — каденции опроса и политика переподключения.
type RealtimeConfig struct {
	HealthInterval       time.Duration `mapstructure:"health_interval"`
	MetricsInterval      time.Duration `mapstructure:"metrics_interval"`
	ActivityInterval     time.Duration `mapstructure:"activity_interval"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// StoreConfig — параметры реактивного стора.
type StoreConfig struct {
	CacheWindow   time.Duration `mapstructure:"cache_window"`
	MaxAlerts     int           `mapstructure:"max_alerts"`
	MaxActivity   int           `mapstructure:"max_activity"`
	SnapshotTTL   time.Duration `mapstructure:"snapshot_ttl"`
	SnapshotEvery time.Duration `mapstructure:"snapshot_every"`
}

// HistoryConfig — параметры батч-записи истории в Postgres.
type HistoryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: REALTIME_HEALTH_INTERVAL=10s -> realtime.health_interval
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла (его отсутствие — не ошибка, работаем на ENV и дефолтах)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("database.max_conns", 15)

	v.SetDefault("gateway.call_timeout", 30*time.Second)
	v.SetDefault("gateway.retry_attempts", 2)
	v.SetDefault("gateway.default_domain", "example.com")
	v.SetDefault("gateway.rate_limit", 50)
	v.SetDefault("gateway.rate_burst", 20)

	v.SetDefault("realtime.health_interval", 30*time.Second)
	v.SetDefault("realtime.metrics_interval", 60*time.Second)
	v.SetDefault("realtime.activity_interval", 45*time.Second)
	v.SetDefault("realtime.reconnect_base_delay", 1*time.Second)
	v.SetDefault("realtime.max_reconnect_attempts", 5)

	v.SetDefault("store.cache_window", 30*time.Second)
	v.SetDefault("store.max_alerts", 10)
	v.SetDefault("store.max_activity", 10)
	v.SetDefault("store.snapshot_ttl", 24*time.Hour)
	v.SetDefault("store.snapshot_every", 5*time.Second)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.buffer_size", 10000)
	v.SetDefault("history.batch_size", 100)
	v.SetDefault("history.flush_interval", 500*time.Millisecond)
}
