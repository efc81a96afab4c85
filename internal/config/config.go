package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config — вся конфигурация сервиса, читается из env один раз при старте.
type Config struct {
	Base       BaseConfig
	DB         DBConfig
	Server     ServerConfig
	Redis      RedisConfig
	Scheduling SchedulingConfig
	Log        LogConfig
}

type BaseConfig struct {
	Env string `envconfig:"APP_ENV" default:"development"`
}

type DBConfig struct {
	Driver          string `envconfig:"DB_DRIVER" default:"postgres"` // postgres | sqlite
	Host            string `envconfig:"DB_HOST" default:"postgres"`
	Port            int    `envconfig:"DB_PORT" default:"5432"`
	User            string `envconfig:"DB_USER" default:"scheduling"`
	Password        string `envconfig:"DB_PASSWORD" default:"scheduling"`
	Name            string `envconfig:"DB_NAME" default:"scheduling_db"`
	SSLMode         string `envconfig:"DB_SSLMODE" default:"disable"`
	TimeZone        string `envconfig:"DB_TIMEZONE" default:"UTC"`
	SQLitePath      string `envconfig:"DB_SQLITE_PATH" default:"file:scheduling.db?_busy_timeout=5000"`
	MaxOpenConns    int    `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifeTime int    `envconfig:"DB_CONN_MAX_LIFETIME_MIN" default:"30"` // минут
}

type ServerConfig struct {
	GRPCAddr        string        `envconfig:"GRPC_ADDR" default:":50051"`
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// Лимит запросов на IP для HTTP-шлюза.
	RateLimitRPS   float64 `envconfig:"HTTP_RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst int     `envconfig:"HTTP_RATE_LIMIT_BURST" default:"20"`
}

type RedisConfig struct {
	// Пустой адрес — redis не используется (события не публикуются, лок локальный).
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Stream   string `envconfig:"REDIS_JOB_STREAM" default:"job_events"`
	MaxLen   int64  `envconfig:"REDIS_JOB_STREAM_MAXLEN" default:"10000"`
}

type SchedulingConfig struct {
	TravelBufferMin int     `envconfig:"TRAVEL_BUFFER_MIN" default:"30"`
	RadiusKm        float64 `envconfig:"MATCH_RADIUS_KM" default:"30"`
	BusinessStart   string  `envconfig:"BUSINESS_START" default:"06:00"`
	BusinessEnd     string  `envconfig:"BUSINESS_END" default:"21:00"`
	// YAML с дополнительными алиасами городов, опционально.
	AliasFile   string        `envconfig:"CITY_ALIAS_FILE"`
	LockBackend string        `envconfig:"LOCK_BACKEND" default:"local"` // local | redis
	LockTTL     time.Duration `envconfig:"LOCK_TTL" default:"10s"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load читает конфиг из окружения.
func Load() (*Config, error) {
	var cfg Config
	// Группы читаются по отдельности, чтобы ключи не получали префикс поля.
	for _, group := range []any{&cfg.Base, &cfg.DB, &cfg.Server, &cfg.Redis, &cfg.Scheduling, &cfg.Log} {
		if err := envconfig.Process("", group); err != nil {
			return nil, fmt.Errorf("envconfig: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// минимальная валидация
func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres":
		if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
			return fmt.Errorf("invalid DB config: host/user/name must not be empty")
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("invalid DB config: sqlite path must not be empty")
		}
	default:
		return fmt.Errorf("invalid DB config: unknown driver %q", c.DB.Driver)
	}

	if c.Scheduling.TravelBufferMin < 0 {
		return fmt.Errorf("invalid scheduling config: travel buffer must not be negative")
	}
	if c.Scheduling.RadiusKm <= 0 {
		return fmt.Errorf("invalid scheduling config: radius must be positive")
	}
	switch c.Scheduling.LockBackend {
	case "local":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("invalid scheduling config: redis lock backend requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("invalid scheduling config: unknown lock backend %q", c.Scheduling.LockBackend)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Base.Env == "production"
}

// TravelBuffer — интервал на дорогу после каждой записи.
func (s SchedulingConfig) TravelBuffer() time.Duration {
	return time.Duration(s.TravelBufferMin) * time.Minute
}
