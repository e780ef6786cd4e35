package config

import (
	"time"

	"github.com/google/uuid"

	pkgconfig "github.com/ezchat-cam/coordinator/pkg/config"
)

type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	Redis        RedisConfig
	Database     DatabaseConfig
	Auth         AuthConfig
	Coordination CoordinationConfig
	WS           WSConfig
	Log          LogConfig
}

type ServerConfig struct {
	Host       string
	Port       int
	InstanceID string `mapstructure:"instance_id"`
}

// StoreConfig selects the state backend: "redis" for shared multi-instance
// deployments, "memory" for single-instance and local development.
type StoreConfig struct {
	Driver string
}

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	EventChannel string `mapstructure:"event_channel"`
}

// DatabaseConfig points at the room-profile database. An empty DSN selects
// the in-memory profile repository.
type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Issuer   string
}

type CoordinationConfig struct {
	PresenceTTL   time.Duration `mapstructure:"presence_ttl"`
	RoomLeaseTTL  time.Duration `mapstructure:"room_lease_ttl"`
	ChatLockTTL   time.Duration `mapstructure:"chat_lock_ttl"`
	SlotCapacity  int           `mapstructure:"slot_capacity"`
	ChatRetention int           `mapstructure:"chat_retention"`
	MaxMessageLen int           `mapstructure:"max_message_len"`
	PageSize      int           `mapstructure:"page_size"`
	PromotedCap   int           `mapstructure:"promoted_cap"`
}

type WSConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("store.driver", "redis")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.event_channel", "coord:events")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "coordinator")
	v.SetDefault("coordination.presence_ttl", "30s")
	v.SetDefault("coordination.room_lease_ttl", "2m")
	v.SetDefault("coordination.chat_lock_ttl", "15s")
	v.SetDefault("coordination.slot_capacity", 12)
	v.SetDefault("coordination.chat_retention", 200)
	v.SetDefault("coordination.max_message_len", 500)
	v.SetDefault("coordination.page_size", 20)
	v.SetDefault("coordination.promoted_cap", 5)
	v.SetDefault("ws.ping_interval", "30s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.max_message_size", 4096)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.instance_id", "INSTANCE_ID")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.event_channel", "REDIS_EVENT_CHANNEL")
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("auth.secret", "AUTH_SECRET")
	v.BindEnv("auth.token_ttl", "AUTH_TOKEN_TTL")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Auth.TokenTTL = pkgconfig.Duration(v, "auth.token_ttl", 24*time.Hour)
	cfg.Coordination.PresenceTTL = pkgconfig.Duration(v, "coordination.presence_ttl", 30*time.Second)
	cfg.Coordination.RoomLeaseTTL = pkgconfig.Duration(v, "coordination.room_lease_ttl", 2*time.Minute)
	cfg.Coordination.ChatLockTTL = pkgconfig.Duration(v, "coordination.chat_lock_ttl", 15*time.Second)
	cfg.WS.PingInterval = pkgconfig.Duration(v, "ws.ping_interval", 30*time.Second)
	cfg.WS.PongWait = pkgconfig.Duration(v, "ws.pong_wait", 60*time.Second)
	cfg.WS.WriteWait = pkgconfig.Duration(v, "ws.write_wait", 10*time.Second)

	// Every instance needs a distinct id for cross-instance event fan-out.
	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.New().String()
	}

	return &cfg, nil
}
