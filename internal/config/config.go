package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "yield/common/config"
)

// Config is the yield HTTP API configuration.
type Config struct {
	HTTP struct {
		Addr string
	}
	Database commoncfg.DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Identity IdentityConfig
	Log      struct {
		Level  string
		Format string
	}
}

// RedisConfig adds the cache and stream knobs on top of the connection settings.
type RedisConfig struct {
	Enabled         bool
	Conn            commoncfg.RedisConfig
	ProfileCacheTTL time.Duration
	AlertStream     string
	StreamMaxLen    int64
}

// MQTTConfig controls vehicle status publication. Disabled by default.
type MQTTConfig struct {
	Enabled     bool
	Conn        commoncfg.MQTTConfig
	TopicPrefix string
}

// IdentityConfig points at the hosted identity provider (GoTrue-compatible REST API).
type IdentityConfig struct {
	URL        string
	AnonKey    string
	ServiceKey string
	Timeout    time.Duration
	RetryCount int
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database = commoncfg.DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "yield",
		SSLMode:         "disable",
		MaxConns:        20,
		ConnMaxLifetime: 30 * time.Minute,
	}
	cfg.Database.LoadFromEnv("DB")
	cfg.Database.MaxIdle = cfg.Database.MaxConns / 2

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "true") == "true"
	cfg.Redis.Conn = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.Conn.LoadFromEnv("REDIS")
	cfg.Redis.ProfileCacheTTL = time.Duration(parseInt(getEnv("PROFILE_CACHE_TTL_SECONDS", "60"), 60)) * time.Second
	cfg.Redis.AlertStream = getEnv("ALERT_STREAM", "yield:alerts")
	cfg.Redis.StreamMaxLen = int64(parseInt(getEnv("ALERT_STREAM_MAXLEN", "10000"), 10000))

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Conn = commoncfg.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "yield-api", QoS: 1}
	cfg.MQTT.Conn.LoadFromEnv("MQTT")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "yield/vehicles")

	cfg.Identity.URL = getEnv("IDENTITY_URL", "http://localhost:9999")
	cfg.Identity.AnonKey = getEnv("IDENTITY_ANON_KEY", "")
	cfg.Identity.ServiceKey = getEnv("IDENTITY_SERVICE_KEY", "")
	cfg.Identity.Timeout = time.Duration(parseInt(getEnv("IDENTITY_TIMEOUT_SECONDS", "10"), 10)) * time.Second
	cfg.Identity.RetryCount = parseInt(getEnv("IDENTITY_RETRY_COUNT", "2"), 2)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
