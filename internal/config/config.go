package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/weiawesome/wes-market/internal/handler"
	"github.com/weiawesome/wes-market/internal/processor"
	"github.com/weiawesome/wes-market/internal/reconciler"
	pkgconfig "github.com/weiawesome/wes-market/pkg/config"
	"github.com/weiawesome/wes-market/pkg/idgen"
	"github.com/weiawesome/wes-market/pkg/jwt"
	pkglog "github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/middleware"
	"github.com/weiawesome/wes-market/pkg/pubsub"
	"github.com/weiawesome/wes-market/pkg/storage"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	PubSub     pubsub.Config `mapstructure:"pubsub"`
	Storage    storage.Config
	Auth       jwt.Config
	Cache      CacheConfig
	Reconciler reconciler.Config
	Image      processor.Config
	RateLimit  middleware.RateLimitConfig `mapstructure:"rate_limit"`
	ID         idgen.Config              `mapstructure:"id"`
	Handler    handler.Config
	Log        LogConfig

	v *viper.Viper
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig controls the rating summary cache. An empty Prefix keeps
// keys unprefixed.
type CacheConfig struct {
	Prefix    string        `mapstructure:"prefix"`
	RatingTTL time.Duration `mapstructure:"rating_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	pkgconfig.SetDefaults(v, map[string]interface{}{
		"server.host":                "0.0.0.0",
		"server.port":                8080,
		"server.cors_origins":        []string{"*"},
		"database.driver":            "sqlite",
		"database.host":              "localhost",
		"database.port":              5432,
		"database.user":              "postgres",
		"database.password":          "postgres",
		"database.dbname":            "market",
		"database.sslmode":           "disable",
		"database.file_path":         "./data/market.db",
		"database.max_idle_conns":    10,
		"database.max_open_conns":    100,
		"database.conn_max_lifetime": 60,
		"database.log_level":         "warn",
		"redis.address":              "localhost:6379",
		"redis.password":             "",
		"redis.db":                   0,
		"pubsub.driver":              pubsub.DriverRedis,
		"pubsub.kafka.brokers":       "localhost:9092",
		"pubsub.kafka.group_id":      "wes-market",
		"pubsub.kafka.partitions":    3,
		"storage.driver":             storage.DriverLocal,
		"storage.local.base_path":    "./data/images",
		"storage.local.url_prefix":   "/media",
		"storage.s3.region":          "us-east-1",
		"storage.s3.bucket":          "listings",
		"storage.s3.use_path_style":  true,
		"auth.access_duration":       "15m",
		"auth.refresh_duration":      "168h",
		"auth.issuer":                "wes-market",
		"cache.prefix":               "market",
		"cache.rating_ttl":           "10m",
		"reconciler.interval":        "60s",
		"reconciler.top_n":           100,
		"image.max_width":            1600,
		"image.max_height":           1600,
		"image.jpeg_quality":         85,
		"image.max_bytes":            10 << 20,
		"image.key_prefix":           "listings/",
		"rate_limit.rps":             5,
		"rate_limit.burst":           10,
		"rate_limit.idle_ttl":        "10m",
		"id.machine_id":              1,
		"handler.image_url_ttl":      "1h",
		"handler.max_upload_bytes":   10 << 20,
		"log.level":                  "info",
		"log.pretty":                 false,
	})

	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":                  "PORT",
		"database.driver":              "DB_DRIVER",
		"database.host":                "DB_HOST",
		"database.port":                "DB_PORT",
		"database.user":                "DB_USER",
		"database.password":            "DB_PASSWORD",
		"database.dbname":              "DB_NAME",
		"database.sslmode":             "DB_SSLMODE",
		"database.file_path":           "DB_FILE_PATH",
		"redis.address":                "REDIS_ADDRESS",
		"redis.password":               "REDIS_PASSWORD",
		"redis.db":                     "REDIS_DB",
		"pubsub.driver":                "PUBSUB_DRIVER",
		"pubsub.kafka.brokers":         "KAFKA_BROKERS",
		"pubsub.kafka.group_id":        "KAFKA_GROUP_ID",
		"storage.driver":               "STORAGE_DRIVER",
		"storage.local.base_path":      "STORAGE_LOCAL_PATH",
		"storage.s3.endpoint":          "S3_ENDPOINT",
		"storage.s3.region":            "S3_REGION",
		"storage.s3.bucket":            "S3_BUCKET",
		"storage.s3.access_key_id":     "S3_ACCESS_KEY_ID",
		"storage.s3.secret_access_key": "S3_SECRET_ACCESS_KEY",
		"storage.s3.public_url":        "S3_PUBLIC_URL",
		"auth.private_key_path":        "JWT_PRIVATE_KEY_PATH",
		"reconciler.interval":          "RECONCILER_INTERVAL",
		"reconciler.top_n":             "RECONCILER_TOP_N",
		"id.machine_id":                "MACHINE_ID",
		"log.level":                    "LOG_LEVEL",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.v = v

	return &cfg, nil
}

// Watch re-reads the config file whenever it changes and passes the result
// to onChange. Most settings are bound at startup, so callers apply only
// what can change at runtime.
func (c *Config) Watch(onChange func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		l := pkglog.L()

		var next Config
		if err := c.v.Unmarshal(&next); err != nil {
			l.Warn().Err(err).Str("file", e.Name).Msg("failed to reload config")
			return
		}
		next.v = c.v

		l.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("config reloaded")
		onChange(&next)
	})
	c.v.WatchConfig()
}
