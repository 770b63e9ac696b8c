package config

import (
	"blogapp/storage/persistent"
	"blogapp/utils"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
)

type StorageMode string

const (
	InMemory       StorageMode = "inmemory"
	Mongo          StorageMode = "mongo"
	MongoWithCache StorageMode = "cached"
)

type AppMode string

const (
	ServerMode AppMode = "server"
	CheckMode  AppMode = "check"
)

const (
	DefaultPort     = "5002"
	DefaultMongoURI = "mongodb://localhost:27017/blogapp"
	DefaultDBName   = "blogapp"
	DefaultRedisURL = "localhost:6379"
)

var ErrMissingJWTSecret = errors.New("'JWT_SECRET' not specified")

// Config is read once at startup and not modified afterwards.
type Config struct {
	AppMode     AppMode
	Port        string
	StorageMode StorageMode

	MongoURI            string
	MongoDBName         string
	MongoConnectTimeout time.Duration

	RedisURL string
	CacheTTL time.Duration

	JWTSecret         string
	CORSAllowedOrigin string
	ServerTimeout     time.Duration
}

// LoadDotEnv loads variables from files (".env" when none are given) without
// overriding the ones already set. A missing file is not an error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env file loaded", slog.String("error", err.Error()))
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		AppMode:             AppMode(utils.GetEnvVarWithDefault("APP_MODE", string(ServerMode))),
		Port:                utils.GetEnvVarWithDefault("PORT", DefaultPort),
		StorageMode:         StorageMode(utils.GetEnvVarWithDefault("STORAGE_MODE", string(Mongo))),
		MongoURI:            utils.GetEnvVarWithDefault("MONGODB_URI", DefaultMongoURI),
		MongoConnectTimeout: utils.GetEnvDurationWithDefault("MONGO_CONNECT_TIMEOUT", 5*time.Second),
		RedisURL:            utils.GetEnvVarWithDefault("REDIS_URL", DefaultRedisURL),
		CacheTTL:            utils.GetEnvDurationWithDefault("CACHE_TTL", time.Hour),
		JWTSecret:           utils.GetEnvVarWithDefault("JWT_SECRET", ""),
		CORSAllowedOrigin:   utils.GetEnvVarWithDefault("CORS_ALLOWED_ORIGIN", "*"),
		ServerTimeout:       utils.GetEnvDurationWithDefault("SERVER_TIMEOUT", 15*time.Second),
	}
	cfg.MongoDBName = utils.GetEnvVarWithDefault("MONGO_DBNAME", persistent.DatabaseName(cfg.MongoURI, DefaultDBName))

	switch cfg.AppMode {
	case ServerMode, CheckMode:
	default:
		return nil, fmt.Errorf("invalid 'APP_MODE': %q", cfg.AppMode)
	}
	switch cfg.StorageMode {
	case InMemory, Mongo, MongoWithCache:
	default:
		return nil, fmt.Errorf("invalid 'STORAGE_MODE': %q", cfg.StorageMode)
	}
	if cfg.AppMode == ServerMode && cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	return cfg, nil
}
