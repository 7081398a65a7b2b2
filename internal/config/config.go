// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	YouTube       YouTubeConfig
	Transcription TranscriptionConfig
	Retry         RetryConfig
	RabbitMQ      RabbitMQConfig
	Auth          AuthConfig
	Seed          SeedConfig
	Logging       LoggingConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	APIPrefix       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database connection configuration.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
	AutoMigrate    bool
	MigrationsPath string
}

// RedisConfig contains the Redis connection used by the task queue and the
// metadata cache. An empty URL runs transcription in-process.
type RedisConfig struct {
	URL string
}

// YouTubeConfig contains Data API credentials and metadata cache settings.
type YouTubeConfig struct {
	APIKey   string
	CacheTTL time.Duration
}

// TranscriptionConfig contains high-fidelity pipeline settings.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type TranscriptionConfig struct {
	Backend            string
	LanguageCode       string
	RecognitionTimeout time.Duration
	Bucket             string
	MaxInlineBytes     int64
	SampleRate         int
	DownloaderPath     string
	TranscoderPath     string
	TempDir            string
	OpenAIAPIKey       string
	Concurrency        int
	MaxRetry           int
}

// RetryConfig contains bounded backoff settings for upstream calls.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// RabbitMQConfig contains RabbitMQ connection and exchange configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Enabled  bool
	Host     string
	User     string
	Password string
	Exchange string
	Queue    string
	Port     int
}

// AuthConfig lists accepted API keys. No keys disables authentication.
type AuthConfig struct {
	APIKeys []string
}

// SeedConfig toggles sample data on startup.
type SeedConfig struct {
	Enabled bool
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// envBindings keeps the plain environment names operators already use.
var envBindings = map[string]string{
	"server.port":                  "PORT",
	"server.apiprefix":             "API_PREFIX",
	"database.url":                 "DATABASE_URL",
	"redis.url":                    "REDIS_URL",
	"youtube.apikey":               "YOUTUBE_API_KEY",
	"transcription.bucket":         "GCS_BUCKET_NAME",
	"transcription.openaiapikey":   "OPENAI_API_KEY",
	"transcription.languagecode":   "TRANSCRIPTION_LANGUAGE",
	"transcription.backend":        "TRANSCRIPTION_BACKEND",
	"transcription.downloaderpath": "YTDLP_PATH",
	"transcription.transcoderpath": "FFMPEG_PATH",
	"auth.apikeys":                 "API_KEYS",
	"seed.enabled":                 "SEED_DATA",
	"logging.level":                "LOG_LEVEL",
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, "APP_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Auth.APIKeys = splitList(viper.GetString("auth.apikeys"))
	cfg.Server.APIPrefix = normalizePrefix(cfg.Server.APIPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	switch c.Transcription.Backend {
	case "google", "openai":
	default:
		return fmt.Errorf("unknown transcription backend %q (expected google or openai)", c.Transcription.Backend)
	}
	if c.Transcription.RecognitionTimeout <= 0 {
		return fmt.Errorf("transcription recognition timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	return nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.apiprefix", "/api")
	viper.SetDefault("server.readtimeout", 15*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database
	viper.SetDefault("database.url", "postgresql://user:password@db:5432/mydatabase")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.minconnections", 5)
	viper.SetDefault("database.maxidletime", 30*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)
	viper.SetDefault("database.automigrate", true)
	viper.SetDefault("database.migrationspath", "./migrations")

	// Redis
	viper.SetDefault("redis.url", "")

	// YouTube
	viper.SetDefault("youtube.apikey", "")
	viper.SetDefault("youtube.cachettl", 1*time.Hour)

	// Transcription
	viper.SetDefault("transcription.backend", "google")
	viper.SetDefault("transcription.languagecode", "ja-JP")
	viper.SetDefault("transcription.recognitiontimeout", 3600*time.Second)
	viper.SetDefault("transcription.bucket", "")
	viper.SetDefault("transcription.maxinlinebytes", 10*1024*1024)
	viper.SetDefault("transcription.samplerate", 16000)
	viper.SetDefault("transcription.downloaderpath", "yt-dlp")
	viper.SetDefault("transcription.transcoderpath", "ffmpeg")
	viper.SetDefault("transcription.tempdir", "")
	viper.SetDefault("transcription.openaiapikey", "")
	viper.SetDefault("transcription.concurrency", 2)
	viper.SetDefault("transcription.maxretry", 1)

	// Retry
	viper.SetDefault("retry.maxattempts", 3)
	viper.SetDefault("retry.initialinterval", 500*time.Millisecond)
	viper.SetDefault("retry.maxinterval", 5*time.Second)

	// RabbitMQ
	viper.SetDefault("rabbitmq.enabled", false)
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "video.catalog")
	viper.SetDefault("rabbitmq.queue", "video.catalog.events")

	// Auth
	viper.SetDefault("auth.apikeys", "")

	// Seed
	viper.SetDefault("seed.enabled", true)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// normalizePrefix yields "" or a path with a leading and no trailing slash.
func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}
