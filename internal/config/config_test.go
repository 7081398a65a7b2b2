package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "load with defaults (no config file)",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 8000 {
					t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
				}
				if cfg.Server.APIPrefix != "/api" {
					t.Errorf("Server.APIPrefix = %q, want /api", cfg.Server.APIPrefix)
				}
				if cfg.Database.URL != "postgresql://user:password@db:5432/mydatabase" {
					t.Errorf("Database.URL = %s", cfg.Database.URL)
				}
				if cfg.Transcription.RecognitionTimeout != time.Hour {
					t.Errorf("Transcription.RecognitionTimeout = %v, want 1h", cfg.Transcription.RecognitionTimeout)
				}
				if cfg.Transcription.Backend != "google" {
					t.Errorf("Transcription.Backend = %s, want google", cfg.Transcription.Backend)
				}
				if cfg.Retry.MaxAttempts != 3 {
					t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
				}
				if len(cfg.Auth.APIKeys) != 0 {
					t.Errorf("Auth.APIKeys = %v, want empty", cfg.Auth.APIKeys)
				}
				if !cfg.Seed.Enabled {
					t.Error("Seed.Enabled = false, want true")
				}
				if !cfg.Database.AutoMigrate || cfg.Database.MigrationsPath != "./migrations" {
					t.Errorf("Database migrations = %v %q, want true ./migrations", cfg.Database.AutoMigrate, cfg.Database.MigrationsPath)
				}
			},
		},
		{
			name: "load with plain environment variables",
			env: map[string]string{
				"DATABASE_URL":    "postgres://catalog:secret@pg:5432/catalog",
				"YOUTUBE_API_KEY": "yt-key",
				"API_PREFIX":      "v1/",
				"API_KEYS":        "k1, k2 ,,",
				"GCS_BUCKET_NAME": "audio-bucket",
				"PORT":            "9090",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Database.URL != "postgres://catalog:secret@pg:5432/catalog" {
					t.Errorf("Database.URL = %s", cfg.Database.URL)
				}
				if cfg.YouTube.APIKey != "yt-key" {
					t.Errorf("YouTube.APIKey = %s, want yt-key", cfg.YouTube.APIKey)
				}
				if cfg.Server.APIPrefix != "/v1" {
					t.Errorf("Server.APIPrefix = %q, want /v1", cfg.Server.APIPrefix)
				}
				if len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys[0] != "k1" || cfg.Auth.APIKeys[1] != "k2" {
					t.Errorf("Auth.APIKeys = %v, want [k1 k2]", cfg.Auth.APIKeys)
				}
				if cfg.Transcription.Bucket != "audio-bucket" {
					t.Errorf("Transcription.Bucket = %s, want audio-bucket", cfg.Transcription.Bucket)
				}
				if cfg.Server.Port != 9090 {
					t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
				}
			},
		},
		{
			name: "prefixed environment variables",
			env: map[string]string{
				"APP_TRANSCRIPTION_BACKEND": "openai",
				"APP_REDIS_URL":             "redis://localhost:6379/2",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Transcription.Backend != "openai" {
					t.Errorf("Transcription.Backend = %s, want openai", cfg.Transcription.Backend)
				}
				if cfg.Redis.URL != "redis://localhost:6379/2" {
					t.Errorf("Redis.URL = %s", cfg.Redis.URL)
				}
			},
		},
		{
			name:    "unknown transcription backend",
			env:     map[string]string{"TRANSCRIPTION_BACKEND": "carrier-pigeon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg == nil {
				t.Fatal("Load() returned nil config")
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"":       "",
		"/":      "",
		"/api":   "/api",
		"api":    "/api",
		"/api/":  "/api",
		" /v2 ":  "/v2",
		"a/b///": "/a/b",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
