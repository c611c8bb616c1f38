package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	DatabaseMaxOpenConns   int
	DatabaseMaxIdleConns   int
	DatabaseConnLifetime   time.Duration
	RedisURL               string
	NATSURL                string
	RealtimeChannel        string
	AdminPasswordHash      string
	AdminJWTSecret         string
	AdminSessionTTL        time.Duration
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	UploadMaxSizeMB        int
	OpenAIAPIKey           string
	OpenAIModel            string
	AssignmentCacheTTL     time.Duration
	DraftCacheTTL          time.Duration
	ActiveWindow           time.Duration
	PollInterval           time.Duration
	StreamKeepAlive        time.Duration
	CORSAllowOrigins       string
	DeadlineSweepSchedule  string
	CleanupSchedule        string
	CleanupRetentionDays   int
	SubmitRateLimit        int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("QUIZ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Quiz API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_lifetime", "30m")
	v.SetDefault("realtime.channel", "quiz")
	v.SetDefault("realtime.keep_alive", "30s")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("admin.session_ttl", "12h")
	v.SetDefault("cloudinary.folder", "gema/questions")
	v.SetDefault("upload.max_size_mb", 5)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("cache.assignment_ttl", "30s")
	v.SetDefault("cache.draft_ttl", "24h")
	v.SetDefault("session.active_window", "2m")
	v.SetDefault("session.poll_interval", "3s")
	v.SetDefault("jobs.deadline_sweep", "@every 1m")
	v.SetDefault("jobs.cleanup", "0 3 * * *")
	v.SetDefault("jobs.cleanup_retention_days", 180)
	v.SetDefault("rate_limit.submit", 20)

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"admin.session_ttl",
		"cache.assignment_ttl",
		"cache.draft_ttl",
		"database.conn_lifetime",
		"realtime.keep_alive",
		"session.active_window",
		"session.poll_interval",
	} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		DatabaseMaxOpenConns:   v.GetInt("database.max_open_conns"),
		DatabaseMaxIdleConns:   v.GetInt("database.max_idle_conns"),
		DatabaseConnLifetime:   durations["database.conn_lifetime"],
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeChannel:        v.GetString("realtime.channel"),
		AdminPasswordHash:      v.GetString("admin.password_hash"),
		AdminJWTSecret:         v.GetString("admin.jwt_secret"),
		AdminSessionTTL:        durations["admin.session_ttl"],
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		OpenAIAPIKey:           v.GetString("openai.api_key"),
		OpenAIModel:            v.GetString("openai.model"),
		AssignmentCacheTTL:     durations["cache.assignment_ttl"],
		DraftCacheTTL:          durations["cache.draft_ttl"],
		ActiveWindow:           durations["session.active_window"],
		PollInterval:           durations["session.poll_interval"],
		StreamKeepAlive:        durations["realtime.keep_alive"],
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
		DeadlineSweepSchedule:  v.GetString("jobs.deadline_sweep"),
		CleanupSchedule:        v.GetString("jobs.cleanup"),
		CleanupRetentionDays:   v.GetInt("jobs.cleanup_retention_days"),
		SubmitRateLimit:        v.GetInt("rate_limit.submit"),
	}

	if cfg.AdminJWTSecret == "" || cfg.AdminPasswordHash == "" {
		return Config{}, fmt.Errorf("admin password hash and jwt secret must be provided")
	}

	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = 2 * time.Minute
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 5
	}

	return cfg, nil
}
