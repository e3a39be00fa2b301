package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cesargomez89/spotdown/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port       string `toml:"port"`
	DBPath     string `toml:"db_path"`
	ScratchDir string `toml:"scratch_dir"`
	LogLevel   string `toml:"log_level"`
	LogFormat  string `toml:"log_format"`

	JobConcurrency      int           `toml:"job_concurrency"`
	TrackConcurrency    int           `toml:"track_concurrency"`
	PollInterval        time.Duration `toml:"poll_interval"`
	StuckJobTimeout     time.Duration `toml:"stuck_job_timeout"`
	SweepInterval       time.Duration `toml:"sweep_interval"`
	ExpirationThreshold time.Duration `toml:"expiration_threshold"`
	ReclaimDelay        time.Duration `toml:"reclaim_delay"`
	PlaylistCacheTTL    time.Duration `toml:"playlist_cache_ttl"`

	SpotifyClientID     string `toml:"spotify_client_id"`
	SpotifyClientSecret string `toml:"spotify_client_secret"`
	SpotifyAPIURL       string `toml:"spotify_api_url"`
	SpotifyTokenURL     string `toml:"spotify_token_url"`

	S3Endpoint        string `toml:"s3_endpoint"`
	R2AccountID       string `toml:"r2_account_id"`
	S3Region          string `toml:"s3_region"`
	S3AccessKeyID     string `toml:"s3_access_key_id"`
	S3SecretAccessKey string `toml:"s3_secret_access_key"`
	S3Bucket          string `toml:"s3_bucket"`
	PublicBaseURL     string `toml:"public_base_url"`
	BlobDir           string `toml:"blob_dir"`

	YTDLPPath   string `toml:"ytdlp_path"`
	FFmpegPath  string `toml:"ffmpeg_path"`
	CookiesPath string `toml:"cookies_path"`

	OTLPEndpoint string `toml:"otlp_endpoint"`

	parseErrors []string
}

func defaults() *Config {
	return &Config{
		Port:                constants.DefaultPort,
		DBPath:              constants.DefaultDBPath,
		ScratchDir:          constants.DefaultScratchDir,
		LogLevel:            "info",
		LogFormat:           "text",
		JobConcurrency:      constants.DefaultJobConcurrency,
		TrackConcurrency:    constants.DefaultTrackConcurrency,
		PollInterval:        constants.DefaultPollInterval,
		StuckJobTimeout:     constants.DefaultStuckJobTimeout,
		SweepInterval:       constants.DefaultSweepInterval,
		ExpirationThreshold: constants.DefaultExpiration,
		ReclaimDelay:        constants.DefaultReclaimDelay,
		PlaylistCacheTTL:    constants.DefaultPlaylistCacheTTL,
		SpotifyAPIURL:       constants.DefaultSpotifyAPIURL,
		SpotifyTokenURL:     constants.DefaultSpotifyTokenURL,
		S3Region:            constants.DefaultS3Region,
		BlobDir:             constants.DefaultBlobDir,
		YTDLPPath:           constants.DefaultYTDLPPath,
		FFmpegPath:          constants.DefaultFFmpegPath,
		CookiesPath:         constants.DefaultCookiesPath,
	}
}

// Load loads configuration from environment variables with defaults.
// If CONFIG_FILE is set, that file is decoded first and the environment
// is applied on top.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile loads defaults, then the TOML file at path (if any), then the environment.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.ScratchDir = getEnv("SCRATCH_DIR", c.ScratchDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.JobConcurrency = c.getInt("JOB_CONCURRENCY", c.JobConcurrency)
	c.TrackConcurrency = c.getInt("TRACK_CONCURRENCY", c.TrackConcurrency)
	c.PollInterval = c.getDuration("POLL_INTERVAL", c.PollInterval)
	c.StuckJobTimeout = c.getDuration("STUCK_JOB_TIMEOUT", c.StuckJobTimeout)
	c.SweepInterval = c.getDuration("SWEEP_INTERVAL", c.SweepInterval)
	c.ExpirationThreshold = c.getDuration("EXPIRATION_THRESHOLD", c.ExpirationThreshold)
	c.ReclaimDelay = c.getDuration("RECLAIM_DELAY", c.ReclaimDelay)
	c.PlaylistCacheTTL = c.getDuration("PLAYLIST_CACHE_TTL", c.PlaylistCacheTTL)

	c.SpotifyClientID = getEnv("SPOTIFY_CLIENT_ID", c.SpotifyClientID)
	c.SpotifyClientSecret = getEnv("SPOTIFY_CLIENT_SECRET", c.SpotifyClientSecret)
	c.SpotifyAPIURL = getEnv("SPOTIFY_API_URL", c.SpotifyAPIURL)
	c.SpotifyTokenURL = getEnv("SPOTIFY_TOKEN_URL", c.SpotifyTokenURL)

	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.R2AccountID = getEnv("R2_ACCOUNT_ID", c.R2AccountID)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3AccessKeyID = getEnv("S3_ACCESS_KEY_ID", c.S3AccessKeyID)
	c.S3SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", c.S3SecretAccessKey)
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.PublicBaseURL = getEnv("PUBLIC_BASE_URL", c.PublicBaseURL)
	c.BlobDir = getEnv("BLOB_DIR", c.BlobDir)

	c.YTDLPPath = getEnv("YTDLP_PATH", c.YTDLPPath)
	c.FFmpegPath = getEnv("FFMPEG_PATH", c.FFmpegPath)
	c.CookiesPath = getEnv("COOKIES_PATH", c.CookiesPath)

	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
}

// UsesS3 reports whether artifacts go to an S3 compatible bucket instead of BlobDir.
func (c *Config) UsesS3() bool {
	return c.S3Bucket != ""
}

// ResolvedS3Endpoint returns S3_ENDPOINT, or the R2 endpoint derived from R2_ACCOUNT_ID.
func (c *Config) ResolvedS3Endpoint() string {
	if c.S3Endpoint != "" {
		return c.S3Endpoint
	}
	if c.R2AccountID != "" {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2AccountID)
	}
	return ""
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	errors := append([]string{}, c.parseErrors...)

	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	if c.ScratchDir == "" {
		errors = append(errors, "SCRATCH_DIR cannot be empty")
	}

	if c.JobConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("JOB_CONCURRENCY must be at least 1, got: %d", c.JobConcurrency))
	}
	if c.TrackConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("TRACK_CONCURRENCY must be at least 1, got: %d", c.TrackConcurrency))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"POLL_INTERVAL", c.PollInterval},
		{"STUCK_JOB_TIMEOUT", c.StuckJobTimeout},
		{"SWEEP_INTERVAL", c.SweepInterval},
		{"EXPIRATION_THRESHOLD", c.ExpirationThreshold},
		{"RECLAIM_DELAY", c.ReclaimDelay},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}

	if c.PlaylistCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("PLAYLIST_CACHE_TTL cannot be negative, got: %s", c.PlaylistCacheTTL))
	}

	for name, raw := range map[string]string{
		"SPOTIFY_API_URL":   c.SpotifyAPIURL,
		"SPOTIFY_TOKEN_URL": c.SpotifyTokenURL,
	} {
		if raw == "" {
			errors = append(errors, fmt.Sprintf("%s cannot be empty", name))
		} else if _, err := url.ParseRequestURI(raw); err != nil {
			errors = append(errors, fmt.Sprintf("%s is not a valid URL: %s", name, raw))
		}
	}

	if c.UsesS3() {
		if c.ResolvedS3Endpoint() == "" {
			errors = append(errors, "S3_ENDPOINT or R2_ACCOUNT_ID is required when S3_BUCKET is set")
		}
		if c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
			errors = append(errors, "S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when S3_BUCKET is set")
		}
		if c.PublicBaseURL == "" {
			errors = append(errors, "PUBLIC_BASE_URL is required when S3_BUCKET is set")
		}
	} else if c.BlobDir == "" {
		errors = append(errors, "BLOB_DIR cannot be empty when S3_BUCKET is not set")
	}

	if c.YTDLPPath == "" {
		errors = append(errors, "YTDLP_PATH cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text":   true,
		"json":   true,
		"pretty": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, pretty, got: %s", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// ValidateCredentials checks the settings only the engine needs.
func (c *Config) ValidateCredentials() error {
	var missing []string
	if c.SpotifyClientID == "" {
		missing = append(missing, "SPOTIFY_CLIENT_ID")
	}
	if c.SpotifyClientSecret == "" {
		missing = append(missing, "SPOTIFY_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func (c *Config) getInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s must be an integer, got: %s", key, value))
		return fallback
	}
	return n
}

func (c *Config) getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s must be a duration like 30s or 10m, got: %s", key, value))
		return fallback
	}
	return d
}
