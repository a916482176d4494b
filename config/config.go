package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"gif-proxy/engine"
)

type Config struct {
	Address string `json:"address" env:"APP_ADDRESS" envDefault:":3000"`
	Prefork bool   `json:"prefork" env:"APP_PREFORK"`
	Metrics bool   `json:"metrics" env:"APP_METRICS" envDefault:"true"`

	Webp bool `json:"webp" env:"APP_WEBP"`

	AllowedOrigins []string `json:"allowedOrigins" env:"APP_ALLOWED_ORIGINS"`

	Token   string `json:"-" env:"APP_TOKEN"`
	HmacKey string `json:"-" env:"APP_HMAC_KEY"`

	CacheTTL         int   `json:"cacheTTL" env:"APP_CACHE_TTL" envDefault:"1800"`
	HTTPCacheTTL     int   `json:"httpCacheTTL" env:"APP_HTTP_CACHE_TTL" envDefault:"86400"`
	CacheMaxCost     int64 `json:"cacheMaxCost" env:"APP_CACHE_MAX_COST" envDefault:"1073741824"`
	CacheNumCounters int64 `json:"cacheNumCounters" env:"APP_CACHE_NUM_COUNTERS" envDefault:"10000000"`
	CacheBufferItems int64 `json:"cacheBufferItems" env:"APP_CACHE_BUFFER_ITEMS" envDefault:"64"`

	MaxSourceSizeMB int           `json:"maxSourceSizeMB" env:"APP_MAX_SOURCE_SIZE_MB" envDefault:"32"`
	FetchTimeout    time.Duration `json:"fetchTimeout" env:"APP_FETCH_TIMEOUT" envDefault:"30s"`

	GifsiclePath  string        `json:"gifsiclePath" env:"APP_GIFSICLE_PATH" envDefault:"gifsicle"`
	Gif2WebpPath  string        `json:"gif2webpPath" env:"APP_GIF2WEBP_PATH" envDefault:"gif2webp"`
	Heif2JpegPath string        `json:"heif2jpegPath" env:"APP_HEIF2JPEG_PATH" envDefault:"heif-convert"`
	Quality       int           `json:"quality" env:"APP_QUALITY" envDefault:"80"`
	ToolTimeout   time.Duration `json:"toolTimeout" env:"APP_TOOL_TIMEOUT" envDefault:"30s"`
	TempDir       string        `json:"tempDir" env:"APP_TEMP_DIR"`

	S3 S3Config `json:"s3" envPrefix:"APP_S3_"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint" env:"ENDPOINT"`
	Bucket    string `json:"bucket" env:"BUCKET"`
	AccessKey string `json:"-" env:"ACCESS_KEY"`
	SecretKey string `json:"-" env:"SECRET_KEY"`
	Region    string `json:"region" env:"REGION"`
	Prefix    string `json:"prefix" env:"PREFIX" envDefault:"gif-proxy/"`
	UseSSL    bool   `json:"useSSL" env:"USE_SSL" envDefault:"true"`
}

// Enabled reports whether a second tier cache is configured.
func (s S3Config) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", c.Quality)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool timeout must be positive, got %s", c.ToolTimeout)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.GifsiclePath == "" {
		return fmt.Errorf("gifsicle path is required")
	}
	if c.S3.Endpoint != "" && c.S3.Bucket == "" {
		return fmt.Errorf("s3 bucket is required when an endpoint is set")
	}
	return nil
}

// Engine returns the transform engine settings.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		GifsiclePath:  c.GifsiclePath,
		Gif2WebpPath:  c.Gif2WebpPath,
		Heif2JpegPath: c.Heif2JpegPath,
		Quality:       c.Quality,
		Timeout:       c.ToolTimeout,
		TempDir:       c.TempDir,
	}
}
