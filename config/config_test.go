package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Address != ":3000" || !cfg.Metrics {
		t.Errorf("unexpected server defaults: address=%q metrics=%v", cfg.Address, cfg.Metrics)
	}
	if cfg.CacheTTL != 1800 || cfg.HTTPCacheTTL != 86400 {
		t.Errorf("unexpected cache ttls: %d %d", cfg.CacheTTL, cfg.HTTPCacheTTL)
	}
	if cfg.Quality != 80 || cfg.ToolTimeout != 30*time.Second {
		t.Errorf("unexpected engine defaults: quality=%d timeout=%s", cfg.Quality, cfg.ToolTimeout)
	}
	if cfg.GifsiclePath != "gifsicle" || cfg.Gif2WebpPath != "gif2webp" || cfg.Heif2JpegPath != "heif-convert" {
		t.Errorf("unexpected tool paths: %q %q %q", cfg.GifsiclePath, cfg.Gif2WebpPath, cfg.Heif2JpegPath)
	}
	if cfg.S3.Enabled() {
		t.Error("expected s3 to be disabled without an endpoint")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ALLOWED_ORIGINS", "example.com,*.cdn.example.com")
	t.Setenv("APP_QUALITY", "65")
	t.Setenv("APP_TOOL_TIMEOUT", "5s")
	t.Setenv("APP_GIFSICLE_PATH", "/opt/bin/gifsicle")
	t.Setenv("APP_S3_ENDPOINT", "minio:9000")
	t.Setenv("APP_S3_BUCKET", "gifs")
	t.Setenv("APP_S3_USE_SSL", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "*.cdn.example.com" {
		t.Errorf("unexpected origins %q", cfg.AllowedOrigins)
	}
	if !cfg.S3.Enabled() || cfg.S3.UseSSL || cfg.S3.Prefix != "gif-proxy/" {
		t.Errorf("unexpected s3 config %+v", cfg.S3)
	}

	ec := cfg.Engine()
	if ec.GifsiclePath != "/opt/bin/gifsicle" || ec.Quality != 65 || ec.Timeout != 5*time.Second {
		t.Errorf("unexpected engine config %+v", ec)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"quality too high", map[string]string{"APP_QUALITY": "101"}, "quality"},
		{"quality zero", map[string]string{"APP_QUALITY": "0"}, "quality"},
		{"zero tool timeout", map[string]string{"APP_TOOL_TIMEOUT": "0s"}, "tool timeout"},
		{"bucket missing", map[string]string{"APP_S3_ENDPOINT": "minio:9000"}, "bucket"},
		{"not a number", map[string]string{"APP_QUALITY": "high"}, "parse environment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
