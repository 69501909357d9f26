// Package config loads server configuration. Values are layered: built-in
// defaults, then an optional YAML file, then REWEAR_* environment variables
// (a .env file in the working directory is read first if present). Command
// line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "REWEAR_"

// Config is the server configuration.
type Config struct {
	Addr       string `yaml:"addr"`
	DB         string `yaml:"db"`
	Log        string `yaml:"log"`
	JWTSecret  string `yaml:"jwt_secret"`
	AdminEmail string `yaml:"admin_email"`

	Media     MediaConfig     `yaml:"media"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// MediaConfig points at the photo host. Uploads are disabled when
// UploadURL is empty.
type MediaConfig struct {
	UploadURL string        `yaml:"upload_url"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	Folder    string        `yaml:"folder"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RateLimitConfig limits mutating requests per client.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:       ":8080",
		DB:         "rewear.sqlite3",
		AdminEmail: "admin@rewear.local",
		Media: MediaConfig{
			Folder:  "rewear",
			Timeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             20,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"ADDR":             &cfg.Addr,
		"DB":               &cfg.DB,
		"LOG":              &cfg.Log,
		"JWT_SECRET":       &cfg.JWTSecret,
		"ADMIN_EMAIL":      &cfg.AdminEmail,
		"MEDIA_UPLOAD_URL": &cfg.Media.UploadURL,
		"MEDIA_API_KEY":    &cfg.Media.APIKey,
		"MEDIA_API_SECRET": &cfg.Media.APISecret,
		"MEDIA_FOLDER":     &cfg.Media.Folder,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "MEDIA_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sMEDIA_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Media.Timeout = d
	}
	if v, ok := os.LookupEnv(EnvPrefix + "RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err)
		}
		cfg.RateLimit.RequestsPerSecond = f
	}
	if v, ok := os.LookupEnv(EnvPrefix + "RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_BURST: %w", EnvPrefix, err)
		}
		cfg.RateLimit.Burst = n
	}
	return nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.DB == "" {
		return errors.New("db must not be empty")
	}
	if c.Media.UploadURL != "" && (c.Media.APIKey == "" || c.Media.APISecret == "") {
		return errors.New("media.upload_url requires media.api_key and media.api_secret")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	return nil
}

// MediaEnabled reports whether photo uploads are configured.
func (c Config) MediaEnabled() bool { return c.Media.UploadURL != "" }
