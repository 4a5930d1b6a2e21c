// Package config loads service configuration from an optional YAML file and
// PROCUREDATA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "PROCUREDATA_"

// Config is the full runtime configuration of the API binary.
type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Database  Database  `yaml:"database"`
	Auth      Auth      `yaml:"auth"`
	Identity  Identity  `yaml:"identity"`
	Mail      Mail      `yaml:"mail"`
	CORS      CORS      `yaml:"cors"`
	RateLimit RateLimit `yaml:"rate_limit"`
	SiteURL   string    `yaml:"site_url"`
	LogLevel  string    `yaml:"log_level"`
}

type HTTP struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Database struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// Identity points at the identity provider admin API. An empty URL selects the
// database-backed user directory.
type Identity struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

// Mail configures outbound notification email. An empty APIKey selects the log-only sender.
type Mail struct {
	APIURL      string        `yaml:"api_url"`
	APIKey      string        `yaml:"api_key"`
	From        string        `yaml:"from"`
	SendTimeout time.Duration `yaml:"send_timeout"`
	Concurrency int           `yaml:"concurrency"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RateLimit struct {
	Burst     int `yaml:"burst"`
	PerSecond int `yaml:"per_second"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		GRPC:     GRPC{Addr: ":9090"},
		Database: Database{MaxOpenConns: 20},
		Auth:     Auth{Audience: "authenticated"},
		Mail: Mail{
			APIURL:      "https://api.resend.com",
			From:        "ProcureData <notificaciones@procuredata.io>",
			SendTimeout: 10 * time.Second,
			Concurrency: 8,
		},
		CORS:      CORS{AllowedOrigins: []string{"*"}},
		RateLimit: RateLimit{Burst: 40, PerSecond: 20},
		SiteURL:   "http://localhost:5173",
		LogLevel:  "info",
	}
}

// Load reads the YAML file at path (if non-empty), applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Load with the file path taken from PROCUREDATA_CONFIG.
func FromEnv() (Config, error) {
	return Load(os.Getenv(envPrefix + "CONFIG"))
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("GRPC_ADDR", &cfg.GRPC.Addr)
	str("PG_DSN", &cfg.Database.DSN)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	str("JWT_AUDIENCE", &cfg.Auth.Audience)
	str("IDENTITY_URL", &cfg.Identity.URL)
	str("IDENTITY_SERVICE_KEY", &cfg.Identity.ServiceKey)
	str("RESEND_API_KEY", &cfg.Mail.APIKey)
	str("MAIL_FROM", &cfg.Mail.From)
	str("SITE_URL", &cfg.SiteURL)
	str("LOG_LEVEL", &cfg.LogLevel)

	if v, ok := lookup(envPrefix + "GRPC_ADDR"); ok && strings.TrimSpace(v) == "-" {
		cfg.GRPC.Addr = ""
	}
	if v, ok := lookup(envPrefix + "CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
	if v, ok := lookup(envPrefix + "MAIL_SEND_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sMAIL_SEND_TIMEOUT: %w", envPrefix, err)
		}
		cfg.Mail.SendTimeout = d
	}
	if v, ok := lookup(envPrefix + "MAIL_CONCURRENCY"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sMAIL_CONCURRENCY: %w", envPrefix, err)
		}
		cfg.Mail.Concurrency = n
	}
	return nil
}

// Validate reports every invalid key, joined.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	} else if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 bytes"))
	}
	if c.Identity.URL != "" && strings.TrimSpace(c.Identity.ServiceKey) == "" {
		errs = append(errs, errors.New("identity.service_key is required when identity.url is set"))
	}
	if c.Mail.SendTimeout <= 0 {
		errs = append(errs, errors.New("mail.send_timeout must be positive"))
	}
	if c.Mail.Concurrency < 1 {
		errs = append(errs, errors.New("mail.concurrency must be at least 1"))
	}
	if c.Mail.APIKey != "" && strings.TrimSpace(c.Mail.From) == "" {
		errs = append(errs, errors.New("mail.from is required when mail.api_key is set"))
	}
	if c.RateLimit.Burst < 1 || c.RateLimit.PerSecond < 1 {
		errs = append(errs, errors.New("rate_limit.burst and rate_limit.per_second must be at least 1"))
	}
	return errors.Join(errs...)
}
