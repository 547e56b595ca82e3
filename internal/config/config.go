// Package config loads planner and service settings from a YAML file and
// the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/htangden/lastbil-optimering/internal/solver"
)

type Config struct {
	Planner  Planner  `yaml:"planner"`
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Webhooks Webhooks `yaml:"webhooks"`
	Auth     Auth     `yaml:"auth"`
	Log      Log      `yaml:"log"`
}

type Planner struct {
	ConversionFactor float64 `yaml:"conversion_factor"`
	Solver           string  `yaml:"solver"`
	Workers          int     `yaml:"workers"`
	MaxNodes         int     `yaml:"max_nodes"`
	SinkRelay        bool    `yaml:"sink_relay"`
	VerifySolutions  bool    `yaml:"verify_solutions"`
	Locator          Locator `yaml:"locator"`
}

type Locator struct {
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
	SimplexSize   float64 `yaml:"simplex_size"`
}

type Server struct {
	Port      string  `yaml:"port"`
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
}

type Database struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type Redis struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type Webhooks struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// Auth selects how callers are identified. In "header" mode the tenant and
// role headers are trusted as set by a gateway; "hmac" and "jwks" require a
// bearer token.
type Auth struct {
	Mode        string `yaml:"mode"`
	HMACSecret  string `yaml:"hmac_secret"`
	JWKSURL     string `yaml:"jwks_url"`
	TenantClaim string `yaml:"tenant_claim"`
	RoleClaim   string `yaml:"role_claim"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Planner: Planner{
			ConversionFactor: 10,
			Solver:           "ssp",
			Workers:          runtime.GOMAXPROCS(0),
			MaxNodes:         20,
			Locator:          Locator{MaxIterations: 2000, Tolerance: 1e-10, SimplexSize: 0.05},
		},
		Server:   Server{Port: "8080", RateRPS: 2, RateBurst: 4},
		Database: Database{Migrate: true},
		Redis:    Redis{Channel: "plan-events"},
		Webhooks: Webhooks{MaxAttempts: 10},
		Auth:     Auth{Mode: "header", TenantClaim: "tenant", RoleClaim: "role"},
		Log:      Log{Level: "info", Format: "text"},
	}
}

// Load reads path (optional: "" means defaults only), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
			}
		}
	}
	str("PORT", &c.Server.Port)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("LOG_LEVEL", &c.Log.Level)
	str("PLANNER_SOLVER", &c.Planner.Solver)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	num("RATE_RPS", func(v string) (err error) { c.Server.RateRPS, err = strconv.ParseFloat(v, 64); return })
	num("RATE_BURST", func(v string) (err error) { c.Server.RateBurst, err = strconv.Atoi(v); return })
	num("WEBHOOK_MAX_ATTEMPTS", func(v string) (err error) { c.Webhooks.MaxAttempts, err = strconv.Atoi(v); return })
	num("PLANNER_WORKERS", func(v string) (err error) { c.Planner.Workers, err = strconv.Atoi(v); return })
	num("CONVERSION_FACTOR", func(v string) (err error) {
		c.Planner.ConversionFactor, err = strconv.ParseFloat(v, 64)
		return
	})
	num("DB_MIGRATE", func(v string) (err error) { c.Database.Migrate, err = strconv.ParseBool(v); return })
	return errors.Join(errs...)
}

// Validate rejects settings the planner cannot run with.
func (c Config) Validate() error {
	var errs []error
	if !(c.Planner.ConversionFactor > 1) {
		errs = append(errs, fmt.Errorf("config: planner.conversion_factor must be > 1, got %v", c.Planner.ConversionFactor))
	}
	if _, err := solver.ByName(c.Planner.Solver); err != nil {
		errs = append(errs, fmt.Errorf("config: planner.solver: %w", err))
	}
	if c.Planner.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: planner.workers must be >= 0, got %d", c.Planner.Workers))
	}
	if c.Planner.MaxNodes < 0 {
		errs = append(errs, fmt.Errorf("config: planner.max_nodes must be >= 0, got %d", c.Planner.MaxNodes))
	}
	if c.Planner.Locator.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("config: planner.locator.max_iterations must be > 0"))
	}
	if c.Server.RateRPS <= 0 || c.Server.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("config: server rate limit must be positive"))
	}
	if c.Webhooks.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("config: webhooks.max_attempts must be > 0"))
	}
	switch c.Auth.Mode {
	case "header":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, fmt.Errorf("config: auth.hmac_secret is required in hmac mode"))
		}
	case "jwks":
		if c.Auth.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("config: auth.jwks_url is required in jwks mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: auth.mode must be header, hmac or jwks, got %q", c.Auth.Mode))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ConfigureLogger applies the log section to the standard logrus logger.
func (c Config) ConfigureLogger() {
	if lvl, err := log.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(lvl)
	}
	if c.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
