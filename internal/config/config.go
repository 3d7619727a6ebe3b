package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment string
	Debug       bool
	HTTPPort    string

	// Local persistence
	DatabasePath string
	RulesPath    string

	// Remote controller
	ControllerURL      string
	ControllerSite     string
	ControllerInsecure bool
	ControllerTimeout  time.Duration

	// Operator auth
	JWTSecret     string
	AdminPassword string

	// Background maintenance (sync + cleanup), cron spec
	MaintenanceSpec string

	// Outbound notification URLs (shoutrrr format), comma separated
	NotifyURLs []string
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:        getEnv("AF_ENV", "development"),
		Debug:              getBool("AF_DEBUG", false),
		HTTPPort:           getEnv("AF_HTTP_PORT", "8080"),
		DatabasePath:       getEnv("AF_DB_PATH", filepath.Join("data", "appfence.db")),
		RulesPath:          getEnv("AF_RULES_PATH", filepath.Join("data", "rules.json")),
		ControllerURL:      getEnv("AF_CONTROLLER_URL", "https://192.168.1.1:8443"),
		ControllerSite:     getEnv("AF_CONTROLLER_SITE", "default"),
		ControllerInsecure: getBool("AF_CONTROLLER_INSECURE", true),
		ControllerTimeout:  getDuration("AF_CONTROLLER_TIMEOUT", 15*time.Second),
		JWTSecret:          getEnv("AF_JWT_SECRET", ""),
		AdminPassword:      getEnv("AF_ADMIN_PASSWORD", ""),
		MaintenanceSpec:    getEnv("AF_MAINTENANCE_SPEC", "@every 15m"),
		NotifyURLs:         getList("AF_NOTIFY_URLS"),
	}

	for _, p := range []string{cfg.DatabasePath, cfg.RulesPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return Config{}, fmt.Errorf("ensure data directory: %w", err)
		}
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
