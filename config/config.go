/*
Package config loads server configuration from the environment.

PURPOSE:
  Everything operational is environment-driven, with a .env file for local
  development (loaded via godotenv, missing file is fine). Command-line
  flags in cmd/server override these values.

VARIABLES:
  PORT           HTTP server port                 (default 8080)
  DB_PATH        SQLite database path             (default canteen.db)
  CUTOFF_HOUR    Daily cancellation cutoff hour   (default 8)
  CUTOFF_MINUTE  Daily cancellation cutoff minute (default 0)
  CUTOFF_TZ      Facility time zone, IANA name    (default local)
  CORS_ORIGINS   Comma-separated allowed origins

The cutoff hour deliberately lives here and not as a literal in the
handlers: the kitchen-ordering deadline is facility policy, not code.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/canteen-engine/canteen"
)

// Config holds all server configuration.
type Config struct {
	Port        int
	DBPath      string
	CutoffHour  int
	CutoffMin   int
	CutoffTZ    string
	CORSOrigins []string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := &Config{
		Port:       envInt("PORT", 8080),
		DBPath:     envString("DB_PATH", "canteen.db"),
		CutoffHour: envInt("CUTOFF_HOUR", 8),
		CutoffMin:  envInt("CUTOFF_MINUTE", 0),
		CutoffTZ:   envString("CUTOFF_TZ", ""),
		CORSOrigins: splitList(envString("CORS_ORIGINS",
			"http://localhost:5173,http://localhost:8080")),
	}

	if cfg.CutoffHour < 0 || cfg.CutoffHour > 23 {
		return nil, fmt.Errorf("CUTOFF_HOUR out of range: %d", cfg.CutoffHour)
	}
	if cfg.CutoffMin < 0 || cfg.CutoffMin > 59 {
		return nil, fmt.Errorf("CUTOFF_MINUTE out of range: %d", cfg.CutoffMin)
	}
	return cfg, nil
}

// Cutoff builds the cutoff policy from the configured hour and time zone.
func (c *Config) Cutoff() (canteen.CutoffPolicy, error) {
	loc := time.Local
	if c.CutoffTZ != "" {
		var err error
		loc, err = time.LoadLocation(c.CutoffTZ)
		if err != nil {
			return canteen.CutoffPolicy{}, fmt.Errorf("invalid CUTOFF_TZ %q: %w", c.CutoffTZ, err)
		}
	}
	return canteen.CutoffPolicy{Hour: c.CutoffHour, Minute: c.CutoffMin, Location: loc}, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
