package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	DatabasePath    string
	DatabaseVerbose bool
	AuthSecret      string
	SessionTTL      time.Duration
	GoogleClientID  string
	GoogleSecret    string
	GoogleCallback  string
	RedisAddr       string
	RateLimitPerMin int
	LogLevel        string
}

// RequiredVars must be present for the API server to start. dbtool diagnose
// reports on the same set without failing.
var RequiredVars = []string{
	"AUTH_SECRET",
	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"GOOGLE_CALLBACK_URL",
}

// Load returns application config populated from the environment, reading a
// local .env file first when one exists. A missing required secret is
// returned as an error; the caller decides whether that aborts startup.
func Load() (App, error) {
	_ = godotenv.Load()

	cfg := App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "3000"),
		DatabasePath:    getEnv("DATABASE_PATH", "./data/app.db"),
		DatabaseVerbose: boolEnv("DATABASE_VERBOSE", false),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		SessionTTL:      durationEnv("SESSION_TTL", 7*24*time.Hour),
		GoogleClientID:  os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleSecret:    os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallback:  os.Getenv("GOOGLE_CALLBACK_URL"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	var missing []string
	for _, key := range RequiredVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// Production reports whether the app runs in production mode.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
