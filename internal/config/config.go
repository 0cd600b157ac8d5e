package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const minOnlineSecret = 32

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string

	HMACSecret       string
	TokenTTL         time.Duration
	AllowAdminSignup bool

	CORSOrigins []string

	RedisAddr     string // empty disables the exam cache
	RedisPassword string
	RedisDB       int
	ExamCacheTTL  time.Duration

	LogLevel string
	LogFile  string // empty disables the file sink

	LoginRatePerMin int

	EnforceEligibility bool // start checks target class and schedule window
}

// Load reads an optional .env file then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		HMACSecret:         envOr("AUTH_HMAC_SECRET", "dev-secret-change-me"),
		TokenTTL:           envDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		AllowAdminSignup:   envBool("ALLOW_ADMIN_SIGNUP", false),
		CORSOrigins:        csvOr("CORS_ORIGINS", "http://localhost:3000"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envInt("REDIS_DB", 0),
		ExamCacheTTL:       envDuration("EXAM_CACHE_TTL", 5*time.Minute),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFile:            os.Getenv("LOG_FILE"),
		LoginRatePerMin:    envInt("LOGIN_RATE_PER_MIN", 30),
		EnforceEligibility: envBool("ENFORCE_ELIGIBILITY", false),
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return fmt.Errorf("MODE must be offline or online, got %q", c.Mode)
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite, postgres or memory, got %q", c.DBDriver)
	}
	if c.Mode == ModeOnline && len(c.HMACSecret) < minOnlineSecret {
		return fmt.Errorf("AUTH_HMAC_SECRET must be at least %d bytes in online mode", minOnlineSecret)
	}
	if c.TokenTTL <= 0 {
		return errors.New("AUTH_TOKEN_TTL must be positive")
	}
	if c.LoginRatePerMin <= 0 {
		return errors.New("LOGIN_RATE_PER_MIN must be positive")
	}
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return d
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
