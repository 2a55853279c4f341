package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment       string
	HTTPPort          string
	ExternalURL       string
	IssuerFormat      string
	SigningAlgorithm  string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	AccessTokenTTL    time.Duration
	IDTokenTTL        time.Duration
	ConfigCacheTTL    time.Duration
	UserServiceURL    string
	ConfigServiceURL  string
	ChallengeService  string
	ServiceName       string
	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:       getEnv("APP_ENV", "development"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		ExternalURL:       getEnv("EXTERNAL_URL", "http://127.0.0.1:8080"),
		IssuerFormat:      getEnv("ISSUER_FORMAT", "https://auth.heliannuuthus.com/issuer/%s"),
		SigningAlgorithm:  getEnv("SIGNING_ALGORITHM", "ES256"),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getInt("REDIS_DB", 0),
		AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", time.Hour),
		IDTokenTTL:        getDuration("ID_TOKEN_TTL", time.Hour),
		ConfigCacheTTL:    getDuration("CONFIG_CACHE_TTL", 5*time.Minute),
		UserServiceURL:    os.Getenv("USER_SERVICE_URL"),
		ConfigServiceURL:  os.Getenv("CONFIG_SERVICE_URL"),
		ChallengeService:  os.Getenv("CHALLENGE_SERVICE_URL"),
		ServiceName:       getEnv("SERVICE_NAME", "authn-api"),
		RateLimitRPM:      getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if cfg.UserServiceURL == "" {
		return Config{}, fmt.Errorf("USER_SERVICE_URL is required")
	}
	if cfg.ConfigServiceURL == "" {
		return Config{}, fmt.Errorf("CONFIG_SERVICE_URL is required")
	}
	if !strings.Contains(cfg.IssuerFormat, "%s") {
		return Config{}, fmt.Errorf("ISSUER_FORMAT must contain a %%s client placeholder")
	}

	return cfg, nil
}

// ServiceEndpoints builds the resolver table from the configured URLs.
// The challenge service falls back to the user service when unset.
func (c Config) ServiceEndpoints() map[string]string {
	challenge := c.ChallengeService
	if challenge == "" {
		challenge = c.UserServiceURL
	}
	return map[string]string{
		"iam-user":      c.UserServiceURL,
		"iam-config":    c.ConfigServiceURL,
		"iam-challenge": challenge,
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}
