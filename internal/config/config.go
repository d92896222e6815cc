package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "Medpass"
	defaultAppEnv           = "development"
	defaultPort             = "8081"
	defaultLogLevel         = "info"
	defaultAPIBaseURL       = "https://api.mediimpact.in/index.php"
	defaultAPIVersion       = "10007"
	defaultNamespace        = "medpass:session:"
	defaultSandboxOTP       = "12345"
	defaultHTTPTimeout      = 20 * time.Second
	defaultResendCooldown   = 30 * time.Second
	defaultOTPTTL           = 5 * time.Minute
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	httpTimeoutSecondsEnv   = "HTTP_TIMEOUT_SECONDS"
	httpTimeoutDurEnv       = "HTTP_TIMEOUT"
	cooldownSecondsEnv      = "RESEND_COOLDOWN_SECONDS"
	cooldownDurEnv          = "RESEND_COOLDOWN"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	otpTTLDurEnvVar         = "OTP_TTL"
)

// Session backends understood by SESSION_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrInsecureBaseURL is returned when API_BASE_URL is plain http on a non-loopback host.
var ErrInsecureBaseURL = errors.New("API_BASE_URL must use https")

// Config captures client and sandbox runtime configuration loaded from environment variables.
type Config struct {
	AppName          string
	AppEnv           string
	Port             string
	LogLevel         string
	APIBaseURL       string
	APIVersion       string
	HTTPTimeout      time.Duration
	SessionBackend   string
	SessionNamespace string
	DatabaseURL      string
	RedisURL         string
	ResendCooldown   time.Duration
	OTPTTL           time.Duration
	SandboxOTP       string
	ShutdownPeriod   time.Duration
	IdempotencyTTL   time.Duration
}

// Load reads an optional .env file and then the environment into a Config.
// Variables already present in the environment take precedence over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		APIBaseURL:       strings.TrimRight(getEnv("API_BASE_URL", defaultAPIBaseURL), "/"),
		APIVersion:       getEnv("API_VERSION", defaultAPIVersion),
		SessionNamespace: getEnv("SESSION_NAMESPACE", defaultNamespace),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		SandboxOTP:       getEnv("SANDBOX_OTP", defaultSandboxOTP),
	}

	var err error
	if cfg.HTTPTimeout, err = durationEnv(httpTimeoutSecondsEnv, httpTimeoutDurEnv, defaultHTTPTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ResendCooldown, err = durationEnv(cooldownSecondsEnv, cooldownDurEnv, defaultResendCooldown); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = durationEnv("", otpTTLDurEnvVar, defaultOTPTTL); err != nil {
		return Config{}, err
	}

	cfg.SessionBackend = strings.ToLower(os.Getenv("SESSION_BACKEND"))
	if cfg.SessionBackend == "" {
		switch {
		case cfg.DatabaseURL != "":
			cfg.SessionBackend = BackendPostgres
		case cfg.RedisURL != "":
			cfg.SessionBackend = BackendRedis
		default:
			cfg.SessionBackend = BackendMemory
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints: backend requirements and the TLS policy.
func (c Config) Validate() error {
	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when SESSION_BACKEND=%s", c.SessionBackend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when SESSION_BACKEND=%s", c.SessionBackend)
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	return CheckBaseURL(c.APIBaseURL)
}

// CheckBaseURL enforces https for every host except loopback addresses.
func CheckBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid API_BASE_URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("%w: got %s", ErrInsecureBaseURL, raw)
	default:
		return fmt.Errorf("invalid API_BASE_URL scheme %q", u.Scheme)
	}
}

// Address returns the sandbox listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
