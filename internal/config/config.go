package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// InsecureDevSecret signs tokens when JWT_SECRET is unset outside prod.
// Anyone reading this file can forge tokens with it, so prod refuses to start without a real secret.
const InsecureDevSecret = "insecure-dev-secret-change-me"

const (
	EnvDev  = "dev"
	EnvTest = "test"
	EnvProd = "prod"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// MinProdBcryptCost is the lowest work factor accepted in prod.
const MinProdBcryptCost = 12

type Config struct {
	Env  string
	Port int

	StoreDriver string
	DBURL       string
	DBMaxConns  int32

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	AdminEmail    string
	AdminPassword string

	OTLPEndpoint   string
	AllowedOrigins []string
	LoginRateLimit int
	MaxBodyBytes   int64

	// malformed values seen by Load, surfaced by Validate
	parseErrs []error
}

// Load reads the environment, after merging an optional .env file.
// Malformed numbers and durations keep their default and make Validate fail.
func Load() Config {
	// a missing .env is fine, real deployments set the environment directly
	_ = godotenv.Load()

	env := &envReader{}

	c := Config{
		Env:  getEnv("APP_ENV", EnvDev),
		Port: env.int("PORT", 8080),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DBURL:       buildDBURL(),
		DBMaxConns:  int32(env.int("DB_MAX_CONNS", 10)),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       env.int("REDIS_DB", 0),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		TokenTTL:   env.duration("TOKEN_TTL", 15*time.Minute),
		BcryptCost: env.int("BCRYPT_COST", MinProdBcryptCost),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		LoginRateLimit: env.int("LOGIN_RATE_LIMIT", 10),
		MaxBodyBytes:   int64(env.int("MAX_BODY_BYTES", 1<<20)),
	}
	c.parseErrs = env.errs

	return c
}

// Validate rejects configurations the service must not start with and fills
// the dev-only secret fallback. It returns the warnings worth logging.
func (c *Config) Validate() (warnings []string, err error) {
	errs := append([]error(nil), c.parseErrs...)

	switch c.StoreDriver {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of memory, postgres, redis; got %q", c.StoreDriver))
	}

	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}

	if c.JWTSecret == "" {
		if c.IsProd() {
			errs = append(errs, errors.New("JWT_SECRET is required in prod"))
		} else {
			c.JWTSecret = InsecureDevSecret
			warnings = append(warnings, "JWT_SECRET not set, using insecure development secret")
		}
	}

	if c.IsProd() && c.BcryptCost < MinProdBcryptCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be at least %d in prod", MinProdBcryptCost))
	}

	if c.IsProd() && c.StoreDriver == StoreMemory {
		warnings = append(warnings, "memory store in prod: accounts are lost on restart")
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	return warnings, errors.Join(errs...)
}

func (c Config) IsProd() bool {
	return c.Env == EnvProd
}

func buildDBURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "authhub")
	pass := getEnv("DB_PASSWORD", "authhub")
	name := getEnv("DB_NAME", "authhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// WithTimeout bounds store and hashing work for one request. It keeps the parent's
// values (trace span, identity) but not its cancellation, so a client hanging up
// does not abort a half-finished write.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(parent), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

// envReader parses typed values and keeps every malformed one,
// so a typo never quietly turns into a default.
type envReader struct {
	errs []error
}

func (r *envReader) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	num, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}

	return num
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration (e.g. 15m)", key, v))
		return fallback
	}

	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
