package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backends holds the base URL of every REST service the gateway reaches.
type Backends struct {
	Users         string
	Stores        string
	Orders        string
	Billing       string
	Delivery      string
	Warehouses    string
	Notifications string
	Saga          string
}

// JWT describes how bearer tokens are verified.
type JWT struct {
	Algorithm string // HS256 or RS256
	Secret    string
	PublicKey string // PEM, RS256 only
	// KeySecretName, when set, loads Secret/PublicKey from AWS Secrets Manager.
	KeySecretName string
	// KeySecretField selects one field of a JSON secret. Empty uses the whole value.
	KeySecretField string
	Leeway         time.Duration
}

// Config holds the loaded configuration
type Config struct {
	Port string
	Env  string

	Backends       Backends
	BackendTimeout time.Duration

	WorkerPoolSize int

	MaxPageSize           int
	DefaultPageSize       int
	LegacyHasPreviousPage bool

	JWT JWT

	RedisURL        string
	ExchangeRateTTL time.Duration

	AllowedOrigins     []string
	RateLimitPerMinute int
	RateLimitBurst     int

	CloudWatchEnabled   bool
	ErrorReportTopicArn string
	PlaygroundEnabled   bool
	GraphQLPath         string
	ShutdownTimeout     time.Duration
}

// Load reads configuration from the environment, loading .env first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	var errs []string
	duration := func(key string, fallback time.Duration) time.Duration {
		d, err := getDuration(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}
	integer := func(key string, fallback int) int {
		n, err := getInt(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return n
	}

	cfg := &Config{
		Port: getEnv("PORT", "8000"),
		Env:  getEnv("ENV", "development"),
		Backends: Backends{
			Users:         strings.TrimSuffix(getEnv("USERS_URL", "http://users:8000"), "/"),
			Stores:        strings.TrimSuffix(getEnv("STORES_URL", "http://stores:8000"), "/"),
			Orders:        strings.TrimSuffix(getEnv("ORDERS_URL", "http://orders:8000"), "/"),
			Billing:       strings.TrimSuffix(getEnv("BILLING_URL", "http://billing:8000"), "/"),
			Delivery:      strings.TrimSuffix(getEnv("DELIVERY_URL", "http://delivery:8000"), "/"),
			Warehouses:    strings.TrimSuffix(getEnv("WAREHOUSES_URL", "http://warehouses:8000"), "/"),
			Notifications: strings.TrimSuffix(getEnv("NOTIFICATIONS_URL", "http://notifications:8000"), "/"),
			Saga:          strings.TrimSuffix(getEnv("SAGA_URL", "http://saga:8000"), "/"),
		},
		BackendTimeout:        duration("BACKEND_TIMEOUT", 10*time.Second),
		WorkerPoolSize:        integer("WORKER_POOL_SIZE", 64),
		MaxPageSize:           integer("MAX_PAGE_SIZE", 50),
		DefaultPageSize:       integer("DEFAULT_PAGE_SIZE", 10),
		LegacyHasPreviousPage: getBool("PAGINATION_LEGACY_HAS_PREVIOUS", false),
		JWT: JWT{
			Algorithm:      strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256")),
			Secret:         os.Getenv("JWT_SECRET"),
			PublicKey:      os.Getenv("JWT_PUBLIC_KEY"),
			KeySecretName:  os.Getenv("JWT_KEY_SECRET_NAME"),
			KeySecretField: os.Getenv("JWT_KEY_SECRET_FIELD"),
			Leeway:         duration("JWT_LEEWAY", 30*time.Second),
		},
		RedisURL:            os.Getenv("REDIS_URL"),
		ExchangeRateTTL:     duration("EXCHANGE_RATE_TTL", 5*time.Minute),
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RateLimitPerMinute:  integer("RATE_LIMIT_PER_MINUTE", 600),
		RateLimitBurst:      integer("RATE_LIMIT_BURST", 100),
		CloudWatchEnabled:   getBool("CLOUDWATCH_ENABLED", false),
		ErrorReportTopicArn: os.Getenv("ERROR_REPORT_TOPIC_ARN"),
		PlaygroundEnabled:   getBool("PLAYGROUND_ENABLED", true),
		GraphQLPath:         getEnv("GRAPHQL_PATH", "/graphql"),
		ShutdownTimeout:     duration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	urls := map[string]string{
		"USERS_URL":         c.Backends.Users,
		"STORES_URL":        c.Backends.Stores,
		"ORDERS_URL":        c.Backends.Orders,
		"BILLING_URL":       c.Backends.Billing,
		"DELIVERY_URL":      c.Backends.Delivery,
		"WAREHOUSES_URL":    c.Backends.Warehouses,
		"NOTIFICATIONS_URL": c.Backends.Notifications,
		"SAGA_URL":          c.Backends.Saga,
	}
	for key, u := range urls {
		if u == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE must be positive")
	}
	if c.MaxPageSize <= 0 {
		return fmt.Errorf("MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and MAX_PAGE_SIZE")
	}
	switch c.JWT.Algorithm {
	case "HS256", "RS256":
	default:
		return fmt.Errorf("JWT_ALGORITHM must be HS256 or RS256, got %q", c.JWT.Algorithm)
	}
	if c.JWT.Leeway < 0 {
		return fmt.Errorf("JWT_LEEWAY must not be negative")
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// IsProduction reports whether ENV selects production logging.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper to get an environment variable or return a default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %v", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %v", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(item), "/"))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
