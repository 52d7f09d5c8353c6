package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxAgeDays int

	EbayAppID     string
	EbayCertID    string
	EbayAPIBase   string
	EbayStoreTier string
	HomeZip       string

	OpenRouterAPIKey string
	OpenRouterModel  string
	OpenRouterURL    string

	FCMProjectID   string
	FCMAccessToken string
	FCMEndpoint    string

	AlertFeedURL  string
	ScrapeDetails bool
	ChromeBin     string

	ProfitThreshold   float64
	FeePercent        float64
	ShippingEstimate  float64
	PickupRadiusMiles int

	EnrichInterval      time.Duration
	NeedsReviewInterval time.Duration
	BatchSize           int
	MaxConcurrency      int
	RateLimitMs         int
	MaxRetries          int
	HTTPTimeout         time.Duration
	PriceCacheTTL       time.Duration

	CSVOutputPath string
	S3Bucket      string
	S3Prefix      string
	AWSRegion     string

	AWSAccessKeyID     string
	AWSSecretAccessKey string

	HTTPAddr      string
	GazetteerFile string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", ""),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "dealscout"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "dealscout"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),

		EbayAppID:     getEnv("EBAY_APP_ID", ""),
		EbayCertID:    getEnv("EBAY_CERT_ID", ""),
		EbayAPIBase:   getEnv("EBAY_API_BASE", "https://api.ebay.com"),
		EbayStoreTier: getEnv("EBAY_STORE_TIER", ""),
		HomeZip:       getEnv("HOME_ZIP", "38580"),

		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:  getEnv("OPENROUTER_MODEL", "google/gemini-2.0-flash-001"),
		OpenRouterURL:    getEnv("OPENROUTER_URL", "https://openrouter.ai/api/v1/chat/completions"),

		FCMProjectID:   getEnv("FCM_PROJECT_ID", ""),
		FCMAccessToken: getEnv("FCM_ACCESS_TOKEN", ""),
		FCMEndpoint:    getEnv("FCM_ENDPOINT", "https://fcm.googleapis.com"),

		AlertFeedURL:  getEnv("ALERT_FEED_URL", ""),
		ScrapeDetails: getEnvBool("SCRAPE_DETAILS", false),
		ChromeBin:     getEnv("CHROME_BIN", ""),

		ProfitThreshold:   getEnvFloat("PROFIT_THRESHOLD", 30),
		FeePercent:        getEnvFloat("FEE_PERCENT", 13),
		ShippingEstimate:  getEnvFloat("SHIPPING_ESTIMATE", 0),
		PickupRadiusMiles: getEnvInt("PICKUP_RADIUS_MILES", 100),

		EnrichInterval:      positiveDuration(getEnvDuration("ENRICH_INTERVAL", 5*time.Minute), 5*time.Minute),
		NeedsReviewInterval: positiveDuration(getEnvDuration("NEEDS_REVIEW_INTERVAL", 15*time.Minute), 15*time.Minute),
		BatchSize:           getEnvInt("BATCH_SIZE", 20),
		MaxConcurrency:      getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:         getEnvInt("RATE_LIMIT_MS", 250),
		MaxRetries:          getEnvInt("MAX_RETRIES", 3),
		HTTPTimeout:         clampTimeout(getEnvDuration("HTTP_TIMEOUT", 15*time.Second)),
		PriceCacheTTL:       getEnvDuration("PRICE_CACHE_TTL", 6*time.Hour),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),
		S3Bucket:      getEnv("S3_BUCKET", ""),
		S3Prefix:      getEnv("S3_PREFIX", "dealscout"),
		AWSRegion:     getEnv("AWS_REGION", ""),

		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		GazetteerFile: getEnv("GAZETTEER_FILE", ""),
	}
}

// HasPostgres reports whether a database host was configured.
func (c *Config) HasPostgres() bool {
	return c.PostgresHost != ""
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Network calls must be bounded; keep every per-attempt timeout in 10–30s.
func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d < 10*time.Second:
		return 10 * time.Second
	case d > 30*time.Second:
		return 30 * time.Second
	default:
		return d
	}
}

// positiveDuration keeps job intervals usable by time.Ticker.
func positiveDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
