package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Mail      MailConfig
	Kafka     KafkaConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Finance   FinanceConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	PublicBaseURL         string
	RequestTimeoutSeconds int
	UploadMaxBytes        int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret               string
	AccessTokenTTLMinutes   int
	PasswordResetTTLMinutes int
	BcryptCost              int
	SessionCookieName       string
}

// StorageConfig configures the Cloudinary object store.
type StorageConfig struct {
	CloudinaryURL   string
	CloudName       string
	APIKey          string
	APISecret       string
	DocumentsFolder string
	PaymentsFolder  string
	TimeoutSeconds  int
}

// Enabled reports whether enough credentials are present to reach Cloudinary.
func (s StorageConfig) Enabled() bool {
	return s.CloudinaryURL != "" || (s.CloudName != "" && s.APIKey != "" && s.APISecret != "")
}

// MailConfig configures outbound e-mail. Without an SMTP host mail is only logged.
type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
	FromName     string
}

// SMTPEnabled reports whether a real SMTP transport is configured.
func (m MailConfig) SMTPEnabled() bool {
	return m.SMTPHost != ""
}

// KafkaConfig configures the outbound domain-event stream.
type KafkaConfig struct {
	Brokers             []string
	Topic               string
	WriteTimeoutSeconds int
}

// Enabled reports whether brokers are configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// CacheConfig configures the analytics cache.
type CacheConfig struct {
	AnalyticsTTLSeconds int
	LocalSize           int
}

// AnalyticsTTL returns the analytics entry lifetime.
func (c CacheConfig) AnalyticsTTL() time.Duration {
	if c.AnalyticsTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.AnalyticsTTLSeconds) * time.Second
}

// RateLimitConfig configures per-IP throttling on authentication endpoints.
type RateLimitConfig struct {
	Auth   string
	Prefix string
}

// FinanceConfig holds money-related defaults used when settings are absent.
type FinanceConfig struct {
	DefaultTotalCost              string
	PaidEpsilon                   string
	InstallmentPrice              string
	InstallmentCount              int
	DefaultDistributionUFLP       string
	DefaultDistributionECOA       string
	DefaultDistributionCommission string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "enrollment-portal"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			PublicBaseURL:         strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			UploadMaxBytes:        getEnvAsInt("UPLOAD_MAX_BYTES", 10*1024*1024),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:   getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60*24),
			PasswordResetTTLMinutes: getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 60),
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 10),
			SessionCookieName:       getEnv("AUTH_SESSION_COOKIE", "session"),
		},
		Storage: StorageConfig{
			CloudinaryURL:   os.Getenv("CLOUDINARY_URL"),
			CloudName:       os.Getenv("STORAGE_CLOUDINARY_CLOUD_NAME"),
			APIKey:          os.Getenv("STORAGE_CLOUDINARY_API_KEY"),
			APISecret:       os.Getenv("STORAGE_CLOUDINARY_API_SECRET"),
			DocumentsFolder: getEnv("STORAGE_DOCUMENTS_FOLDER", "documents"),
			PaymentsFolder:  getEnv("STORAGE_PAYMENTS_FOLDER", "payments"),
			TimeoutSeconds:  getEnvAsInt("STORAGE_TIMEOUT_SECONDS", 20),
		},
		Mail: MailConfig{
			SMTPHost:     os.Getenv("SMTP_HOST"),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:     os.Getenv("SMTP_USER"),
			SMTPPassword: os.Getenv("SMTP_PASS"),
			From:         getEnv("MAIL_FROM", "no-reply@uflp.com"),
			FromName:     getEnv("MAIL_FROM_NAME", "Sistema UFLP"),
		},
		Kafka: KafkaConfig{
			Brokers:             getEnvAsList("KAFKA_BROKERS"),
			Topic:               getEnv("KAFKA_TOPIC", "enrollment.events"),
			WriteTimeoutSeconds: getEnvAsInt("KAFKA_WRITE_TIMEOUT_SECONDS", 5),
		},
		Cache: CacheConfig{
			AnalyticsTTLSeconds: getEnvAsInt("CACHE_ANALYTICS_TTL_SECONDS", 300),
			LocalSize:           getEnvAsInt("CACHE_LOCAL_SIZE", 64),
		},
		RateLimit: RateLimitConfig{
			Auth:   getEnv("RATE_LIMIT_AUTH", "20-M"),
			Prefix: getEnv("RATE_LIMIT_PREFIX", "enrollment:ratelimit:"),
		},
		Finance: FinanceConfig{
			DefaultTotalCost:              getEnv("FINANCE_DEFAULT_TOTAL_COST", "390.00"),
			PaidEpsilon:                   getEnv("FINANCE_PAID_EPSILON", "0.10"),
			InstallmentPrice:              getEnv("FINANCE_INSTALLMENT_PRICE", "130"),
			InstallmentCount:              getEnvAsInt("FINANCE_INSTALLMENT_COUNT", 3),
			DefaultDistributionUFLP:       getEnv("FINANCE_DISTRIBUTION_UFLP", "110.00"),
			DefaultDistributionECOA:       getEnv("FINANCE_DISTRIBUTION_ECOA", "230.00"),
			DefaultDistributionCommission: getEnv("FINANCE_DISTRIBUTION_COMMISSION", "50.00"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
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

func getEnvAsList(key string) []string {
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
