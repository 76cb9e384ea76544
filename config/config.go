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

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Staff     StaffConfig
	AWS       AWSConfig
	Razorpay  RazorpayConfig
	Email     EmailConfig
	Event     EventConfig
	LogLevel  string
	RunWorker bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/infest?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds staff token signing settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// StaffConfig is the bootstrap desk account.
type StaffConfig struct {
	Username     string
	PasswordHash string
}

// AWSConfig holds credentials for QR image storage. An empty bucket keeps QR codes inline.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	QRBucket             string
	S3Endpoint           string
	PresignExpireMinutes int
}

// RazorpayConfig holds gateway credentials and checkout behaviour.
type RazorpayConfig struct {
	KeyID               string
	KeySecret           string
	WebhookSecret       string
	PaymentLinks        bool
	PaymentPageURL      string
	CallbackURL         string
	VerifyClientPayment bool
}

// EmailConfig holds the SMTP account. An empty host disables mail.
type EmailConfig struct {
	FromAddress string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	SendTimeout time.Duration
}

// EventConfig describes the event being registered for.
type EventConfig struct {
	Name          string
	TicketPrefix  string
	AmountPaise   int64
	Currency      string
	MaxEvents     int
	SnowflakeNode int64
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "infest"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 12),
		},
		Staff: StaffConfig{
			Username:     getEnv("STAFF_USERNAME", ""),
			PasswordHash: getEnv("STAFF_PASSWORD_HASH", ""),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "ap-south-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			QRBucket:             getEnv("AWS_S3_QR_BUCKET", ""),
			S3Endpoint:           getEnv("AWS_S3_ENDPOINT", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 0),
		},
		Razorpay: RazorpayConfig{
			KeyID:               getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:           getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret:       getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
			PaymentLinks:        getEnvBool("RAZORPAY_PAYMENT_LINKS", false),
			PaymentPageURL:      getEnv("PAYMENT_PAGE_URL", ""),
			CallbackURL:         getEnv("PAYMENT_CALLBACK_URL", ""),
			VerifyClientPayment: getEnvBool("VERIFY_CLIENT_PAYMENTS", false),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
			FromName:    getEnv("EMAIL_FROM_NAME", "INFEST 2K25"),
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
			SendTimeout: time.Duration(getEnvInt("MAIL_SEND_TIMEOUT_SEC", 15)) * time.Second,
		},
		Event: EventConfig{
			Name:          getEnv("EVENT_NAME", "INFEST 2K25"),
			TicketPrefix:  getEnv("TICKET_PREFIX", "INF25"),
			AmountPaise:   int64(getEnvInt("TICKET_AMOUNT_PAISE", 20000)),
			Currency:      getEnv("TICKET_CURRENCY", "INR"),
			MaxEvents:     getEnvInt("MAX_EVENTS_PER_REGISTRATION", 3),
			SnowflakeNode: int64(getEnvInt("SNOWFLAKE_NODE", 1)),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		RunWorker: getEnvBool("RUN_WORKER", true),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot start with. Optional
// integrations left empty are not errors; they are disabled.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Event.MaxEvents < 1 {
		errs = append(errs, errors.New("MAX_EVENTS_PER_REGISTRATION must be at least 1"))
	}
	if c.Event.SnowflakeNode < 0 || c.Event.SnowflakeNode > 1023 {
		errs = append(errs, errors.New("SNOWFLAKE_NODE must be between 0 and 1023"))
	}
	if c.Razorpay.PaymentLinks && (c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "") {
		errs = append(errs, errors.New("RAZORPAY_PAYMENT_LINKS needs RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET"))
	}
	if c.Razorpay.VerifyClientPayment && c.Razorpay.KeySecret == "" {
		errs = append(errs, errors.New("VERIFY_CLIENT_PAYMENTS needs RAZORPAY_KEY_SECRET"))
	}
	return errors.Join(errs...)
}

// MailEnabled reports whether an SMTP host is configured.
func (c *Config) MailEnabled() bool { return c.Email.SMTPHost != "" }

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
