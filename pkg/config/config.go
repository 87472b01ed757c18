package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mail transports understood by the dispatcher factory.
const (
	TransportSMTP       = "smtp"
	TransportMailerSend = "mailersend"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	URL          string
	MaxConns     int
	MinConns     int
	MaxLifetime  time.Duration
	QueryTimeout time.Duration
	AutoMigrate  bool
}

// RedisConfig is optional; an empty URL disables the rate limiter.
type RedisConfig struct {
	URL string
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL     string
	Subject string
}

type EmailConfig struct {
	Transport     string
	SMTPHost      string
	SMTPPort      int
	SMTPEmail     string
	SMTPPass      string
	FromName      string
	Subject       string
	MailerSendKey string
	SendTimeout   time.Duration
	DevMode       bool // log the code instead of sending
}

// RateLimitConfig keys clients by the TCP peer. Forwarded headers are only
// read when the peer is listed in TrustedProxies (IPs or CIDRs).
type RateLimitConfig struct {
	Requests       int
	Window         time.Duration
	TrustedProxies []string
}

// Load reads the process environment once. Callers are expected to run
// Validate before using the result.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "10000"),
			ReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			MaxConns:     getInt("DB_MAX_CONNS", 10),
			MinConns:     getInt("DB_MIN_CONNS", 1),
			MaxLifetime:  getDuration("DB_MAX_LIFETIME", time.Hour),
			QueryTimeout: getDuration("DB_QUERY_TIMEOUT", 3*time.Second),
			AutoMigrate:  getBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", ""),
			Subject: getEnv("NATS_SUBJECT", "account.registered"),
		},
		Email: EmailConfig{
			Transport:     strings.ToLower(getEnv("MAIL_TRANSPORT", TransportSMTP)),
			SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:      getInt("SMTP_PORT", 587),
			SMTPEmail:     getEnv("SMTP_EMAIL", ""),
			SMTPPass:      getEnv("SMTP_PASS", ""),
			FromName:      getEnv("MAIL_FROM_NAME", "Dutchville"),
			Subject:       getEnv("MAIL_SUBJECT", "Dutchville Account Verification"),
			MailerSendKey: getEnv("MAILERSEND_API_KEY", ""),
			SendTimeout:   getDuration("MAIL_SEND_TIMEOUT", 15*time.Second),
			DevMode:       getBool("EMAIL_DEV_MODE", false),
		},
		RateLimit: RateLimitConfig{
			Requests:       getInt("REGISTER_RATE_LIMIT", 10),
			Window:         getDuration("REGISTER_RATE_WINDOW", time.Minute),
			TrustedProxies: getList("TRUSTED_PROXIES", nil),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every missing or malformed required value at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", c.Server.Port))
	}

	// The sender address is always needed, dev mode included.
	if strings.TrimSpace(c.Email.SMTPEmail) == "" {
		errs = append(errs, errors.New("SMTP_EMAIL is required"))
	}

	if !c.Email.DevMode {
		switch c.Email.Transport {
		case TransportSMTP:
			if c.Email.SMTPPass == "" {
				errs = append(errs, errors.New("SMTP_PASS is required"))
			}
			if strings.TrimSpace(c.Email.SMTPHost) == "" {
				errs = append(errs, errors.New("SMTP_HOST is required"))
			}
		case TransportMailerSend:
			if c.Email.MailerSendKey == "" {
				errs = append(errs, errors.New("MAILERSEND_API_KEY is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("MAIL_TRANSPORT %q is not supported", c.Email.Transport))
		}
	}

	if c.Email.SendTimeout <= 0 {
		errs = append(errs, errors.New("MAIL_SEND_TIMEOUT must be positive"))
	}

	for _, p := range c.RateLimit.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", p))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
