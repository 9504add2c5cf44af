// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	FrontendURL string
	LogLevel    string
	LogFormat   string

	CORSAllowedOrigins []string

	Auth      *AuthRuntimeConfig
	Google    GoogleConfig
	Mail      MailConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	S3        S3Config
	Realtime  RealtimeConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	Retention RetentionConfig
}

type GoogleConfig struct {
	ClientID string
	CertsURL string
}

type MailConfig struct {
	Transport    string // console, resend, queue
	From         string
	FromName     string
	ResendAPIKey string
	ResendURL    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

type RabbitMQConfig struct {
	URL        string
	EmailQueue string
}

type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// RateLimitConfig bounds the public auth endpoints per client IP.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Prefix   string
}

// MetricsConfig guards /metrics. An empty Token leaves it open.
type MetricsConfig struct {
	Token      string
	AllowedIPs []string
}

// RetentionConfig drives the background sweepers.
type RetentionConfig struct {
	SweepInterval      time.Duration
	NotificationMaxAge time.Duration
}

type RealtimeConfig struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
}

func Load() (*Config, error) {
	auth, err := LoadAuthRuntimeConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:      auth.AppEnv,
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: strings.TrimSpace(getEnv("DATABASE_URL", "picshare.db")),
		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		Auth:        auth,
		Google: GoogleConfig{
			ClientID: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
			CertsURL: getEnv("GOOGLE_CERTS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
		},
		Mail: MailConfig{
			Transport:    strings.ToLower(getEnv("MAIL_TRANSPORT", "console")),
			From:         getEnv("EMAIL_FROM", "no-reply@picshare.local"),
			FromName:     getEnv("EMAIL_FROM_NAME", "Picshare"),
			ResendAPIKey: os.Getenv("RESEND_API_KEY"),
			ResendURL:    getEnv("RESEND_API_URL", "https://api.resend.com/emails"),
		},
		Redis: RedisConfig{
			Addr:     redisAddr(),
			Password: os.Getenv("REDIS_PASSWORD"),
			TLS:      parseBoolEnv("REDIS_TLS", "false"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:        os.Getenv("RABBITMQ_URL"),
			EmailQueue: getEnv("RABBITMQ_EMAIL_QUEUE", "email.send"),
		},
		S3: S3Config{
			Bucket:        os.Getenv("S3_BUCKET"),
			Region:        getEnv("S3_REGION", "us-east-1"),
			Endpoint:      os.Getenv("S3_ENDPOINT"),
			AccessKey:     os.Getenv("S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("S3_SECRET_KEY"),
			PublicBaseURL: strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
		},
	}

	if cfg.Redis.DB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Realtime.HeartbeatInterval, err = parseDurationEnv("SSE_HEARTBEAT_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Requests, err = parseIntEnv("RATELIMIT_AUTH_REQUESTS", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Window, err = parseDurationEnv("RATELIMIT_AUTH_WINDOW", "1m"); err != nil {
		return nil, err
	}
	cfg.RateLimit.Prefix = getEnv("RATELIMIT_PREFIX", "picshare:rl")
	if cfg.Retention.SweepInterval, err = parseDurationEnv("SWEEP_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if cfg.Retention.NotificationMaxAge, err = parseDurationEnv("NOTIFICATION_MAX_AGE", "2160h"); err != nil {
		return nil, err
	}
	cfg.Metrics.Token = strings.TrimSpace(os.Getenv("METRICS_TOKEN"))
	for _, ip := range strings.Split(os.Getenv("METRICS_ALLOWED_IPS"), ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			cfg.Metrics.AllowedIPs = append(cfg.Metrics.AllowedIPs, ip)
		}
	}
	if cfg.Realtime.WriteTimeout, err = parseDurationEnv("SSE_WRITE_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}
	if cfg.FrontendURL != "" {
		cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, cfg.FrontendURL)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Realtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("SSE_HEARTBEAT_INTERVAL must be > 0")
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATELIMIT_AUTH_REQUESTS and RATELIMIT_AUTH_WINDOW must be > 0")
	}
	switch c.Mail.Transport {
	case "console":
	case "resend":
		if c.Mail.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required when MAIL_TRANSPORT=resend")
		}
	case "queue":
		if c.RabbitMQ.URL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when MAIL_TRANSPORT=queue")
		}
	default:
		return fmt.Errorf("MAIL_TRANSPORT must be one of: console, resend, queue")
	}
	if IsProdLike(c.AppEnv) && c.Mail.Transport == "console" {
		return fmt.Errorf("in prod/release MAIL_TRANSPORT must not be console")
	}
	return nil
}

func redisAddr() string {
	host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")
	if host != "" && port != "" {
		return host + ":" + port
	}
	return os.Getenv("REDIS_ADDR")
}
