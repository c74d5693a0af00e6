package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RedisConfig configures the optional presence mirror
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// S3Config configures the image blob store
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// MailConfig configures the transactional mail sender
type MailConfig struct {
	APIKey      string
	Endpoint    string
	SenderEmail string
	SenderName  string
}

// BotConfig configures the reply generator
type BotConfig struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxFailures uint32
}

// Config is the full server configuration
type Config struct {
	Env            string
	Port           string
	JWTSecret      string
	DBType         string
	DatabaseURL    string
	AllowedOrigins []string
	FrontendURL    string
	LogFile        string

	VerificationTTL time.Duration
	ResetTTL        time.Duration
	SessionTTL      time.Duration
	SweepInterval   time.Duration

	Redis RedisConfig
	S3    S3Config
	Mail  MailConfig
	Bot   BotConfig
}

// IsProduction reports whether ENV=production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// Missing .env is fine; plain environment variables are used instead
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:            v.GetString("ENV"),
		Port:           v.GetString("PORT"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		DBType:         v.GetString("DB_TYPE"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		FrontendURL:    strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		LogFile:        v.GetString("LOG_FILE"),

		VerificationTTL: v.GetDuration("VERIFICATION_TTL"),
		ResetTTL:        v.GetDuration("RESET_TTL"),
		SessionTTL:      v.GetDuration("SESSION_TTL"),
		SweepInterval:   v.GetDuration("SWEEP_INTERVAL"),

		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Prefix:   v.GetString("REDIS_PREFIX"),
		},
		S3: S3Config{
			Region:          v.GetString("S3_REGION"),
			Bucket:          v.GetString("S3_BUCKET"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			PublicBaseURL:   strings.TrimRight(v.GetString("S3_PUBLIC_BASE_URL"), "/"),
		},
		Mail: MailConfig{
			APIKey:      v.GetString("BREVO_API_KEY"),
			Endpoint:    v.GetString("BREVO_ENDPOINT"),
			SenderEmail: v.GetString("MAIL_SENDER_EMAIL"),
			SenderName:  v.GetString("MAIL_SENDER_NAME"),
		},
		Bot: BotConfig{
			APIKey:      v.GetString("GEMINI_API_KEY"),
			Model:       v.GetString("BOT_MODEL"),
			Timeout:     v.GetDuration("BOT_TIMEOUT"),
			MaxFailures: v.GetUint32("BOT_MAX_FAILURES"),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}

	if cfg.DatabaseURL == "" && cfg.DBType != "memory" {
		url, err := buildDatabaseURL(v, cfg.DBType)
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = url
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_TYPE", "postgres")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("VERIFICATION_TTL", 15*time.Minute)
	v.SetDefault("RESET_TTL", time.Hour)
	v.SetDefault("SESSION_TTL", 7*24*time.Hour)
	v.SetDefault("SWEEP_INTERVAL", 5*time.Minute)
	v.SetDefault("REDIS_PREFIX", "chatty")
	v.SetDefault("S3_REGION", "auto")
	v.SetDefault("BREVO_ENDPOINT", "https://api.brevo.com/v3/smtp/email")
	v.SetDefault("MAIL_SENDER_NAME", "Chatty")
	v.SetDefault("BOT_MODEL", "gemini-1.5-pro")
	v.SetDefault("BOT_TIMEOUT", 30*time.Second)
	v.SetDefault("BOT_MAX_FAILURES", 5)
}

// buildDatabaseURL falls back to individual DB_* variables when DATABASE_URL is not set
func buildDatabaseURL(v *viper.Viper, dbType string) (string, error) {
	host := v.GetString("DB_HOST")
	port := v.GetString("DB_PORT")
	name := v.GetString("DB_NAME")
	user := v.GetString("DB_USER")
	pass := v.GetString("DB_PASSWORD")

	if host == "" || name == "" || user == "" {
		return "", errors.New("database connection details missing. Set DATABASE_URL or individual DB_* variables")
	}
	if port == "" {
		port = "5432"
	}

	switch dbType {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name), nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
