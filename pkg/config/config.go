package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Automation  AutomationConfig
	Idempotency IdempotencyConfig
	Approvals   ApprovalsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AutomationConfig carries the default scan windows and the optional
// background runner interval (zero disables the runner).
type AutomationConfig struct {
	Enabled              bool
	Interval             time.Duration
	QuoteFollowUpDays    int
	TaskReminderDays     int
	FeedbackDays         int
	CommissionDays       int
	PaymentDeadlineHours int
	TravelReadinessHours int

	FinalPaymentTaskDays   int
	PreTravelTaskDays      int
	BookingPaymentTaskDays int
}

// IdempotencyConfig selects the request dedup store backend and its windows.
type IdempotencyConfig struct {
	Backend       string
	TTL           time.Duration
	SweepInterval time.Duration
}

// ApprovalsConfig toggles approval workflow exposure.
type ApprovalsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Automation = AutomationConfig{
		Enabled:              v.GetBool("ENABLE_AUTOMATION"),
		Interval:             parseDuration(v.GetString("AUTOMATION_INTERVAL"), 0),
		QuoteFollowUpDays:    v.GetInt("AUTOMATION_QUOTE_FOLLOWUP_DAYS"),
		TaskReminderDays:     v.GetInt("AUTOMATION_TASK_REMINDER_DAYS"),
		FeedbackDays:         v.GetInt("AUTOMATION_FEEDBACK_DAYS"),
		CommissionDays:       v.GetInt("AUTOMATION_COMMISSION_DAYS"),
		PaymentDeadlineHours: v.GetInt("AUTOMATION_PAYMENT_DEADLINE_HOURS"),
		TravelReadinessHours: v.GetInt("AUTOMATION_TRAVEL_READINESS_HOURS"),

		FinalPaymentTaskDays:   v.GetInt("AUTOMATION_FINAL_PAYMENT_TASK_DAYS"),
		PreTravelTaskDays:      v.GetInt("AUTOMATION_PRE_TRAVEL_TASK_DAYS"),
		BookingPaymentTaskDays: v.GetInt("AUTOMATION_BOOKING_PAYMENT_TASK_DAYS"),
	}

	cfg.Idempotency = IdempotencyConfig{
		Backend:       strings.ToLower(v.GetString("IDEMPOTENCY_BACKEND")),
		TTL:           parseDuration(v.GetString("IDEMPOTENCY_TTL"), 5*time.Minute),
		SweepInterval: parseDuration(v.GetString("IDEMPOTENCY_SWEEP_INTERVAL"), time.Minute),
	}

	cfg.Approvals = ApprovalsConfig{
		Enabled: v.GetBool("ENABLE_APPROVALS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "wanderdesk")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_AUTOMATION", true)
	v.SetDefault("AUTOMATION_INTERVAL", "0")
	v.SetDefault("AUTOMATION_QUOTE_FOLLOWUP_DAYS", 3)
	v.SetDefault("AUTOMATION_TASK_REMINDER_DAYS", 7)
	v.SetDefault("AUTOMATION_FEEDBACK_DAYS", 7)
	v.SetDefault("AUTOMATION_COMMISSION_DAYS", 30)
	v.SetDefault("AUTOMATION_PAYMENT_DEADLINE_HOURS", 48)
	v.SetDefault("AUTOMATION_TRAVEL_READINESS_HOURS", 48)
	v.SetDefault("AUTOMATION_FINAL_PAYMENT_TASK_DAYS", 7)
	v.SetDefault("AUTOMATION_PRE_TRAVEL_TASK_DAYS", 14)
	v.SetDefault("AUTOMATION_BOOKING_PAYMENT_TASK_DAYS", 7)

	v.SetDefault("IDEMPOTENCY_BACKEND", "memory")
	v.SetDefault("IDEMPOTENCY_TTL", "5m")
	v.SetDefault("IDEMPOTENCY_SWEEP_INTERVAL", "1m")

	v.SetDefault("ENABLE_APPROVALS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
