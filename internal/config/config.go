package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database. Empty DBHost means run on the in-memory queue.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis, used for generator dedup and API rate limiting. Optional.
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Scheduler
	DispatchInterval time.Duration // dispatch tick period
	AlertInterval    time.Duration // match-alert generation period
	DailyTriggerAt   string        // HH:MM UTC, daily digest generation + retention run
	DigestHour       int           // local wall-clock hour for digest delivery
	AlertLead        time.Duration // how long before kickoff a match alert fires
	AlertLookahead   time.Duration // event scan horizon for the alert generator
	RetentionDays    int
	DeliveryTimeout  time.Duration // hard cap on one delivery adapter call

	// Delivery transports
	AWSRegion    string
	SESFromEmail string // enables the email deliverer when set
	SNSTopicARN  string // enables the push deliverer when set
	SQSQueueURL  string // enables the queue deliverer when set

	// Watchdog for the prediction service. Empty PredictionURL disables it.
	PredictionURL    string
	PredictionCmd    string // command line used to relaunch the service
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold int
	MaxRestarts      int
	RestartCooldown  time.Duration
	GracePeriod      time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBPort:    5432,
		DBUser:    "pitchside",
		DBName:    "pitchside",
		DBSSLMode: "disable",

		RedisHost: "localhost",
		RedisPort: 6379,

		DispatchInterval: time.Minute,
		AlertInterval:    10 * time.Minute,
		DailyTriggerAt:   "04:00",
		DigestHour:       7,
		AlertLead:        30 * time.Minute,
		AlertLookahead:   24 * time.Hour,
		RetentionDays:    7,
		DeliveryTimeout:  30 * time.Second,

		AWSRegion: "us-east-1",

		ProbeInterval:    30 * time.Second,
		ProbeTimeout:     10 * time.Second,
		FailureThreshold: 3,
		MaxRestarts:      2,
		RestartCooldown:  60 * time.Second,
		GracePeriod:      10 * time.Second,
	}

	var err error
	if cfg.Port, err = intEnv("PORT", cfg.Port); err != nil {
		return nil, err
	}
	cfg.LogLevel = strEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Env = strEnv("ENV", cfg.Env)

	cfg.DBHost = strEnv("DB_HOST", cfg.DBHost)
	if cfg.DBPort, err = intEnv("DB_PORT", cfg.DBPort); err != nil {
		return nil, err
	}
	cfg.DBUser = strEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = strEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = strEnv("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = strEnv("DB_SSLMODE", cfg.DBSSLMode)

	cfg.RedisHost = strEnv("REDIS_HOST", cfg.RedisHost)
	if cfg.RedisPort, err = intEnv("REDIS_PORT", cfg.RedisPort); err != nil {
		return nil, err
	}
	cfg.RedisPassword = strEnv("REDIS_PASSWORD", cfg.RedisPassword)
	if cfg.RedisDB, err = intEnv("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}

	if cfg.DispatchInterval, err = durEnv("DISPATCH_INTERVAL", cfg.DispatchInterval); err != nil {
		return nil, err
	}
	if cfg.AlertInterval, err = durEnv("ALERT_INTERVAL", cfg.AlertInterval); err != nil {
		return nil, err
	}
	cfg.DailyTriggerAt = strEnv("DAILY_TRIGGER_AT", cfg.DailyTriggerAt)
	if _, parseErr := time.Parse("15:04", cfg.DailyTriggerAt); parseErr != nil {
		return nil, fmt.Errorf("invalid DAILY_TRIGGER_AT: %w", parseErr)
	}
	if cfg.DigestHour, err = intEnv("DIGEST_HOUR", cfg.DigestHour); err != nil {
		return nil, err
	}
	if cfg.DigestHour < 0 || cfg.DigestHour > 23 {
		return nil, fmt.Errorf("invalid DIGEST_HOUR: %d", cfg.DigestHour)
	}
	if cfg.AlertLead, err = durEnv("ALERT_LEAD", cfg.AlertLead); err != nil {
		return nil, err
	}
	if cfg.AlertLookahead, err = durEnv("ALERT_LOOKAHEAD", cfg.AlertLookahead); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = intEnv("RETENTION_DAYS", cfg.RetentionDays); err != nil {
		return nil, err
	}
	if cfg.DeliveryTimeout, err = durEnv("DELIVERY_TIMEOUT", cfg.DeliveryTimeout); err != nil {
		return nil, err
	}

	cfg.AWSRegion = strEnv("AWS_REGION", cfg.AWSRegion)
	cfg.SESFromEmail = strEnv("SES_FROM_EMAIL", cfg.SESFromEmail)
	cfg.SNSTopicARN = strEnv("SNS_TOPIC_ARN", cfg.SNSTopicARN)
	cfg.SQSQueueURL = strEnv("SQS_QUEUE_URL", cfg.SQSQueueURL)

	cfg.PredictionURL = strEnv("PREDICTION_SERVICE_URL", cfg.PredictionURL)
	cfg.PredictionCmd = strEnv("PREDICTION_SERVICE_CMD", cfg.PredictionCmd)
	if cfg.ProbeInterval, err = durEnv("PROBE_INTERVAL", cfg.ProbeInterval); err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout, err = durEnv("PROBE_TIMEOUT", cfg.ProbeTimeout); err != nil {
		return nil, err
	}
	if cfg.FailureThreshold, err = intEnv("FAILURE_THRESHOLD", cfg.FailureThreshold); err != nil {
		return nil, err
	}
	if cfg.MaxRestarts, err = intEnv("MAX_RESTARTS", cfg.MaxRestarts); err != nil {
		return nil, err
	}
	if cfg.RestartCooldown, err = durEnv("RESTART_COOLDOWN", cfg.RestartCooldown); err != nil {
		return nil, err
	}
	if cfg.GracePeriod, err = durEnv("GRACE_PERIOD", cfg.GracePeriod); err != nil {
		return nil, err
	}

	return cfg, nil
}

func strEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
