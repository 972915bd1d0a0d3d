package config

import (
	"errors"
	"io/fs"
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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Exam       ExamConfig
	Evaluation EvaluationConfig
	Calendar   CalendarConfig
	Notifier   NotifierConfig
	Storage    StorageConfig
	Telemetry  TelemetryConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig describes how tokens issued by the auth collaborator are verified.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ExamConfig tunes the exam session time budget enforcement.
type ExamConfig struct {
	SubmissionGrace    time.Duration
	AutoSubmitInterval time.Duration
	AutoSubmitBatch    int
	TemplateCacheTTL   time.Duration
}

// EvaluationConfig tunes the SLA scheduler.
type EvaluationConfig struct {
	ScanInterval time.Duration
	ScanBatch    int
	TieBreak     string
	LeaseTTL     time.Duration
}

// CalendarConfig is the working-hours window used for SLA deadlines.
type CalendarConfig struct {
	Timezone    string
	WorkStart   string
	WorkEnd     string
	WorkingDays []string
}

// NotifierConfig controls event emission towards the external notifier.
type NotifierConfig struct {
	Stream     string
	MaxLen     int64
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// StorageConfig configures signed links to answer sheets held by the file-storage collaborator.
type StorageConfig struct {
	AnswerSheetBaseURL string
	SignedURLSecret    string
	SignedURLTTL       time.Duration
}

// TelemetryConfig enables OTLP tracing when an endpoint is present.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       v.GetString("DB_DRIVER"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: v.GetString("JWT_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Exam = ExamConfig{
		SubmissionGrace:    parseDuration(v.GetString("EXAM_SUBMISSION_GRACE"), 5*time.Minute),
		AutoSubmitInterval: parseDuration(v.GetString("EXAM_AUTO_SUBMIT_INTERVAL"), time.Minute),
		AutoSubmitBatch:    v.GetInt("EXAM_AUTO_SUBMIT_BATCH"),
		TemplateCacheTTL:   parseDuration(v.GetString("EXAM_TEMPLATE_CACHE_TTL"), time.Minute),
	}

	cfg.Evaluation = EvaluationConfig{
		ScanInterval: parseDuration(v.GetString("EVALUATION_SCAN_INTERVAL"), 15*time.Minute),
		ScanBatch:    v.GetInt("EVALUATION_SCAN_BATCH"),
		TieBreak:     v.GetString("EVALUATION_TIE_BREAK"),
		LeaseTTL:     parseDuration(v.GetString("EVALUATION_LEASE_TTL"), 5*time.Minute),
	}

	cfg.Calendar = CalendarConfig{
		Timezone:    v.GetString("CALENDAR_TIMEZONE"),
		WorkStart:   v.GetString("CALENDAR_WORK_START"),
		WorkEnd:     v.GetString("CALENDAR_WORK_END"),
		WorkingDays: splitAndTrim(v.GetString("CALENDAR_WORKING_DAYS")),
	}

	cfg.Notifier = NotifierConfig{
		Stream:     v.GetString("NOTIFIER_STREAM"),
		MaxLen:     v.GetInt64("NOTIFIER_STREAM_MAXLEN"),
		Workers:    v.GetInt("NOTIFIER_WORKERS"),
		BufferSize: v.GetInt("NOTIFIER_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFIER_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFIER_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Storage = StorageConfig{
		AnswerSheetBaseURL: v.GetString("ANSWER_SHEET_BASE_URL"),
		SignedURLSecret:    v.GetString("ANSWER_SHEET_SIGNED_URL_SECRET"),
		SignedURLTTL:       parseDuration(v.GetString("ANSWER_SHEET_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Telemetry = TelemetryConfig{
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "exam_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EXAM_SUBMISSION_GRACE", "5m")
	v.SetDefault("EXAM_AUTO_SUBMIT_INTERVAL", "1m")
	v.SetDefault("EXAM_AUTO_SUBMIT_BATCH", 100)
	v.SetDefault("EXAM_TEMPLATE_CACHE_TTL", "1m")

	v.SetDefault("EVALUATION_SCAN_INTERVAL", "15m")
	v.SetDefault("EVALUATION_SCAN_BATCH", 200)
	v.SetDefault("EVALUATION_TIE_BREAK", "count_then_recency")
	v.SetDefault("EVALUATION_LEASE_TTL", "5m")

	v.SetDefault("CALENDAR_TIMEZONE", "UTC")
	v.SetDefault("CALENDAR_WORK_START", "09:00")
	v.SetDefault("CALENDAR_WORK_END", "18:00")
	v.SetDefault("CALENDAR_WORKING_DAYS", "MON,TUE,WED,THU,FRI,SAT")

	v.SetDefault("NOTIFIER_STREAM", "exam-engine.events")
	v.SetDefault("NOTIFIER_STREAM_MAXLEN", 100000)
	v.SetDefault("NOTIFIER_WORKERS", 2)
	v.SetDefault("NOTIFIER_BUFFER_SIZE", 256)
	v.SetDefault("NOTIFIER_MAX_RETRIES", 5)
	v.SetDefault("NOTIFIER_RETRY_DELAY", "2s")

	v.SetDefault("ANSWER_SHEET_BASE_URL", "http://localhost:9000/answer-sheets")
	v.SetDefault("ANSWER_SHEET_SIGNED_URL_SECRET", "dev_answer_sheet_secret")
	v.SetDefault("ANSWER_SHEET_SIGNED_URL_TTL", "30m")

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "exam-engine")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
