package config

import (
	"errors"
	"fmt"
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

	Database  DatabaseConfig
	Redis     RedisConfig
	Moodle    MoodleConfig
	Log       LogConfig
	Pipeline  PipelineConfig
	Filters   FilterConfig
	Exports   ExportConfig
	Heartbeat HeartbeatConfig
	Cache     CacheConfig
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
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// MoodleConfig targets the source LMS web-service endpoint.
type MoodleConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// PipelineConfig bounds the per-course worker pool.
type PipelineConfig struct {
	Workers      int
	ReportBuffer int
	RunOnStartup bool
}

// FilterConfig carries the admissibility thresholds and the processing
// window. It is read-only input to the filter and calculators; the core
// never mutates it.
type FilterConfig struct {
	MinPopulation       int
	MaxUngradedShare    float64
	PassingGrade        float64
	ExcellenceShare     float64
	CompletionShare     float64
	ExcludedKeywords    []string
	ExcludedDepartments []string
	IncludePattern      string
	StartDate           string
	EndDate             string
}

// Window parses the configured processing dates into an inclusive unix
// timestamp range (end date extends to 23:59:59).
func (f FilterConfig) Window() (start, end int64, err error) {
	from, err := time.Parse("2006-01-02", f.StartDate)
	if err != nil {
		return 0, 0, fmt.Errorf("parse start date %q: %w", f.StartDate, err)
	}
	to, err := time.Parse("2006-01-02", f.EndDate)
	if err != nil {
		return 0, 0, fmt.Errorf("parse end date %q: %w", f.EndDate, err)
	}
	return from.Unix(), to.Unix() + 86399, nil
}

// ExportConfig controls per-run CSV/PDF summary generation.
type ExportConfig struct {
	Enabled    bool
	Dir        string
	Workers    int
	MaxRetries int
}

// HeartbeatConfig keeps the hosted warehouse connection warm.
type HeartbeatConfig struct {
	Enabled  bool
	Interval time.Duration
}

// CacheConfig governs snapshot caching between overlapping runs.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Moodle = MoodleConfig{
		BaseURL:    v.GetString("MOODLE_URL"),
		Token:      v.GetString("MOODLE_TOKEN"),
		Timeout:    parseDuration(v.GetString("MOODLE_TIMEOUT"), 5*time.Minute),
		MaxRetries: v.GetInt("MOODLE_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("MOODLE_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Pipeline = PipelineConfig{
		Workers:      v.GetInt("PIPELINE_WORKERS"),
		ReportBuffer: v.GetInt("PIPELINE_REPORT_BUFFER"),
		RunOnStartup: v.GetBool("PIPELINE_RUN_ON_STARTUP"),
	}

	cfg.Filters = FilterConfig{
		MinPopulation:       v.GetInt("FILTER_MIN_POPULATION"),
		MaxUngradedShare:    v.GetFloat64("FILTER_MAX_UNGRADED_SHARE"),
		PassingGrade:        v.GetFloat64("FILTER_PASSING_GRADE"),
		ExcellenceShare:     v.GetFloat64("FILTER_EXCELLENCE_SHARE"),
		CompletionShare:     v.GetFloat64("FILTER_COMPLETION_SHARE"),
		ExcludedKeywords:    splitAndTrim(v.GetString("FILTER_EXCLUDED_KEYWORDS")),
		ExcludedDepartments: splitAndTrim(v.GetString("FILTER_EXCLUDED_DEPARTMENTS")),
		IncludePattern:      v.GetString("FILTER_INCLUDE_PATTERN"),
		StartDate:           v.GetString("FILTER_START_DATE"),
		EndDate:             v.GetString("FILTER_END_DATE"),
	}

	cfg.Exports = ExportConfig{
		Enabled:    v.GetBool("ENABLE_EXPORTS"),
		Dir:        v.GetString("EXPORTS_DIR"),
		Workers:    v.GetInt("EXPORTS_WORKERS"),
		MaxRetries: v.GetInt("EXPORTS_MAX_RETRIES"),
	}

	cfg.Heartbeat = HeartbeatConfig{
		Enabled:  v.GetBool("ENABLE_HEARTBEAT"),
		Interval: parseDuration(v.GetString("HEARTBEAT_INTERVAL"), 10*time.Minute),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_SNAPSHOT_CACHE"),
		TTL:     parseDuration(v.GetString("SNAPSHOT_CACHE_TTL"), 6*time.Hour),
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
	v.SetDefault("DB_NAME", "course_quality_dw")
	v.SetDefault("DB_SSL_MODE", "require")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("MOODLE_URL", "")
	v.SetDefault("MOODLE_TOKEN", "")
	v.SetDefault("MOODLE_TIMEOUT", "5m")
	v.SetDefault("MOODLE_MAX_RETRIES", 3)
	v.SetDefault("MOODLE_RETRY_DELAY", "2s")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PIPELINE_WORKERS", 0)
	v.SetDefault("PIPELINE_REPORT_BUFFER", 256)
	v.SetDefault("PIPELINE_RUN_ON_STARTUP", false)

	v.SetDefault("FILTER_MIN_POPULATION", 5)
	v.SetDefault("FILTER_MAX_UNGRADED_SHARE", 0.10)
	v.SetDefault("FILTER_PASSING_GRADE", 9.5)
	v.SetDefault("FILTER_EXCELLENCE_SHARE", 0.90)
	v.SetDefault("FILTER_COMPLETION_SHARE", 0.70)
	v.SetDefault("FILTER_EXCLUDED_KEYWORDS", "PRUEBA,COPIA,SANDPIT,COPIA DE SEGURIDAD")
	v.SetDefault("FILTER_EXCLUDED_DEPARTMENTS", "POSTG,DIDA,SERVICIO COMUNITARIO")
	v.SetDefault("FILTER_INCLUDE_PATTERN", "")
	v.SetDefault("FILTER_START_DATE", "2023-01-01")
	v.SetDefault("FILTER_END_DATE", "2025-12-31")

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_DIR", "./exports")
	v.SetDefault("EXPORTS_WORKERS", 1)
	v.SetDefault("EXPORTS_MAX_RETRIES", 3)

	v.SetDefault("ENABLE_HEARTBEAT", false)
	v.SetDefault("HEARTBEAT_INTERVAL", "10m")

	v.SetDefault("ENABLE_SNAPSHOT_CACHE", false)
	v.SetDefault("SNAPSHOT_CACHE_TTL", "6h")
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
