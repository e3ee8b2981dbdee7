package config

import (
	"errors"
	"fmt"
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

	MemberService MemberServiceConfig
	Signups       SignupsConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Exports       ExportsConfig
	Snapshots     SnapshotsConfig
}

// MemberServiceConfig holds the remote member service endpoint and credentials.
type MemberServiceConfig struct {
	Scheme   string
	Domain   string
	Database string
	Login    string
	Password string
	Timeout  time.Duration

	// RateLimit caps outgoing calls per second; 0 disables it.
	RateLimit float64
	RateBurst int
}

// BaseURL joins scheme and domain, e.g. https://members.example.org.
func (c MemberServiceConfig) BaseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, strings.TrimSuffix(c.Domain, "/"))
}

// SignupsConfig carries aggregation defaults.
type SignupsConfig struct {
	MainEventCode   string
	OtherEventCodes []string
	Limit           int
	MatchThreshold  float64
	DedupRule       string
	// RefreshInterval republishes MainEventCode periodically when set.
	RefreshInterval time.Duration
	RefreshWorkers  int
	RefreshRetries  int
	// RateLimit caps signup computations per second across clients; 0 disables it.
	RateLimit       float64
	RateBurst       int
	// Questions are the scheduled refresh's answer columns: label to default,
	// or an empty list for multi-option questions.
	Questions map[string]interface{}
}

type DatabaseConfig struct {
	Enabled      bool
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	// APIKeyHash is the bcrypt hash of the key accepted by the token endpoint.
	APIKeyHash string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ExportsConfig configures CSV/PDF signup sheets.
type ExportsConfig struct {
	OutputDir string
	PDFTitle  string
}

// SnapshotsConfig controls where computed lists are kept.
type SnapshotsConfig struct {
	PublishPrefix string
	PublishTTL    time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.MemberService = MemberServiceConfig{
		Scheme:   v.GetString("MEMBER_SERVICE_SCHEME"),
		Domain:   v.GetString("MEMBER_SERVICE_DOMAIN"),
		Database: v.GetString("MEMBER_SERVICE_DB"),
		Login:    v.GetString("MEMBER_SERVICE_LOGIN"),
		Password: v.GetString("MEMBER_SERVICE_PASSWORD"),
		Timeout:  parseDuration(v.GetString("MEMBER_SERVICE_TIMEOUT"), 60*time.Second),

		RateLimit: v.GetFloat64("MEMBER_SERVICE_RATE_LIMIT"),
		RateBurst: v.GetInt("MEMBER_SERVICE_RATE_BURST"),
	}

	cfg.Signups = SignupsConfig{
		MainEventCode:   v.GetString("SIGNUPS_MAIN_EVENT_CODE"),
		OtherEventCodes: splitAndTrim(v.GetString("SIGNUPS_OTHER_EVENT_CODES")),
		Limit:           v.GetInt("SIGNUPS_LIMIT"),
		MatchThreshold:  v.GetFloat64("SIGNUPS_MATCH_THRESHOLD"),
		DedupRule:       v.GetString("SIGNUPS_DEDUP_RULE"),
		RefreshInterval: parseDuration(v.GetString("SIGNUPS_REFRESH_INTERVAL"), 0),
		RefreshWorkers:  v.GetInt("SIGNUPS_REFRESH_WORKERS"),
		RefreshRetries:  v.GetInt("SIGNUPS_REFRESH_RETRIES"),
		RateLimit:       v.GetFloat64("SIGNUPS_RATE_LIMIT"),
		RateBurst:       v.GetInt("SIGNUPS_RATE_BURST"),
		Questions:       parseQuestions(v.GetString("SIGNUPS_QUESTIONS"), v.GetString("SIGNUPS_MULTI_QUESTIONS")),
	}

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("DB_ENABLED"),
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		APIKeyHash: v.GetString("API_KEY_HASH"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Exports = ExportsConfig{
		OutputDir: v.GetString("EXPORTS_OUTPUT_DIR"),
		PDFTitle:  v.GetString("EXPORTS_PDF_TITLE"),
	}

	cfg.Snapshots = SnapshotsConfig{
		PublishPrefix: v.GetString("PUBLISH_KEY_PREFIX"),
		PublishTTL:    parseDuration(v.GetString("PUBLISH_TTL"), 24*time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("MEMBER_SERVICE_SCHEME", "https")
	v.SetDefault("MEMBER_SERVICE_DOMAIN", "")
	v.SetDefault("MEMBER_SERVICE_DB", "")
	v.SetDefault("MEMBER_SERVICE_LOGIN", "")
	v.SetDefault("MEMBER_SERVICE_PASSWORD", "")
	v.SetDefault("MEMBER_SERVICE_TIMEOUT", "60s")
	v.SetDefault("MEMBER_SERVICE_RATE_LIMIT", 0)
	v.SetDefault("MEMBER_SERVICE_RATE_BURST", 10)

	v.SetDefault("SIGNUPS_MAIN_EVENT_CODE", "")
	v.SetDefault("SIGNUPS_OTHER_EVENT_CODES", "")
	v.SetDefault("SIGNUPS_LIMIT", 0)
	v.SetDefault("SIGNUPS_MATCH_THRESHOLD", 0)
	v.SetDefault("SIGNUPS_DEDUP_RULE", "recency")
	v.SetDefault("SIGNUPS_REFRESH_INTERVAL", "")
	v.SetDefault("SIGNUPS_REFRESH_WORKERS", 1)
	v.SetDefault("SIGNUPS_REFRESH_RETRIES", 3)
	v.SetDefault("SIGNUPS_RATE_LIMIT", 0)
	v.SetDefault("SIGNUPS_RATE_BURST", 5)
	v.SetDefault("SIGNUPS_QUESTIONS", "")
	v.SetDefault("SIGNUPS_MULTI_QUESTIONS", "")

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "member_signups")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("API_KEY_HASH", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EXPORTS_OUTPUT_DIR", "./exports")
	v.SetDefault("EXPORTS_PDF_TITLE", "Signups")

	v.SetDefault("PUBLISH_KEY_PREFIX", "signups")
	v.SetDefault("PUBLISH_TTL", "24h")
}

// parseQuestions reads "label=default" pairs and bare multi-option labels.
// A pair without "=" gets an empty default.
func parseQuestions(pairs, multi string) map[string]interface{} {
	questions := make(map[string]interface{})
	for _, pair := range splitAndTrim(pairs) {
		label, def, _ := strings.Cut(pair, "=")
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		questions[label] = strings.TrimSpace(def)
	}
	for _, label := range splitAndTrim(multi) {
		questions[label] = []interface{}{}
	}
	if len(questions) == 0 {
		return nil
	}
	return questions
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
