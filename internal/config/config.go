package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Port        int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	ReadTimeout    int `mapstructure:"read_timeout"`
	WriteTimeout   int `mapstructure:"write_timeout"`
	RequestTimeout int `mapstructure:"request_timeout"`
	MaxImportURLs  int `mapstructure:"max_import_urls"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds the shared JWT secret used to verify backend-issued
// tokens and the admin secret (plain or bcrypt hash).
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	JWTIssuer       string `mapstructure:"jwt_issuer"`
	AdminSecret     string `mapstructure:"admin_secret"`
	AdminSecretHash string `mapstructure:"admin_secret_hash"`
}

type OllamaConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	EmbedModel string `mapstructure:"embed_model"`
	GenModel   string `mapstructure:"gen_model"`
	Embeddings bool   `mapstructure:"embeddings"`
}

// RedisConfig enables the enhancement cache when URL is set.
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// KafkaConfig enables staged-record events when Brokers is set.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	StagedTopic string   `mapstructure:"staged_topic"`
}

type ScraperConfig struct {
	SitesFile    string `mapstructure:"sites_file"`
	Concurrency  int    `mapstructure:"concurrency"`
	MaxPageBytes int64  `mapstructure:"max_page_bytes"`
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns request timeout as duration
func (s *ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

func (r *RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// Load reads .env (if present), an optional config.yaml, and the environment.
// Environment variables override the file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	return &cfg, nil
}

// bindLegacyEnv keeps the flat variable names used by existing deployments.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"app.port":               {"APP_PORT", "PORT"},
		"database.url":           {"DATABASE_URL"},
		"ollama.host":            {"OLLAMA_HOST"},
		"auth.jwt_secret":        {"AUTH_JWT_SECRET", "JWT_SECRET"},
		"auth.admin_secret":      {"AUTH_ADMIN_SECRET", "ADMIN_SECRET"},
		"auth.admin_secret_hash": {"AUTH_ADMIN_SECRET_HASH", "ADMIN_SECRET_HASH"},
		"cors.allowed_origins":   {"CORS_ALLOWED_ORIGINS", "CORS_ORIGINS"},
		"redis.url":              {"REDIS_URL"},
		"kafka.brokers":          {"KAFKA_BROKERS"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// splitList accepts both a real list and a single comma-separated value.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Opportunity Importer")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.migrate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 300)
	v.SetDefault("server.request_timeout", 300)
	v.SetDefault("server.max_import_urls", 20)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.admin_secret", "")
	v.SetDefault("auth.admin_secret_hash", "")

	v.SetDefault("ollama.enabled", true)
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.embed_model", "nomic-embed-text")
	v.SetDefault("ollama.gen_model", "llama3.2:latest")
	v.SetDefault("ollama.embeddings", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl_seconds", 86400)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.staged_topic", "opportunity.staged")

	v.SetDefault("scraper.sites_file", "")
	v.SetDefault("scraper.concurrency", 4)
	v.SetDefault("scraper.max_page_bytes", 5<<20)
}
