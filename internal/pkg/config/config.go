// Package config loads service configuration from config.yaml and CLAIMS_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CLAIMS_"

	// PathEnv names the variable that overrides DefaultPath.
	PathEnv = "CLAIMS_CONFIG"

	DefaultPath = "config.yaml"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Intake     IntakeConfig     `koanf:"intake"`
	Analysis   AnalysisConfig   `koanf:"analysis"`
	Storage    StorageConfig    `koanf:"storage"`
	Drafts     DraftsConfig     `koanf:"drafts"`
	Files      FilesConfig      `koanf:"files"`
	Events     EventsConfig     `koanf:"events"`
	Completion CompletionConfig `koanf:"completion"`
	Auth       AuthConfig       `koanf:"auth"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// SlogLevel parses Level, falling back to info.
func (c LogConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

type IntakeConfig struct {
	DefaultFlow     string        `koanf:"default_flow"`
	FlowsPath       string        `koanf:"flows_path"` // empty uses the embedded presets
	PaceDelay       time.Duration `koanf:"pace_delay"`
	AnalysisTimeout time.Duration `koanf:"analysis_timeout"`
	PersistTimeout  time.Duration `koanf:"persist_timeout"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`
	DraftTTL        time.Duration `koanf:"draft_ttl"`
}

type AnalysisConfig struct {
	URL          string        `koanf:"url"`
	APIKey       string        `koanf:"api_key"`
	Timeout      time.Duration `koanf:"timeout"`
	Retries      int           `koanf:"retries"`
	PDFTextLayer bool          `koanf:"pdf_text_layer"`
	AllowURLs    bool          `koanf:"allow_urls"` // accept evidence by URL
}

type StorageConfig struct {
	Type     string         `koanf:"type"` // memory, sqlite, postgres, dynamodb
	Database DatabaseConfig `koanf:"database"`
	DynamoDB DynamoDBConfig `koanf:"dynamodb"`
}

// DatabaseConfig is shared by the sqlite and postgres claim stores.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // defaults to storage.type
	DSN    string `koanf:"dsn"`
}

type DynamoDBConfig struct {
	Table    string `koanf:"table"`
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`
}

type DraftsConfig struct {
	Type  string      `koanf:"type"` // memory, sql, redis
	Redis RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type FilesConfig struct {
	Type       string        `koanf:"type"` // memory, minio, s3
	Bucket     string        `koanf:"bucket"`
	Endpoint   string        `koanf:"endpoint"`
	Region     string        `koanf:"region"`
	AccessKey  string        `koanf:"access_key"`
	SecretKey  string        `koanf:"secret_key"`
	UseSSL     bool          `koanf:"use_ssl"`
	PresignTTL time.Duration `koanf:"presign_ttl"`
}

type EventsConfig struct {
	Type  string      `koanf:"type"` // direct, kafka, none
	Kafka KafkaConfig `koanf:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// CompletionConfig selects what happens when a claimant presses Done.
// Without a webhook url a claim.completed event is published.
type CompletionConfig struct {
	Webhook WebhookConfig `koanf:"webhook"`
}

type WebhookConfig struct {
	URL     string            `koanf:"url"`
	Timeout time.Duration     `koanf:"timeout"`
	Retries int               `koanf:"retries"`
	Headers map[string]string `koanf:"headers"`
}

type AuthConfig struct {
	JWTSecret    string `koanf:"jwt_secret"` // empty disables authentication
	Issuer       string `koanf:"issuer"`
	MerchantRole string `koanf:"merchant_role"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":                8080,
	"server.request_timeout":     "30s",
	"log.level":                  "info",
	"intake.default_flow":        "protection",
	"intake.pace_delay":          "600ms",
	"intake.analysis_timeout":    "60s",
	"intake.persist_timeout":     "10s",
	"intake.max_upload_bytes":    10 << 20,
	"intake.draft_ttl":           "24h",
	"analysis.timeout":           "60s",
	"analysis.retries":           2,
	"analysis.pdf_text_layer":    true,
	"storage.type":               "memory",
	"drafts.type":                "memory",
	"drafts.redis.addr":          "localhost:6379",
	"files.type":                 "memory",
	"files.bucket":               "claim-evidence",
	"files.presign_ttl":          "15m",
	"events.type":                "direct",
	"events.kafka.topic":         "claim-events",
	"completion.webhook.timeout": "10s",
	"completion.webhook.retries": 2,
	"auth.merchant_role":         "merchant",
	"telemetry.service_name":     "claim-intake",
	"storage.dynamodb.table":     "claims",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Path returns the config file location: CLAIMS_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the file at Path.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads path, applies CLAIMS_ environment overrides and defaults,
// and validates the result. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	// CLAIMS_SERVER__PORT -> server.port
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for _, s := range []*string{
		&cfg.Analysis.URL,
		&cfg.Analysis.APIKey,
		&cfg.Storage.Database.DSN,
		&cfg.Drafts.Redis.Password,
		&cfg.Files.AccessKey,
		&cfg.Files.SecretKey,
		&cfg.Auth.JWTSecret,
		&cfg.Completion.Webhook.URL,
	} {
		*s = substituteEnvVars(*s)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate rejects unknown backend types and combinations that cannot work.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown type %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}
	check("storage.type", c.Storage.Type, "memory", "sqlite", "postgres", "dynamodb")
	check("drafts.type", c.Drafts.Type, "memory", "sql", "redis")
	check("files.type", c.Files.Type, "memory", "minio", "s3")
	check("events.type", c.Events.Type, "direct", "kafka", "none")

	if c.Drafts.Type == "sql" && c.Storage.Type != "sqlite" && c.Storage.Type != "postgres" {
		errs = append(errs, errors.New("drafts.type sql requires storage.type sqlite or postgres"))
	}
	if c.Events.Type == "kafka" && len(c.Events.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("events.kafka.brokers is required"))
	}
	if c.Files.Type == "minio" && c.Files.Endpoint == "" {
		errs = append(errs, errors.New("files.endpoint is required for minio"))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port: invalid port %d", c.Server.Port))
	}
	if c.Intake.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("intake.max_upload_bytes must be positive"))
	}
	return errors.Join(errs...)
}

// Reloadable is the subset of settings applied without a restart.
type Reloadable struct {
	LogLevel        slog.Level
	PaceDelay       time.Duration
	AnalysisTimeout time.Duration
	AnalysisRetries int
}

// Reloadable extracts the hot-reloadable settings.
func (c *Config) Reloadable() Reloadable {
	return Reloadable{
		LogLevel:        c.Log.SlogLevel(),
		PaceDelay:       c.Intake.PaceDelay,
		AnalysisTimeout: c.Intake.AnalysisTimeout,
		AnalysisRetries: c.Analysis.Retries,
	}
}
