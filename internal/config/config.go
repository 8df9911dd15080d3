// Package config loads the carbon CLI configuration from YAML, an optional
// .env file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/saadjs/carbon-cli/internal/app"
	"github.com/saadjs/carbon-cli/internal/storage"
)

type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Climatiq ClimatiqConfig `yaml:"climatiq"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Influx   InfluxConfig   `yaml:"influx"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	History  HistoryConfig  `yaml:"history"`
}

type StorageConfig struct {
	Driver      string   `yaml:"driver"` // sqlite, memory, fs, s3, postgres
	SQLitePath  string   `yaml:"sqlite_path"`
	FSRoot      string   `yaml:"fs_root"`
	S3          S3Config `yaml:"s3"`
	PostgresDSN string   `yaml:"postgres_dsn"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

type ClimatiqConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	PreviewBaseURL string `yaml:"preview_base_url"`
	Timeout        string `yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	SessionPath string `yaml:"session_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

type HistoryConfig struct {
	Timezone    string `yaml:"timezone"`
	TrendDays   int    `yaml:"trend_days"`
	RecentLimit int    `yaml:"recent_limit"`
}

func DefaultConfig() *Config {
	sqlitePath, _ := app.DefaultDBPath()
	fsRoot, _ := app.DefaultStoreRoot()
	sessionPath, _ := app.DefaultSessionPath()
	return &Config{
		Storage: StorageConfig{
			Driver:     storage.DriverSQLite,
			SQLitePath: sqlitePath,
			FSRoot:     fsRoot,
			S3:         S3Config{Region: "us-east-1", Prefix: "carbon"},
		},
		Climatiq: ClimatiqConfig{
			BaseURL:        "https://api.climatiq.io",
			PreviewBaseURL: "https://preview.api.climatiq.io",
			Timeout:        "30s",
		},
		Auth:    AuthConfig{SessionPath: sessionPath},
		Logging: LoggingConfig{Level: "warn", Format: "console"},
		Influx:  InfluxConfig{URL: "http://localhost:8086", Org: "carbon", Bucket: "emissions"},
		Kafka:   KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "carbon.history", ClientID: "carbon-cli"},
		History: HistoryConfig{Timezone: "Local", TrendDays: 30, RecentLimit: 10},
	}
}

// Load reads path (missing file means defaults), loads .env from the
// working directory when present, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

func (c *Config) Save(path string) error {
	if err := app.EnsureDir(path); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setFromEnv(&c.Storage.Driver, "CARBON_STORAGE_DRIVER")
	setFromEnv(&c.Storage.SQLitePath, "CARBON_SQLITE_PATH")
	setFromEnv(&c.Storage.FSRoot, "CARBON_FS_ROOT")
	setFromEnv(&c.Storage.S3.Bucket, "CARBON_S3_BUCKET")
	setFromEnv(&c.Storage.S3.Region, "CARBON_S3_REGION")
	setFromEnv(&c.Storage.S3.Endpoint, "CARBON_S3_ENDPOINT")
	setFromEnv(&c.Storage.PostgresDSN, "CARBON_POSTGRES_DSN")
	setFromEnv(&c.Climatiq.APIKey, "CLIMATIQ_API_KEY")
	setFromEnv(&c.Auth.JWTSecret, "CARBON_JWT_SECRET")
	setFromEnv(&c.Logging.Level, "CARBON_LOG_LEVEL")
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		c.Influx.URL = url
		c.Influx.Enabled = true
	}
	setFromEnv(&c.Influx.Token, "INFLUX_TOKEN")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
		c.Kafka.Enabled = true
	}
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
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

// Validate rejects values that would only fail later at first use.
func (c *Config) Validate() error {
	known := false
	for _, d := range storage.Drivers() {
		if strings.EqualFold(c.Storage.Driver, d) {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.ClimatiqTimeout(); err != nil {
		return err
	}
	if c.History.TrendDays < 0 {
		return fmt.Errorf("history.trend_days must be >= 0")
	}
	return nil
}

// Location resolves history.timezone; empty or "Local" is the host zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.History.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (c *Config) ClimatiqTimeout() (time.Duration, error) {
	if strings.TrimSpace(c.Climatiq.Timeout) == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Climatiq.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parse climatiq.timeout: %w", err)
	}
	return d, nil
}

// StoreConfig converts the storage section into the driver factory input.
func (c *Config) StoreConfig() storage.Config {
	return storage.Config{
		Driver:     c.Storage.Driver,
		SQLitePath: c.Storage.SQLitePath,
		FSRoot:     c.Storage.FSRoot,
		S3: storage.S3Config{
			Bucket:    c.Storage.S3.Bucket,
			Region:    c.Storage.S3.Region,
			Endpoint:  c.Storage.S3.Endpoint,
			Prefix:    c.Storage.S3.Prefix,
			PathStyle: c.Storage.S3.PathStyle,
		},
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// Masked returns a copy with secrets replaced for display.
func (c *Config) Masked() *Config {
	out := *c
	out.Kafka.Brokers = append([]string(nil), c.Kafka.Brokers...)
	out.Climatiq.APIKey = mask(c.Climatiq.APIKey)
	out.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	out.Influx.Token = mask(c.Influx.Token)
	out.Storage.PostgresDSN = maskDSN(c.Storage.PostgresDSN)
	return &out
}

func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

// maskDSN hides the password part of user:password@host.
func maskDSN(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return dsn
	}
	scheme := strings.Index(dsn, "://")
	start := 0
	if scheme >= 0 && scheme < at {
		start = scheme + 3
	}
	colon := strings.Index(dsn[start:at], ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:start+colon+1] + "****" + dsn[at:]
}

// DefaultPath is where Load looks when --config is not given.
func DefaultPath() (string, error) {
	path, err := app.DefaultConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
