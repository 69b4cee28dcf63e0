package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	NATS      NATSConfig      `yaml:"nats"`
	Storage   StorageConfig   `yaml:"storage"`
	Container ContainerConfig `yaml:"container"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Workers int    `yaml:"workers"`
}

type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type ContainerConfig struct {
	BaseURL         string        `yaml:"base_url"`
	InstanceKey     string        `yaml:"instance_key"`
	Command         string        `yaml:"command"`
	Args            []string      `yaml:"args"`
	ReadyAttempts   int           `yaml:"ready_attempts"`
	ReadyInterval   time.Duration `yaml:"ready_interval"`
	ForwardAttempts int           `yaml:"forward_attempts"`
	ForwardDelay    time.Duration `yaml:"forward_delay"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type PipelineConfig struct {
	MinClipDuration    float64 `yaml:"min_clip_duration"`
	MaxClipDuration    float64 `yaml:"max_clip_duration"`
	MinSceneLength     float64 `yaml:"min_scene_length"`
	LargeFileThreshold int64   `yaml:"large_file_threshold"`
	SignExpirySync     int     `yaml:"sign_expiry_sync"`
	SignExpiryStream   int     `yaml:"sign_expiry_stream"`
}

type OpenAIConfig struct {
	APIKey             string `yaml:"api_key"`
	EmbeddingModel     string `yaml:"embedding_model"`
	TranscriptionModel string `yaml:"transcription_model"`
	BaseURL            string `yaml:"base_url"`
}

type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// DatabaseConfig is never dialed by this service. The DSN is injected into
// the container environment so the backing process can reach the app DB.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.NATS.Workers == 0 {
		cfg.NATS.Workers = 2
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "auto"
	}
	if cfg.Container.InstanceKey == "" {
		cfg.Container.InstanceKey = "default"
	}
	if cfg.Container.ReadyAttempts == 0 {
		cfg.Container.ReadyAttempts = 20
	}
	if cfg.Container.ReadyInterval == 0 {
		cfg.Container.ReadyInterval = time.Second
	}
	if cfg.Container.ForwardAttempts == 0 {
		cfg.Container.ForwardAttempts = 5
	}
	if cfg.Container.ForwardDelay == 0 {
		cfg.Container.ForwardDelay = 2 * time.Second
	}
	if cfg.Container.RequestTimeout == 0 {
		cfg.Container.RequestTimeout = 15 * time.Minute
	}
	if cfg.Pipeline.MinClipDuration == 0 {
		cfg.Pipeline.MinClipDuration = 3.0
	}
	if cfg.Pipeline.MaxClipDuration == 0 {
		cfg.Pipeline.MaxClipDuration = 60.0
	}
	if cfg.Pipeline.MinSceneLength == 0 {
		cfg.Pipeline.MinSceneLength = 2.0
	}
	if cfg.Pipeline.LargeFileThreshold == 0 {
		cfg.Pipeline.LargeFileThreshold = 100 * 1024 * 1024
	}
	if cfg.Pipeline.SignExpirySync == 0 {
		cfg.Pipeline.SignExpirySync = 3600
	}
	if cfg.Pipeline.SignExpiryStream == 0 {
		cfg.Pipeline.SignExpiryStream = 7200
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.TranscriptionModel == "" {
		cfg.OpenAI.TranscriptionModel = "whisper-1"
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLIPLINE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CLIPLINE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("CLIPLINE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("CLIPLINE_NATS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Workers = n
		}
	}
	if v := os.Getenv("CLIPLINE_STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("CLIPLINE_STORAGE_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("CLIPLINE_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("CLIPLINE_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("CLIPLINE_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("CLIPLINE_CONTAINER_BASE_URL"); v != "" {
		cfg.Container.BaseURL = v
	}
	if v := os.Getenv("CLIPLINE_CONTAINER_COMMAND"); v != "" {
		cfg.Container.Command = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("CLIPLINE_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("CLIPLINE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CLIPLINE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("CLIPLINE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("CLIPLINE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("CLIPLINE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
}
