package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// MQConfig holds the RabbitMQ connection URL.
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SourceConfig describes one external task source.
//
// Transient marks sources whose current-state fetch is the only truth
// (calendars, mailboxes): their records are expected to disappear and
// reappear across restarts. AllowEmpty marks sources whose legitimate
// steady state is often zero items; only those may purge on an empty
// successful fetch.
type SourceConfig struct {
	Name           string `yaml:"name"`
	Kind           string `yaml:"kind"` // tracker / board / calendar / crm
	BaseURL        string `yaml:"base_url"`
	Query          string `yaml:"query"`
	Enabled        bool   `yaml:"enabled"`
	Transient      bool   `yaml:"transient"`
	AllowEmpty     bool   `yaml:"allow_empty"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// OrchestratorConfig holds settings for the ticket orchestrator client.
type OrchestratorConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SchedulerConfig holds cron expressions for the periodic passes.
type SchedulerConfig struct {
	SyncSpec     string `yaml:"sync_spec"`
	EvaluateSpec string `yaml:"evaluate_spec"`
}

// DiagConfig controls the raw-payload debug ring.
type DiagConfig struct {
	RingSize int `yaml:"ring_size"`
}

// ServerConfig holds the operational HTTP port (metrics / health).
type ServerConfig struct {
	Port string `yaml:"port"`
}

type Config struct {
	DB           DBConfig           `yaml:"db"`
	MQ           MQConfig           `yaml:"mq"`
	Redis        RedisConfig        `yaml:"redis"`
	Server       ServerConfig       `yaml:"server"`
	Sources      []SourceConfig     `yaml:"sources"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Diag         DiagConfig         `yaml:"diag"`
}

// Load reads the YAML config at path and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideServerFromEnv(&cfg.Server)

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Scheduler.SyncSpec == "" {
		cfg.Scheduler.SyncSpec = "@every 5m"
	}
	if cfg.Scheduler.EvaluateSpec == "" {
		cfg.Scheduler.EvaluateSpec = "@every 15m"
	}
	if cfg.Diag.RingSize <= 0 {
		cfg.Diag.RingSize = 32
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].TimeoutSeconds <= 0 {
			cfg.Sources[i].TimeoutSeconds = 10
		}
	}
	if cfg.Orchestrator.TimeoutSeconds <= 0 {
		cfg.Orchestrator.TimeoutSeconds = 15
	}
}

// OverrideDBFromEnv overrides database settings from environment variables.
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv overrides MQ settings from environment variables.
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv overrides Redis settings from environment variables.
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideServerFromEnv overrides server settings from environment variables.
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// GetEnv returns the environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
