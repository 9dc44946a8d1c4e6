// Package config loads and validates the stream layer runtime configuration.
// Defaults are enumerated in one place (DefaultConfig); a YAML file and then
// environment variables overlay them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the streamd runtime.
type Config struct {
	Logging      LoggingConfig      `yaml:"logging"`
	Server       ServerConfig       `yaml:"server"`
	World        WorldConfig        `yaml:"world"`
	Automation   AutomationConfig   `yaml:"automation"`
	Intelligence IntelligenceConfig `yaml:"intelligence"`
	Wallet       WalletConfig       `yaml:"wallet"`
	Streaming    StreamingConfig    `yaml:"streaming"`
	Gas          GasConfig          `yaml:"gas"`
	Journal      JournalConfig      `yaml:"journal"`
	Preferences  PreferencesConfig  `yaml:"preferences"`
	Auth         AuthConfig         `yaml:"auth"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"STREAM_LOG_LEVEL"`
	Format     string `yaml:"format" env:"STREAM_LOG_FORMAT"`
	Output     string `yaml:"output" env:"STREAM_LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"STREAM_LOG_FILE_PREFIX"`
}

// ServerConfig configures the admin/status HTTP server.
type ServerConfig struct {
	Host                string `yaml:"host" env:"STREAM_SERVER_HOST"`
	Port                int    `yaml:"port" env:"STREAM_SERVER_PORT"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `yaml:"idle_timeout_seconds"`
}

// WorldConfig tunes the lifecycle orchestrator.
type WorldConfig struct {
	AutoConnect          bool `yaml:"auto_connect" env:"STREAM_AUTO_CONNECT"`
	InitTimeoutSeconds   int  `yaml:"init_timeout_seconds" env:"STREAM_INIT_TIMEOUT_SECONDS"`
	WalletRefreshSeconds int  `yaml:"wallet_refresh_seconds" env:"STREAM_WALLET_REFRESH_SECONDS"`
}

// TaskConfig declares an operator-defined automation task. Script bodies are
// JavaScript compiled at boot; built-in tasks do not appear here.
type TaskConfig struct {
	ID       string `yaml:"id"`
	Schedule string `yaml:"schedule"`
	Script   string `yaml:"script"`
}

// AutomationConfig controls the background task engine.
type AutomationConfig struct {
	Enabled            bool         `yaml:"enabled" env:"STREAM_AUTOMATION_ENABLED"`
	MaxConcurrentTasks int          `yaml:"max_concurrent_tasks" env:"STREAM_AUTOMATION_MAX_CONCURRENT"`
	QueueCapacity      int          `yaml:"queue_capacity" env:"STREAM_AUTOMATION_QUEUE_CAPACITY"`
	Tasks              []TaskConfig `yaml:"tasks"`
}

// IntelligenceConfig controls the digital intelligence module. The two
// optional capabilities default to enabled; explicit false disables them.
type IntelligenceConfig struct {
	Enabled            bool     `yaml:"enabled" env:"STREAM_INTELLIGENCE_ENABLED"`
	AnomalyDetection   *bool    `yaml:"anomaly_detection"`
	PredictiveAnalysis *bool    `yaml:"predictive_analysis"`
	Streams            []string `yaml:"streams"`
}

// WalletConfig points the wallet adapter at a NEO N3 RPC node.
type WalletConfig struct {
	RPCEndpoint string `yaml:"rpc_endpoint" env:"STREAM_WALLET_RPC"`
	Address     string `yaml:"address" env:"STREAM_WALLET_ADDRESS"`
}

// StreamingConfig points the streaming adapter at the edge control channel.
type StreamingConfig struct {
	EdgeURL string `yaml:"edge_url" env:"STREAM_EDGE_URL"`
}

// GasConfig configures the gas price monitor's fetch endpoint.
type GasConfig struct {
	PriceURL string `yaml:"price_url" env:"STREAM_GAS_PRICE_URL"`
	JSONPath string `yaml:"json_path" env:"STREAM_GAS_JSON_PATH"`
}

// JournalConfig selects the task execution journal backend.
type JournalConfig struct {
	Driver string `yaml:"driver" env:"STREAM_JOURNAL_DRIVER"`
	DSN    string `yaml:"dsn" env:"STREAM_JOURNAL_DSN"`
}

// PreferencesConfig selects the UI preferences backend.
type PreferencesConfig struct {
	Driver        string `yaml:"driver" env:"STREAM_PREFS_DRIVER"`
	RedisAddr     string `yaml:"redis_addr" env:"STREAM_PREFS_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"STREAM_PREFS_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"STREAM_PREFS_REDIS_DB"`
}

// AuthConfig protects mutating admin endpoints when a secret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"STREAM_ADMIN_JWT_SECRET"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present. Every default lives here.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8090,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 30,
			IdleTimeoutSeconds:  120,
		},
		World: WorldConfig{
			AutoConnect:          false,
			InitTimeoutSeconds:   30,
			WalletRefreshSeconds: 60,
		},
		Automation: AutomationConfig{
			Enabled:            true,
			MaxConcurrentTasks: 0, // 0 derives the bound from host resources
			QueueCapacity:      64,
		},
		Intelligence: IntelligenceConfig{
			Enabled: false,
			Streams: []string{"transactions", "streams", "content", "user-activity"},
		},
		Journal: JournalConfig{
			Driver: "memory",
		},
		Preferences: PreferencesConfig{
			Driver: "memory",
		},
	}
}

// Load reads configuration from the path in STREAM_CONFIG (falling back to
// config/stream_layer.yaml), overlays environment variables and validates
// the result. A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("STREAM_CONFIG"))
	if path == "" {
		path = filepath.Join("config", "stream_layer.yaml")
	}
	return LoadFromPath(path)
}

// LoadFromPath behaves like Load with an explicit file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults apply
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency and enumerated values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.World.InitTimeoutSeconds <= 0 {
		return fmt.Errorf("world.init_timeout_seconds must be positive")
	}
	if c.World.WalletRefreshSeconds <= 0 {
		return fmt.Errorf("world.wallet_refresh_seconds must be positive")
	}
	if c.Automation.MaxConcurrentTasks < 0 {
		return fmt.Errorf("automation.max_concurrent_tasks cannot be negative")
	}
	if c.Automation.QueueCapacity <= 0 {
		return fmt.Errorf("automation.queue_capacity must be positive")
	}
	switch c.Journal.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Journal.DSN) == "" {
			return fmt.Errorf("journal.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("journal.driver %q is not supported (memory, postgres)", c.Journal.Driver)
	}
	switch c.Preferences.Driver {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Preferences.RedisAddr) == "" {
			return fmt.Errorf("preferences.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("preferences.driver %q is not supported (memory, redis)", c.Preferences.Driver)
	}
	seen := make(map[string]struct{}, len(c.Automation.Tasks))
	for i, task := range c.Automation.Tasks {
		if strings.TrimSpace(task.ID) == "" {
			return fmt.Errorf("automation.tasks[%d]: id is required", i)
		}
		if strings.TrimSpace(task.Schedule) == "" {
			return fmt.Errorf("automation.tasks[%d] (%s): schedule is required", i, task.ID)
		}
		if strings.TrimSpace(task.Script) == "" {
			return fmt.Errorf("automation.tasks[%d] (%s): script is required", i, task.ID)
		}
		if _, dup := seen[task.ID]; dup {
			return fmt.Errorf("automation.tasks: duplicate id %q", task.ID)
		}
		seen[task.ID] = struct{}{}
	}
	return nil
}

// AnomalyDetectionEnabled resolves the optional flag with its default.
func (c IntelligenceConfig) AnomalyDetectionEnabled() bool {
	if c.AnomalyDetection == nil {
		return true
	}
	return *c.AnomalyDetection
}

// PredictiveAnalysisEnabled resolves the optional flag with its default.
func (c IntelligenceConfig) PredictiveAnalysisEnabled() bool {
	if c.PredictiveAnalysis == nil {
		return true
	}
	return *c.PredictiveAnalysis
}
