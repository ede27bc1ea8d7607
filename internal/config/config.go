package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Web       WebConfig       `yaml:"web"`
	Store     StoreConfig     `yaml:"store"`
	Bus       BusConfig       `yaml:"bus"`
	Engine    EngineConfig    `yaml:"engine"`
	Routing   RoutingConfig   `yaml:"routing"`
	LLM       LLMConfig       `yaml:"llm"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Vault     VaultConfig     `yaml:"vault"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type BusConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

// EngineConfig holds the run-loop and retry policy knobs.
type EngineConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxCorrections int           `yaml:"max_corrections"`
	MaxIterations  int           `yaml:"max_iterations"`
}

// RoutingConfig exposes the routing heuristics as configuration rather than
// hard-coded keyword lists.
type RoutingConfig struct {
	FullstackKeywords  []string `yaml:"fullstack_keywords"`
	DeploymentKeywords []string `yaml:"deployment_keywords"`
}

type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type WorkspaceConfig struct {
	BasePath string `yaml:"base_path"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

func defaults() Config {
	return Config{
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Store: StoreConfig{
			Path: "data/helios.db",
		},
		Bus: BusConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Engine: EngineConfig{
			MaxRetries:     3,
			BaseDelay:      time.Second,
			MaxCorrections: 2,
			MaxIterations:  100,
		},
		Routing: RoutingConfig{
			FullstackKeywords:  []string{"fullstack", "full-stack", "full stack"},
			DeploymentKeywords: []string{"deploy", "docker", "kubernetes", "ci/cd", "infrastructure"},
		},
		LLM: LLMConfig{
			Model:   "default",
			Timeout: 2 * time.Minute,
		},
		Workspace: WorkspaceConfig{
			BasePath: "workspaces",
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("HELIOS_CONFIG")
	if path == "" {
		path = "config/helios.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HELIOS_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("HELIOS_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("HELIOS_BUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Bus.Port = port
		}
	}
	if v := os.Getenv("HELIOS_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("HELIOS_WORKSPACE_BASE"); v != "" {
		cfg.Workspace.BasePath = v
	}
	if v := os.Getenv("HELIOS_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("HELIOS_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("HELIOS_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("HELIOS_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("HELIOS_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
}
