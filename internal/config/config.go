package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the workspace config file.
const FileName = "kool.yml"

// Config models kool.yml.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
	LLM      LLMConfig       `yaml:"llm"`
	Strategy StrategyConfig  `yaml:"strategy"`
	Credits  CreditsConfig   `yaml:"credits"`
	Agents   []AgentConfig   `yaml:"agents"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	// DevLogin enables POST /auth/dev/login, which mints tokens without a password.
	DevLogin bool `yaml:"dev_login"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint. The API
// key never lives here; it comes from KOOL_LLM_API_KEY.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type StrategyConfig struct {
	Model                  string  `yaml:"model"`
	Temperature            float64 `yaml:"temperature"`
	MaxTokens              int     `yaml:"max_tokens"`
	ResponseTimeoutSeconds int     `yaml:"response_timeout_seconds"`
}

type CreditsConfig struct {
	StartingBalance int `yaml:"starting_balance"`
}

// AgentConfig overrides or adds a chat agent. Empty fields keep the built-in value.
type AgentConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Topic        string `yaml:"topic"`
	Instructions string `yaml:"instructions"`
	Paid         *bool  `yaml:"paid"`
	Cost         *int   `yaml:"cost"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	if w.Enabled != nil && !*w.Enabled {
		return false
	}
	return strings.TrimSpace(w.URL) != ""
}

// LLMTimeout is the transport timeout for completion calls.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// StrategyTimeout bounds one strategy generation call.
func (c *Config) StrategyTimeout() time.Duration {
	return time.Duration(c.Strategy.ResponseTimeoutSeconds) * time.Second
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with kool init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.LLM.BaseURL != "" {
		u, err := url.Parse(c.LLM.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.llm.base_url %q is not an absolute url", c.LLM.BaseURL)
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config.llm.temperature must be within 0..2")
	}
	if c.Strategy.Temperature < 0 || c.Strategy.Temperature > 2 {
		return fmt.Errorf("config.strategy.temperature must be within 0..2")
	}
	if c.LLM.MaxTokens < 0 || c.Strategy.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	if c.LLM.TimeoutSeconds < 0 || c.Strategy.ResponseTimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Credits.StartingBalance < 0 {
		return fmt.Errorf("config.credits.starting_balance must not be negative")
	}
	seen := map[string]bool{}
	for i, a := range c.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("config.agents[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("config.agents has duplicate id %s", a.ID)
		}
		seen[a.ID] = true
		if a.Cost != nil && *a.Cost < 0 {
			return fmt.Errorf("agent %s has negative cost", a.ID)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("config.webhooks[%d].url must be http(s)", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config from raw YAML bytes on top of the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  dev_login: false

log:
  level: info
  format: text

llm:
  base_url: https://api.openai.com/v1
  model: gpt-4o-mini
  temperature: 0.7
  max_tokens: 1024
  timeout_seconds: 120

strategy:
  temperature: 0.7
  max_tokens: 4000
  response_timeout_seconds: 120

credits:
  starting_balance: 10
`
