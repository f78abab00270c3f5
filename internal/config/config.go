package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const FileName = "onboardline.yml"

// Config models onboardline.yml.
type Config struct {
	Environment   string              `yaml:"environment"`
	RulesFile     string              `yaml:"rules_file"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Escalation    struct {
		Timezone     string `yaml:"timezone"`
		ReminderDays int    `yaml:"reminder_days"`
		Concurrency  int    `yaml:"concurrency"`
	} `yaml:"escalation"`
	Audit struct {
		SummaryCap  int `yaml:"summary_cap"`
		TopEntities int `yaml:"top_entities"`
	} `yaml:"audit"`
	Archive ArchiveConfig `yaml:"archive"`
	Server  struct {
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
}

type NotificationsConfig struct {
	Channel  string          `yaml:"channel"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
}

type ArchiveConfig struct {
	Type    string `yaml:"type"`
	BaseDir string `yaml:"base_dir"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with obl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
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
	switch c.Notifications.Channel {
	case "", "webhook", "log":
	default:
		return fmt.Errorf("config.notifications.channel must be webhook or log")
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("config.notifications.webhooks[%d].url must be an http(s) url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.notifications.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	if c.Escalation.Timezone != "" {
		if _, err := time.LoadLocation(c.Escalation.Timezone); err != nil {
			return fmt.Errorf("config.escalation.timezone: %w", err)
		}
	}
	if c.Escalation.ReminderDays < 0 {
		return fmt.Errorf("config.escalation.reminder_days must be >= 0")
	}
	if c.Audit.SummaryCap < 0 || c.Audit.TopEntities < 0 {
		return fmt.Errorf("config.audit values must be >= 0")
	}
	switch c.Archive.Type {
	case "", "local":
	case "s3":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("config.archive.bucket is required for s3")
		}
	default:
		return fmt.Errorf("config.archive.type must be local or s3")
	}
	return nil
}

// Location is the timezone escalation days are counted in.
func (c *Config) Location() *time.Location {
	if c == nil || c.Escalation.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Escalation.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(environment string) string {
	return fmt.Sprintf(defaultTemplate, environment)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("development"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
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

const defaultTemplate = `environment: %s

# Optional override of the built-in assignment and escalation rule tables.
rules_file: ""

notifications:
  channel: log
  webhooks: []

escalation:
  timezone: ""
  reminder_days: 2
  concurrency: 4

audit:
  summary_cap: 10000
  top_entities: 10

archive:
  type: local
  base_dir: .onboardline/archive
  prefix: onboardline/

server:
  cors_origins: ["http://localhost:5173"]
`
