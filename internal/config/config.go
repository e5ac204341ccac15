package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models futurehuman.yml: server settings plus the catalogs the
// authoring wizard picks from.
type Config struct {
	Server struct {
		Addr            string `yaml:"addr"`
		JWTSecret       string `yaml:"jwt_secret"`
		TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	} `yaml:"server"`
	Catalog struct {
		Providers   map[string]CatalogEntry `yaml:"providers"`
		Brains      map[string]CatalogEntry `yaml:"brains"`
		Personas    map[string]CatalogEntry `yaml:"personas"`
		Backgrounds map[string]CatalogEntry `yaml:"backgrounds"`
		Voices      []VoiceEntry            `yaml:"voices"`
	} `yaml:"catalog"`
	Defaults struct {
		BrainID  string `yaml:"brain_id"`
		Language string `yaml:"language"`
		Voice    string `yaml:"voice"`
	} `yaml:"defaults"`
}

type CatalogEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type VoiceEntry struct {
	Language string `yaml:"language"`
	Name     string `yaml:"name"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fh config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.TokenTTLMinutes < 0 {
		return fmt.Errorf("config.server.token_ttl_minutes must be >= 0")
	}
	if len(c.Catalog.Brains) == 0 {
		return fmt.Errorf("config.catalog.brains is required")
	}
	for id := range c.Catalog.Brains {
		if id == "" {
			return fmt.Errorf("config.catalog.brains contains empty id")
		}
	}
	for id := range c.Catalog.Providers {
		if id == "" {
			return fmt.Errorf("config.catalog.providers contains empty id")
		}
	}
	if c.Defaults.BrainID != "" {
		if _, ok := c.Catalog.Brains[c.Defaults.BrainID]; !ok {
			return fmt.Errorf("config.defaults.brain_id references unknown brain %s", c.Defaults.BrainID)
		}
	}
	for _, v := range c.Catalog.Voices {
		if v.Language == "" || v.Name == "" {
			return fmt.Errorf("config.catalog.voices entries need language and name")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "futurehuman.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8787
  jwt_secret: change-me
  token_ttl_minutes: 1440

catalog:
  providers:
    facebook:
      name: "Facebook"
      description: "Pages and Messenger"
    gmail:
      name: "Gmail"
      description: "Mailbox access"
    slack:
      name: "Slack"
      description: "Workspace bot"
    telegram:
      name: "Telegram"
      description: "Bot API"
    whatsapp:
      name: "WhatsApp"
      description: "Business messaging"

  brains:
    starter:
      name: "Starter"
      description: "Fast responses, short context"
    advanced:
      name: "Advanced"
      description: "Longer context, better reasoning"
    expert:
      name: "Expert"
      description: "Best reasoning, slowest"

  personas:
    aria:
      name: "Aria"
    dex:
      name: "Dex"
    nova:
      name: "Nova"

  backgrounds:
    office:
      name: "Office"
    studio:
      name: "Studio"
    abstract:
      name: "Abstract"

  voices:
    - language: en-US
      name: Joanna
    - language: en-US
      name: Matthew
    - language: en-GB
      name: Amy
    - language: es-ES
      name: Lucia

defaults:
  brain_id: starter
  language: en-US
  voice: Joanna
`
