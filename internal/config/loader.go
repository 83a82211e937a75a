package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileName is the hub configuration file inside the config directory
const FileName = "hub.yaml"

// Defaults
const (
	DefaultAPIPort         = 8080
	DefaultRegistryFile    = "entity_registry.cbor"
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultTopicPrefix     = "integrationhub"
)

// Environment variables that override the file
const (
	EnvConfigDir       = "HUB_CONFIG_DIR"
	EnvAPIPort         = "HUB_API_PORT"
	EnvAutomowerToken  = "AUTOMOWER_TOKEN"
	EnvAutomowerAPIKey = "AUTOMOWER_API_KEY"
	EnvTeslemetryToken = "TESLEMETRY_TOKEN"
	EnvMQTTURL         = "MQTT_URL"
)

// Entry data keys filled from the environment
const (
	automowerDomain    = "husqvarna_automower"
	automowerTokenKey  = "token"
	automowerAPIKeyKey = "api_key"
	teslemetryDomain   = "teslemetry"
	teslemetryTokenKey = "access_token"
)

// APIConfig configures the HTTP API
type APIConfig struct {
	Port int `yaml:"port"`
}

// MQTTConfig configures the MQTT bridge. An empty URL disables it.
type MQTTConfig struct {
	URL             string `yaml:"url"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	TopicPrefix     string `yaml:"topic_prefix"`
}

// EntryConfig is one config entry to set up at start
type EntryConfig struct {
	Domain  string         `yaml:"domain"`
	Title   string         `yaml:"title"`
	Data    map[string]any `yaml:"data"`
	Options map[string]any `yaml:"options"`
}

// Config represents the hub.yaml structure
type Config struct {
	API          APIConfig     `yaml:"api"`
	MQTT         MQTTConfig    `yaml:"mqtt"`
	RegistryPath string        `yaml:"registry_path"`
	Entries      []EntryConfig `yaml:"entries"`
}

// Loader reads hub.yaml and applies environment overrides
type Loader struct {
	configDir string
	logger    *zap.Logger
	getenv    func(string) string
	config    *Config
}

// NewLoader creates a new configuration loader
func NewLoader(configDir string, logger *zap.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
		getenv:    os.Getenv,
	}
}

// Load reads the configuration file. A missing file yields the defaults,
// so a hub can be configured from the environment alone.
func (l *Loader) Load() error {
	path := filepath.Join(l.configDir, FileName)
	l.logger.Info("Loading configuration", zap.String("path", path))

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.logger.Warn("No configuration file found, using defaults and environment",
			zap.String("path", path))
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := l.applyEnv(&cfg); err != nil {
		return err
	}
	l.applyDefaults(&cfg)

	for i, e := range cfg.Entries {
		if e.Domain == "" {
			return fmt.Errorf("entry %d has no domain", i)
		}
	}

	l.config = &cfg
	l.logger.Info("Configuration loaded",
		zap.Int("entries", len(cfg.Entries)),
		zap.Int("api_port", cfg.API.Port),
		zap.Bool("mqtt", cfg.MQTT.URL != ""))
	return nil
}

// Get returns the loaded configuration
func (l *Loader) Get() *Config {
	return l.config
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v := l.getenv(EnvAPIPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvAPIPort, v, err)
		}
		cfg.API.Port = port
	}
	if v := l.getenv(EnvMQTTURL); v != "" {
		cfg.MQTT.URL = v
	}

	if v := l.getenv(EnvAutomowerToken); v != "" {
		e := entryFor(cfg, automowerDomain)
		e.Data[automowerTokenKey] = v
		if key := l.getenv(EnvAutomowerAPIKey); key != "" {
			e.Data[automowerAPIKeyKey] = key
		}
	}
	if v := l.getenv(EnvTeslemetryToken); v != "" {
		entryFor(cfg, teslemetryDomain).Data[teslemetryTokenKey] = v
	}
	return nil
}

func (l *Loader) applyDefaults(cfg *Config) {
	if cfg.API.Port == 0 {
		cfg.API.Port = DefaultAPIPort
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = filepath.Join(l.configDir, DefaultRegistryFile)
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultTopicPrefix
	}
	for i := range cfg.Entries {
		if cfg.Entries[i].Title == "" {
			cfg.Entries[i].Title = cfg.Entries[i].Domain
		}
	}
}

// entryFor returns the first entry of domain, adding one when none exists
func entryFor(cfg *Config, domain string) *EntryConfig {
	for i := range cfg.Entries {
		if cfg.Entries[i].Domain == domain {
			if cfg.Entries[i].Data == nil {
				cfg.Entries[i].Data = make(map[string]any)
			}
			return &cfg.Entries[i]
		}
	}
	cfg.Entries = append(cfg.Entries, EntryConfig{
		Domain: domain,
		Title:  domain + " (environment)",
		Data:   make(map[string]any),
	})
	return &cfg.Entries[len(cfg.Entries)-1]
}
