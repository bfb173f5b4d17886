package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the YAML configuration of the webhook server binary.
type Config struct {
	Listen string `yaml:"listen"`

	Live struct {
		APIKey              string `yaml:"apiKey"`
		BaseURL             string `yaml:"baseUrl"`
		Model               string `yaml:"model"`
		Voice               string `yaml:"voice"`
		DefaultInstructions string `yaml:"defaultInstructions"`
		SetupTimeoutSeconds int    `yaml:"setupTimeoutSeconds"`
	} `yaml:"live"`

	Call struct {
		BaseURL   string `yaml:"baseUrl"`
		APIKey    string `yaml:"apiKey"`
		APISecret string `yaml:"apiSecret"`
	} `yaml:"call"`

	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMb"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`

	Debug struct {
		AudioDumpDir string `yaml:"audioDumpDir"`
	} `yaml:"debug"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Live.APIKey == "" {
		return nil, fmt.Errorf("live.apiKey is required")
	}
	if cfg.Call.APIKey == "" || cfg.Call.APISecret == "" {
		return nil, fmt.Errorf("call.apiKey and call.apiSecret are required")
	}
	return cfg, nil
}

// Options derives orchestrator options from the config.
func (c *Config) Options() Options {
	return Options{
		Model:               c.Live.Model,
		Voice:               c.Live.Voice,
		DefaultInstructions: c.Live.DefaultInstructions,
		SetupTimeout:        time.Duration(c.Live.SetupTimeoutSeconds) * time.Second,
		AudioDumpDir:        c.Debug.AudioDumpDir,
	}
}
