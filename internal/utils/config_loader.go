package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"hostwatch/internal/model"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "configs/hostwatch.yaml"

type Config struct {
	Application ApplicationYAMLConfig `yaml:"application"`
	Sampler     SamplerYAMLConfig     `yaml:"sampler"`
	Detection   DetectionYAMLConfig   `yaml:"detection"`
	Rules       []model.RuleConfig    `yaml:"rules"`
	Alerting    AlertingYAMLConfig    `yaml:"alerting"`
	Logging     LoggingYAMLConfig     `yaml:"logging"`
}

type ApplicationYAMLConfig struct {
	APIPort             string `yaml:"api_port"`
	PrometheusExportURL string `yaml:"prometheus_export_url"`
	TimestampLayout     string `yaml:"timestamp_layout"`
}

type SamplerYAMLConfig struct {
	TickIntervalMs    int           `yaml:"tick_interval_ms"`
	MeasureIntervalMs int           `yaml:"measure_interval_ms"`
	TimeoutSeconds    int           `yaml:"timeout_seconds"`
	Interface         string        `yaml:"interface"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	FailureThreshold   uint32 `yaml:"failure_threshold"`
	OpenTimeoutSeconds int    `yaml:"open_timeout_seconds"`
}

type DetectionYAMLConfig struct {
	HistorySize      int     `yaml:"history_size"`
	StdDevMultiplier float64 `yaml:"std_dev_multiplier"`
	AttackThreshold  int     `yaml:"attack_threshold"`
	LogCapacity      int     `yaml:"log_capacity"`
}

type AlertingYAMLConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Channels AlertChannelsYAML  `yaml:"channels"`
	Telegram TelegramYAMLConfig `yaml:"telegram"`
}

type AlertChannelsYAML struct {
	Log      bool `yaml:"log"`
	Telegram bool `yaml:"telegram"`
}

type TelegramYAMLConfig struct {
	APIURL          string `yaml:"api_url,omitempty"`
	BotToken        string `yaml:"bot_token"`
	ChatID          string `yaml:"chat_id"`
	ParseMode       string `yaml:"parse_mode"`
	Enabled         bool   `yaml:"enabled"`
	MessageTemplate string `yaml:"message_template,omitempty"`
}

type LoggingYAMLConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultConfigPath
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := GetDefaultConfig()
	config.Rules = nil
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// LoadConfigOrDefault falls back to defaults only when the file does not exist;
// a file that exists but cannot be parsed is an error.
func LoadConfigOrDefault(filename string) (*Config, bool, error) {
	config, err := LoadConfig(filename)
	if err == nil {
		return config, true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return GetDefaultConfig(), false, nil
	}
	return nil, false, err
}

// Validate fills zero values with defaults and rejects what cannot be defaulted
func (c *Config) Validate() error {
	d := GetDefaultConfig()

	if c.Application.APIPort == "" {
		c.Application.APIPort = d.Application.APIPort
	}
	if c.Application.PrometheusExportURL == "" {
		c.Application.PrometheusExportURL = d.Application.PrometheusExportURL
	}
	if c.Application.TimestampLayout == "" {
		c.Application.TimestampLayout = d.Application.TimestampLayout
	}

	if c.Sampler.TickIntervalMs <= 0 {
		c.Sampler.TickIntervalMs = d.Sampler.TickIntervalMs
	}
	if c.Sampler.MeasureIntervalMs <= 0 {
		c.Sampler.MeasureIntervalMs = d.Sampler.MeasureIntervalMs
	}
	if c.Sampler.TimeoutSeconds <= 0 {
		c.Sampler.TimeoutSeconds = d.Sampler.TimeoutSeconds
	}
	if c.Sampler.Breaker.FailureThreshold == 0 {
		c.Sampler.Breaker.FailureThreshold = d.Sampler.Breaker.FailureThreshold
	}
	if c.Sampler.Breaker.OpenTimeoutSeconds <= 0 {
		c.Sampler.Breaker.OpenTimeoutSeconds = d.Sampler.Breaker.OpenTimeoutSeconds
	}
	if c.SamplerTimeout() <= c.MeasureInterval() {
		return fmt.Errorf("sampler timeout %v must exceed measure interval %v", c.SamplerTimeout(), c.MeasureInterval())
	}

	if c.Detection.HistorySize <= 0 {
		c.Detection.HistorySize = d.Detection.HistorySize
	}
	if c.Detection.StdDevMultiplier <= 0 {
		c.Detection.StdDevMultiplier = d.Detection.StdDevMultiplier
	}
	if c.Detection.AttackThreshold <= 0 {
		c.Detection.AttackThreshold = d.Detection.AttackThreshold
	}
	if c.Detection.LogCapacity <= 0 {
		c.Detection.LogCapacity = d.Detection.LogCapacity
	}

	for i, rule := range c.Rules {
		if strings.TrimSpace(rule.Name) == "" || strings.TrimSpace(rule.Condition) == "" {
			return fmt.Errorf("rule %d: name and condition are required", i)
		}
	}

	if c.Alerting.Channels.Telegram && c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" || c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("telegram alerting needs bot_token and chat_id")
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}

	return nil
}

// GetPrometheusPort extracts port from PrometheusExportURL
func (c *Config) GetPrometheusPort() string {
	exportPort := c.Application.PrometheusExportURL
	if idx := strings.LastIndex(exportPort, ":"); idx >= 0 {
		exportPort = exportPort[idx+1:]
	}
	return exportPort
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Sampler.TickIntervalMs) * time.Millisecond
}

func (c *Config) MeasureInterval() time.Duration {
	return time.Duration(c.Sampler.MeasureIntervalMs) * time.Millisecond
}

func (c *Config) SamplerTimeout() time.Duration {
	return time.Duration(c.Sampler.TimeoutSeconds) * time.Second
}

func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.Sampler.Breaker.OpenTimeoutSeconds) * time.Second
}

// GetDefaultConfig returns the configuration used when no file is present
func GetDefaultConfig() *Config {
	return &Config{
		Application: ApplicationYAMLConfig{
			APIPort:             "5000",
			PrometheusExportURL: "8080",
			TimestampLayout:     "1/2/2006, 3:04:05 PM",
		},
		Sampler: SamplerYAMLConfig{
			TickIntervalMs:    1000,
			MeasureIntervalMs: 1000,
			TimeoutSeconds:    5,
			Breaker: BreakerConfig{
				FailureThreshold:   3,
				OpenTimeoutSeconds: 10,
			},
		},
		Detection: DetectionYAMLConfig{
			HistorySize:      20,
			StdDevMultiplier: 1.5,
			AttackThreshold:  10,
			LogCapacity:      50,
		},
		Rules: []model.RuleConfig{},
		Alerting: AlertingYAMLConfig{
			Enabled: true,
			Channels: AlertChannelsYAML{
				Log:      true,
				Telegram: false,
			},
			Telegram: TelegramYAMLConfig{
				ParseMode: "HTML",
			},
		},
		Logging: LoggingYAMLConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
