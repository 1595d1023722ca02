package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "CONTENT_DIGEST_CONFIG"
	databaseDSNEnv   = "DATABASE_DSN"
	llmAPIKeyEnv     = "LLM_API_KEY"
	llmModelEnv      = "LLM_MODEL"
	emailGatewayEnv  = "EMAIL_GATEWAY_URL"
	messagingHookEnv = "MESSAGING_WEBHOOK_URL"
	listenAddrEnv    = "CONTENT_DIGEST_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Digest    DigestConfig    `yaml:"digest"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects
// the in-memory stores.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ServerConfig describes the HTTP API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig defines how often due digest requests are evaluated.
type SchedulerConfig struct {
	TickSeconds int            `yaml:"tickSeconds"`
	Timezone    string         `yaml:"timezone"`
	location    *time.Location `yaml:"-"`
}

// Tick resolves the polling interval.
func (s SchedulerConfig) Tick() time.Duration {
	if s.TickSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(s.TickSeconds) * time.Second
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// DispatchConfig bounds agent invocations.
type DispatchConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// Timeout resolves the per-invocation agent deadline.
func (d DispatchConfig) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// DigestConfig tunes aggregation.
type DigestConfig struct {
	MaxItems         int     `yaml:"maxItems"`
	OverlapThreshold float64 `yaml:"overlapThreshold"`
}

// DeliveryConfig wires outbound digest channels.
type DeliveryConfig struct {
	EmailGatewayURL     string `yaml:"emailGatewayUrl"`
	MessagingWebhookURL string `yaml:"messagingWebhookUrl"`
}

// LLMConfig defines how to contact an OpenAI-compatible completion API.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(listenAddrEnv); v != "" {
		c.Server.Addr = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(emailGatewayEnv); v != "" {
		c.Delivery.EmailGatewayURL = v
	}

	if v := os.Getenv(messagingHookEnv); v != "" {
		c.Delivery.MessagingWebhookURL = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Server.Addr != "" {
		base.Server = override.Server
	}

	if override.Scheduler.TickSeconds > 0 {
		base.Scheduler.TickSeconds = override.Scheduler.TickSeconds
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Dispatch.TimeoutSeconds > 0 {
		base.Dispatch.TimeoutSeconds = override.Dispatch.TimeoutSeconds
	}

	if override.Digest.MaxItems > 0 {
		base.Digest.MaxItems = override.Digest.MaxItems
	}
	if override.Digest.OverlapThreshold > 0 {
		base.Digest.OverlapThreshold = override.Digest.OverlapThreshold
	}

	if override.Delivery.EmailGatewayURL != "" {
		base.Delivery.EmailGatewayURL = override.Delivery.EmailGatewayURL
	}
	if override.Delivery.MessagingWebhookURL != "" {
		base.Delivery.MessagingWebhookURL = override.Delivery.MessagingWebhookURL
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}

	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database:  DatabaseConfig{DSN: ""},
		Server:    ServerConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{TickSeconds: 60, Timezone: defaultTimezone, location: tz},
		Dispatch:  DispatchConfig{TimeoutSeconds: 60},
		Digest:    DigestConfig{MaxItems: 50, OverlapThreshold: 0.2},
		Delivery:  DeliveryConfig{},
		LLM: LLMConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
