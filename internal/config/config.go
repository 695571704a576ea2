package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"

	"github.com/dyluth/atelier/internal/generation"
	"github.com/dyluth/atelier/internal/imagegen"
	"github.com/dyluth/atelier/internal/llm"
	"github.com/dyluth/atelier/pkg/blackboard"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration.
const DefaultPath = "atelier.yml"

// Environment variables read by ApplyEnv.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvReplicateKey = "REPLICATE_API_KEY"
	EnvRedisURL     = "REDIS_URL"
	EnvInstance     = "ATELIER_INSTANCE_NAME"
)

// Defaults applied by Validate.
const (
	DefaultInstance     = "default-0"
	DefaultMemoryLimit  = 100
	DefaultMaxDepth     = 32
	DefaultParallelism  = 4
	DefaultObserverAddr = ":8080"
)

// AtelierConfig represents the top-level atelier.yml configuration
type AtelierConfig struct {
	Version    string                 `yaml:"version"`
	Instance   string                 `yaml:"instance,omitempty"`
	Completion llm.Config             `yaml:"completion"`
	Image      imagegen.Config        `yaml:"image"`
	Bus        *BusConfig             `yaml:"bus,omitempty"`
	Director   *DirectorConfig        `yaml:"director,omitempty"`
	Agents     map[string]AgentConfig `yaml:"agents,omitempty"`
	Redis      *RedisConfig           `yaml:"redis,omitempty"`
	Batch      *BatchConfig           `yaml:"batch,omitempty"`
	Observer   *ObserverConfig        `yaml:"observer,omitempty"`
}

// BusConfig tunes message routing
type BusConfig struct {
	MemoryLimit *int `yaml:"memory_limit,omitempty"` // Per-agent message log bound (default 100)
	MaxDepth    *int `yaml:"max_depth,omitempty"`    // Reply chain guard (default 32)
}

// DirectorConfig tunes the project state machine
type DirectorConfig struct {
	AutoFeedback *bool `yaml:"auto_feedback,omitempty"` // Rate strategies with the critique score (default true)
}

// AgentConfig overrides a generation agent's starting weights
type AgentConfig struct {
	Weights map[string]float64 `yaml:"weights,omitempty"`
}

// RedisConfig locates the blackboard. An empty URL runs without persistence.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"`
}

// BatchConfig bounds concurrent projects in batch mode
type BatchConfig struct {
	Parallelism int `yaml:"parallelism,omitempty"`
}

// ObserverConfig enables the HTTP state endpoint
type ObserverConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

// Default returns a validated configuration with every default applied and
// both providers disabled.
func Default() *AtelierConfig {
	c := &AtelierConfig{
		Version:    "1.0",
		Completion: llm.Config{Provider: llm.ProviderNone},
		Image:      imagegen.Config{Provider: imagegen.ProviderNone},
	}
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return c
}

// ApplyEnv fills secrets and overrides from the environment. getenv is
// usually os.Getenv.
func (c *AtelierConfig) ApplyEnv(getenv func(string) string) {
	if c.Completion.APIKey == "" {
		switch c.Completion.Provider {
		case llm.ProviderOpenAI:
			c.Completion.APIKey = getenv(EnvOpenAIKey)
		case llm.ProviderAnthropic:
			c.Completion.APIKey = getenv(EnvAnthropicKey)
		}
	}
	if c.Image.ReplicateAPIKey == "" {
		c.Image.ReplicateAPIKey = getenv(EnvReplicateKey)
	}
	if c.Image.OpenAIAPIKey == "" {
		c.Image.OpenAIAPIKey = getenv(EnvOpenAIKey)
	}
	if url := getenv(EnvRedisURL); url != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = url
	}
	if name := getenv(EnvInstance); name != "" {
		c.Instance = name
	}
}

// Validate performs strict validation on the configuration and applies
// defaults for omitted sections.
func (c *AtelierConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		c.Instance = DefaultInstance
	}

	// A provider without a key runs disabled so every stage takes its fallback
	switch c.Completion.Provider {
	case llm.ProviderOpenAI, llm.ProviderAnthropic:
		if c.Completion.APIKey == "" {
			log.Printf("[Config] No API key for completion provider '%s', completion disabled", c.Completion.Provider)
			c.Completion.Provider = llm.ProviderNone
		}
	case "":
		c.Completion.Provider = llm.ProviderNone
	}
	if err := c.Completion.Validate(); err != nil {
		return fmt.Errorf("completion: %w", err)
	}

	if c.Image.Provider == "" {
		c.Image.Provider = imagegen.ProviderNone
	}
	if err := c.Image.Validate(); err != nil {
		return fmt.Errorf("image: %w", err)
	}

	if c.Bus == nil {
		c.Bus = &BusConfig{}
	}
	if c.Bus.MemoryLimit == nil {
		limit := DefaultMemoryLimit
		c.Bus.MemoryLimit = &limit
	}
	if *c.Bus.MemoryLimit < 1 {
		return fmt.Errorf("bus.memory_limit must be >= 1, got %d", *c.Bus.MemoryLimit)
	}
	if c.Bus.MaxDepth == nil {
		depth := DefaultMaxDepth
		c.Bus.MaxDepth = &depth
	}
	if *c.Bus.MaxDepth < 1 {
		return fmt.Errorf("bus.max_depth must be >= 1, got %d", *c.Bus.MaxDepth)
	}

	if c.Director == nil {
		c.Director = &DirectorConfig{}
	}
	if c.Director.AutoFeedback == nil {
		enabled := true
		c.Director.AutoFeedback = &enabled
	}

	for name, agent := range c.Agents {
		if err := agent.Validate(name); err != nil {
			return err
		}
	}

	if c.Batch == nil {
		c.Batch = &BatchConfig{}
	}
	if c.Batch.Parallelism == 0 {
		c.Batch.Parallelism = DefaultParallelism
	}
	if c.Batch.Parallelism < 1 {
		return fmt.Errorf("batch.parallelism must be >= 1, got %d", c.Batch.Parallelism)
	}

	if c.Observer == nil {
		c.Observer = &ObserverConfig{}
	}
	if c.Observer.Addr == "" {
		c.Observer.Addr = DefaultObserverAddr
	}

	if c.Redis != nil && c.Redis.URL != "" &&
		!strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("redis.url must start with redis:// or rediss://, got %s", c.Redis.URL)
	}

	return nil
}

// Validate checks a single agent override block. name is the role.
func (a *AgentConfig) Validate(name string) error {
	role := blackboard.Role(name)
	known := generation.StrategyNames(role)
	if known == nil {
		return fmt.Errorf("agent '%s': not a generation agent (expected ideator, stylist, refiner or critic)", name)
	}
	for strategy, w := range a.Weights {
		if !slices.Contains(known, strategy) {
			return fmt.Errorf("agent '%s': unknown strategy '%s' (valid: %s)", name, strategy, strings.Join(known, ", "))
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("agent '%s': weight for '%s' must be between 0 and 1, got %v", name, strategy, w)
		}
	}
	return nil
}

// WeightsFor returns the configured weight overrides for role.
func (c *AtelierConfig) WeightsFor(role blackboard.Role) map[string]float64 {
	return c.Agents[string(role)].Weights
}

// RedisURL returns the configured blackboard URL, "" when persistence is off.
func (c *AtelierConfig) RedisURL() string {
	if c.Redis == nil {
		return ""
	}
	return c.Redis.URL
}

// Load reads atelier.yml from the specified path, applies the environment
// and validates the result.
func Load(path string) (*AtelierConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config AtelierConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault is Load, except a missing file yields Default with the
// environment applied.
func LoadOrDefault(path string) (*AtelierConfig, error) {
	config, err := Load(path)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	config = &AtelierConfig{Version: "1.0"}
	config.detectProviders(os.Getenv)
	config.ApplyEnv(os.Getenv)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// detectProviders picks providers for a config-less run from whichever API
// keys are present.
func (c *AtelierConfig) detectProviders(getenv func(string) string) {
	switch {
	case getenv(EnvOpenAIKey) != "":
		c.Completion.Provider = llm.ProviderOpenAI
	case getenv(EnvAnthropicKey) != "":
		c.Completion.Provider = llm.ProviderAnthropic
	}
	switch {
	case getenv(EnvReplicateKey) != "":
		c.Image.Provider = imagegen.ProviderReplicate
		c.Image.Fallback = getenv(EnvOpenAIKey) != ""
	case getenv(EnvOpenAIKey) != "":
		c.Image.Provider = imagegen.ProviderOpenAI
	}
}
