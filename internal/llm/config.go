package llm

import (
	"fmt"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"

	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-3-5-sonnet-latest"
	DefaultMaxTokens      = 2048
	DefaultTimeout        = 60 * time.Second
	DefaultRetries        = 1
)

// Config selects and tunes the completion provider.
// APIKey is never read from YAML; it comes from the environment.
type Config struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Retries     *int          `yaml:"retries,omitempty"`

	APIKey string `yaml:"-"`
}

// Validate checks the provider settings.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
		if c.APIKey == "" {
			return fmt.Errorf("api key is required for provider %q", c.Provider)
		}
	case ProviderNone, "":
	default:
		return fmt.Errorf("unknown completion provider %q (expected openai, anthropic or none)", c.Provider)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be >= 0, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", c.Timeout)
	}
	if c.Retries != nil && *c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", *c.Retries)
	}
	return nil
}

// RetryCount returns the configured retry count, DefaultRetries when unset.
func (c Config) RetryCount() int {
	if c.Retries == nil {
		return DefaultRetries
	}
	return *c.Retries
}

func (c Config) withDefaults(model string) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// New builds the configured provider wrapped in Resilient. The "none"
// provider (or an empty one) yields Disabled.
func New(config Config) (Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var provider Completer
	switch config.Provider {
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(config)
		if err != nil {
			return nil, err
		}
		provider = p
	case ProviderAnthropic:
		p, err := NewAnthropicProvider(config)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return Disabled{}, nil
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return NewResilient(provider, timeout, config.RetryCount()), nil
}
