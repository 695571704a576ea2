package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	ProviderReplicate = "replicate"
	ProviderOpenAI    = "openai"
	ProviderNone      = "none"

	// DefaultTimeout covers a full create-and-poll cycle.
	DefaultTimeout = 90 * time.Second
)

// Config selects the image providers. API keys come from the environment.
type Config struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model,omitempty"`
	BaseURL         string        `yaml:"base_url,omitempty"`
	Width           int           `yaml:"width,omitempty"`
	Height          int           `yaml:"height,omitempty"`
	Steps           int           `yaml:"steps,omitempty"`
	GuidanceScale   float64       `yaml:"guidance_scale,omitempty"`
	PollInterval    time.Duration `yaml:"poll_interval,omitempty"`
	MaxPollAttempts int           `yaml:"max_poll_attempts,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	Retries         *int          `yaml:"retries,omitempty"`

	// Fallback enables the secondary OpenAI provider when the primary is Replicate.
	Fallback      bool   `yaml:"fallback"`
	FallbackModel string `yaml:"fallback_model,omitempty"`

	ReplicateAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	OpenAIBaseURL   string `yaml:"-"`
}

// Validate checks the image settings.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderReplicate, ProviderOpenAI, ProviderNone, "":
	default:
		return fmt.Errorf("unknown image provider %q (expected replicate, openai or none)", c.Provider)
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("image dimensions must be >= 0, got %dx%d", c.Width, c.Height)
	}
	if c.Steps < 0 {
		return fmt.Errorf("steps must be >= 0, got %d", c.Steps)
	}
	if c.GuidanceScale < 0 {
		return fmt.Errorf("guidance_scale must be >= 0, got %v", c.GuidanceScale)
	}
	if c.Retries != nil && *c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", *c.Retries)
	}
	return nil
}

// New builds the configured synthesizer chain. Providers whose API key is
// missing are skipped with a log line; if nothing is left the result is
// Disabled.
func New(c Config) (Synthesizer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	retries := 1
	if c.Retries != nil {
		retries = *c.Retries
	}

	var chain []Synthesizer

	if c.Provider == ProviderReplicate {
		if c.ReplicateAPIKey == "" {
			log.Printf("[Image] REPLICATE_API_KEY not set, replicate provider disabled")
		} else {
			r, err := NewReplicate(c.ReplicateAPIKey, ReplicateOptions{
				BaseURL: c.BaseURL,
				Model:   c.Model,
				Defaults: Request{
					Width:         c.Width,
					Height:        c.Height,
					Steps:         c.Steps,
					GuidanceScale: c.GuidanceScale,
				},
				PollInterval:    c.PollInterval,
				MaxPollAttempts: c.MaxPollAttempts,
			})
			if err != nil {
				return nil, err
			}
			chain = append(chain, NewResilient(r, timeout, retries))
		}
	}

	if c.Provider == ProviderOpenAI || (c.Provider == ProviderReplicate && c.Fallback) {
		model := c.FallbackModel
		if c.Provider == ProviderOpenAI && c.Model != "" {
			model = c.Model
		}
		if c.OpenAIAPIKey == "" {
			log.Printf("[Image] OPENAI_API_KEY not set, openai image provider disabled")
		} else {
			o, err := NewOpenAIImages(c.OpenAIAPIKey, c.OpenAIBaseURL, model)
			if err != nil {
				return nil, err
			}
			chain = append(chain, NewResilient(o, timeout, retries))
		}
	}

	switch len(chain) {
	case 0:
		return Disabled{}, nil
	case 1:
		return chain[0], nil
	default:
		return &Fallback{Primary: chain[0], Secondary: chain[1]}, nil
	}
}

// Resilient bounds every call with a per-attempt timeout and a fixed number
// of retries.
type Resilient struct {
	next    Synthesizer
	timeout time.Duration
	retries int

	InitialInterval time.Duration
}

// NewResilient wraps next.
func NewResilient(next Synthesizer, timeout time.Duration, retries int) *Resilient {
	if retries < 0 {
		retries = 0
	}
	return &Resilient{
		next:            next,
		timeout:         timeout,
		retries:         retries,
		InitialInterval: time.Second,
	}
}

// Synthesize implements Synthesizer.
func (r *Resilient) Synthesize(ctx context.Context, req Request) (string, error) {
	var url string
	operation := func() error {
		attemptCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		out, err := r.next.Synthesize(attemptCtx, req)
		if err == nil {
			url = out
			return nil
		}
		if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.InitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.retries)), ctx)

	if err := backoff.Retry(operation, b); err != nil {
		return "", err
	}
	return url, nil
}
