// Package imagegen is the boundary to the external image synthesis service.
// The primary provider is a Replicate prediction; when it fails the request
// is handed to a secondary provider (OpenAI image generation).
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Request describes one image. Zero values take the provider defaults.
type Request struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	GuidanceScale  float64 `json:"guidance_scale,omitempty"`
}

// Synthesizer turns a prompt into an image URL.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (string, error)
}

var (
	// ErrUnavailable is returned when no provider is configured.
	ErrUnavailable = errors.New("image synthesis service unavailable")

	// ErrNoOutput is returned when a provider finished without an image URL.
	ErrNoOutput = errors.New("image synthesis returned no output")
)

// Disabled fails every request with ErrUnavailable.
type Disabled struct{}

func (Disabled) Synthesize(context.Context, Request) (string, error) {
	return "", ErrUnavailable
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, req Request) (string, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Fallback tries Primary and, if it fails, Secondary.
type Fallback struct {
	Primary   Synthesizer
	Secondary Synthesizer
}

// Synthesize implements Synthesizer.
func (f *Fallback) Synthesize(ctx context.Context, req Request) (string, error) {
	url, err := f.Primary.Synthesize(ctx, req)
	if err == nil {
		return url, nil
	}
	if f.Secondary == nil || ctx.Err() != nil {
		return "", err
	}

	log.Printf("[Image] Primary provider failed, falling back: %v", err)
	url, fallbackErr := f.Secondary.Synthesize(ctx, req)
	if fallbackErr != nil {
		return "", fmt.Errorf("all image providers failed: %w", errors.Join(err, fallbackErr))
	}
	return url, nil
}

// FluxTrigger is the trigger word the cinestill FLUX fine-tune expects.
const FluxTrigger = "CNSTLL"

// fluxKeywords are appended to FLUX prompts when missing.
var fluxKeywords = []string{"cinestill 800t", "film grain", "night time", "4k"}

// IsFluxModel reports whether model is a FLUX cinestill model.
func IsFluxModel(model string) bool {
	return strings.Contains(model, "flux-cinestill") || strings.Contains(model, "adirik/flux")
}

// EnhanceFluxPrompt prefixes the trigger word and appends the style keywords
// the prompt does not already mention. Idempotent.
func EnhanceFluxPrompt(prompt string) string {
	if !strings.Contains(prompt, FluxTrigger) {
		prompt = FluxTrigger + " " + prompt
	}

	lower := strings.ToLower(prompt)
	var missing []string
	for _, kw := range fluxKeywords {
		if !strings.Contains(lower, kw) {
			missing = append(missing, kw)
		}
	}
	if len(missing) > 0 {
		prompt = prompt + ", " + strings.Join(missing, ", ")
	}
	return prompt
}
