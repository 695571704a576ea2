package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	DefaultReplicateBaseURL = "https://api.replicate.com/v1"
	DefaultReplicateModel   = "adirik/flux-cinestill"
	DefaultWidth            = 1024
	DefaultHeight           = 1024
	DefaultSteps            = 28
	DefaultGuidanceScale    = 3.0
	DefaultPollInterval     = 2 * time.Second
	DefaultMaxPollAttempts  = 30
)

// Prediction status values reported by Replicate.
const (
	predictionSucceeded = "succeeded"
	predictionFailed    = "failed"
	predictionCanceled  = "canceled"
)

// Replicate runs predictions against the Replicate HTTP API: create, then
// poll until the prediction reaches a terminal status.
type Replicate struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client

	defaults        Request
	pollInterval    time.Duration
	maxPollAttempts int
}

// ReplicateOptions tunes a Replicate client. Zero values take the defaults.
type ReplicateOptions struct {
	BaseURL         string
	Model           string
	Defaults        Request
	PollInterval    time.Duration
	MaxPollAttempts int
	HTTPClient      *http.Client
}

// NewReplicate creates a Replicate client.
func NewReplicate(apiKey string, opts ReplicateOptions) (*Replicate, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("replicate api key is required")
	}

	r := &Replicate{
		apiKey:          apiKey,
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		model:           opts.Model,
		http:            opts.HTTPClient,
		defaults:        opts.Defaults,
		pollInterval:    opts.PollInterval,
		maxPollAttempts: opts.MaxPollAttempts,
	}
	if r.baseURL == "" {
		r.baseURL = DefaultReplicateBaseURL
	}
	if r.model == "" {
		r.model = DefaultReplicateModel
	}
	if r.http == nil {
		r.http = &http.Client{Timeout: 30 * time.Second}
	}
	if r.defaults.Width == 0 {
		r.defaults.Width = DefaultWidth
	}
	if r.defaults.Height == 0 {
		r.defaults.Height = DefaultHeight
	}
	if r.defaults.Steps == 0 {
		r.defaults.Steps = DefaultSteps
	}
	if r.defaults.GuidanceScale == 0 {
		r.defaults.GuidanceScale = DefaultGuidanceScale
	}
	if r.pollInterval <= 0 {
		r.pollInterval = DefaultPollInterval
	}
	if r.maxPollAttempts <= 0 {
		r.maxPollAttempts = DefaultMaxPollAttempts
	}

	return r, nil
}

// prediction is the subset of the Replicate prediction object we read.
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  interface{}     `json:"error"`
}

// Synthesize implements Synthesizer.
func (r *Replicate) Synthesize(ctx context.Context, req Request) (string, error) {
	input := r.buildInput(req)

	created, err := r.createPrediction(ctx, input)
	if err != nil {
		return "", err
	}
	log.Printf("[Image] Replicate prediction %s created for model %s", created.ID, r.model)

	done, err := r.poll(ctx, created)
	if err != nil {
		return "", err
	}

	url, err := firstOutputURL(done.Output)
	if err != nil {
		return "", fmt.Errorf("prediction %s: %w", done.ID, err)
	}
	return url, nil
}

func (r *Replicate) buildInput(req Request) map[string]interface{} {
	prompt := req.Prompt
	if IsFluxModel(r.model) {
		prompt = EnhanceFluxPrompt(prompt)
	}

	input := map[string]interface{}{
		"prompt":              prompt,
		"width":               orInt(req.Width, r.defaults.Width),
		"height":              orInt(req.Height, r.defaults.Height),
		"num_inference_steps": orInt(req.Steps, r.defaults.Steps),
		"guidance_scale":      orFloat(req.GuidanceScale, r.defaults.GuidanceScale),
		"output_format":       "png",
	}
	if req.NegativePrompt != "" {
		input["negative_prompt"] = req.NegativePrompt
	}
	return input
}

// createPrediction posts to the model endpoint for "owner/name" models and
// to the version endpoint for "owner/name:version" or bare version IDs.
func (r *Replicate) createPrediction(ctx context.Context, input map[string]interface{}) (*prediction, error) {
	endpoint := r.baseURL + "/predictions"
	body := map[string]interface{}{"input": input}

	switch {
	case strings.Contains(r.model, ":"):
		body["version"] = r.model[strings.LastIndex(r.model, ":")+1:]
	case strings.Contains(r.model, "/"):
		endpoint = fmt.Sprintf("%s/models/%s/predictions", r.baseURL, r.model)
	default:
		body["version"] = r.model
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build prediction request: %w", err)
	}

	var p prediction
	if err := r.do(httpReq, &p); err != nil {
		return nil, fmt.Errorf("failed to create prediction: %w", err)
	}
	return &p, nil
}

func (r *Replicate) getPrediction(ctx context.Context, id string) (*prediction, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/predictions/%s", r.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build prediction lookup: %w", err)
	}

	var p prediction
	if err := r.do(httpReq, &p); err != nil {
		return nil, fmt.Errorf("failed to get prediction %s: %w", id, err)
	}
	return &p, nil
}

func (r *Replicate) poll(ctx context.Context, p *prediction) (*prediction, error) {
	current := p
	for attempt := 0; ; attempt++ {
		switch current.Status {
		case predictionSucceeded:
			return current, nil
		case predictionFailed, predictionCanceled:
			return nil, fmt.Errorf("prediction %s %s: %v", current.ID, current.Status, describeError(current.Error))
		}

		if attempt >= r.maxPollAttempts {
			return nil, fmt.Errorf("prediction %s timed out after %d polls", current.ID, r.maxPollAttempts)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}

		next, err := r.getPrediction(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		current = next
	}
}

func (r *Replicate) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("replicate API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// firstOutputURL accepts the output shapes models return: a list of URLs,
// an object of named URLs (first key in sorted order), or a single URL.
func firstOutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ErrNoOutput
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return "", ErrNoOutput
		}
		return single, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, u := range list {
			if u != "" {
				return u, nil
			}
		}
		return "", ErrNoOutput
	}

	var named map[string]interface{}
	if err := json.Unmarshal(raw, &named); err == nil {
		keys := make([]string, 0, len(named))
		for k := range named {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if u, ok := named[k].(string); ok && u != "" {
				return u, nil
			}
		}
		return "", ErrNoOutput
	}

	return "", fmt.Errorf("unrecognised output shape: %s", string(raw))
}

func describeError(v interface{}) string {
	if v == nil {
		return "unknown error"
	}
	return fmt.Sprint(v)
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
