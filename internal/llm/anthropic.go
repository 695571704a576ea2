package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Completer with the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	config Config
}

// NewAnthropicProvider creates a provider. SDK-level retries are disabled;
// wrap the provider in Resilient for retry behaviour.
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	config.Provider = ProviderAnthropic
	config = config.withDefaults(DefaultAnthropicModel)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid anthropic config: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		config: config,
	}, nil
}

// Complete implements Completer.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(b.Text)
		}
	}
	if strings.TrimSpace(content.String()) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Content: content.String(),
		Model:   string(msg.Model),
	}, nil
}

// buildParams lifts system messages into the dedicated system field; the
// Messages API only accepts user and assistant turns.
func (p *AnthropicProvider) buildParams(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		System:    system,
		Messages:  messages,
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	} else if p.config.Temperature > 0 {
		params.Temperature = anthropic.Float(p.config.Temperature)
	}

	return params
}
