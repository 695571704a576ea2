package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Completer with the OpenAI Responses API.
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a provider. SDK-level retries are disabled;
// wrap the provider in Resilient for retry behaviour.
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	config.Provider = ProviderOpenAI
	config = config.withDefaults(DefaultOpenAIModel)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid openai config: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client: &client,
		config: config,
	}, nil
}

// Complete implements Completer.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	result, err := p.client.Responses.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}

	content := result.OutputText()
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Content: content,
		Model:   string(result.Model),
	}, nil
}

func (p *OpenAIProvider) buildParams(req Request) responses.ResponseNewParams {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	input := make(responses.ResponseInputParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleSystem))
		case RoleAssistant:
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
		default:
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		}
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
		MaxOutputTokens: openai.Int(int64(maxTokens)),
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	} else if p.config.Temperature > 0 {
		params.Temperature = openai.Float(p.config.Temperature)
	}

	return params
}
