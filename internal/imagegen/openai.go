package imagegen

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIImageModel is used when no fallback model is configured.
const DefaultOpenAIImageModel = "dall-e-3"

// OpenAIImages generates images with the OpenAI Images API.
type OpenAIImages struct {
	client *openai.Client
	model  string
	width  int
	height int
}

// NewOpenAIImages creates the client. SDK-level retries are disabled.
func NewOpenAIImages(apiKey, baseURL, model string) (*OpenAIImages, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = DefaultOpenAIImageModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIImages{
		client: &client,
		model:  model,
		width:  DefaultWidth,
		height: DefaultHeight,
	}, nil
}

// Synthesize implements Synthesizer. Steps and guidance do not apply.
func (o *OpenAIImages) Synthesize(ctx context.Context, req Request) (string, error) {
	size := fmt.Sprintf("%dx%d", orInt(req.Width, o.width), orInt(req.Height, o.height))

	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(o.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("openai image generation: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrNoOutput
	}
	return resp.Data[0].URL, nil
}
