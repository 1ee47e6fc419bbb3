package captionr

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAI prompts a vision model behind an OpenAI-compatible endpoint.
type OpenAI struct {
	client *openai.Client
	spec   BackendSpec
}

// NewOpenAI returns an OpenAI-compatible client.
func NewOpenAI(spec BackendSpec) *OpenAI {
	config := openai.DefaultConfig(spec.apiKey())
	if spec.Endpoint != "" {
		config.BaseURL = spec.Endpoint
	}
	return &OpenAI{client: openai.NewClientWithConfig(config), spec: spec}
}

// Prompt implements Prompter.
func (o *OpenAI) Prompt(ctx context.Context, prompt string, img *Image) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     o.spec.Model,
		MaxTokens: o.spec.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
						},
					},
				},
			},
		},
	}
	if o.spec.Temperature != nil {
		req.Temperature = float32(*o.spec.Temperature)
	}
	if o.spec.TopP != nil {
		req.TopP = float32(*o.spec.TopP)
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai %s: %w", o.spec.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai %s: %w", o.spec.Model, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
