package captionr

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"google.golang.org/genai"
)

// Gemini prompts a Google Gemini model.
type Gemini struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGemini returns a Gemini client using the key named by spec.APIKeyEnv.
func NewGemini(ctx context.Context, spec BackendSpec) (*Gemini, error) {
	key := spec.apiKey()
	if key == "" {
		return nil, fmt.Errorf("gemini: %s is empty", spec.APIKeyEnv)
	}

	cfg := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if spec.Endpoint != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: spec.Endpoint}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	gc := &genai.GenerateContentConfig{}
	if spec.Temperature != nil {
		gc.Temperature = lo.ToPtr(float32(*spec.Temperature))
	}
	if spec.TopP != nil {
		gc.TopP = lo.ToPtr(float32(*spec.TopP))
	}
	if spec.TopK != 0 {
		gc.TopK = lo.ToPtr(float32(spec.TopK))
	}
	if spec.MaxTokens != 0 {
		gc.MaxOutputTokens = int32(spec.MaxTokens)
	}

	return &Gemini{client: client, model: spec.Model, config: gc}, nil
}

// Prompt implements Prompter.
func (g *Gemini) Prompt(ctx context.Context, prompt string, img *Image) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", g.model, err)
	}
	return resp.Text(), nil
}
