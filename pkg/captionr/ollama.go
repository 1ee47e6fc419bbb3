package captionr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// Ollama prompts a vision model served by ollama.
type Ollama struct {
	client  *api.Client
	model   string
	options map[string]any
}

// NewOllama returns an ollama client. Without an endpoint, OLLAMA_HOST is used.
func NewOllama(spec BackendSpec) (*Ollama, error) {
	var client *api.Client
	if spec.Endpoint == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(spec.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	}

	return &Ollama{client: client, model: spec.Model, options: ollamaOptions(spec)}, nil
}

func ollamaOptions(spec BackendSpec) map[string]any {
	opts := map[string]any{}
	if spec.Temperature != nil {
		opts["temperature"] = *spec.Temperature
	}
	if spec.TopK != 0 {
		opts["top_k"] = spec.TopK
	}
	if spec.TopP != nil {
		opts["top_p"] = *spec.TopP
	}
	if spec.MaxTokens != 0 {
		opts["num_predict"] = spec.MaxTokens
	}
	if spec.RepetitionPenalty != nil {
		opts["repeat_penalty"] = *spec.RepetitionPenalty
	}
	return opts
}

// Prompt implements Prompter.
func (o *Ollama) Prompt(ctx context.Context, prompt string, img *Image) (string, error) {
	var sb strings.Builder
	err := o.client.Generate(ctx,
		&api.GenerateRequest{
			Model:     o.model,
			Prompt:    prompt,
			Stream:    lo.ToPtr(false),
			KeepAlive: lo.ToPtr(api.Duration{Duration: 5 * time.Minute}),
			Images:    []api.ImageData{img.Data},
			Options:   o.options,
		},
		func(resp api.GenerateResponse) error {
			sb.WriteString(resp.Response)
			return nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("ollama %s: %w", o.model, err)
	}
	return sb.String(), nil
}
