package captionr

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownBackend is returned for a pass with no backend definition.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrEmptyResponse is returned when a model answers with no text.
	ErrEmptyResponse = errors.New("empty response")
)

// DefaultPrompt is sent to vision models when a backend has no prompt of its own.
var DefaultPrompt = "Write a short, literal caption for this image in one sentence. Do not mention that it is an image."

// Backend produces a caption for an image.
type Backend interface {
	Name() string
	Caption(ctx context.Context, img *Image) (string, error)
}

// Prompter sends a text prompt together with an image to a vision model.
type Prompter interface {
	Prompt(ctx context.Context, prompt string, img *Image) (string, error)
}

// Kind is the client used to reach a model.
type Kind string

const (
	KindOllama  Kind = "ollama"
	KindOpenAI  Kind = "openai"
	KindGemini  Kind = "gemini"
	KindCommand Kind = "command"
)

// BackendSpec describes how to reach a model.
type BackendSpec struct {
	Kind     Kind   `yaml:"kind"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
	// Command is run for KindCommand; {image} and {prompt} are substituted.
	Command []string `yaml:"command"`
	Prompt  string   `yaml:"prompt"`

	Temperature       *float64 `yaml:"temperature"`
	TopK              int      `yaml:"top_k"`
	TopP              *float64 `yaml:"top_p"`
	MaxTokens         int      `yaml:"max_tokens"`
	RepetitionPenalty *float64 `yaml:"repetition_penalty"`
}

func (s BackendSpec) prompt() string {
	if s.Prompt != "" {
		return s.Prompt
	}
	return DefaultPrompt
}

func (s BackendSpec) apiKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.APIKeyEnv)
}

// BackendFile is the YAML document passed with --backends.
type BackendFile struct {
	Backends map[string]BackendSpec `yaml:"backends"`
	Clip     *BackendSpec           `yaml:"clip"`
}

// DefaultBackends returns the built-in backend table.
func DefaultBackends() *BackendFile {
	return &BackendFile{
		Backends: map[string]BackendSpec{
			"blip":     {Kind: KindOllama, Model: "llava"},
			"git":      {Kind: KindOllama, Model: "moondream"},
			"coca":     {Kind: KindOllama, Model: "bakllava"},
			"flamingo": {Kind: KindOllama, Model: "llama3.2-vision"},
			"ollama":   {Kind: KindOllama, Model: "qwen2.5vl"},
			"openai":   {Kind: KindOpenAI, Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY"},
			"gemini":   {Kind: KindGemini, Model: "gemini-2.5-flash", APIKeyEnv: "GOOGLE_AI_API_KEY"},
		},
		Clip: &BackendSpec{Kind: KindOllama, Model: "llava"},
	}
}

// LoadBackends reads backend definitions from path on top of the defaults.
// An empty path returns the defaults.
func LoadBackends(path string) (*BackendFile, error) {
	bf := DefaultBackends()
	if path == "" {
		return bf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f BackendFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	maps.Copy(bf.Backends, f.Backends)
	if f.Clip != nil {
		bf.Clip = f.Clip
	}
	return bf, nil
}

// NewPrompter returns a client for spec.
func NewPrompter(ctx context.Context, spec BackendSpec) (Prompter, error) {
	switch spec.Kind {
	case KindOllama:
		return NewOllama(spec)
	case KindOpenAI:
		return NewOpenAI(spec), nil
	case KindGemini:
		return NewGemini(ctx, spec)
	case KindCommand:
		return NewCommand(spec)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", spec.Kind)
	}
}

// promptBackend captions by sending a fixed prompt to a Prompter.
type promptBackend struct {
	name   string
	prompt string
	p      Prompter
}

func (b *promptBackend) Name() string { return b.name }

func (b *promptBackend) Caption(ctx context.Context, img *Image) (string, error) {
	out, err := b.p.Prompt(ctx, b.prompt, img)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// NewBackend returns the backend called name, as described by spec.
func NewBackend(ctx context.Context, name string, spec BackendSpec) (Backend, error) {
	p, err := NewPrompter(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &promptBackend{name: name, prompt: spec.prompt(), p: p}, nil
}

// NewBackends builds a handle for every enabled pass.
func NewBackends(ctx context.Context, c Config, bf *BackendFile) (map[string]Backend, error) {
	bs := map[string]Backend{}
	for _, name := range c.Passes {
		spec, ok := bf.Backends[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
		}
		b, err := NewBackend(ctx, name, spec)
		if err != nil {
			return nil, err
		}
		bs[name] = b
	}
	return bs, nil
}
