package provider

import (
	"context"
	"fmt"

	"github.com/ashureev/anti-todo/internal/prompt"
	"google.golang.org/genai"
)

// generateFunc matches genai's Models.GenerateContent.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiProvider uses the Gemini API with a response schema.
type GeminiProvider struct {
	model    string
	prompts  *prompt.Set
	generate generateFunc
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string, prompts *prompt.Set) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiProvider{model: model, prompts: prompts, generate: client.Models.GenerateContent}, nil
}

// Name implements Provider.
func (g *GeminiProvider) Name() string {
	return "gemini"
}

func geminiSchema(kind prompt.Kind) *genai.Schema {
	field := replyField[kind]
	prop := &genai.Schema{Type: genai.TypeString}
	switch kind {
	case prompt.KindSteps:
		prop = &genai.Schema{
			Type:     genai.TypeArray,
			Items:    &genai.Schema{Type: genai.TypeString},
			MaxItems: genai.Ptr[int64](3),
		}
	case prompt.KindStory:
		prop.Description = "An epic story about completing the task"
	default:
		prop.Description = "A silly version of the input task that does the opposite of being productive"
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{field: prop},
		Required:   []string{field},
	}
}

// Generate implements Provider.
func (g *GeminiProvider) Generate(ctx context.Context, req Request) (Reply, error) {
	if _, ok := replyField[req.Kind]; !ok {
		return Reply{}, fmt.Errorf("gemini: %w: %q", ErrUnsupported, req.Kind)
	}

	text, err := g.prompts.Render(req.Kind, req.data())
	if err != nil {
		return Reply{}, fmt.Errorf("gemini: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(temperatures[req.Kind])),
		ResponseMIMEType: "application/json",
		ResponseSchema:   geminiSchema(req.Kind),
	}
	if system := g.prompts.System(req.Kind); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.generate(ctx, g.model, genai.Text(text), cfg)
	if err != nil {
		return Reply{}, fmt.Errorf("gemini: generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return Reply{}, fmt.Errorf("gemini: %w: no candidates", ErrMalformedReply)
	}

	reply, err := decodeStructured(req.Kind, resp.Text())
	if err != nil {
		return Reply{}, fmt.Errorf("gemini: %w", err)
	}
	return reply, nil
}
