package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ashureev/anti-todo/internal/prompt"
)

// GroqConfig configures a GroqProvider.
type GroqConfig struct {
	APIKey  string
	BaseURL string
	// Models maps each kind to the model identifier used for it.
	Models map[prompt.Kind]string
}

// Temperatures used per kind by the schema-constrained providers.
var temperatures = map[prompt.Kind]float64{
	prompt.KindConvert: 0.9,
	prompt.KindSteps:   0.9,
	prompt.KindStory:   0.8,
}

// GroqProvider talks to Groq's OpenAI-compatible chat completions API and
// requests schema-constrained JSON output.
type GroqProvider struct {
	cfg        GroqConfig
	prompts    *prompt.Set
	httpClient *http.Client
}

// NewGroqProvider creates a Groq provider. A nil httpClient uses http.DefaultClient.
func NewGroqProvider(cfg GroqConfig, prompts *prompt.Set, httpClient *http.Client) *GroqProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GroqProvider{cfg: cfg, prompts: prompts, httpClient: httpClient}
}

// Name implements Provider.
func (g *GroqProvider) Name() string {
	return "groq"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// replyField is the single JSON field each kind's schema asks for.
var replyField = map[prompt.Kind]string{
	prompt.KindConvert: "task",
	prompt.KindSteps:   "steps",
	prompt.KindStory:   "story",
}

func replySchema(kind prompt.Kind) map[string]any {
	field := replyField[kind]
	var prop map[string]any
	switch kind {
	case prompt.KindSteps:
		prop = map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"maxItems":    3,
			"description": "Exactly three weird steps, each a complete sentence",
		}
	case prompt.KindStory:
		prop = map[string]any{"type": "string", "description": "An epic story about completing the task"}
	default:
		prop = map[string]any{"type": "string", "description": "A silly version of the input task that does the opposite of being productive"}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{field: prop},
		"required":             []string{field},
		"additionalProperties": false,
	}
}

// Generate implements Provider.
func (g *GroqProvider) Generate(ctx context.Context, req Request) (Reply, error) {
	if g.cfg.APIKey == "" {
		return Reply{}, fmt.Errorf("groq: API key not configured")
	}
	model, ok := g.cfg.Models[req.Kind]
	if !ok || model == "" {
		return Reply{}, fmt.Errorf("groq: %w: %q", ErrUnsupported, req.Kind)
	}

	text, err := g.prompts.Render(req.Kind, req.data())
	if err != nil {
		return Reply{}, fmt.Errorf("groq: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: text}},
		Temperature: temperatures[req.Kind],
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   string(req.Kind),
				Strict: true,
				Schema: replySchema(req.Kind),
			},
		},
	})
	if err != nil {
		return Reply{}, fmt.Errorf("groq: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("groq: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("groq: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Reply{}, fmt.Errorf("groq: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, fmt.Errorf("groq: status %d: %s", resp.StatusCode, snippet(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Reply{}, fmt.Errorf("groq: decode response: %w", err)
	}
	if parsed.Error != nil {
		return Reply{}, fmt.Errorf("groq: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Reply{}, fmt.Errorf("groq: %w: no choices", ErrMalformedReply)
	}

	return decodeStructured(req.Kind, parsed.Choices[0].Message.Content)
}

// decodeStructured extracts the kind's field from a JSON object reply. Step
// replies that are not JSON are parsed as a plain list.
func decodeStructured(kind prompt.Kind, content string) (Reply, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		if kind == prompt.KindSteps {
			return Reply{Items: ParseSteps(content)}, nil
		}
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	value, ok := fields[replyField[kind]]
	if !ok {
		return Reply{}, fmt.Errorf("%w: missing %q field", ErrMalformedReply, replyField[kind])
	}

	if kind == prompt.KindSteps {
		var items []string
		if err := json.Unmarshal(value, &items); err != nil {
			return Reply{}, fmt.Errorf("%w: steps: %v", ErrMalformedReply, err)
		}
		for i := range items {
			items[i] = listMarker.ReplaceAllString(items[i], "")
		}
		return Reply{Items: items}, nil
	}

	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return Reply{}, fmt.Errorf("%w: %s: %v", ErrMalformedReply, replyField[kind], err)
	}
	return Reply{Text: text}, nil
}
