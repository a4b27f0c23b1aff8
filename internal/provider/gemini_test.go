package provider

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ashureev/anti-todo/internal/prompt"
	"google.golang.org/genai"
)

func fakeGemini(t *testing.T, text string, err error, capture **genai.GenerateContentConfig) *GeminiProvider {
	t.Helper()
	return &GeminiProvider{
		model:   "test-model",
		prompts: testPrompts(t),
		generate: func(_ context.Context, model string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			if model != "test-model" {
				t.Errorf("unexpected model %q", model)
			}
			if capture != nil {
				*capture = cfg
			}
			if err != nil {
				return nil, err
			}
			return &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
				}},
			}, nil
		},
	}
}

func TestGeminiStepsSchema(t *testing.T) {
	var cfg *genai.GenerateContentConfig
	g := fakeGemini(t, `{"steps":["A","B","C"]}`, nil, &cfg)

	reply, err := g.Generate(t.Context(), Request{Kind: prompt.KindSteps, Task: "Nap"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !reflect.DeepEqual(reply.Items, []string{"A", "B", "C"}) {
		t.Fatalf("unexpected items %q", reply.Items)
	}
	if cfg.ResponseMIMEType != "application/json" {
		t.Fatalf("unexpected mime type %q", cfg.ResponseMIMEType)
	}
	if cfg.ResponseSchema.Properties["steps"].Type != genai.TypeArray {
		t.Fatalf("expected array schema for steps")
	}
	if cfg.SystemInstruction == nil {
		t.Fatal("expected system instruction")
	}
}

func TestGeminiConvert(t *testing.T) {
	g := fakeGemini(t, `{"task":"Nap competitively"}`, nil, nil)

	reply, err := g.Generate(t.Context(), Request{Kind: prompt.KindConvert, Task: "Study"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply.Text != "Nap competitively" {
		t.Fatalf("unexpected text %q", reply.Text)
	}
}

func TestGeminiError(t *testing.T) {
	g := fakeGemini(t, "", errors.New("quota"), nil)
	if _, err := g.Generate(t.Context(), Request{Kind: prompt.KindConvert, Task: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewGeminiProviderRequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(t.Context(), "", "", testPrompts(t)); err == nil {
		t.Fatal("expected error without key")
	}
}
