package main

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/ashureev/anti-todo/internal/config"
	"github.com/ashureev/anti-todo/internal/prompt"
)

func TestRenderPromptsCoversEveryKind(t *testing.T) {
	set, err := prompt.Default()
	if err != nil {
		t.Fatalf("default prompts: %v", err)
	}

	var buf bytes.Buffer
	if err := renderPrompts(&buf, set, "Clean the garage"); err != nil {
		t.Fatalf("renderPrompts: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"== convert", "== steps", "== story", "Clean the garage"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"http://localhost:5173", []string{"localhost:5173"}},
		{"https://anti.example.com/app", []string{"anti.example.com"}},
	}
	for _, tt := range tests {
		got := originPatterns(tt.in)
		if len(got) != len(tt.want) || (len(got) == 1 && got[0] != tt.want[0]) {
			t.Errorf("originPatterns(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRootRegistersSubcommands(t *testing.T) {
	for _, name := range []string{"serve", "sweep", "prompts"} {
		if cmd, _, err := rootCmd.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %q, got %v err=%v", name, cmd, err)
		}
	}
}

func TestBuildChainsOrdersProviders(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-key")
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	set, err := prompt.Default()
	if err != nil {
		t.Fatalf("default prompts: %v", err)
	}

	chains, err := buildChains(t.Context(), cfg, set, nil)
	if err != nil {
		t.Fatalf("buildChains: %v", err)
	}

	tests := []struct {
		kind prompt.Kind
		got  []string
		gotK prompt.Kind
		want []string
	}{
		{prompt.KindConvert, chains.convert.Providers(), chains.convert.Kind(), []string{"groq", "huggingface"}},
		{prompt.KindSteps, chains.steps.Providers(), chains.steps.Kind(), []string{"groq", "huggingface"}},
		{prompt.KindStory, chains.story.Providers(), chains.story.Kind(), []string{"groq"}},
	}
	for _, tt := range tests {
		if tt.gotK != tt.kind {
			t.Errorf("chain kind = %s, want %s", tt.gotK, tt.kind)
		}
		if !slices.Equal(tt.got, tt.want) {
			t.Errorf("%s providers = %v, want %v", tt.kind, tt.got, tt.want)
		}
	}
}
