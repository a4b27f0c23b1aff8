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

// HuggingFaceConfig configures a HuggingFaceProvider.
type HuggingFaceConfig struct {
	Token   string // Optional.
	BaseURL string
	Model   string
}

// GenerationParams are the sampling parameters sent with every request.
type GenerationParams struct {
	MaxNewTokens      int     `json:"max_new_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	ReturnFullText    bool    `json:"return_full_text"`
}

func fallbackParams(kind prompt.Kind) GenerationParams {
	p := GenerationParams{
		MaxNewTokens:      20,
		Temperature:       0.8,
		TopP:              0.9,
		TopK:              50,
		RepetitionPenalty: 1.2,
	}
	if kind == prompt.KindSteps {
		p.MaxNewTokens = 100
	}
	return p
}

// HuggingFaceProvider calls a text-generation inference endpoint with a
// llama-2 chat formatted prompt and free-text output. It serves convert and
// steps only.
type HuggingFaceProvider struct {
	cfg        HuggingFaceConfig
	prompts    *prompt.Set
	httpClient *http.Client
}

// NewHuggingFaceProvider creates the fallback provider. A nil httpClient uses http.DefaultClient.
func NewHuggingFaceProvider(cfg HuggingFaceConfig, prompts *prompt.Set, httpClient *http.Client) *HuggingFaceProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HuggingFaceProvider{cfg: cfg, prompts: prompts, httpClient: httpClient}
}

// Name implements Provider.
func (h *HuggingFaceProvider) Name() string {
	return "huggingface"
}

type generateRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters GenerationParams `json:"parameters"`
	Options    map[string]bool  `json:"options,omitempty"`
}

type generated struct {
	GeneratedText string `json:"generated_text"`
	Error         string `json:"error"`
}

// chatTemplate formats a single-turn llama-2 chat prompt.
func chatTemplate(system, message string) string {
	return "<s>[INST] <<SYS>>\n" + system + "\n<</SYS>>\n\n" + message + " [/INST]"
}

// Generate implements Provider.
func (h *HuggingFaceProvider) Generate(ctx context.Context, req Request) (Reply, error) {
	if req.Kind != prompt.KindConvert && req.Kind != prompt.KindSteps {
		return Reply{}, fmt.Errorf("huggingface: %w: %q", ErrUnsupported, req.Kind)
	}

	message, err := h.prompts.RenderFallback(req.Kind, req.data())
	if err != nil {
		return Reply{}, fmt.Errorf("huggingface: %w", err)
	}

	body, err := json.Marshal(generateRequest{
		Inputs:     chatTemplate(h.prompts.System(req.Kind), message),
		Parameters: fallbackParams(req.Kind),
		Options:    map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return Reply{}, fmt.Errorf("huggingface: encode request: %w", err)
	}

	url := h.cfg.BaseURL + "/models/" + h.cfg.Model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("huggingface: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("huggingface: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Reply{}, fmt.Errorf("huggingface: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, fmt.Errorf("huggingface: status %d: %s", resp.StatusCode, snippet(raw))
	}

	text, err := decodeGenerated(raw)
	if err != nil {
		return Reply{}, fmt.Errorf("huggingface: %w", err)
	}

	if req.Kind == prompt.KindSteps {
		return Reply{Items: ParseSteps(text)}, nil
	}
	return Reply{Text: firstLine(text)}, nil
}

// decodeGenerated accepts both the list form and the single object form.
func decodeGenerated(raw []byte) (string, error) {
	var list []generated
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return "", fmt.Errorf("%w: empty generation list", ErrMalformedReply)
		}
		return list[0].GeneratedText, nil
	}

	var single generated
	if err := json.Unmarshal(raw, &single); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if single.Error != "" {
		return "", fmt.Errorf("inference error: %s", single.Error)
	}
	return single.GeneratedText, nil
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
