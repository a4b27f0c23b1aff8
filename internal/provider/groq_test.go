package provider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/ashureev/anti-todo/internal/prompt"
)

func testPrompts(t *testing.T) *prompt.Set {
	t.Helper()
	set, err := prompt.Default()
	if err != nil {
		t.Fatalf("prompt.Default failed: %v", err)
	}
	return set
}

func groqServer(t *testing.T, content string, capture *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
			return
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGroq(t *testing.T, baseURL, key string) *GroqProvider {
	return NewGroqProvider(GroqConfig{
		APIKey:  key,
		BaseURL: baseURL + "/",
		Models: map[prompt.Kind]string{
			prompt.KindConvert: "convert-model",
			prompt.KindSteps:   "steps-model",
			prompt.KindStory:   "story-model",
		},
	}, testPrompts(t), nil)
}

func TestGroqConvertUsesSchema(t *testing.T) {
	var got chatRequest
	srv := groqServer(t, `{"task":"Nap competitively"}`, &got)
	g := newTestGroq(t, srv.URL, "test-key")

	reply, err := g.Generate(t.Context(), Request{Kind: prompt.KindConvert, Task: "Study for final exam"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply.Text != "Nap competitively" {
		t.Fatalf("unexpected text %q", reply.Text)
	}
	if got.Model != "convert-model" || got.Temperature != 0.9 {
		t.Fatalf("unexpected model/temperature %q %v", got.Model, got.Temperature)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_schema" {
		t.Fatalf("expected json_schema response format, got %+v", got.ResponseFormat)
	}
	want := `Convert this productive task into a ridiculous, counterproductive version: "Study for final exam"`
	if len(got.Messages) != 1 || got.Messages[0].Content != want {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestGroqStepsStructuredAndFreeText(t *testing.T) {
	srv := groqServer(t, `{"steps":["1. Step A","Step B","Step C"]}`, nil)
	g := newTestGroq(t, srv.URL, "test-key")

	reply, err := g.Generate(t.Context(), Request{Kind: prompt.KindSteps, Task: "Nap"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !reflect.DeepEqual(reply.Items, []string{"Step A", "Step B", "Step C"}) {
		t.Fatalf("unexpected items %q", reply.Items)
	}

	srv = groqServer(t, "1. Step A\n\n2. Step B\n3. Step C\n4. Step D", nil)
	g = newTestGroq(t, srv.URL, "test-key")
	reply, err = g.Generate(t.Context(), Request{Kind: prompt.KindSteps, Task: "Nap"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !reflect.DeepEqual(reply.Items, []string{"Step A", "Step B", "Step C"}) {
		t.Fatalf("unexpected items %q", reply.Items)
	}
}

func TestGroqStoryTemperature(t *testing.T) {
	var got chatRequest
	srv := groqServer(t, `{"story":"You did it."}`, &got)
	g := newTestGroq(t, srv.URL, "test-key")

	reply, err := g.Generate(t.Context(), Request{Kind: prompt.KindStory, Task: "Nap", Steps: []string{"A", "B", "C"}})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply.Text != "You did it." {
		t.Fatalf("unexpected story %q", reply.Text)
	}
	if got.Model != "story-model" || got.Temperature != 0.8 {
		t.Fatalf("unexpected model/temperature %q %v", got.Model, got.Temperature)
	}
}

func TestGroqErrors(t *testing.T) {
	srv := groqServer(t, `{"task":"x"}`, nil)

	if _, err := newTestGroq(t, srv.URL, "").Generate(t.Context(), Request{Kind: prompt.KindConvert, Task: "x"}); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := newTestGroq(t, srv.URL, "wrong").Generate(t.Context(), Request{Kind: prompt.KindConvert, Task: "x"}); err == nil {
		t.Fatal("expected error on 401")
	}

	malformed := groqServer(t, `not json`, nil)
	if _, err := newTestGroq(t, malformed.URL, "test-key").Generate(t.Context(), Request{Kind: prompt.KindConvert, Task: "x"}); err == nil {
		t.Fatal("expected error on non-JSON convert reply")
	}

	missing := groqServer(t, `{"other":"x"}`, nil)
	if _, err := newTestGroq(t, missing.URL, "test-key").Generate(t.Context(), Request{Kind: prompt.KindStory, Task: "x"}); err == nil {
		t.Fatal("expected error on missing story field")
	}
}
