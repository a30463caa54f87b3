package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/johnqh/shapeshyft-api/pkg/schema"
)

func TestGeminiGenerate(t *testing.T) {
	var gotPath string
	var gotKey string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "{\"title\": \"ok\"}"}]}}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 4, "totalTokenCount": 16}
		}`))
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(Config{APIKey: "secret", EndpointURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGeminiProvider failed: %v", err)
	}

	resp, err := p.Generate(context.Background(), Request{
		Prompt: "extract",
		OutputSchema: &schema.JSONSchema{
			Type: schema.TypeObject,
			Properties: []schema.Property{
				{Name: "title", Schema: schema.JSONSchema{Type: schema.TypeString}},
			},
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/v1beta/models/gemini-1.5-flash:generateContent") {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q", gotKey)
	}

	gc := gotPayload["generationConfig"].(map[string]any)
	if gc["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v", gc["responseMimeType"])
	}

	want := map[string]any{"title": "ok"}
	if !reflect.DeepEqual(resp.Content, want) {
		t.Errorf("content = %v, want %v", resp.Content, want)
	}
	if resp.Usage.TotalTokens != 16 || resp.Usage.PromptTokens != 12 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.Provider != ProviderGemini {
		t.Errorf("provider = %v", resp.Provider)
	}
}

func TestGeminiGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-200 status", http.StatusTooManyRequests, `{"error": "quota"}`},
		{"no candidates", http.StatusOK, `{"candidates": []}`},
		{"non-json candidate text", http.StatusOK, `{"candidates": [{"content": {"parts": [{"text": "not json"}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := NewGeminiProvider(Config{APIKey: "k", EndpointURL: srv.URL})
			if _, err := p.Generate(context.Background(), Request{Prompt: "x"}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
