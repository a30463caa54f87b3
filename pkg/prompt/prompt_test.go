package prompt

import (
	"strings"
	"testing"

	"github.com/johnqh/shapeshyft-api/pkg/llm"
	"github.com/johnqh/shapeshyft-api/pkg/schema"
)

func sampleSchema() *schema.JSONSchema {
	return &schema.JSONSchema{
		Type: schema.TypeObject,
		Properties: []schema.Property{
			{Name: "sentiment", Schema: schema.JSONSchema{Type: schema.TypeString, Enum: []any{"positive", "negative"}}},
			{Name: "confidence", Schema: schema.JSONSchema{Type: schema.TypeNumber}},
		},
		Required: []string{"sentiment"},
	}
}

func TestBuildSectionOrder(t *testing.T) {
	out := Build(Input{
		Data:         map[string]any{"text": "great product"},
		OutputSchema: sampleSchema(),
		Instructions: "Classify the sentiment of the input.",
		Context:      "Reviews come from an e-commerce site.",
		Provider:     llm.ProviderOpenAI,
	})

	sections := []string{
		"Note: this prompt targets OpenAI GPT models.",
		"You are a data transformation assistant.",
		"## Task",
		"Classify the sentiment of the input.",
		"## Context",
		"Reviews come from an e-commerce site.",
		"## Required Output Fields",
		"- sentiment (string, required)",
		"Respond with valid JSON only.",
		"## Input",
		"- text: great product",
	}

	last := -1
	for _, sec := range sections {
		idx := strings.Index(out, sec)
		if idx < 0 {
			t.Fatalf("section %q missing from prompt:\n%s", sec, out)
		}
		if idx < last {
			t.Errorf("section %q out of order", sec)
		}
		last = idx
	}
}

func TestBuildOmitsEmptySections(t *testing.T) {
	out := Build(Input{
		Data:         map[string]any{"text": "hi"},
		OutputSchema: sampleSchema(),
	})

	if strings.Contains(out, "## Task") {
		t.Error("Task section emitted without instructions")
	}
	if strings.Contains(out, "## Context") {
		t.Error("Context section emitted without context")
	}
	if strings.Contains(out, "Note:") {
		t.Error("provider note emitted without a provider")
	}
}

func TestBuildExampleOnlyForComplexSchema(t *testing.T) {
	simple := sampleSchema()
	complexSchema := &schema.JSONSchema{
		Type: schema.TypeObject,
		Properties: []schema.Property{
			{Name: "items", Schema: schema.JSONSchema{Type: schema.TypeArray, Items: &schema.JSONSchema{Type: schema.TypeString}}},
		},
	}

	if out := Build(Input{Data: "x", OutputSchema: simple}); strings.Contains(out, "## Example Output") {
		t.Error("simple schema should not get an example block")
	}
	out := Build(Input{Data: "x", OutputSchema: complexSchema})
	if !strings.Contains(out, "## Example Output") {
		t.Error("complex schema should get an example block")
	}
	if !strings.Contains(out, `"<string>"`) {
		t.Errorf("example block missing placeholder value:\n%s", out)
	}
}

// The example block must list fields in the order the schema declares them,
// matching the rendered field instructions above it.
func TestBuildExampleKeepsFieldOrder(t *testing.T) {
	s := &schema.JSONSchema{
		Type: schema.TypeObject,
		Properties: []schema.Property{
			{Name: "zebra", Schema: schema.JSONSchema{Type: schema.TypeString}},
			{Name: "apple", Schema: schema.JSONSchema{Type: schema.TypeObject, Properties: []schema.Property{
				{Name: "city", Schema: schema.JSONSchema{Type: schema.TypeString}},
			}}},
		},
	}

	out := Build(Input{Data: "x", OutputSchema: s})
	block := out[strings.Index(out, "## Example Output"):]
	zebra := strings.Index(block, `"zebra"`)
	apple := strings.Index(block, `"apple"`)
	if zebra < 0 || apple < 0 {
		t.Fatalf("example block missing fields:\n%s", block)
	}
	if zebra > apple {
		t.Errorf("example fields out of declared order:\n%s", block)
	}
}

// The combined and split forms must agree on every instruction section, so a
// previewed prompt never differs from what an execution sends.
func TestBuildLegacyMatchesCombinedInstructionSections(t *testing.T) {
	in := Input{
		Data: map[string]any{"text": "sample"},
		OutputSchema: &schema.JSONSchema{
			Type: schema.TypeObject,
			Properties: []schema.Property{
				{Name: "a", Schema: schema.JSONSchema{Type: schema.TypeString}},
				{Name: "b", Schema: schema.JSONSchema{Type: schema.TypeObject, Properties: []schema.Property{
					{Name: "c", Schema: schema.JSONSchema{Type: schema.TypeNumber}},
				}}},
			},
			Required: []string{"a"},
		},
		Instructions: "Do the thing.",
		Context:      "Some context.",
	}

	combined := Build(in)
	system, user := BuildLegacy(in)

	start := strings.Index(combined, "\n## Task")
	end := strings.Index(combined, "\n## Input")
	if start < 0 || end < 0 || end <= start {
		t.Fatalf("could not locate instruction sections in:\n%s", combined)
	}
	instructions := combined[start:end]

	if !strings.Contains(system, instructions) {
		t.Errorf("system prompt does not contain the combined instruction sections\nwant substring:\n%s\ngot:\n%s", instructions, system)
	}
	if !strings.Contains(user, FormatInputData(in.Data)) {
		t.Errorf("user prompt missing formatted input:\n%s", user)
	}
	if strings.Contains(system, "## Input") {
		t.Error("system prompt must not carry input data")
	}
}

func TestFormatInputData(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"flat object", map[string]any{"b": "two", "a": 1.0}, "- a: 1\n- b: two"},
		{"nested object", map[string]any{"outer": map[string]any{"inner": "v"}}, "- outer:\n  - inner: v"},
		{"array", []any{"a", "b"}, `["a","b"]`},
		{"string", "plain", "plain"},
		{"number", 7.5, "7.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatInputData(tt.data); got != tt.want {
				t.Errorf("FormatInputData() = %q, want %q", got, tt.want)
			}
		})
	}
}
