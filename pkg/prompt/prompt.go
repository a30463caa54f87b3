// Package prompt assembles model-agnostic prompts from endpoint
// instructions, schema-derived field descriptions, and request input data.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/johnqh/shapeshyft-api/pkg/llm"
	"github.com/johnqh/shapeshyft-api/pkg/schema"
)

const instructionHeader = `You are a data transformation assistant. Transform the input data below into structured output.

Rules:
1. Produce only the fields described in the output specification
2. Return valid JSON matching the exact structure requested
3. If a required field cannot be determined, use null
4. Be precise and produce exactly what is requested`

const systemFraming = `You are a data transformation assistant. You receive input data and produce structured JSON output.`

const jsonOnlyDirective = `Respond with valid JSON only. Do not include explanations or markdown formatting.`

const inputPreamble = `Transform the following input data according to the instructions above.`

// providerNotes are informational hints naming the target model family.
var providerNotes = map[llm.ProviderID]string{
	llm.ProviderOpenAI:    "Note: this prompt targets OpenAI GPT models.",
	llm.ProviderAnthropic: "Note: this prompt targets Anthropic Claude models.",
	llm.ProviderGemini:    "Note: this prompt targets Google Gemini models.",
	llm.ProviderLLMServer: "Note: this prompt targets a self-hosted model server.",
}

// Input carries everything the assembler needs for one request. Constructed
// per-request and discarded after use.
type Input struct {
	Data         any
	OutputSchema *schema.JSONSchema
	Instructions string
	Context      string
	Provider     llm.ProviderID
}

// Build produces the single combined prompt used for previews and
// payload-only endpoints.
func Build(in Input) string {
	var sb strings.Builder

	if note, ok := providerNotes[in.Provider]; ok {
		sb.WriteString(note)
		sb.WriteString("\n\n")
	}

	sb.WriteString(instructionHeader)
	sb.WriteString("\n")

	writeInstructionSections(&sb, in)

	sb.WriteString("\n## Input\n")
	sb.WriteString(FormatInputData(in.Data))
	sb.WriteString("\n")

	return sb.String()
}

// BuildLegacy produces the system/user prompt pair used for direct LLM
// calls. The schema-instruction and example sections are shared with Build,
// so preview and execute can never diverge on instructions.
func BuildLegacy(in Input) (system, user string) {
	var sb strings.Builder

	sb.WriteString(systemFraming)
	sb.WriteString("\n")

	writeInstructionSections(&sb, in)

	var ub strings.Builder
	ub.WriteString(inputPreamble)
	ub.WriteString("\n\n")
	ub.WriteString(FormatInputData(in.Data))

	return sb.String(), ub.String()
}

// writeInstructionSections emits the Task, Context, schema, and example
// sections shared by both prompt forms.
func writeInstructionSections(sb *strings.Builder, in Input) {
	if in.Instructions != "" {
		sb.WriteString("\n## Task\n")
		sb.WriteString(in.Instructions)
		sb.WriteString("\n")
	}

	if in.Context != "" {
		sb.WriteString("\n## Context\n")
		sb.WriteString(in.Context)
		sb.WriteString("\n")
	}

	if in.OutputSchema != nil {
		sb.WriteString("\n## Required Output Fields\n")
		sb.WriteString(schema.Render(in.OutputSchema))

		if schema.IsComplex(in.OutputSchema) {
			sb.WriteString("\n## Example Output\n")
			sb.Write(schema.ExampleJSON(in.OutputSchema))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(jsonOnlyDirective)
	sb.WriteString("\n")
}

// FormatInputData renders request input for inclusion in a prompt. JSON
// objects become a flat bullet list with nested objects indented one level;
// anything else is serialized directly.
func FormatInputData(data any) string {
	obj, ok := data.(map[string]any)
	if !ok {
		return serialize(data)
	}

	var sb strings.Builder
	writeObjectBullets(&sb, obj, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func writeObjectBullets(sb *strings.Builder, obj map[string]any, indent int) {
	prefix := strings.Repeat("  ", indent)

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := obj[k].(type) {
		case map[string]any:
			sb.WriteString(fmt.Sprintf("%s- %s:\n", prefix, k))
			writeObjectBullets(sb, v, indent+1)
		default:
			sb.WriteString(fmt.Sprintf("%s- %s: %s\n", prefix, k, serialize(v)))
		}
	}
}

func serialize(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
