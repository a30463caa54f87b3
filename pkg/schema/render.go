package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Render produces natural-language field instructions for a schema: one
// bullet per property with its type, required marker, description, allowed
// values, and constraints. Nested objects and array item shapes recurse with
// increased indentation.
func Render(s *JSONSchema) string {
	var sb strings.Builder
	for i := range s.Properties {
		writeProperty(&sb, s.Properties[i].Name, &s.Properties[i].Schema, s.IsRequired(s.Properties[i].Name), 0)
	}
	return sb.String()
}

func writeProperty(sb *strings.Builder, name string, s *JSONSchema, required bool, indent int) {
	prefix := strings.Repeat("  ", indent)

	sb.WriteString(prefix)
	sb.WriteString("- ")
	sb.WriteString(name)
	sb.WriteString(" (")
	sb.WriteString(s.EffectiveType())
	if required {
		sb.WriteString(", required")
	} else {
		sb.WriteString(", optional")
	}
	sb.WriteString(")")

	if s.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(s.Description)
	}

	if len(s.Enum) > 0 {
		vals := make([]string, len(s.Enum))
		for i, v := range s.Enum {
			vals[i] = fmt.Sprintf("%v", v)
		}
		sb.WriteString(". Allowed values: ")
		sb.WriteString(strings.Join(vals, ", "))
	}

	if c := constraintClause(s); c != "" {
		sb.WriteString(". Constraints: ")
		sb.WriteString(c)
	}

	sb.WriteString("\n")

	switch s.EffectiveType() {
	case TypeObject:
		for i := range s.Properties {
			writeProperty(sb, s.Properties[i].Name, &s.Properties[i].Schema, s.IsRequired(s.Properties[i].Name), indent+1)
		}
	case TypeArray:
		if s.Items != nil && len(s.Items.Properties) > 0 {
			sb.WriteString(prefix)
			sb.WriteString("  Each item:\n")
			for i := range s.Items.Properties {
				writeProperty(sb, s.Items.Properties[i].Name, &s.Items.Properties[i].Schema, s.Items.IsRequired(s.Items.Properties[i].Name), indent+2)
			}
		}
	}
}

// constraintClause joins whichever validation keywords are present, or
// returns "" when there are none.
func constraintClause(s *JSONSchema) string {
	var parts []string
	if s.Minimum != nil {
		parts = append(parts, fmt.Sprintf("minimum %v", *s.Minimum))
	}
	if s.Maximum != nil {
		parts = append(parts, fmt.Sprintf("maximum %v", *s.Maximum))
	}
	if s.MinLength != nil {
		parts = append(parts, fmt.Sprintf("minLength %d", *s.MinLength))
	}
	if s.MaxLength != nil {
		parts = append(parts, fmt.Sprintf("maxLength %d", *s.MaxLength))
	}
	if s.Pattern != "" {
		parts = append(parts, "pattern "+s.Pattern)
	}
	if s.Format != "" {
		parts = append(parts, "format "+s.Format)
	}
	return strings.Join(parts, ", ")
}

// Example produces a representative instance of the schema. An explicit
// default wins, then the first enum value, then a fixed per-type placeholder.
// Unknown types degrade to nil.
func Example(s *JSONSchema) any {
	if s.Default != nil {
		return s.Default
	}
	if len(s.Enum) > 0 {
		return s.Enum[0]
	}

	switch s.EffectiveType() {
	case TypeObject:
		obj := make(map[string]any, len(s.Properties))
		for i := range s.Properties {
			obj[s.Properties[i].Name] = Example(&s.Properties[i].Schema)
		}
		return obj
	case TypeArray:
		if s.Items == nil {
			return []any{}
		}
		return []any{Example(s.Items)}
	case TypeString:
		return "<string>"
	case TypeNumber:
		return 0.0
	case TypeInteger:
		return 0
	case TypeBoolean:
		return true
	default:
		return nil
	}
}

// ExampleJSON renders the schema's example as indented JSON with object
// keys in declared property order. Example alone returns maps, whose key
// order encoding/json would discard.
func ExampleJSON(s *JSONSchema) []byte {
	var buf bytes.Buffer
	writeExampleJSON(&buf, s, 0)
	return buf.Bytes()
}

func writeExampleJSON(buf *bytes.Buffer, s *JSONSchema, depth int) {
	indent := strings.Repeat("  ", depth)

	// Explicit defaults and enum picks are emitted as-is; only synthesized
	// objects and arrays need the ordered walk.
	if s.Default == nil && len(s.Enum) == 0 {
		switch s.EffectiveType() {
		case TypeObject:
			if len(s.Properties) == 0 {
				buf.WriteString("{}")
				return
			}
			buf.WriteString("{\n")
			for i := range s.Properties {
				name, _ := marshalNoEscape(s.Properties[i].Name, "", "")
				buf.WriteString(indent)
				buf.WriteString("  ")
				buf.Write(name)
				buf.WriteString(": ")
				writeExampleJSON(buf, &s.Properties[i].Schema, depth+1)
				if i < len(s.Properties)-1 {
					buf.WriteByte(',')
				}
				buf.WriteByte('\n')
			}
			buf.WriteString(indent)
			buf.WriteByte('}')
			return
		case TypeArray:
			if s.Items == nil {
				buf.WriteString("[]")
				return
			}
			buf.WriteString("[\n")
			buf.WriteString(indent)
			buf.WriteString("  ")
			writeExampleJSON(buf, s.Items, depth+1)
			buf.WriteByte('\n')
			buf.WriteString(indent)
			buf.WriteByte(']')
			return
		}
	}

	encoded, err := marshalNoEscape(Example(s), indent, "  ")
	if err != nil {
		buf.WriteString("null")
		return
	}
	buf.Write(encoded)
}

// marshalNoEscape encodes v as indented JSON without HTML-escaping angle
// brackets, so placeholders like "<string>" survive verbatim.
func marshalNoEscape(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// IsComplex reports whether a schema warrants an example block in the
// prompt: more than 3 properties, or any property that is itself an object
// or array. Short flat schemas stay terse.
func IsComplex(s *JSONSchema) bool {
	if s == nil {
		return false
	}
	if len(s.Properties) > 3 {
		return true
	}
	for i := range s.Properties {
		switch s.Properties[i].Schema.EffectiveType() {
		case TypeObject, TypeArray:
			return true
		}
	}
	return false
}
