// Package schema defines the JSON Schema subset used to describe endpoint
// output shapes and renders it into prompt instructions and examples.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Recognized schema types.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// JSONSchema is a closed recursive subset of JSON Schema. Unknown keywords
// are dropped at parse time so downstream rendering and provider-specific
// adjustments stay exhaustive. Schemas are trees; cyclic references are not
// supported.
type JSONSchema struct {
	Type        string
	Description string
	Properties  []Property // ordered; names unique within one node
	Required    []string
	Items       *JSONSchema
	Enum        []any
	Minimum     *float64
	Maximum     *float64
	MinLength   *int
	MaxLength   *int
	Pattern     string
	Format      string
	Default     any
}

// Property is a named child schema of an object node.
type Property struct {
	Name   string
	Schema JSONSchema
}

// Prop returns the child schema for name, or nil if absent.
func (s *JSONSchema) Prop(name string) *JSONSchema {
	for i := range s.Properties {
		if s.Properties[i].Name == name {
			return &s.Properties[i].Schema
		}
	}
	return nil
}

// IsRequired reports whether name is listed in the node's required set.
func (s *JSONSchema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// EffectiveType returns the declared type, defaulting to "object" when the
// fragment omits one.
func (s *JSONSchema) EffectiveType() string {
	if s.Type == "" {
		return TypeObject
	}
	return s.Type
}

// FromFile loads a schema from a JSON or YAML file.
func FromFile(path string) (*JSONSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FromJSON(data)
	case ".yaml", ".yml":
		return FromYAML(data)
	default:
		return nil, fmt.Errorf("unsupported schema file format: %s", filepath.Ext(path))
	}
}

// FromJSON parses a schema from JSON data.
func FromJSON(data []byte) (*JSONSchema, error) {
	var s JSONSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse JSON schema: %w", err)
	}
	return &s, nil
}

// FromYAML parses a schema from YAML data.
func FromYAML(data []byte) (*JSONSchema, error) {
	var s JSONSchema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML schema: %w", err)
	}
	return &s, nil
}

// schemaRaw mirrors JSONSchema for decoding, with properties deferred so the
// declaration order can be recovered from the raw token stream.
type schemaRaw struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Properties  json.RawMessage `json:"properties"`
	Required    []string        `json:"required"`
	Items       *JSONSchema     `json:"items"`
	Enum        []any           `json:"enum"`
	Minimum     *float64        `json:"minimum"`
	Maximum     *float64        `json:"maximum"`
	MinLength   *int            `json:"minLength"`
	MaxLength   *int            `json:"maxLength"`
	Pattern     string          `json:"pattern"`
	Format      string          `json:"format"`
	Default     any             `json:"default"`
}

// UnmarshalJSON decodes a schema node, preserving property order.
// encoding/json decodes objects into unordered maps, so properties are
// re-read from the raw message with a token decoder.
func (s *JSONSchema) UnmarshalJSON(data []byte) error {
	var raw schemaRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = JSONSchema{
		Type:        raw.Type,
		Description: raw.Description,
		Required:    raw.Required,
		Items:       raw.Items,
		Enum:        raw.Enum,
		Minimum:     raw.Minimum,
		Maximum:     raw.Maximum,
		MinLength:   raw.MinLength,
		MaxLength:   raw.MaxLength,
		Pattern:     raw.Pattern,
		Format:      raw.Format,
		Default:     raw.Default,
	}

	if len(raw.Properties) == 0 {
		return nil
	}

	props, err := decodeOrderedProperties(raw.Properties)
	if err != nil {
		return err
	}
	s.Properties = props
	return nil
}

// decodeOrderedProperties walks the properties object token by token so the
// source ordering survives decoding.
func decodeOrderedProperties(data []byte) ([]Property, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("properties must be an object")
	}

	var props []Property
	seen := make(map[string]bool)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name := keyTok.(string)
		if seen[name] {
			return nil, fmt.Errorf("duplicate property %q", name)
		}
		seen[name] = true

		var child JSONSchema
		if err := dec.Decode(&child); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		props = append(props, Property{Name: name, Schema: child})
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return props, nil
}

// MarshalJSON emits the schema with properties in declared order, so a
// stored schema round-trips without reordering. encoding/json sorts map
// keys, so the object is assembled by hand.
func (s JSONSchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true

	writeField := func(name string, v any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(val)
		return nil
	}

	if s.Type != "" {
		if err := writeField("type", s.Type); err != nil {
			return nil, err
		}
	}
	if s.Description != "" {
		if err := writeField("description", s.Description); err != nil {
			return nil, err
		}
	}
	if len(s.Properties) > 0 {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(`"properties":{`)
		for i := range s.Properties {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(s.Properties[i].Name)
			buf.Write(key)
			buf.WriteByte(':')
			val, err := json.Marshal(s.Properties[i].Schema)
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	if len(s.Required) > 0 {
		if err := writeField("required", s.Required); err != nil {
			return nil, err
		}
	}
	if s.Items != nil {
		if err := writeField("items", s.Items); err != nil {
			return nil, err
		}
	}
	if len(s.Enum) > 0 {
		if err := writeField("enum", s.Enum); err != nil {
			return nil, err
		}
	}
	if s.Minimum != nil {
		if err := writeField("minimum", *s.Minimum); err != nil {
			return nil, err
		}
	}
	if s.Maximum != nil {
		if err := writeField("maximum", *s.Maximum); err != nil {
			return nil, err
		}
	}
	if s.MinLength != nil {
		if err := writeField("minLength", *s.MinLength); err != nil {
			return nil, err
		}
	}
	if s.MaxLength != nil {
		if err := writeField("maxLength", *s.MaxLength); err != nil {
			return nil, err
		}
	}
	if s.Pattern != "" {
		if err := writeField("pattern", s.Pattern); err != nil {
			return nil, err
		}
	}
	if s.Format != "" {
		if err := writeField("format", s.Format); err != nil {
			return nil, err
		}
	}
	if s.Default != nil {
		if err := writeField("default", s.Default); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a schema node from YAML. yaml.v3 mapping nodes keep
// their source order, so properties are read pairwise from the node content.
func (s *JSONSchema) UnmarshalYAML(node *yaml.Node) error {
	type yamlRaw struct {
		Type        string      `yaml:"type"`
		Description string      `yaml:"description"`
		Required    []string    `yaml:"required"`
		Items       *JSONSchema `yaml:"items"`
		Enum        []any       `yaml:"enum"`
		Minimum     *float64    `yaml:"minimum"`
		Maximum     *float64    `yaml:"maximum"`
		MinLength   *int        `yaml:"minLength"`
		MaxLength   *int        `yaml:"maxLength"`
		Pattern     string      `yaml:"pattern"`
		Format      string      `yaml:"format"`
		Default     any         `yaml:"default"`
	}

	var raw yamlRaw
	if err := node.Decode(&raw); err != nil {
		return err
	}

	*s = JSONSchema{
		Type:        raw.Type,
		Description: raw.Description,
		Required:    raw.Required,
		Items:       raw.Items,
		Enum:        raw.Enum,
		Minimum:     raw.Minimum,
		Maximum:     raw.Maximum,
		MinLength:   raw.MinLength,
		MaxLength:   raw.MaxLength,
		Pattern:     raw.Pattern,
		Format:      raw.Format,
		Default:     raw.Default,
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "properties" {
			continue
		}
		propsNode := node.Content[i+1]
		if propsNode.Kind != yaml.MappingNode {
			return fmt.Errorf("properties must be a mapping")
		}
		for j := 0; j+1 < len(propsNode.Content); j += 2 {
			name := propsNode.Content[j].Value
			var child JSONSchema
			if err := propsNode.Content[j+1].Decode(&child); err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
			s.Properties = append(s.Properties, Property{Name: name, Schema: child})
		}
	}
	return nil
}

// ToMap converts the schema to the generic map form providers consume.
func (s *JSONSchema) ToMap() map[string]any {
	m := make(map[string]any)
	if s.Type != "" {
		m["type"] = s.Type
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for i := range s.Properties {
			props[s.Properties[i].Name] = s.Properties[i].Schema.ToMap()
		}
		m["properties"] = props
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if s.Items != nil {
		m["items"] = s.Items.ToMap()
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	if s.Minimum != nil {
		m["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		m["maximum"] = *s.Maximum
	}
	if s.MinLength != nil {
		m["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		m["maxLength"] = *s.MaxLength
	}
	if s.Pattern != "" {
		m["pattern"] = s.Pattern
	}
	if s.Format != "" {
		m["format"] = s.Format
	}
	if s.Default != nil {
		m["default"] = s.Default
	}
	return m
}

// geminiMetaKeywords are JSON Schema keywords Gemini's controlled generation
// does not understand.
var geminiMetaKeywords = map[string]bool{
	"$schema":     true,
	"$id":         true,
	"definitions": true,
	"$defs":       true,
}

// StripMeta returns a copy of a map-form schema with meta-keywords removed
// recursively. It operates on the map form because providers receive schemas
// after conversion via ToMap.
func StripMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if geminiMetaKeywords[k] {
			continue
		}
		switch child := v.(type) {
		case map[string]any:
			out[k] = StripMeta(child)
		case []any:
			items := make([]any, len(child))
			for i, item := range child {
				if im, ok := item.(map[string]any); ok {
					items[i] = StripMeta(im)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}
