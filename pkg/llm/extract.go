package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON value out of free-form model text. Attempts, in
// order: a fenced code block, a bracket-delimited scan for the first
// top-level {...} or [...], then the raw text verbatim. The first candidate
// that parses wins.
func ExtractJSON(text string) (any, string, error) {
	candidates := []string{
		stripCodeFence(text),
		firstJSONValue(text),
		strings.TrimSpace(text),
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(c), &v); err == nil {
			return v, c, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no parseable JSON in response text", ErrMalformedResponse)
}

// stripCodeFence unwraps a ```json or ``` fenced block, returning "" when
// the text is not fenced.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return ""
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// firstJSONValue scans for the first balanced top-level object or array,
// skipping brackets inside string literals.
func firstJSONValue(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
