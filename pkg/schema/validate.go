package schema

import "fmt"

// ValidationError describes one mismatch between a value and the schema.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks a decoded JSON value against the schema and returns all
// mismatches found. A nil return means the value conforms.
func Validate(s *JSONSchema, value any) []ValidationError {
	return validateValue(s, value, "")
}

func validateValue(s *JSONSchema, value any, path string) []ValidationError {
	if value == nil {
		return nil
	}

	var errs []ValidationError
	fail := func(format string, args ...any) {
		field := path
		if field == "" {
			field = "(root)"
		}
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Value: value})
	}

	switch s.EffectiveType() {
	case TypeString:
		if _, ok := value.(string); !ok {
			fail("expected string, got %T", value)
		}
	case TypeNumber, TypeInteger:
		switch value.(type) {
		case int, int64, float64:
			// JSON numbers decode as float64; accept native ints too.
		default:
			fail("expected %s, got %T", s.EffectiveType(), value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			fail("expected boolean, got %T", value)
		}
	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			fail("expected array, got %T", value)
			break
		}
		if s.Items != nil {
			for i, item := range arr {
				errs = append(errs, validateValue(s.Items, item, fmt.Sprintf("%s[%d]", path, i))...)
			}
		}
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			fail("expected object, got %T", value)
			break
		}
		for _, name := range s.Required {
			if _, present := obj[name]; !present {
				errs = append(errs, ValidationError{Field: joinPath(path, name), Message: "required field is missing"})
			}
		}
		for i := range s.Properties {
			name := s.Properties[i].Name
			if v, present := obj[name]; present {
				errs = append(errs, validateValue(&s.Properties[i].Schema, v, joinPath(path, name))...)
			}
		}
	}

	return errs
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
