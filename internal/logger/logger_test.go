package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func resetLogger() {
	Init(Options{})
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		logged     []string
		suppressed []string
	}{
		{"default level", Options{}, []string{"info", "warn", "error"}, []string{"debug"}},
		{"debug enabled", Options{Debug: true}, []string{"debug", "info", "warn", "error"}, nil},
		{"quiet", Options{Quiet: true}, []string{"error"}, []string{"debug", "info", "warn"}},
		{"quiet overrides debug", Options{Debug: true, Quiet: true}, []string{"error"}, []string{"debug", "info"}},
	}

	emit := map[string]func(string, ...any){
		"debug": Debug,
		"info":  Info,
		"warn":  Warn,
		"error": Error,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.opts.Output = buf
			Init(tt.opts)
			defer resetLogger()

			for level, fn := range emit {
				fn("message at " + level)
			}

			out := buf.String()
			for _, level := range tt.logged {
				if !strings.Contains(out, "message at "+level) {
					t.Errorf("%s should be logged", level)
				}
			}
			for _, level := range tt.suppressed {
				if strings.Contains(out, "message at "+level) {
					t.Errorf("%s should be suppressed", level)
				}
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{JSON: true, Output: buf})
	defer resetLogger()

	Info("json message", "count", 42)

	out := buf.String()
	if !strings.Contains(out, `"msg":"json message"`) {
		t.Errorf("expected JSON-encoded message, got %q", out)
	}
	if !strings.Contains(out, `"count":42`) {
		t.Errorf("expected structured attribute, got %q", out)
	}
}

func TestInitWithCustomLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	custom := slog.New(slog.NewTextHandler(buf, nil))
	Init(Options{Logger: custom, Quiet: true})
	defer resetLogger()

	Info("through custom logger")

	if !strings.Contains(buf.String(), "through custom logger") {
		t.Errorf("expected custom logger output, got %q", buf.String())
	}
}

func TestErrorContext(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	ErrorContext(context.Background(), "ctx error", "key", "v")

	out := buf.String()
	if !strings.Contains(out, "ctx error") || !strings.Contains(out, "key") {
		t.Errorf("expected context error with attributes, got %q", out)
	}
}
