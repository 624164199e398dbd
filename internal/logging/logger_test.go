package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	logger.Info("import finished", "rows", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "import finished" {
		t.Errorf("msg = %v, want %q", entry["msg"], "import finished")
	}
	if entry["rows"] != float64(3) {
		t.Errorf("rows = %v, want 3", entry["rows"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestNew_ColorFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "color").Debug("colored")
	if !strings.Contains(buf.String(), "colored") {
		t.Errorf("color handler dropped message: %q", buf.String())
	}
}

func TestFromContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "json"))
	defer slog.SetDefault(prev)

	var captured context.Context
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Context()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	FromContext(captured).Info("hello")
	if !strings.Contains(buf.String(), `"request_id"`) {
		t.Errorf("expected request_id in log output: %q", buf.String())
	}
}
