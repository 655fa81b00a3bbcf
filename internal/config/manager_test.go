package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
http:
  addr: ":9090"
upstream:
  url: "https://example.com/status"
  timeout: "5s"
poller:
  enabled: true
  spec: "@hourly"
  timezone: "Europe/Warsaw"
logging:
  level: "debug"
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Upstream.Timeout != "5s" {
		t.Fatalf("upstream.timeout = %q", cfg.Upstream.Timeout)
	}
	if cfg.Poller.Enabled == nil || !*cfg.Poller.Enabled {
		t.Fatal("poller.enabled not parsed as true")
	}
	if cfg.Poller.Timezone != "Europe/Warsaw" {
		t.Fatalf("poller.timezone = %q", cfg.Poller.Timezone)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"http":{"addr":":8081"},"logging":{"level":"info"}}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.HTTP.Addr != ":8081" {
		t.Fatalf("http.addr = %q", cfg.HTTP.Addr)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
http:
  addr: ":8080"
  definitely_not_a_field: true
`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"http":{"addr":":8080"}}{"extra":true}`)

	_, err := NewManager(path).Parse()
	if err == nil {
		t.Fatal("trailing data accepted")
	}
	if !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("error = %v, want trailing-data complaint", err)
	}
}

func TestLoadCommitsSnapshot(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `{"http":{"addr":":8080"}}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get() does not return the committed snapshot")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "1h30m", want: 90 * time.Minute},
		{raw: " 10s ", want: 10 * time.Second},
		{raw: "-5s", wantErr: true},
		{raw: "not-a-duration", wantErr: true},
	}
	for _, tt := range tests {
		d, err := ParseDurationField("test.field", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q) accepted", tt.raw)
			}
			continue
		}
		if err != nil || d != tt.want {
			t.Errorf("ParseDurationField(%q) = (%v, %v), want %v", tt.raw, d, err, tt.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("test.field", "", 15*time.Second)
	if err != nil || d != 15*time.Second {
		t.Fatalf("empty = (%v, %v), want default", d, err)
	}
	d, err = ParseDurationOrDefault("test.field", "2s", 15*time.Second)
	if err != nil || d != 2*time.Second {
		t.Fatalf("explicit = (%v, %v), want 2s", d, err)
	}
}
