package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/sluice/types"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `source: ./records.mpk
keep:
  - item
  - checkpoint

batch:
  flush_count: 100
  flush_interval: 2s

storage:
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

adapter:
  type: webhook
  url: https://hooks.example.com/sluice
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Top-level fields
	assertEqual(t, "source", cfg.Source, "./records.mpk")
	if len(cfg.Keep) != 2 || cfg.Keep[0] != "item" || cfg.Keep[1] != "checkpoint" {
		t.Errorf("unexpected keep list: %v", cfg.Keep)
	}

	// Batch
	if cfg.Batch.FlushCount != 100 {
		t.Errorf("expected flush_count=100, got %d", cfg.Batch.FlushCount)
	}
	if cfg.Batch.FlushInterval.Duration != 2*time.Second {
		t.Errorf("expected flush_interval=2s, got %v", cfg.Batch.FlushInterval.Duration)
	}

	// Storage
	assertEqual(t, "storage.backend", cfg.Storage.Backend, "s3")
	assertEqual(t, "storage.path", cfg.Storage.Path, "my-bucket/prefix")
	assertEqual(t, "storage.region", cfg.Storage.Region, "us-east-1")
	assertEqual(t, "storage.endpoint", cfg.Storage.Endpoint, "https://example.com")
	if !cfg.Storage.S3PathStyle {
		t.Error("expected storage.s3_path_style=true")
	}

	// Adapter
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/sluice")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization header")
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("expected empty source, got %q", cfg.Source)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/sluice.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SOURCE", "expanded-source")

	yaml := `source: ${TEST_SOURCE}`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "source", cfg.Source, "expanded-source")
}

func TestKeepKinds_Conversion(t *testing.T) {
	cfg := &Config{Keep: []string{"item", "log"}}

	kinds, err := cfg.KeepKinds()
	if err != nil {
		t.Fatalf("KeepKinds failed: %v", err)
	}
	if len(kinds) != 2 {
		t.Fatalf("expected 2 kinds, got %d", len(kinds))
	}
	if kinds[0] != types.RecordKindItem || kinds[1] != types.RecordKindLog {
		t.Errorf("unexpected kinds: %v", kinds)
	}
}

func TestKeepKinds_Empty(t *testing.T) {
	cfg := &Config{}
	kinds, err := cfg.KeepKinds()
	if err != nil {
		t.Fatalf("KeepKinds failed: %v", err)
	}
	if kinds != nil {
		t.Errorf("expected nil for empty keep list, got %v", kinds)
	}
}

func TestKeepKinds_UnknownKind(t *testing.T) {
	cfg := &Config{Keep: []string{"item", "bogus"}}
	_, err := cfg.KeepKinds()
	if err == nil {
		t.Fatal("expected error for unknown record kind")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("error should mention the unknown kind, got: %v", err)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `source: ./records.mpk
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `storage:
  backend: file
  path: ./data
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_WhitespaceOnlyConfig(t *testing.T) {
	path := writeTemp(t, "   \n  \n  \n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for whitespace-only config: %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("expected empty source, got %q", cfg.Source)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	path := writeTemp(t, "# This is a comment\n# Another comment\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for comments-only config: %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("expected empty source, got %q", cfg.Source)
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	// retries: 0 should parse as *int(0), not nil.
	yaml := `adapter:
  type: webhook
  url: https://example.com
  retries: 0
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil {
		t.Fatal("expected retries to be non-nil (*int(0)), got nil")
	}
	if *cfg.Adapter.Retries != 0 {
		t.Errorf("expected retries=0, got %d", *cfg.Adapter.Retries)
	}
}

func TestLoad_RetriesOmittedIsNil(t *testing.T) {
	// Omitting retries should leave the pointer nil.
	yaml := `adapter:
  type: webhook
  url: https://example.com
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected retries to be nil, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	yaml := `adapter:
  timeout: not-a-duration
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error should mention invalid duration, got: %v", err)
	}
}

func TestDuration_EmptyIsZero(t *testing.T) {
	yaml := `adapter:
  type: webhook
  url: https://example.com
  timeout: ""
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Timeout.Duration != 0 {
		t.Errorf("expected zero duration, got %v", cfg.Adapter.Timeout.Duration)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	yaml := `timeout: 30s`
	path := writeTemp(t, "adapter:\n  "+yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Timeout.Duration != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.Adapter.Timeout.Duration)
	}
}

func TestLoad_RedisAdapterConfig(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379/0
  channel: sluice:pipe_completed
  timeout: 5s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "redis")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "redis://localhost:6379/0")
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "sluice:pipe_completed")
	if cfg.Adapter.Timeout.Duration != 5*time.Second {
		t.Errorf("expected adapter.timeout=5s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
}

func TestLoad_RedisAdapterChannelOmitted(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379/0
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "redis")
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "")
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sluice.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
