package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigSetsSensibleDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Storage.IndexedDriver != "memory" {
		t.Fatalf("expected default indexed driver memory, got %q", cfg.Storage.IndexedDriver)
	}
	if cfg.Routing.ShardCount != 64 {
		t.Fatalf("expected default shard count 64, got %d", cfg.Routing.ShardCount)
	}
	if cfg.Daemon.GRPCAddr != ":7190" {
		t.Fatalf("expected default grpc addr :7190, got %q", cfg.Daemon.GRPCAddr)
	}
}

func TestLoadFromFileOverridesOnlySpecifiedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"storage":{"indexed_driver":"redis","redis_addr":"redis:6379"},"routing":{"shard_count":8}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Storage.IndexedDriver != "redis" {
		t.Fatalf("expected indexed driver redis, got %q", cfg.Storage.IndexedDriver)
	}
	if cfg.Storage.RedisAddr != "redis:6379" {
		t.Fatalf("expected redis addr redis:6379, got %q", cfg.Storage.RedisAddr)
	}
	if cfg.Routing.ShardCount != 8 {
		t.Fatalf("expected shard count 8, got %d", cfg.Routing.ShardCount)
	}
	// Fields absent from the override document keep DefaultConfig's value.
	if cfg.Daemon.GRPCAddr != ":7190" {
		t.Fatalf("expected unmodified grpc addr to stay at default, got %q", cfg.Daemon.GRPCAddr)
	}
}

func TestLoadFromFileMissingFileFails(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error loading a missing config file")
	}
}

func TestLoadFromEnvAppliesOverrides(t *testing.T) {
	t.Setenv("WORKEREXEC_GRPC_ADDR", ":9999")
	t.Setenv("WORKEREXEC_SHARD_COUNT", "16")
	t.Setenv("WORKEREXEC_RETRY_BACKOFF", "250ms")
	t.Setenv("WORKEREXEC_TRACING_ENABLED", "true")
	t.Setenv("WORKEREXEC_METRICS_NAMESPACE", "custom_ns")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Daemon.GRPCAddr != ":9999" {
		t.Fatalf("expected overridden grpc addr :9999, got %q", cfg.Daemon.GRPCAddr)
	}
	if cfg.Routing.ShardCount != 16 {
		t.Fatalf("expected overridden shard count 16, got %d", cfg.Routing.ShardCount)
	}
	if cfg.Routing.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("expected overridden retry backoff 250ms, got %v", cfg.Routing.RetryBackoff)
	}
	if !cfg.Observability.Tracing.Enabled {
		t.Fatal("expected tracing to be enabled by WORKEREXEC_TRACING_ENABLED=true")
	}
	if cfg.Observability.Metrics.Namespace != "custom_ns" {
		t.Fatalf("expected overridden metrics namespace custom_ns, got %q", cfg.Observability.Metrics.Namespace)
	}
}

func TestLoadFromEnvIgnoresInvalidNumericOverrides(t *testing.T) {
	t.Setenv("WORKEREXEC_SHARD_COUNT", "not-a-number")

	cfg := DefaultConfig()
	want := cfg.Routing.ShardCount
	LoadFromEnv(cfg)

	if cfg.Routing.ShardCount != want {
		t.Fatalf("expected an unparsable override to leave the default %d untouched, got %d", want, cfg.Routing.ShardCount)
	}
}

func TestParseBoolAcceptsCommonSpellings(t *testing.T) {
	cases := map[string]bool{
		"true": true, "1": true, "yes": true, "TRUE": true,
		"false": false, "0": false, "no": false, "": false,
	}
	for in, want := range cases {
		if got := parseBool(in); got != want {
			t.Errorf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
}
