package core

import (
	"context"
	"testing"
)

func TestResolveConfigLayersRuntimeOverConfig(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticRawConfigLoader(map[string]any{
		"service_name": "from-config",
		"signature": map[string]any{
			"header":            "X-Config-Signature",
			"tolerance_seconds": 120,
		},
	}))

	runtime := Config{
		Signature: SignatureConfig{
			Header: "X-Runtime-Signature",
		},
	}

	resolved, err := ResolveConfig(context.Background(), provider, runtime)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if resolved.ServiceName != "from-config" {
		t.Fatalf("expected config layer service name, got %q", resolved.ServiceName)
	}
	if resolved.Signature.Header != "X-Runtime-Signature" {
		t.Fatalf("expected runtime layer to win header, got %q", resolved.Signature.Header)
	}
	if resolved.Signature.ToleranceSeconds != 120 {
		t.Fatalf("expected config tolerance 120, got %d", resolved.Signature.ToleranceSeconds)
	}
	if resolved.Dedup.StaleProcessingSeconds != 60 {
		t.Fatalf("expected default stale threshold to fill, got %d", resolved.Dedup.StaleProcessingSeconds)
	}
}

func TestResolveConfigDefaultsWhenProviderNil(t *testing.T) {
	resolved, err := ResolveConfig(context.Background(), nil, Config{})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if resolved.ServiceName != "webhook-ingest" {
		t.Fatalf("expected default service name, got %q", resolved.ServiceName)
	}
}

func TestResolveConfigRejectsInvalidMerge(t *testing.T) {
	runtime := Config{
		Signature: SignatureConfig{
			ToleranceSeconds: -10,
		},
	}
	if _, err := ResolveConfig(context.Background(), nil, runtime); err == nil {
		t.Fatalf("expected invalid tolerance to fail resolution")
	}
}
