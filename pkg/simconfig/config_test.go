package simconfig

import (
	"path/filepath"
	"testing"
)

func TestLoadCreatesEmptyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Contexts) != 0 {
		t.Fatalf("expected no contexts in a fresh config")
	}
	if cfg.Path() != path {
		t.Fatalf("expected path %s, got %s", path, cfg.Path())
	}
}

func TestAddUseResolveContextRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dev := Default()
	dev.ClientID = "dev-001"
	if err := cfg.AddContext("dev", dev); err != nil {
		t.Fatalf("AddContext: %v", err)
	}
	if err := cfg.UseContext("dev"); err != nil {
		t.Fatalf("UseContext: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.CurrentContext != "dev" {
		t.Fatalf("expected current context dev, got %q", reloaded.CurrentContext)
	}
	ctx, err := reloaded.ResolveContext("")
	if err != nil {
		t.Fatalf("ResolveContext: %v", err)
	}
	if ctx.ClientID != "dev-001" {
		t.Fatalf("expected client id dev-001, got %q", ctx.ClientID)
	}
}

func TestDeleteContextClearsCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.AddContext("dev", Default()); err != nil {
		t.Fatalf("AddContext: %v", err)
	}
	if err := cfg.UseContext("dev"); err != nil {
		t.Fatalf("UseContext: %v", err)
	}
	if err := cfg.DeleteContext("dev"); err != nil {
		t.Fatalf("DeleteContext: %v", err)
	}
	if cfg.CurrentContext != "" {
		t.Fatalf("expected current context cleared after delete")
	}
}

func TestResolveContextErrorsWithNoCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.ResolveContext(""); err == nil {
		t.Fatalf("expected error resolving with no current context")
	}
}
