package config

import "testing"

type testEnv struct {
	Addr    string `env:"FAIRPLANE_TEST_ADDR"`
	Retries int    `env:"FAIRPLANE_TEST_RETRIES" envDefault:"3"`
}

func TestParseEnvReadsValues(t *testing.T) {
	t.Setenv("FAIRPLANE_TEST_ADDR", ":8080")

	var cfg testEnv
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Addr)
	}
	if cfg.Retries != 3 {
		t.Fatalf("expected default 3, got %d", cfg.Retries)
	}
}

func TestParseEnvRejectsNonPointer(t *testing.T) {
	var cfg testEnv
	if err := ParseEnv(cfg); err == nil {
		t.Fatal("expected error for non-pointer target")
	}
}
