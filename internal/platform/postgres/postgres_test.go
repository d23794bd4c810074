package postgres

import "testing"

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestConfigValidateRejectsBadPool(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	cfg.MaxIdleConns = cfg.MaxOpenConns + 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() expected error when idle > open")
	}
}

func TestConfigValidateRequiresURL(t *testing.T) {
	cfg := Config{PingTimeout: 1, MaxOpenConns: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() expected error for empty URL")
	}
}
