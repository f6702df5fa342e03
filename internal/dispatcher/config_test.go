package dispatcher

import (
	"testing"
	"time"
)

func TestMemoryConfig_WithDefaults(t *testing.T) {
	t.Parallel()
	cfg := MemoryConfig{}.withDefaults()

	if cfg.BufferSize != 1000 {
		t.Errorf("BufferSize = %d, expected 1000", cfg.BufferSize)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, expected 4", cfg.Workers)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v, expected 10s", cfg.HTTPTimeout)
	}
}

func TestMemoryConfig_WithDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := MemoryConfig{BufferSize: 50, Workers: 2, HTTPTimeout: time.Second}.withDefaults()

	if cfg.BufferSize != 50 || cfg.Workers != 2 || cfg.HTTPTimeout != time.Second {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CALLBACK_BUFFER_SIZE", "25")
	t.Setenv("CALLBACK_WORKERS", "3")
	t.Setenv("CALLBACK_HTTP_TIMEOUT", "2s")

	cfg := LoadConfigFromEnv()
	if cfg.BufferSize != 25 || cfg.Workers != 3 || cfg.HTTPTimeout != 2*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
