package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_UsesPassServiceInternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	setEnvWithCleanup(t, "PASS_SERVICE_INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-only-key" {
		t.Fatalf("expected InternalAPIKey from alias env var, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_InternalAPIKeyTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "INTERNAL_API_KEY", "primary-key")
	setEnvWithCleanup(t, "PASS_SERVICE_INTERNAL_API_KEY", "alias-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "primary-key" {
		t.Fatalf("expected InternalAPIKey to prioritize INTERNAL_API_KEY, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "BULK_CHUNK_SIZE")
	unsetEnvWithCleanup(t, "BULK_CONCURRENCY")
	unsetEnvWithCleanup(t, "SCAN_PAGE_SIZE")
	unsetEnvWithCleanup(t, "DUE_SOON_WINDOW_DAYS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.BulkChunkSize != 500 {
		t.Fatalf("expected default BulkChunkSize 500, got %d", cfg.BulkChunkSize)
	}
	if cfg.BulkConcurrency != 8 {
		t.Fatalf("expected default BulkConcurrency 8, got %d", cfg.BulkConcurrency)
	}
	if cfg.ScanPageSize != 1000 {
		t.Fatalf("expected default ScanPageSize 1000, got %d", cfg.ScanPageSize)
	}
	if cfg.DueSoonWindowDays != 3 {
		t.Fatalf("expected default DueSoonWindowDays 3, got %d", cfg.DueSoonWindowDays)
	}
}

func TestLoadConfig_CoercesInvalidTuningValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "BULK_CHUNK_SIZE", "-5")
	setEnvWithCleanup(t, "BULK_CONCURRENCY", "0")
	setEnvWithCleanup(t, "DUE_SOON_WINDOW_DAYS", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.BulkChunkSize != 500 {
		t.Fatalf("expected coerced BulkChunkSize 500, got %d", cfg.BulkChunkSize)
	}
	if cfg.BulkConcurrency != 8 {
		t.Fatalf("expected coerced BulkConcurrency 8, got %d", cfg.BulkConcurrency)
	}
	if cfg.DueSoonWindowDays != 0 {
		t.Fatalf("expected coerced DueSoonWindowDays 0, got %d", cfg.DueSoonWindowDays)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9999")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9999" {
		t.Fatalf("expected PORT to override SERVER_PORT, got %q", cfg.ServerPort)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
