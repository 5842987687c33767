package config

import (
	"os"
	"testing"
	"time"
)

func clearMeshstoreEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MESHSTORE_NODE_ID", "MESHSTORE_HTTP_ADDR", "MESHSTORE_GRPC_ADDR",
		"MESHSTORE_NATS_URL", "MESHSTORE_SYNC_INTERVAL_MS", "MESHSTORE_SYNC_BATCH_SIZE",
		"MESHSTORE_GOSSIP_FANOUT", "MESHSTORE_MAX_TRACKED_PATTERNS", "MESHSTORE_STATS_TTL",
		"MESHSTORE_AUTO_INDEX_THRESHOLD", "MESHSTORE_MAX_INDEXES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearMeshstoreEnv(t)
	cfg := Load()
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
		t.Fatalf("unexpected default addrs: %+v", cfg)
	}
	if cfg.SyncIntervalMs != 5000 || cfg.SyncBatchSize != 256 || cfg.GossipFanout != 3 {
		t.Fatalf("unexpected default sync settings: %+v", cfg)
	}
	if cfg.MaxTrackedPatterns != 1000 || cfg.StatsTTL != 24*time.Hour {
		t.Fatalf("unexpected default adaptive settings: %+v", cfg)
	}
	if cfg.AutoIndexThreshold != 100 || cfg.MaxIndexes != 32 {
		t.Fatalf("unexpected default autoindex settings: %+v", cfg)
	}
	if cfg.NodeID == "" {
		t.Fatalf("expected a generated default NodeID")
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	clearMeshstoreEnv(t)
	t.Setenv("MESHSTORE_NODE_ID", "node-fixed")
	t.Setenv("MESHSTORE_HTTP_ADDR", ":9999")
	t.Setenv("MESHSTORE_SYNC_INTERVAL_MS", "1500")
	t.Setenv("MESHSTORE_STATS_TTL", "1h")

	cfg := Load()
	if cfg.NodeID != "node-fixed" {
		t.Fatalf("expected overridden NodeID, got %q", cfg.NodeID)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("expected overridden HTTPAddr, got %q", cfg.HTTPAddr)
	}
	if cfg.SyncIntervalMs != 1500 {
		t.Fatalf("expected overridden SyncIntervalMs, got %d", cfg.SyncIntervalMs)
	}
	if cfg.StatsTTL != time.Hour {
		t.Fatalf("expected overridden StatsTTL, got %v", cfg.StatsTTL)
	}
}

func TestGetEnvIntFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("MESHSTORE_TEST_INT", "not-a-number")
	if got := getEnvInt("MESHSTORE_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback default 7, got %d", got)
	}
	os.Unsetenv("MESHSTORE_TEST_INT")
}

func TestGetEnvDurationFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("MESHSTORE_TEST_DURATION", "not-a-duration")
	if got := getEnvDuration("MESHSTORE_TEST_DURATION", 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("expected fallback default 5m, got %v", got)
	}
	os.Unsetenv("MESHSTORE_TEST_DURATION")
}
