// Package config loads cmd/meshstored's environment-variable
// configuration into a small typed loader.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Config holds everything the host daemon needs to start.
type Config struct {
	NodeID    string
	HTTPAddr  string
	GRPCAddr  string
	NATSURL   string

	SyncIntervalMs int
	SyncBatchSize  int
	GossipFanout   int

	MaxTrackedPatterns int
	StatsTTL           time.Duration
	AutoIndexThreshold int64
	MaxIndexes         int
}

// Load reads every setting from the environment, applying a sensible
// default where a variable is unset.
func Load() Config {
	return Config{
		NodeID:   getEnv("MESHSTORE_NODE_ID", "node-"+uuid.NewString()),
		HTTPAddr: getEnv("MESHSTORE_HTTP_ADDR", ":8080"),
		GRPCAddr: getEnv("MESHSTORE_GRPC_ADDR", ":9090"),
		NATSURL:  getEnv("MESHSTORE_NATS_URL", ""),

		SyncIntervalMs: getEnvInt("MESHSTORE_SYNC_INTERVAL_MS", 5000),
		SyncBatchSize:  getEnvInt("MESHSTORE_SYNC_BATCH_SIZE", 256),
		GossipFanout:   getEnvInt("MESHSTORE_GOSSIP_FANOUT", 3),

		MaxTrackedPatterns: getEnvInt("MESHSTORE_MAX_TRACKED_PATTERNS", 1000),
		StatsTTL:           getEnvDuration("MESHSTORE_STATS_TTL", 24*time.Hour),
		AutoIndexThreshold: int64(getEnvInt("MESHSTORE_AUTO_INDEX_THRESHOLD", 100)),
		MaxIndexes:         getEnvInt("MESHSTORE_MAX_INDEXES", 32),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
