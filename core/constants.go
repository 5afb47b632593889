package core

import "time"

// Environment Variables
const (
	EnvRedisURL  = "REDIS_URL"        // Redis connection URL for the primary store
	EnvNamespace = "NAMESPACE"        // Kubernetes namespace for environment isolation
	EnvDevMode   = "GOMIND_DEV_MODE"  // Development mode flag
)

// Redis Key Defaults
const (
	// DefaultRedisPrefix namespaces every key the orchestrator writes to
	// Redis. Format: <prefix><namespace>:<key>
	// Example: orchestrator:sessions:a1b2c3d4
	DefaultRedisPrefix = "orchestrator:"

	// DefaultCatalogCacheTTL is a cache lifetime for the model catalog's
	// capability table. catalog.Registry keeps its table in memory and
	// does not read this constant.
	DefaultCatalogCacheTTL = 1 * time.Hour
)
