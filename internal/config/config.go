// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the publish service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	DatabaseURL       string        // empty = in-memory job store (dev/tests)
	RedisURL          string        // empty = in-memory broadcaster
	PublicOrigin      string        // base URL used to build public media URLs
	ProviderTimeout   time.Duration // hard per-provider publish timeout
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	// A mounted secret file takes precedence over the plain env var.
	apiKey := GetSecretFile(GetEnv("API_KEY_FILE", ""))
	if apiKey == "" {
		apiKey = GetEnv("API_KEY", "")
	}
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            apiKey,
		DatabaseURL:       GetEnv("DATABASE_URL", ""),
		RedisURL:          GetEnv("REDIS_URL", ""),
		PublicOrigin:      GetEnv("PUBLIC_ORIGIN", "http://localhost:8080"),
		ProviderTimeout:   GetDurationEnv("PROVIDER_TIMEOUT", 30*time.Second),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
	}
}
