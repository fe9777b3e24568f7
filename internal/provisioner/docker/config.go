package docker

import (
	"strings"

	"replicator/internal/config"
)

// WorkerConfig holds the launch parameters for worker containers.
type WorkerConfig struct {
	Image      string   // Worker container image
	ExtraHosts []string // Extra /etc/hosts entries (e.g., ["minio.test:host-gateway"])
}

// LoadConfigFromEnv loads worker configuration from environment variables.
func LoadConfigFromEnv() WorkerConfig {
	var extraHosts []string
	if hosts := config.GetEnv("EXTRA_HOSTS", ""); hosts != "" {
		extraHosts = strings.Split(hosts, ",")
	}

	return WorkerConfig{
		Image:      config.GetEnv("WORKER_IMAGE", ""),
		ExtraHosts: extraHosts,
	}
}
