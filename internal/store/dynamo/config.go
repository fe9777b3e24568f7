package dynamo

import (
	"replicator/internal/config"
)

// StoreConfig holds configuration for the DynamoDB job store.
type StoreConfig struct {
	Table string // Job table name
}

// LoadConfigFromEnv loads store configuration from environment variables.
func LoadConfigFromEnv() StoreConfig {
	return StoreConfig{
		Table: config.GetEnv("JOBS_TABLE", "replication-jobs"),
	}
}
