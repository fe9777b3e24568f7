package ec2

import (
	"replicator/internal/config"
)

// WorkerConfig holds the launch parameters for replication worker instances.
type WorkerConfig struct {
	AMIID        string // Worker machine image
	InstanceType string
	IAMRole      string // Instance profile granting source/target access
}

// LoadConfigFromEnv loads worker configuration from environment variables.
func LoadConfigFromEnv() WorkerConfig {
	return WorkerConfig{
		AMIID:        config.GetEnv("WORKER_AMI_ID", ""),
		InstanceType: config.GetEnv("WORKER_INSTANCE_TYPE", "c5.2xlarge"),
		IAMRole:      config.GetEnv("WORKER_IAM_ROLE", "replication-worker"),
	}
}
