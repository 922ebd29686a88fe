package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	BackendRedis     = "redis"
	BackendDynamo    = "dynamo"
	BackendS3        = "s3"
	BackendFirestore = "firestore"
	BackendGCS       = "gcs"
	BackendSQLite    = "sqlite"
	BackendBolt      = "bolt"
	BackendFile      = "file"
)

var backends = []string{
	BackendRedis, BackendDynamo, BackendS3, BackendFirestore,
	BackendGCS, BackendSQLite, BackendBolt, BackendFile,
}

type StorageConfig struct {
	Backend string `env:"STORAGE_BACKEND"`

	RedisURL string `env:"REDIS_URL"`

	AWSRegion   string `env:"AWS_REGION" envDefault:"us-east-1"`
	DynamoTable string `env:"DYNAMO_TABLE"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3Prefix    string `env:"S3_PREFIX" envDefault:"records/"`

	GCPProjectID        string `env:"GCP_PROJECT_ID"`
	FirestoreDatabase   string `env:"FIRESTORE_DATABASE"`
	FirestoreCollection string `env:"FIRESTORE_COLLECTION" envDefault:"records"`
	GCSBucket           string `env:"GCS_BUCKET"`
	GCSPrefix           string `env:"GCS_PREFIX" envDefault:"records/"`

	DataDir string `env:"DATA_DIR" envDefault:"./data"`
}

// LoadStorageConfig reads the storage variables, each name prefixed with
// prefix (for example "SOURCE_REDIS_URL").
func LoadStorageConfig(prefix string) (*StorageConfig, error) {
	var cfg StorageConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.ResolveBackend(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveBackend returns the explicit backend, or the first one whose
// settings are present, falling back to SQLite.
func (s StorageConfig) ResolveBackend() (string, error) {
	if s.Backend != "" {
		for _, b := range backends {
			if s.Backend == b {
				return b, nil
			}
		}
		return "", fmt.Errorf("unknown storage backend %q", s.Backend)
	}

	switch {
	case s.RedisURL != "":
		return BackendRedis, nil
	case s.DynamoTable != "":
		return BackendDynamo, nil
	case s.S3Bucket != "":
		return BackendS3, nil
	case s.FirestoreDatabase != "" && s.GCPProjectID != "":
		return BackendFirestore, nil
	case s.GCSBucket != "":
		return BackendGCS, nil
	default:
		return BackendSQLite, nil
	}
}
