package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/nckslvrmn/drop/internal/config"
	"github.com/nckslvrmn/drop/internal/storage/provider/aws"
	"github.com/nckslvrmn/drop/internal/storage/provider/gcp"
	"github.com/nckslvrmn/drop/internal/storage/provider/local"
	"github.com/nckslvrmn/drop/internal/storage/provider/redis"
	"github.com/nckslvrmn/drop/internal/storage/types"
)

// New builds the store selected by cfg. The caller closes it when it
// implements io.Closer.
func New(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (types.Store, error) {
	backend, err := cfg.ResolveBackend()
	if err != nil {
		return nil, err
	}

	switch backend {
	case config.BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis backend requires REDIS_URL")
		}
		logger.Info("Initializing Redis storage provider")
		return redis.NewRedisStore(cfg.RedisURL)

	case config.BackendDynamo:
		if cfg.DynamoTable == "" {
			return nil, fmt.Errorf("dynamo backend requires DYNAMO_TABLE")
		}
		logger.Infof("Initializing DynamoDB storage provider (table %s)", cfg.DynamoTable)
		return aws.NewDynamoStore(ctx, cfg.AWSRegion, cfg.DynamoTable)

	case config.BackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 backend requires S3_BUCKET")
		}
		logger.Infof("Initializing S3 storage provider (bucket %s)", cfg.S3Bucket)
		return aws.NewS3Store(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)

	case config.BackendFirestore:
		if cfg.GCPProjectID == "" || cfg.FirestoreDatabase == "" {
			return nil, fmt.Errorf("firestore backend requires GCP_PROJECT_ID and FIRESTORE_DATABASE")
		}
		logger.Infof("Initializing Firestore storage provider (database %s)", cfg.FirestoreDatabase)
		store, err := gcp.NewFirestoreStore(ctx, cfg.GCPProjectID, cfg.FirestoreDatabase, cfg.FirestoreCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firestore: %w", err)
		}
		return store, nil

	case config.BackendGCS:
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("gcs backend requires GCS_BUCKET")
		}
		logger.Infof("Initializing GCS storage provider (bucket %s)", cfg.GCSBucket)
		return gcp.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSPrefix)

	case config.BackendBolt:
		return local.NewBoltStore(cfg.DataDir)

	case config.BackendFile:
		return local.NewFileStore(cfg.DataDir)

	default:
		return local.NewSQLiteStore(cfg.DataDir)
	}
}

// RunSweeper purges expired records every interval until ctx is done.
// Reads never depend on it; it only reclaims space on backends without
// native expiry.
func RunSweeper(ctx context.Context, purger types.Purger, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			Sweep(ctx, purger, logger)
		}
	}
}

// Sweep runs a single purge pass and returns the number of records removed.
func Sweep(ctx context.Context, purger types.Purger, logger *log.Logger) int64 {
	n, err := purger.Purge(ctx)
	if err != nil {
		logger.Warnf("Sweep failed: %v", err)
		return n
	}
	if n > 0 {
		logger.Infof("Swept %d expired records", n)
	}
	return n
}
