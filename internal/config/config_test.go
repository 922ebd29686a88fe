package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PROJECT_NAME", "LISTEN_ADDR", "STORAGE_BACKEND", "REDIS_URL", "DYNAMO_TABLE", "S3_BUCKET", "GCS_BUCKET", "FIRESTORE_DATABASE", "SWEEP_INTERVAL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ProjectName != "Drop" {
		t.Errorf("ProjectName = %q, want Drop", cfg.ProjectName)
	}
	if cfg.ListenAddr != ":8081" {
		t.Errorf("ListenAddr = %q, want :8081", cfg.ListenAddr)
	}
	if cfg.ClientIPHeader != "X-Real-IP" {
		t.Errorf("ClientIPHeader = %q, want X-Real-IP", cfg.ClientIPHeader)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want 1m", cfg.SweepInterval)
	}
	if cfg.Storage.AWSRegion != "us-east-1" {
		t.Errorf("AWSRegion = %q, want us-east-1", cfg.Storage.AWSRegion)
	}
	if cfg.Storage.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.Storage.DataDir)
	}
	if b, _ := cfg.Storage.ResolveBackend(); b != BackendSQLite {
		t.Errorf("ResolveBackend() = %q, want %q", b, BackendSQLite)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PROJECT_NAME", "Vault")
	t.Setenv("RATE_LIMIT", "5")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("STORAGE_BACKEND", "bolt")
	t.Setenv("DATA_DIR", "/tmp/x")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProjectName != "Vault" || cfg.RateLimit != 5 || cfg.SweepInterval != 30*time.Second {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.Storage.Backend != BackendBolt || cfg.Storage.DataDir != "/tmp/x" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "STORAGE_BACKEND", "mongo"},
		{"bad duration", "SWEEP_INTERVAL", "soon"},
		{"negative interval", "SWEEP_INTERVAL", "-1s"},
		{"bad rate", "RATE_LIMIT", "fast"},
		{"negative rate", "RATE_LIMIT", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q expected error", tt.key, tt.val)
			}
		})
	}
}

func TestResolveBackend(t *testing.T) {
	tests := []struct {
		name string
		cfg  StorageConfig
		want string
	}{
		{"explicit wins", StorageConfig{Backend: "file", RedisURL: "redis://x"}, BackendFile},
		{"redis", StorageConfig{RedisURL: "redis://x", DynamoTable: "t"}, BackendRedis},
		{"dynamo", StorageConfig{DynamoTable: "t", S3Bucket: "b"}, BackendDynamo},
		{"s3", StorageConfig{S3Bucket: "b", GCSBucket: "g"}, BackendS3},
		{"firestore", StorageConfig{FirestoreDatabase: "d", GCPProjectID: "p", GCSBucket: "g"}, BackendFirestore},
		{"firestore needs project", StorageConfig{FirestoreDatabase: "d", GCSBucket: "g"}, BackendGCS},
		{"gcs", StorageConfig{GCSBucket: "g"}, BackendGCS},
		{"fallback", StorageConfig{}, BackendSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveBackend()
			if err != nil {
				t.Fatalf("ResolveBackend() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveBackend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadStorageConfig_Prefix(t *testing.T) {
	t.Setenv("SOURCE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DEST_STORAGE_BACKEND", "file")
	t.Setenv("DEST_DATA_DIR", "/srv/drop")

	src, err := LoadStorageConfig("SOURCE_")
	if err != nil {
		t.Fatalf("LoadStorageConfig(SOURCE_) error = %v", err)
	}
	if b, _ := src.ResolveBackend(); b != BackendRedis {
		t.Errorf("source backend = %q, want redis", b)
	}

	dst, err := LoadStorageConfig("DEST_")
	if err != nil {
		t.Fatalf("LoadStorageConfig(DEST_) error = %v", err)
	}
	if dst.Backend != BackendFile || dst.DataDir != "/srv/drop" {
		t.Errorf("dest = %+v", dst)
	}
	if dst.S3Prefix != "records/" {
		t.Errorf("dest S3Prefix = %q, want default", dst.S3Prefix)
	}
}
