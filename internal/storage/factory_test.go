package storage

import (
	"path/filepath"
	"testing"

	"github.com/faultmaven/evidence-service/internal/config"
)

func TestFactorySelectsLocal(t *testing.T) {
	cfg := &config.Config{
		StorageProvider:  config.StorageLocal,
		StorageLocalPath: filepath.Join(t.TempDir(), "uploads"),
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := p.(*Local); !ok {
		t.Errorf("New(local) returned %T, want *Local", p)
	}
}

func TestFactoryDefaultsToLocal(t *testing.T) {
	cfg := &config.Config{StorageLocalPath: t.TempDir()}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := p.(*Local); !ok {
		t.Errorf("New with empty selector returned %T, want *Local", p)
	}
}

func TestFactorySelectsS3(t *testing.T) {
	cfg := &config.Config{
		StorageProvider: config.StorageS3,
		S3Bucket:        "evidence",
		S3Region:        "us-east-1",
		S3AccessKey:     "key",
		S3SecretKey:     "secret",
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := p.(*S3); !ok {
		t.Errorf("New(s3) returned %T, want *S3", p)
	}
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	if _, err := New(&config.Config{StorageProvider: "ftp"}); err == nil {
		t.Error("New with unknown provider succeeded, want error")
	}
}

func TestFactoryS3RequiresBucket(t *testing.T) {
	if _, err := New(&config.Config{StorageProvider: config.StorageS3}); err == nil {
		t.Error("New(s3) without bucket succeeded, want error")
	}
}
