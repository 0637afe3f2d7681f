package storage

import (
	"fmt"

	"github.com/faultmaven/evidence-service/internal/config"
)

// New selects and constructs the storage Provider named by configuration.
// Called exactly once during startup; the returned Provider is shared by all
// requests and injected wherever storage access is needed. Tests construct
// providers directly instead of resetting shared state.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.StorageProvider {
	case "", config.StorageLocal:
		return NewLocal(cfg.StorageLocalPath)
	case config.StorageS3:
		return NewS3(S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown storage provider %q (want %q or %q)",
			cfg.StorageProvider, config.StorageLocal, config.StorageS3)
	}
}
