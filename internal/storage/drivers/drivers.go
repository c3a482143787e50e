// Package drivers selects storage backend constructors from configuration.
package drivers

import (
	"fmt"

	"github.com/fruitsalade/fruitsalade/organizer/internal/config"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage/local"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage/minio"
	s3backend "github.com/fruitsalade/fruitsalade/organizer/internal/storage/s3"
)

// FromConfig returns the local and object-store openers for cfg.
func FromConfig(cfg *config.Config) (storage.Drivers, error) {
	s3cfg := s3backend.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	}

	d := storage.Drivers{Local: local.Opener}
	switch cfg.ObjectStoreDriver {
	case "aws":
		d.Bucket = s3backend.Opener(s3cfg)
	case "minio":
		d.Bucket = minio.Opener(s3cfg)
	default:
		return storage.Drivers{}, fmt.Errorf("unknown object store driver: %s", cfg.ObjectStoreDriver)
	}
	return d, nil
}

// NewRouter builds a storage router for cfg.
func NewRouter(cfg *config.Config) (*storage.Router, error) {
	d, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.NewRouter(d), nil
}
