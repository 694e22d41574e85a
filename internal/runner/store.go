package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bit2swaz/tmpsweep/internal/config"
	"github.com/bit2swaz/tmpsweep/pkg/storage"
	"github.com/bit2swaz/tmpsweep/pkg/storage/local"
	"github.com/bit2swaz/tmpsweep/pkg/storage/s3"
)

// OpenStore builds the storage driver named in cfg. logger may be nil.
func OpenStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "local", "":
		return local.New(cfg.Local.Path)
	case "s3":
		return s3.New(ctx, s3.Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccountID:       cfg.S3.AccountID,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			Logger:          logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
