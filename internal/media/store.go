package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Options selects and configures the image backend.
type Options struct {
	Backend    string
	Fallback   bool
	Cloudinary CloudinaryConfig
	S3         S3Config
}

// New builds the configured Store. With Fallback set, hosted backends fall
// back to inline data URLs when an upload fails.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	var primary Store
	switch strings.ToLower(opts.Backend) {
	case "", "dataurl":
		return DataURLStore{}, nil
	case "cloudinary":
		store, err := NewCloudinaryStore(opts.Cloudinary, logger)
		if err != nil {
			return nil, err
		}
		primary = store
	case "s3":
		store, err := NewS3Store(ctx, opts.S3, logger)
		if err != nil {
			return nil, err
		}
		primary = store
	default:
		return nil, fmt.Errorf("unknown image backend %q", opts.Backend)
	}
	if opts.Fallback {
		return NewFallbackStore(primary, DataURLStore{}, logger), nil
	}
	return primary, nil
}
