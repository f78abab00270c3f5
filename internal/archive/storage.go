// Package archive exports audit records to durable storage.
package archive

import (
	"context"
	"errors"
	"fmt"

	"onboardline/internal/config"
)

var ErrNotFound = errors.New("archive object not found")

// Storage is a flat object store addressed by slash-separated paths.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open builds the storage named by cfg.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		dir := cfg.BaseDir
		if dir == "" {
			dir = ".onboardline/archive"
		}
		return NewLocalStorage(dir)
	case "s3":
		return NewS3Storage(ctx, cfg.Bucket, cfg.Prefix, cfg.Region)
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}
