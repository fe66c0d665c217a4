// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package cloudstorage uploads finished data files to object storage.
package cloudstorage

import (
	"context"
	"errors"
	"fmt"
)

// Client provides a unified interface for object storage operations across providers
type Client interface {
	// UploadObject uploads a local file to bucket/key
	UploadObject(ctx context.Context, bucket, key, sourceFilename string) error

	// DeleteObject deletes an object; deleting a missing object is not an error
	DeleteObject(ctx context.Context, bucket, key string) error

	// DeleteObjects deletes multiple objects and returns the keys that could not be deleted
	DeleteObjects(ctx context.Context, bucket string, keys []string) ([]string, error)

	// URL returns the location recorded in data file entries for bucket/key
	URL(bucket, key string) string
}

const (
	ProviderFile = "file"
	ProviderAWS  = "aws"
)

// Config selects and configures the storage provider.
type Config struct {
	// Provider is "file" or "aws". Empty selects "aws".
	Provider string `mapstructure:"provider"`

	// BaseDir is the root directory for the file provider; buckets become subdirectories.
	BaseDir string `mapstructure:"base_dir"`

	S3 S3Config `mapstructure:"s3"`
}

// NewClient creates a storage client for cfg.Provider.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderAWS, "":
		return NewS3Client(ctx, cfg.S3)
	case ProviderFile:
		if cfg.BaseDir == "" {
			return nil, errors.New("file storage provider requires base_dir")
		}
		return NewFileClient(cfg.BaseDir), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}
