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

package cloudstorage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// FileClient stores objects on the local filesystem under a base path.
// Bucket names become subdirectories. It is intended for tests and local runs.
type FileClient struct {
	base string
}

// NewFileClient returns a client rooted at base.
func NewFileClient(base string) *FileClient {
	return &FileClient{base: base}
}

// Path returns the filesystem location of bucket/key.
func (c *FileClient) Path(bucket, key string) string {
	return filepath.Join(c.base, bucket, filepath.FromSlash(key))
}

// UploadObject copies a local file into the bucket/key location.
func (c *FileClient) UploadObject(ctx context.Context, bucket, key, sourceFilename string) error {
	dst := c.Path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	src, err := os.Open(sourceFilename)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	n, err := io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	recordUpload(ctx, ProviderFile, bucket, n)
	return nil
}

// DeleteObject removes the file at bucket/key if it exists.
func (c *FileClient) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := os.Remove(c.Path(bucket, key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteObjects removes multiple files at bucket/key locations
// File system doesn't have native batch delete, so we mimic it with individual calls
func (c *FileClient) DeleteObjects(ctx context.Context, bucket string, keys []string) ([]string, error) {
	var failed []string
	for _, key := range keys {
		if err := c.DeleteObject(ctx, bucket, key); err != nil {
			failed = append(failed, key)
		}
	}
	return failed, nil
}

// URL returns a file:// URL for bucket/key.
func (c *FileClient) URL(bucket, key string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(c.Path(bucket, key))}
	return u.String()
}
