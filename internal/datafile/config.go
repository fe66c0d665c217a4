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

package datafile

import (
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/parquet/compress"
)

const (
	// NoRowLimitPerFile can be used as TargetFileRows to write every row a
	// writer receives into a single file.
	NoRowLimitPerFile = -1

	// DefaultTargetFileRows is the number of rows after which a file is rolled.
	DefaultTargetFileRows = 1_000_000

	// DefaultChunkSize is the maximum number of rows per parquet row group.
	DefaultChunkSize = 50000
)

// Config controls how data files are written and where they are uploaded.
type Config struct {
	// TmpDir is the directory where files are staged before upload.
	TmpDir string `mapstructure:"tmp_dir"`

	// Bucket and Prefix locate uploaded files: <Bucket>/<Prefix>/<id>.parquet.
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`

	// TargetFileRows is the most rows one file holds. Set to
	// NoRowLimitPerFile to disable rolling.
	TargetFileRows int64 `mapstructure:"target_file_rows"`

	// Compression is one of zstd, snappy, gzip, lz4 or none.
	Compression string `mapstructure:"compression"`

	// ChunkSize is the maximum row group length. If 0, uses DefaultChunkSize.
	ChunkSize int64 `mapstructure:"chunk_size"`
}

// DefaultConfig returns a config with every field but Bucket set.
func DefaultConfig() Config {
	return Config{
		TmpDir:         os.TempDir(),
		Prefix:         "data",
		TargetFileRows: DefaultTargetFileRows,
		Compression:    "zstd",
		ChunkSize:      DefaultChunkSize,
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.TmpDir == "" {
		return &ConfigError{Field: "TmpDir", Message: "cannot be empty"}
	}
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "cannot be empty"}
	}
	if c.TargetFileRows == 0 || c.TargetFileRows < NoRowLimitPerFile {
		return &ConfigError{Field: "TargetFileRows", Message: "must be positive or NoRowLimitPerFile"}
	}
	if c.ChunkSize < 0 {
		return &ConfigError{Field: "ChunkSize", Message: "cannot be negative"}
	}
	if _, ok := parseCompression(c.Compression); !ok {
		return &ConfigError{Field: "Compression", Message: "unsupported codec " + c.Compression}
	}
	return nil
}

// GetChunkSize returns the effective chunk size, using the default if not specified.
func (c *Config) GetChunkSize() int64 {
	if c.ChunkSize > 0 {
		return c.ChunkSize
	}
	return DefaultChunkSize
}

func parseCompression(name string) (compress.Compression, bool) {
	switch strings.ToLower(name) {
	case "zstd", "":
		return compress.Codecs.Zstd, true
	case "snappy":
		return compress.Codecs.Snappy, true
	case "gzip":
		return compress.Codecs.Gzip, true
	case "lz4":
		return compress.Codecs.Lz4Raw, true
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, true
	}
	return compress.Codecs.Uncompressed, false
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "datafile config: " + e.Field + " " + e.Message
}
